// Package receipt renders payment documents to PDF and stores them on disk.
package receipt

import (
	"bytes"
	"context"
	"html/template"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/shopspring/decimal"
)

// Data is everything the receipt template needs. Amounts are minor units.
type Data struct {
	ReceiptNumber    string
	Title            string
	SchoolID         string
	GatewayOrderID   string
	GatewayPaymentID string
	Amount           int64
	RefundAmount     int64
	Currency         string
	PaymentMethod    string
	PaidAt           time.Time
	IssuedAt         time.Time
}

// MajorAmount formats a minor-unit amount in major units for display.
func (d Data) MajorAmount() string {
	return decimal.NewFromInt(d.Amount).Div(decimal.NewFromInt(100)).StringFixed(2)
}

// MajorRefundAmount formats the refunded amount in major units.
func (d Data) MajorRefundAmount() string {
	return decimal.NewFromInt(d.RefundAmount).Div(decimal.NewFromInt(100)).StringFixed(2)
}

// Generator renders a receipt document to PDF bytes.
type Generator interface {
	Render(ctx context.Context, data Data) ([]byte, error)
}

// PDFGenerator renders the HTML receipt template through headless Chrome.
type PDFGenerator struct {
	tmpl *template.Template
}

// NewPDFGenerator parses the built-in receipt template.
func NewPDFGenerator() (*PDFGenerator, error) {
	tmpl, err := template.New("receipt").Parse(receiptTemplate)
	if err != nil {
		return nil, err
	}
	return &PDFGenerator{tmpl: tmpl}, nil
}

// Render executes the template and prints the result to PDF.
func (g *PDFGenerator) Render(ctx context.Context, data Data) ([]byte, error) {
	var html bytes.Buffer
	if err := g.tmpl.Execute(&html, data); err != nil {
		return nil, err
	}
	return printToPDF(ctx, html.String())
}

func printToPDF(ctx context.Context, htmlContent string) ([]byte, error) {
	cctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	var pdfBuffer []byte
	err := chromedp.Run(cctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, htmlContent).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			pdf, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdfBuffer = pdf
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBuffer, nil
}

const receiptTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: Helvetica, Arial, sans-serif; margin: 48px; color: #1a1a1a; }
  .header { border-bottom: 2px solid #2c3e50; padding-bottom: 12px; margin-bottom: 24px; }
  .header h1 { margin: 0; font-size: 22px; }
  .number { color: #666; font-size: 13px; }
  table { width: 100%; border-collapse: collapse; margin-top: 16px; }
  td { padding: 8px 4px; border-bottom: 1px solid #eee; font-size: 14px; }
  td.label { color: #666; width: 40%; }
  .total { font-size: 18px; font-weight: bold; }
  .footer { margin-top: 40px; font-size: 11px; color: #999; }
</style>
</head>
<body>
  <div class="header">
    <h1>{{.Title}}</h1>
    <div class="number">Receipt No: {{.ReceiptNumber}}</div>
  </div>
  <table>
    <tr><td class="label">School</td><td>{{.SchoolID}}</td></tr>
    <tr><td class="label">Order Reference</td><td>{{.GatewayOrderID}}</td></tr>
    {{if .GatewayPaymentID}}<tr><td class="label">Payment Reference</td><td>{{.GatewayPaymentID}}</td></tr>{{end}}
    {{if .PaymentMethod}}<tr><td class="label">Payment Method</td><td>{{.PaymentMethod}}</td></tr>{{end}}
    {{if not .PaidAt.IsZero}}<tr><td class="label">Paid At</td><td>{{.PaidAt.Format "02 Jan 2006 15:04"}}</td></tr>{{end}}
    <tr><td class="label">Amount</td><td class="total">{{.Currency}} {{.MajorAmount}}</td></tr>
    {{if .RefundAmount}}<tr><td class="label">Refunded</td><td class="total">{{.Currency}} {{.MajorRefundAmount}}</td></tr>{{end}}
  </table>
  <div class="footer">Generated on {{.IssuedAt.Format "02 Jan 2006 15:04"}}. This is a system generated document.</div>
</body>
</html>`
