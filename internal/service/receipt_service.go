package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoolpay/internal/errors"
	"schoolpay/internal/model"
	"schoolpay/internal/receipt"
	"schoolpay/internal/repository"
)

// ReceiptJob describes one document to generate.
type ReceiptJob struct {
	Order        *model.PaymentOrder
	Type         model.ReceiptType
	RefundAmount int64
}

// ReceiptService generates receipt documents in the background and serves
// download bookkeeping. Generation is a one-way consumer of payment state:
// its failures are logged, never propagated back to payment status.
type ReceiptService interface {
	EnqueuePaymentReceipt(ctx context.Context, order *model.PaymentOrder)
	EnqueueRefundReceipt(ctx context.Context, order *model.PaymentOrder, refundAmount int64)
	EnqueueCancellationReceipt(ctx context.Context, order *model.PaymentOrder)
	GenerateForOrder(ctx context.Context, job ReceiptJob) error
	Download(ctx context.Context, id uuid.UUID) (*model.ReceiptLog, error)
}

type receiptService struct {
	receiptRepo repository.ReceiptLogRepository
	generator   receipt.Generator
	store       *receipt.Store
	// Channel for background generation
	jobs chan ReceiptJob
}

// NewReceiptService creates a receipt service and starts its background worker.
func NewReceiptService(
	receiptRepo repository.ReceiptLogRepository,
	generator receipt.Generator,
	store *receipt.Store,
) ReceiptService {
	s := &receiptService{
		receiptRepo: receiptRepo,
		generator:   generator,
		store:       store,
		jobs:        make(chan ReceiptJob, 100),
	}

	// Start async generation worker
	go s.worker(context.Background())

	return s
}

// worker drains the job channel. A failed job is logged and dropped; the
// payment order it belongs to is untouched.
func (s *receiptService) worker(ctx context.Context) {
	for job := range s.jobs {
		if err := s.GenerateForOrder(ctx, job); err != nil {
			log.Printf("receipt generation for order %s failed: %v", job.Order.ID, err)
		}
	}
}

// EnqueuePaymentReceipt schedules a payment receipt unless one already exists
// for the order.
func (s *receiptService) EnqueuePaymentReceipt(ctx context.Context, order *model.PaymentOrder) {
	if existing, err := s.receiptRepo.FindByOrderAndType(ctx, order.ID, model.ReceiptTypePayment); err == nil && existing != nil {
		return
	} else if err != nil && err != gorm.ErrRecordNotFound {
		log.Printf("receipt duplicate check for order %s failed: %v", order.ID, err)
		return
	}
	s.enqueue(ctx, ReceiptJob{Order: order, Type: model.ReceiptTypePayment})
}

// EnqueueRefundReceipt schedules a refund receipt.
func (s *receiptService) EnqueueRefundReceipt(ctx context.Context, order *model.PaymentOrder, refundAmount int64) {
	s.enqueue(ctx, ReceiptJob{Order: order, Type: model.ReceiptTypeRefund, RefundAmount: refundAmount})
}

// EnqueueCancellationReceipt schedules a cancellation receipt.
func (s *receiptService) EnqueueCancellationReceipt(ctx context.Context, order *model.PaymentOrder) {
	s.enqueue(ctx, ReceiptJob{Order: order, Type: model.ReceiptTypeCancellation})
}

func (s *receiptService) enqueue(ctx context.Context, job ReceiptJob) {
	select {
	case s.jobs <- job:
	default:
		// Channel full, generate synchronously as fallback
		if err := s.GenerateForOrder(ctx, job); err != nil {
			log.Printf("receipt generation for order %s failed: %v", job.Order.ID, err)
		}
	}
}

// GenerateForOrder renders, stores and records one receipt. Receipt numbers
// are deterministic per order and type, so a retry overwrites the same file
// and the unique index keeps the log to a single row.
func (s *receiptService) GenerateForOrder(ctx context.Context, job ReceiptJob) error {
	if job.Type == model.ReceiptTypePayment {
		if existing, err := s.receiptRepo.FindByOrderAndType(ctx, job.Order.ID, model.ReceiptTypePayment); err == nil && existing != nil {
			return nil
		} else if err != nil && err != gorm.ErrRecordNotFound {
			return fmt.Errorf("duplicate check: %w", err)
		}
	}

	number := receiptNumber(job)
	data := receiptData(job, number)

	pdf, err := s.generator.Render(ctx, data)
	if err != nil {
		return fmt.Errorf("render receipt %s: %w", number, err)
	}

	path, size, err := s.store.Write(number, pdf)
	if err != nil {
		return err
	}

	entry := &model.ReceiptLog{
		PaymentOrderID: job.Order.ID,
		ReceiptType:    job.Type,
		ReceiptNumber:  number,
		FilePath:       path,
		FileSize:       size,
	}
	if err := s.receiptRepo.Create(ctx, entry); err != nil {
		return fmt.Errorf("record receipt %s: %w", number, err)
	}
	return nil
}

// Download returns the receipt after bumping its download bookkeeping.
func (s *receiptService) Download(ctx context.Context, id uuid.UUID) (*model.ReceiptLog, error) {
	entry, err := s.receiptRepo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrReceiptNotFound
		}
		return nil, err
	}
	if err := s.receiptRepo.RecordDownload(ctx, id); err != nil {
		log.Printf("record download for receipt %s failed: %v", id, err)
	}
	return entry, nil
}

func receiptNumber(job ReceiptJob) string {
	prefix := "RCP"
	switch job.Type {
	case model.ReceiptTypeRefund:
		prefix = "RFD"
	case model.ReceiptTypeCancellation:
		prefix = "CAN"
	}
	short := strings.ToUpper(strings.ReplaceAll(job.Order.ID.String(), "-", "")[:12])
	return fmt.Sprintf("%s-%s-%s", prefix, job.Order.CreatedAt.Format("20060102"), short)
}

func receiptData(job ReceiptJob, number string) receipt.Data {
	title := "Fee Payment Receipt"
	switch job.Type {
	case model.ReceiptTypeRefund:
		title = "Refund Receipt"
	case model.ReceiptTypeCancellation:
		title = "Cancellation Receipt"
	}
	var paidAt time.Time
	if job.Order.PaidAt != nil {
		paidAt = *job.Order.PaidAt
	}
	return receipt.Data{
		ReceiptNumber:    number,
		Title:            title,
		SchoolID:         job.Order.SchoolID.String(),
		GatewayOrderID:   job.Order.GatewayOrderID,
		GatewayPaymentID: job.Order.GatewayPaymentID,
		Amount:           job.Order.Amount,
		RefundAmount:     job.RefundAmount,
		Currency:         job.Order.Currency,
		PaymentMethod:    job.Order.PaymentMethod,
		PaidAt:           paidAt,
		IssuedAt:         time.Now(),
	}
}
