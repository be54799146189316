package handler

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"schoolpay/internal/errors"
	"schoolpay/internal/service"
)

// ReceiptHandler serves generated receipt documents.
type ReceiptHandler struct {
	receiptService service.ReceiptService
}

// NewReceiptHandler creates a new receipt handler.
func NewReceiptHandler(receiptService service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{receiptService: receiptService}
}

// Download godoc
// @Summary Download a generated receipt PDF
// @Tags receipts
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Receipt ID"
// @Success 200 {file} file
// @Failure 404 {object} errors.ErrorResponse
// @Router /receipts/{id}/download [get]
func (h *ReceiptHandler) Download(c echo.Context) error {
	receiptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid receipt id",
			Code:  "INVALID_UUID",
		})
	}

	entry, err := h.receiptService.Download(c.Request().Context(), receiptID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.Attachment(entry.FilePath, entry.ReceiptNumber+".pdf")
}
