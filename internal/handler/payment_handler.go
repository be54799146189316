package handler

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"schoolpay/internal/errors"
	"schoolpay/internal/service"
)

// SignatureHeader carries the gateway's HMAC signature on webhook deliveries.
const SignatureHeader = "X-Gateway-Signature"

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	paymentService service.PaymentService
	webhookService service.WebhookService
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(paymentService service.PaymentService, webhookService service.WebhookService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		webhookService: webhookService,
	}
}

// CreateOrderRequest represents an order creation request. Amount is in major
// currency units (rupees).
type CreateOrderRequest struct {
	SchoolID string            `json:"school_id" validate:"required,uuid"`
	Amount   string            `json:"amount" validate:"required"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrderResponse returns both the gateway order and the local record.
type CreateOrderResponse struct {
	OrderID        string `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	Status         string `json:"status"`
}

// CreateOrder godoc
// @Summary Create a payment order for a school fee
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateOrderRequest true "Order data"
// @Success 201 {object} CreateOrderResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /payments/order [post]
func (h *PaymentHandler) CreateOrder(c echo.Context) error {
	var req CreateOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_ERROR",
		})
	}

	schoolID, err := uuid.Parse(req.SchoolID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid school_id",
			Code:  "INVALID_UUID",
		})
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid amount",
			Code:  "INVALID_AMOUNT",
		})
	}

	_, order, err := h.paymentService.CreateOrder(c.Request().Context(), schoolID, amount, req.Notes)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.JSON(http.StatusCreated, CreateOrderResponse{
		OrderID:        order.ID.String(),
		GatewayOrderID: order.GatewayOrderID,
		Amount:         order.Amount,
		Currency:       order.Currency,
		Receipt:        order.Receipt,
		Status:         string(order.Status),
	})
}

// VerifyPaymentRequest represents a client-submitted payment confirmation.
type VerifyPaymentRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" validate:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" validate:"required"`
	Signature        string `json:"signature" validate:"required"`
}

// VerifyPayment godoc
// @Summary Verify a client-submitted payment confirmation
// @Tags payments
// @Accept json
// @Produce json
// @Param request body VerifyPaymentRequest true "Confirmation data"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /payments/verify [post]
func (h *PaymentHandler) VerifyPayment(c echo.Context) error {
	var req VerifyPaymentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: err.Error(),
			Code:  "VALIDATION_ERROR",
		})
	}

	order, err := h.paymentService.VerifyPayment(c.Request().Context(), req.GatewayOrderID, req.GatewayPaymentID, req.Signature)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"order_id": order.ID.String(),
		"status":   order.Status,
		"paid_at":  order.PaidAt,
		"message":  "payment verified",
	})
}

// HandleWebhook godoc
// @Summary Ingest a gateway webhook notification
// @Tags payments
// @Accept json
// @Produce json
// @Param X-Gateway-Signature header string true "HMAC signature of the body"
// @Success 200 {object} map[string]string
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /payments/webhook [post]
func (h *PaymentHandler) HandleWebhook(c echo.Context) error {
	// The signature covers the raw body bytes, so the body must be read
	// before any binding touches it.
	rawBody, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "unreadable request body",
			Code:  "INVALID_REQUEST",
		})
	}

	sig := c.Request().Header.Get(SignatureHeader)
	if err := h.webhookService.ProcessWebhook(c.Request().Context(), sig, rawBody); err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		// Non-2xx on handler failure lets the gateway's own retry fire.
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// RefundRequest represents a refund request. Amount in major units; omitted
// for a full refund.
type RefundRequest struct {
	Amount string            `json:"amount,omitempty"`
	Notes  map[string]string `json:"notes,omitempty"`
}

// CreateRefund godoc
// @Summary Refund a paid order, fully or partially
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment order ID"
// @Param request body RefundRequest true "Refund data"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /payments/{id}/refund [post]
func (h *PaymentHandler) CreateRefund(c echo.Context) error {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid order id",
			Code:  "INVALID_UUID",
		})
	}

	var req RefundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
	}

	var amount *decimal.Decimal
	if req.Amount != "" {
		parsed, err := decimal.NewFromString(req.Amount)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
				Error: "invalid amount",
				Code:  "INVALID_AMOUNT",
			})
		}
		amount = &parsed
	}

	refund, order, err := h.paymentService.CreateRefund(c.Request().Context(), orderID, amount, req.Notes)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"refund_id": refund.ID,
		"order_id":  order.ID.String(),
		"status":    order.Status,
	})
}

// CancelOrder godoc
// @Summary Cancel an unpaid order
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment order ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /payments/{id}/cancel [post]
func (h *PaymentHandler) CancelOrder(c echo.Context) error {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid order id",
			Code:  "INVALID_UUID",
		})
	}

	order, err := h.paymentService.CancelOrder(c.Request().Context(), orderID, "cancelled by admin")
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, echo.Map{
		"order_id": order.ID.String(),
		"status":   order.Status,
	})
}

// GetOrder godoc
// @Summary Get a payment order
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment order ID"
// @Success 200 {object} model.PaymentOrder
// @Failure 404 {object} errors.ErrorResponse
// @Router /payments/{id} [get]
func (h *PaymentHandler) GetOrder(c echo.Context) error {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, errors.ErrorResponse{
			Error: "invalid order id",
			Code:  "INVALID_UUID",
		})
	}

	order, err := h.paymentService.GetOrder(c.Request().Context(), orderID)
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, order)
}

// GetStats godoc
// @Summary Aggregate payment statistics
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.PaymentStats
// @Failure 500 {object} errors.ErrorResponse
// @Router /payments/stats [get]
func (h *PaymentHandler) GetStats(c echo.Context) error {
	stats, err := h.paymentService.Stats(c.Request().Context())
	if err != nil {
		httpErr := errors.MapErrorToHTTP(err)
		return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse())
	}
	return c.JSON(http.StatusOK, stats)
}
