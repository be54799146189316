package errors

import (
	"errors"
	"net/http"
)

var (
	// ErrInvalidSignature is returned when HMAC signature verification fails.
	ErrInvalidSignature = errors.New("signature verification failed")
	// ErrPaymentNotFound is returned when no payment order matches the lookup.
	ErrPaymentNotFound = errors.New("payment record not found")
	// ErrPaymentIDMismatch is returned when a paid order is re-verified with a different payment id.
	ErrPaymentIDMismatch = errors.New("order already paid with a different payment id")
	// ErrOrderNotPaid is returned when a refund is requested for an unpaid order.
	ErrOrderNotPaid = errors.New("order has not been paid")
	// ErrOrderNotCancellable is returned when cancelling an order past the created/attempted stage.
	ErrOrderNotCancellable = errors.New("order can no longer be cancelled")
	// ErrReceiptNotFound is returned when a receipt is not found.
	ErrReceiptNotFound = errors.New("receipt not found")
	// ErrInvalidAmount is returned when amount is invalid.
	ErrInvalidAmount = errors.New("invalid amount")
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HTTPError represents an HTTP error with status code.
type HTTPError struct {
	StatusCode int
	Message    string
	Code       string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, message, code string) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    message,
		Code:       code,
	}
}

// ToErrorResponse converts an HTTPError to ErrorResponse.
func (e *HTTPError) ToErrorResponse() ErrorResponse {
	return ErrorResponse{
		Error: e.Message,
		Code:  e.Code,
	}
}

// MapErrorToHTTP maps domain errors to HTTP errors. Internal error text is
// never forwarded for unrecognized errors.
func MapErrorToHTTP(err error) *HTTPError {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return NewHTTPError(http.StatusUnauthorized, ErrInvalidSignature.Error(), "SIGNATURE_VERIFICATION_FAILED")
	case errors.Is(err, ErrPaymentNotFound):
		return NewHTTPError(http.StatusNotFound, ErrPaymentNotFound.Error(), "PAYMENT_NOT_FOUND")
	case errors.Is(err, ErrPaymentIDMismatch):
		return NewHTTPError(http.StatusConflict, ErrPaymentIDMismatch.Error(), "PAYMENT_ID_MISMATCH")
	case errors.Is(err, ErrOrderNotPaid):
		return NewHTTPError(http.StatusBadRequest, ErrOrderNotPaid.Error(), "ORDER_NOT_PAID")
	case errors.Is(err, ErrOrderNotCancellable):
		return NewHTTPError(http.StatusBadRequest, ErrOrderNotCancellable.Error(), "ORDER_NOT_CANCELLABLE")
	case errors.Is(err, ErrReceiptNotFound):
		return NewHTTPError(http.StatusNotFound, ErrReceiptNotFound.Error(), "RECEIPT_NOT_FOUND")
	case errors.Is(err, ErrInvalidAmount):
		return NewHTTPError(http.StatusBadRequest, ErrInvalidAmount.Error(), "INVALID_AMOUNT")
	default:
		return NewHTTPError(http.StatusInternalServerError, "internal server error", "INTERNAL_ERROR")
	}
}
