package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"schoolpay/internal/cache"
	"schoolpay/internal/errors"
	"schoolpay/internal/gateway"
	"schoolpay/internal/model"
	"schoolpay/internal/repository"
	"schoolpay/internal/signature"
)

const (
	statsCacheKey = "payments:stats"
	statsCacheTTL = 5 * time.Minute
)

// GatewayClient is the slice of the gateway API the orchestrator depends on.
type GatewayClient interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (*gateway.Order, error)
	FetchPayment(ctx context.Context, paymentID string) (*gateway.Payment, error)
	CreateRefund(ctx context.Context, paymentID string, amountMinor *int64, notes map[string]string) (*gateway.Refund, error)
}

// PaymentStats aggregates ledger-wide payment numbers.
type PaymentStats struct {
	TotalOrders     int64                         `json:"total_orders"`
	AmountCollected int64                         `json:"amount_collected"`
	ByStatus        map[model.PaymentStatus]int64 `json:"by_status"`
}

// PaymentService orchestrates order creation, the synchronous confirmation
// path, refunds and cancellation against the payment gateway.
type PaymentService interface {
	CreateOrder(ctx context.Context, schoolID uuid.UUID, amount decimal.Decimal, notes map[string]string) (*gateway.Order, *model.PaymentOrder, error)
	VerifyPayment(ctx context.Context, gatewayOrderID, gatewayPaymentID, sig string) (*model.PaymentOrder, error)
	CreateRefund(ctx context.Context, orderID uuid.UUID, amount *decimal.Decimal, notes map[string]string) (*gateway.Refund, *model.PaymentOrder, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*model.PaymentOrder, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*model.PaymentOrder, error)
	Stats(ctx context.Context) (*PaymentStats, error)
}

type paymentService struct {
	orderRepo repository.PaymentOrderRepository
	gateway   GatewayClient
	receipts  ReceiptService
	cache     *cache.Client
	keySecret string
	currency  string
}

// NewPaymentService creates a new payment service.
func NewPaymentService(
	orderRepo repository.PaymentOrderRepository,
	gatewayClient GatewayClient,
	receipts ReceiptService,
	cacheClient *cache.Client,
	keySecret, currency string,
) PaymentService {
	return &paymentService{
		orderRepo: orderRepo,
		gateway:   gatewayClient,
		receipts:  receipts,
		cache:     cacheClient,
		keySecret: keySecret,
		currency:  currency,
	}
}

// CreateOrder creates a remote gateway order for amount in major units and
// persists the matching local payment order. If the local persist fails after
// the remote create, the gateway-side order is orphaned; that is reported to
// the caller, not silently retried.
func (s *paymentService) CreateOrder(ctx context.Context, schoolID uuid.UUID, amount decimal.Decimal, notes map[string]string) (*gateway.Order, *model.PaymentOrder, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, nil, errors.ErrInvalidAmount
	}

	receiptRef := merchantReceipt(schoolID)
	amountMinor := amount.Mul(decimal.NewFromInt(100)).IntPart()

	gwOrder, err := s.gateway.CreateOrder(ctx, amountMinor, s.currency, receiptRef, notes)
	if err != nil {
		return nil, nil, fmt.Errorf("gateway create order: %w", err)
	}

	order := &model.PaymentOrder{
		SchoolID:       schoolID,
		GatewayOrderID: gwOrder.ID,
		Amount:         amountMinor,
		Currency:       s.currency,
		Status:         model.PaymentStatusCreated,
		Receipt:        receiptRef,
	}
	if err := s.orderRepo.Create(ctx, order); err != nil {
		log.Printf("gateway order %s created but local persist failed: %v", gwOrder.ID, err)
		return nil, nil, fmt.Errorf("persist order for gateway order %s: %w", gwOrder.ID, err)
	}

	s.invalidateStats(ctx)
	return gwOrder, order, nil
}

// VerifyPayment handles the client-submitted payment confirmation. It fails
// closed on a bad signature, is idempotent for a repeated confirmation of the
// same payment, and rejects a conflicting payment id for an already-paid
// order without overwriting the stored one.
func (s *paymentService) VerifyPayment(ctx context.Context, gatewayOrderID, gatewayPaymentID, sig string) (*model.PaymentOrder, error) {
	if !signature.VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, sig, s.keySecret) {
		return nil, errors.ErrInvalidSignature
	}

	order, err := s.orderRepo.FindByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("find order %s: %w", gatewayOrderID, err)
	}

	// Idempotency short-circuit: a repeated confirmation of the same payment
	// (browser refresh, retried call) is a successful no-op.
	if order.Status == model.PaymentStatusPaid {
		if order.GatewayPaymentID == gatewayPaymentID {
			return order, nil
		}
		return nil, errors.ErrPaymentIDMismatch
	}

	// Never trust client-supplied metadata beyond the id: fetch the payment
	// server-to-server.
	payment, err := s.gateway.FetchPayment(ctx, gatewayPaymentID)
	if err != nil {
		s.markFailed(ctx, order.ID, err)
		return nil, fmt.Errorf("fetch payment: %w", err)
	}

	details, _ := json.Marshal(payment)
	won, err := s.orderRepo.MarkPaid(ctx, order.ID, gatewayPaymentID, payment.Method, datatypes.JSON(details), time.Now())
	if err != nil {
		s.markFailed(ctx, order.ID, err)
		return nil, fmt.Errorf("mark order %s paid: %w", order.ID, err)
	}

	updated, err := s.orderRepo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("reload order %s: %w", order.ID, err)
	}

	if !won {
		// A concurrent webhook got there first. Same payment id means the
		// state already converged; a different one is a conflict.
		if updated.GatewayPaymentID != gatewayPaymentID {
			return nil, errors.ErrPaymentIDMismatch
		}
		return updated, nil
	}

	s.invalidateStats(ctx)
	s.receipts.EnqueuePaymentReceipt(ctx, updated)
	return updated, nil
}

// CreateRefund refunds a paid order, fully or partially. Partial refunds are
// classified by comparing the requested amount against the original in minor
// units.
func (s *paymentService) CreateRefund(ctx context.Context, orderID uuid.UUID, amount *decimal.Decimal, notes map[string]string) (*gateway.Refund, *model.PaymentOrder, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, errors.ErrPaymentNotFound
		}
		return nil, nil, fmt.Errorf("find order %s: %w", orderID, err)
	}
	if order.GatewayPaymentID == "" {
		return nil, nil, errors.ErrOrderNotPaid
	}

	var amountMinor *int64
	status := model.PaymentStatusRefunded
	refundAmount := order.Amount
	if amount != nil {
		minor := amount.Mul(decimal.NewFromInt(100)).IntPart()
		if minor <= 0 || minor > order.Amount {
			return nil, nil, errors.ErrInvalidAmount
		}
		if minor < order.Amount {
			status = model.PaymentStatusPartialRefund
		}
		amountMinor = &minor
		refundAmount = minor
	}

	refund, err := s.gateway.CreateRefund(ctx, order.GatewayPaymentID, amountMinor, notes)
	if err != nil {
		return nil, nil, fmt.Errorf("gateway refund: %w", err)
	}

	if err := s.orderRepo.UpdateStatus(ctx, order.ID, status); err != nil {
		return nil, nil, fmt.Errorf("update order %s status: %w", order.ID, err)
	}
	order.Status = status

	s.invalidateStats(ctx)
	s.receipts.EnqueueRefundReceipt(ctx, order, refundAmount)
	return refund, order, nil
}

// CancelOrder abandons an order that has not been paid. Only created or
// attempted orders can be cancelled.
func (s *paymentService) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*model.PaymentOrder, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("find order %s: %w", orderID, err)
	}

	won, err := s.orderRepo.TransitionStatus(ctx, order.ID,
		[]model.PaymentStatus{model.PaymentStatusCreated, model.PaymentStatusAttempted},
		model.PaymentStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancel order %s: %w", order.ID, err)
	}
	if !won {
		return nil, errors.ErrOrderNotCancellable
	}

	order.Status = model.PaymentStatusCancelled
	s.invalidateStats(ctx)
	s.receipts.EnqueueCancellationReceipt(ctx, order)
	return order, nil
}

// GetOrder returns a payment order by internal id.
func (s *paymentService) GetOrder(ctx context.Context, orderID uuid.UUID) (*model.PaymentOrder, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.ErrPaymentNotFound
		}
		return nil, err
	}
	return order, nil
}

// Stats returns aggregate payment numbers with cache-aside caching.
func (s *paymentService) Stats(ctx context.Context) (*PaymentStats, error) {
	if data, _ := s.cache.Get(ctx, statsCacheKey); data != nil {
		var cached PaymentStats
		if err := json.Unmarshal(data, &cached); err == nil {
			return &cached, nil
		}
	}

	byStatus, err := s.orderRepo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	collected, err := s.orderRepo.SumCollectedAmount(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum collected: %w", err)
	}

	stats := &PaymentStats{
		AmountCollected: collected,
		ByStatus:        byStatus,
	}
	for _, count := range byStatus {
		stats.TotalOrders += count
	}

	if payload, err := json.Marshal(stats); err == nil {
		_ = s.cache.Set(ctx, statsCacheKey, payload, statsCacheTTL)
	}
	return stats, nil
}

// markFailed is the best-effort compensating write on the confirmation
// failure path. Its own failure is logged, never escalated.
func (s *paymentService) markFailed(ctx context.Context, orderID uuid.UUID, cause error) {
	if err := s.orderRepo.MarkFailed(ctx, orderID, cause.Error()); err != nil {
		log.Printf("mark order %s failed: %v (original: %v)", orderID, err, cause)
	}
	s.invalidateStats(ctx)
}

func (s *paymentService) invalidateStats(ctx context.Context) {
	_ = s.cache.Delete(ctx, statsCacheKey)
}

// merchantReceipt builds a unique merchant receipt reference. The millisecond
// timestamp plus the school prefix makes collisions negligible.
func merchantReceipt(schoolID uuid.UUID) string {
	return fmt.Sprintf("FEE_%d_%s", time.Now().UnixMilli(), schoolID.String()[:8])
}
