package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"schoolpay/internal/model"
)

// PaymentOrderRepository defines payment order persistence operations.
// Status transitions are conditional updates guarded on the current status so
// that concurrent confirmation and webhook delivery cannot clobber each other;
// the loser of a race observes a false return, not corrupted state.
type PaymentOrderRepository interface {
	Create(ctx context.Context, order *model.PaymentOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentOrder, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.PaymentOrder, error)
	MarkPaid(ctx context.Context, id uuid.UUID, gatewayPaymentID, method string, methodDetails datatypes.JSON, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) error
	TransitionStatus(ctx context.Context, id uuid.UUID, from []model.PaymentStatus, to model.PaymentStatus) (bool, error)
	CountByStatus(ctx context.Context) (map[model.PaymentStatus]int64, error)
	SumCollectedAmount(ctx context.Context) (int64, error)
}

type paymentOrderRepository struct {
	db *gorm.DB
}

// NewPaymentOrderRepository creates a new payment order repository.
func NewPaymentOrderRepository(db *gorm.DB) PaymentOrderRepository {
	return &paymentOrderRepository{db: db}
}

// Create inserts a new payment order. The unique index on gateway_order_id
// enforces one row per gateway order.
func (r *paymentOrderRepository) Create(ctx context.Context, order *model.PaymentOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// FindByID finds a payment order by internal id.
func (r *paymentOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PaymentOrder, error) {
	var order model.PaymentOrder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByGatewayOrderID finds a payment order by the gateway-assigned order id.
func (r *paymentOrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*model.PaymentOrder, error) {
	var order model.PaymentOrder
	if err := r.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkPaid transitions an order to paid with the confirmed payment metadata.
// The update is guarded on status <> paid; it returns false when another path
// already recorded a payment for this order.
func (r *paymentOrderRepository) MarkPaid(ctx context.Context, id uuid.UUID, gatewayPaymentID, method string, methodDetails datatypes.JSON, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.PaymentOrder{}).
		Where("id = ? AND status <> ?", id, model.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"gateway_payment_id":     gatewayPaymentID,
			"payment_method":         method,
			"payment_method_details": methodDetails,
			"status":                 model.PaymentStatusPaid,
			"paid_at":                paidAt,
			"attempts":               gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkFailed records a failure reason. A paid order is never downgraded.
func (r *paymentOrderRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).
		Model(&model.PaymentOrder{}).
		Where("id = ? AND status <> ?", id, model.PaymentStatusPaid).
		Updates(map[string]interface{}{
			"status":         model.PaymentStatusFailed,
			"failure_reason": reason,
		}).Error
}

// UpdateStatus sets the status unconditionally (refund transitions, where the
// precondition was already checked against the gateway payment id).
func (r *paymentOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.PaymentStatus) error {
	return r.db.WithContext(ctx).
		Model(&model.PaymentOrder{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// TransitionStatus moves an order to a new status only if its current status
// is one of from. Returns false when the guard did not match.
func (r *paymentOrderRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from []model.PaymentStatus, to model.PaymentStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.PaymentOrder{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CountByStatus returns order counts grouped by status.
func (r *paymentOrderRepository) CountByStatus(ctx context.Context) (map[model.PaymentStatus]int64, error) {
	var rows []struct {
		Status model.PaymentStatus
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&model.PaymentOrder{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[model.PaymentStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// SumCollectedAmount sums the amount of every order that reached paid,
// including those later refunded.
func (r *paymentOrderRepository) SumCollectedAmount(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&model.PaymentOrder{}).
		Where("paid_at IS NOT NULL").
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}
