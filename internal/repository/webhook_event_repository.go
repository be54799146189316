package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoolpay/internal/model"
)

// WebhookEventRepository defines webhook event log persistence operations.
type WebhookEventRepository interface {
	// CreateOrGet inserts the event, or returns the already-stored row when the
	// dedup key exists. created is false on duplicate delivery.
	CreateOrGet(ctx context.Context, event *model.WebhookEvent) (stored *model.WebhookEvent, created bool, err error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	FindRetryable(ctx context.Context, maxRetries, limit int) ([]model.WebhookEvent, error)
}

type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event repository.
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// CreateOrGet relies on the unique index on gateway_event_id as the dedup
// boundary. A lost insert race is resolved by re-reading the winner's row.
func (r *webhookEventRepository) CreateOrGet(ctx context.Context, event *model.WebhookEvent) (*model.WebhookEvent, bool, error) {
	var existing model.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("gateway_event_id = ?", event.GatewayEventID).
		First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, false, err
	}

	if createErr := r.db.WithContext(ctx).Create(event).Error; createErr != nil {
		// Concurrent delivery may have inserted the same key between the read
		// and the insert; the unique index makes one of them lose.
		err = r.db.WithContext(ctx).
			Where("gateway_event_id = ?", event.GatewayEventID).
			First(&existing).Error
		if err == nil {
			return &existing, false, nil
		}
		return nil, false, createErr
	}
	return event, true, nil
}

// MarkProcessed marks the event as successfully handled.
func (r *webhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": time.Now(),
		}).Error
}

// MarkFailed records the handler error and bumps the retry counter.
func (r *webhookEventRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"error_message": errMsg,
			"retry_count":   gorm.Expr("retry_count + 1"),
		}).Error
}

// FindRetryable returns the oldest unprocessed events still under the retry
// budget, bounded by limit.
func (r *webhookEventRepository) FindRetryable(ctx context.Context, maxRetries, limit int) ([]model.WebhookEvent, error) {
	var events []model.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("processed = ? AND retry_count < ?", false, maxRetries).
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
