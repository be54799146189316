package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoolpay/internal/model"
)

// ReceiptLogRepository defines receipt artifact persistence operations.
type ReceiptLogRepository interface {
	Create(ctx context.Context, receipt *model.ReceiptLog) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.ReceiptLog, error)
	FindByOrderAndType(ctx context.Context, orderID uuid.UUID, receiptType model.ReceiptType) (*model.ReceiptLog, error)
	RecordDownload(ctx context.Context, id uuid.UUID) error
}

type receiptLogRepository struct {
	db *gorm.DB
}

// NewReceiptLogRepository creates a new receipt log repository.
func NewReceiptLogRepository(db *gorm.DB) ReceiptLogRepository {
	return &receiptLogRepository{db: db}
}

// Create inserts a new receipt record.
func (r *receiptLogRepository) Create(ctx context.Context, receipt *model.ReceiptLog) error {
	return r.db.WithContext(ctx).Create(receipt).Error
}

// FindByID finds a receipt by ID.
func (r *receiptLogRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.ReceiptLog, error) {
	var receipt model.ReceiptLog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&receipt).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

// FindByOrderAndType finds a receipt for an order by type. Used as the
// duplicate-prevention check before generating a payment receipt.
func (r *receiptLogRepository) FindByOrderAndType(ctx context.Context, orderID uuid.UUID, receiptType model.ReceiptType) (*model.ReceiptLog, error) {
	var receipt model.ReceiptLog
	err := r.db.WithContext(ctx).
		Where("payment_order_id = ? AND receipt_type = ?", orderID, receiptType).
		First(&receipt).Error
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// RecordDownload increments the download counter and stamps the access time.
func (r *receiptLogRepository) RecordDownload(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&model.ReceiptLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"download_count":     gorm.Expr("download_count + 1"),
			"last_downloaded_at": time.Now(),
		}).Error
}
