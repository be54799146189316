package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ReceiptType classifies the generated document.
type ReceiptType string

const (
	ReceiptTypePayment      ReceiptType = "payment_receipt"
	ReceiptTypeRefund       ReceiptType = "refund_receipt"
	ReceiptTypeCancellation ReceiptType = "cancellation_receipt"
)

// ReceiptLog records one generated PDF artifact for a payment order.
// At most one payment_receipt exists per order; rows are never mutated
// after creation except for download bookkeeping.
type ReceiptLog struct {
	ID               uuid.UUID      `json:"id" gorm:"type:char(36);primaryKey"`
	PaymentOrderID   uuid.UUID      `json:"payment_order_id" gorm:"type:char(36);not null;index"`
	ReceiptType      ReceiptType    `json:"receipt_type" gorm:"type:varchar(30);not null;index"`
	ReceiptNumber    string         `json:"receipt_number" gorm:"uniqueIndex;size:64;not null"`
	FilePath         string         `json:"file_path" gorm:"size:512;not null"`
	FileSize         int64          `json:"file_size"`
	DownloadCount    int            `json:"download_count" gorm:"not null;default:0"`
	LastDownloadedAt *time.Time     `json:"last_downloaded_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	PaymentOrder PaymentOrder `json:"-" gorm:"foreignKey:PaymentOrderID"`
}

// BeforeCreate sets UUID before creating the record.
func (r *ReceiptLog) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
