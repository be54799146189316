package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PaymentStatus represents the lifecycle status of a payment order.
type PaymentStatus string

const (
	PaymentStatusCreated       PaymentStatus = "created"
	PaymentStatusAttempted     PaymentStatus = "attempted"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusCancelled     PaymentStatus = "cancelled"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusPartialRefund PaymentStatus = "partial_refund"
)

// PaymentOrder represents one fee-payment lifecycle against the payment gateway.
// Amount is stored in minor currency units (paise) to avoid floating-point error.
// Exactly one row exists per GatewayOrderID; GatewayPaymentID stays empty until a
// payment is confirmed and is stable once set.
type PaymentOrder struct {
	ID                   uuid.UUID      `json:"id" gorm:"type:char(36);primaryKey"`
	SchoolID             uuid.UUID      `json:"school_id" gorm:"type:char(36);not null;index"`
	GatewayOrderID       string         `json:"gateway_order_id" gorm:"uniqueIndex;size:100;not null"`
	GatewayPaymentID     string         `json:"gateway_payment_id,omitempty" gorm:"size:100;index"`
	Amount               int64          `json:"amount" gorm:"not null"`
	Currency             string         `json:"currency" gorm:"size:10;not null;default:'INR'"`
	Status               PaymentStatus  `json:"status" gorm:"type:varchar(20);not null;default:'created';index"`
	Attempts             int            `json:"attempts" gorm:"not null;default:0"`
	FailureReason        string         `json:"failure_reason,omitempty" gorm:"type:text"`
	Receipt              string         `json:"receipt" gorm:"size:64;not null"`
	PaymentMethod        string         `json:"payment_method,omitempty" gorm:"size:50"`
	PaymentMethodDetails datatypes.JSON `json:"payment_method_details,omitempty"`
	PaidAt               *time.Time     `json:"paid_at,omitempty"`
	CreatedAt            time.Time      `json:"created_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
	DeletedAt            gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate sets UUID before creating the record.
func (p *PaymentOrder) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
