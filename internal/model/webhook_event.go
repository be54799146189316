package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookEvent is the durable log of inbound gateway notifications.
// GatewayEventID is a derived dedup key (inner entity id + event created_at)
// because the gateway does not guarantee a universally unique event id.
// The raw payload is retained byte-for-byte for audit and replay.
type WebhookEvent struct {
	ID             uuid.UUID      `json:"id" gorm:"type:char(36);primaryKey"`
	GatewayEventID string         `json:"gateway_event_id" gorm:"uniqueIndex;size:150;not null"`
	Event          string         `json:"event" gorm:"size:100;not null;index"`
	AccountID      string         `json:"account_id" gorm:"size:100"`
	Entity         string         `json:"entity" gorm:"size:50"`
	Payload        datatypes.JSON `json:"payload" gorm:"not null"`
	Processed      bool           `json:"processed" gorm:"not null;default:false;index"`
	ProcessedAt    *time.Time     `json:"processed_at,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty" gorm:"type:text"`
	RetryCount     int            `json:"retry_count" gorm:"not null;default:0"`
	CreatedAt      time.Time      `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// BeforeCreate sets UUID before creating the record.
func (w *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
