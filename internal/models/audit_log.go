package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog records operator-visible actions taken by services and sagas.
type AuditLog struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Actor    string `gorm:"index" json:"actor"`
	Action   string `gorm:"not null;index" json:"action"`
	Resource string `gorm:"index" json:"resource"`
	Result   string `gorm:"not null" json:"result"`
	Metadata string `gorm:"type:json" json:"metadata"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
