package models

import "time"

// SagaLease is a time-bounded mutual-exclusion token keyed by entity. It
// prevents two sagas from running concurrently for the same Identity or team
// name while self-healing after a crash via the expiry.
type SagaLease struct {
	Key       string    `gorm:"primaryKey;size:256" json:"key"`
	Owner     string    `gorm:"not null" json:"owner"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
