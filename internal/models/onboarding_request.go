package models

import "time"

// RequestStatus enumerates onboarding request states.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// OnboardingRequest captures a prospective member's intake form. At most one
// pending request exists per Identity; resubmitting while pending replaces
// the pending row in place. An approved request cannot be re-approved or
// resubmitted.
type OnboardingRequest struct {
	BaseModel

	Identity    string        `gorm:"index;not null" json:"identity"`
	DisplayName string        `gorm:"not null" json:"display_name"`
	Email       string        `gorm:"not null" json:"email"`
	Pronouns    string        `json:"pronouns"`
	Interests   string        `json:"interests"`
	Status      RequestStatus `gorm:"index;default:pending" json:"status"`

	SubmittedAt     time.Time  `gorm:"not null" json:"submitted_at"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	Reviewer        string     `json:"reviewer,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
}
