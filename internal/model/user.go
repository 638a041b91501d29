package model

import (
	"time"
)

// UserProfile is the subset of a user record the API reads and writes.
type UserProfile struct {
	ID                          string    `db:"id" json:"id"`
	Email                       string    `db:"email" json:"email"`
	TherapistID                 *string   `db:"therapist_id" json:"therapistId,omitempty"`
	ShareSummariesWithTherapist *bool     `db:"share_summaries_with_therapist" json:"shareSummariesWithTherapist,omitempty"`
	StripeCustomerID            *string   `db:"stripe_customer_id" json:"-"`
	CreatedAt                   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt                   time.Time `db:"updated_at" json:"updatedAt"`
}

// SharesSummaries returns the summary-sharing preference, which defaults to true.
func (u *UserProfile) SharesSummaries() bool {
	if u.ShareSummariesWithTherapist == nil {
		return true
	}
	return *u.ShareSummariesWithTherapist
}

// LinkedTo reports whether the profile is linked to therapistID.
func (u *UserProfile) LinkedTo(therapistID string) bool {
	return u.TherapistID != nil && *u.TherapistID == therapistID
}
