package model

import (
	"time"
)

// InvitationCode is a short numeric code a therapist issues to onboard a patient.
type InvitationCode struct {
	ID               string     `db:"id" json:"id"`
	Code             string     `db:"code" json:"code"`
	TherapistID      string     `db:"therapist_id" json:"therapistId"`
	PatientEmail     string     `db:"patient_email" json:"patientEmail"`
	PatientFirstName string     `db:"patient_first_name" json:"patientFirstName"`
	PatientLastName  string     `db:"patient_last_name" json:"patientLastName"`
	IsUsed           bool       `db:"is_used" json:"isUsed"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	ExpiresAt        time.Time  `db:"expires_at" json:"expiresAt"`
	UsedAt           *time.Time `db:"used_at" json:"usedAt"`
	PatientID        *string    `db:"patient_id" json:"patientId"`
}

type CreateInvitationParams struct {
	ID               string
	Code             string
	TherapistID      string
	PatientEmail     string
	PatientFirstName string
	PatientLastName  string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

// IsExpired reports whether the invitation has expired at now.
func (c *InvitationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Redeemable reports whether the invitation can still be used at now.
func (c *InvitationCode) Redeemable(now time.Time) bool {
	return !c.IsUsed && !c.IsExpired(now)
}

// InvitationFilter selects which invitations a listing returns.
type InvitationFilter string

const (
	InvitationFilterAll      InvitationFilter = "all"
	InvitationFilterAccepted InvitationFilter = "accepted"
)

// ListInvitationsQuery is the store-level listing query.
type ListInvitationsQuery struct {
	// TherapistID and PatientID are mutually exclusive owner columns.
	TherapistID  string
	PatientID    string
	AcceptedOnly bool
}
