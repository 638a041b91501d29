package model

// Role is the caller's relationship to the invitations being listed.
type Role string

const (
	RoleTherapist Role = "therapist"
	RolePatient   Role = "patient"
)

// EmailProvider names a notification transport.
type EmailProvider string

const (
	EmailProviderNoop EmailProvider = "noop"
	EmailProviderSMTP EmailProvider = "smtp"
	EmailProviderSES  EmailProvider = "ses"
)
