package model

import (
	"encoding/json"
	"time"
)

type AIConversationSummary struct {
	ID                 string          `db:"id" json:"id"`
	PatientID          string          `db:"patient_id" json:"patientId"`
	TherapistID        string          `db:"therapist_id" json:"therapistId"`
	Summary            string          `db:"summary" json:"summary"`
	Transcript         json.RawMessage `db:"transcript" json:"transcript"`
	ShareWithTherapist bool            `db:"share_with_therapist" json:"shareWithTherapist"`
	CreatedAt          time.Time       `db:"created_at" json:"createdAt"`
}

type CreateSummaryParams struct {
	PatientID          string
	TherapistID        string
	Summary            string
	Transcript         json.RawMessage
	ShareWithTherapist bool
}

// TranscriptEntry is one sanitized turn of a conversation.
type TranscriptEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}
