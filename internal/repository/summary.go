package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/therapii/api-server-go/internal/model"
	"github.com/therapii/api-server-go/internal/util"
)

type SummaryRepository interface {
	Create(ctx context.Context, params model.CreateSummaryParams) (*model.AIConversationSummary, error)
}

type summaryRepo struct {
	db *sqlx.DB
}

func NewSummaryRepository(db *sqlx.DB) SummaryRepository {
	return &summaryRepo{db: db}
}

func (r *summaryRepo) Create(ctx context.Context, params model.CreateSummaryParams) (*model.AIConversationSummary, error) {
	transcript := params.Transcript
	if len(transcript) == 0 {
		transcript = []byte("[]")
	}

	var summary model.AIConversationSummary
	err := r.db.GetContext(ctx, &summary, `
		INSERT INTO ai_conversation_summaries (id, patient_id, therapist_id, summary, transcript, share_with_therapist)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *
	`, util.NewID(), params.PatientID, params.TherapistID, params.Summary, []byte(transcript), params.ShareWithTherapist)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}
