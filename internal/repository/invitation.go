package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/therapii/api-server-go/internal/model"
	"github.com/therapii/api-server-go/internal/util"
)

// InvitationRepository stores invitation codes. Redemption and deletion are
// conditional statements so concurrent callers cannot both succeed.
type InvitationRepository interface {
	Create(ctx context.Context, params model.CreateInvitationParams) (*model.InvitationCode, error)
	FindByID(ctx context.Context, id string) (*model.InvitationCode, error)
	FindRedeemableByCode(ctx context.Context, code string, now time.Time) (*model.InvitationCode, error)
	ExistsRedeemableByCode(ctx context.Context, code string, now time.Time) (bool, error)
	// LockCode serializes issuance of code until the surrounding transaction
	// ends. Outside a transaction the lock is released immediately.
	LockCode(ctx context.Context, code string) error
	ListByOwner(ctx context.Context, q model.ListInvitationsQuery) ([]model.InvitationCode, error)
	ConditionalRedeem(ctx context.Context, id, patientID string, now time.Time) (*model.InvitationCode, error)
	DeleteUnused(ctx context.Context, id string) (bool, error)
	DeleteExpiredUnused(ctx context.Context, olderThan time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) InvitationRepository
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type invitationRepo struct {
	db queryer
}

func NewInvitationRepository(db *sqlx.DB) InvitationRepository {
	return &invitationRepo{db: db}
}

func (r *invitationRepo) WithTx(tx *sqlx.Tx) InvitationRepository {
	return &invitationRepo{db: tx}
}

func (r *invitationRepo) Create(ctx context.Context, params model.CreateInvitationParams) (*model.InvitationCode, error) {
	id := params.ID
	if id == "" {
		id = util.NewID()
	}

	// Postgres keeps microseconds; truncating here keeps expires_at - created_at exact.
	createdAt := params.CreatedAt.UTC().Truncate(time.Microsecond)
	expiresAt := params.ExpiresAt.UTC().Truncate(time.Microsecond)

	var inv model.InvitationCode
	err := r.db.GetContext(ctx, &inv, `
		INSERT INTO invitation_codes (
			id, code, therapist_id, patient_email, patient_first_name, patient_last_name,
			is_used, created_at, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, false, $7, $8)
		RETURNING *
	`, id, params.Code, params.TherapistID, params.PatientEmail, params.PatientFirstName,
		params.PatientLastName, createdAt, expiresAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *invitationRepo) FindByID(ctx context.Context, id string) (*model.InvitationCode, error) {
	var inv model.InvitationCode
	err := r.db.GetContext(ctx, &inv, `SELECT * FROM invitation_codes WHERE id = $1`, id)
	return HandleNotFound(&inv, err)
}

// FindRedeemableByCode returns the unused, unexpired invitation carrying code.
func (r *invitationRepo) FindRedeemableByCode(ctx context.Context, code string, now time.Time) (*model.InvitationCode, error) {
	var inv model.InvitationCode
	err := r.db.GetContext(ctx, &inv, `
		SELECT * FROM invitation_codes
		WHERE code = $1 AND is_used = false AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`, code, now)
	return HandleNotFound(&inv, err)
}

func (r *invitationRepo) ExistsRedeemableByCode(ctx context.Context, code string, now time.Time) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM invitation_codes
			WHERE code = $1 AND is_used = false AND expires_at > $2
		)
	`, code, now)
	return exists, err
}

func (r *invitationRepo) LockCode(ctx context.Context, code string) error {
	_, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext('invitation_code:' || $1))`, code)
	return err
}

func (r *invitationRepo) ListByOwner(ctx context.Context, q model.ListInvitationsQuery) ([]model.InvitationCode, error) {
	query, args, err := buildListQuery(q)
	if err != nil {
		return nil, err
	}

	var invitations []model.InvitationCode
	if err := r.db.SelectContext(ctx, &invitations, query, args...); err != nil {
		return nil, err
	}
	return invitations, nil
}

func buildListQuery(q model.ListInvitationsQuery) (string, []interface{}, error) {
	stmt := psql.Select("*").From("invitation_codes")

	switch {
	case q.TherapistID != "" && q.PatientID == "":
		stmt = stmt.Where(sq.Eq{"therapist_id": q.TherapistID})
	case q.PatientID != "" && q.TherapistID == "":
		stmt = stmt.Where(sq.Eq{"patient_id": q.PatientID})
	default:
		return "", nil, fmt.Errorf("list invitations: exactly one owner column is required")
	}

	if q.AcceptedOnly {
		stmt = stmt.Where(sq.Eq{"is_used": true}).OrderBy("used_at DESC", "created_at DESC")
	} else {
		stmt = stmt.OrderBy("created_at DESC")
	}

	return stmt.ToSql()
}

// ConditionalRedeem marks the invitation used by patientID if, at the time the
// row lock is taken, it is still unused and unexpired. It returns nil when the
// precondition no longer holds.
func (r *invitationRepo) ConditionalRedeem(ctx context.Context, id, patientID string, now time.Time) (*model.InvitationCode, error) {
	var inv model.InvitationCode
	err := r.db.GetContext(ctx, &inv, `
		UPDATE invitation_codes
		SET is_used = true, used_at = $3, patient_id = $2
		WHERE id = $1 AND is_used = false AND expires_at > $3
		RETURNING *
	`, id, patientID, now)
	return HandleNotFound(&inv, err)
}

// DeleteUnused deletes the invitation only while it is unused.
func (r *invitationRepo) DeleteUnused(ctx context.Context, id string) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx, `
		DELETE FROM invitation_codes WHERE id = $1 AND is_used = false
	`, id))
	return n > 0, err
}

// DeleteExpiredUnused removes unused invitations that expired before olderThan.
func (r *invitationRepo) DeleteExpiredUnused(ctx context.Context, olderThan time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `
		DELETE FROM invitation_codes WHERE is_used = false AND expires_at < $1
	`, olderThan))
}
