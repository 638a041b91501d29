package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/therapii/api-server-go/internal/model"
)

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.UserProfile, error)
	// LinkTherapist records therapistID on the patient's profile, creating the
	// profile when it does not exist yet.
	LinkTherapist(ctx context.Context, patientID, therapistID string, now time.Time) error
	SetStripeCustomerID(ctx context.Context, id, email, customerID string) error
	WithTx(tx *sqlx.Tx) UserRepository
}

type userRepo struct {
	db queryer
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) WithTx(tx *sqlx.Tx) UserRepository {
	return &userRepo{db: tx}
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	var user model.UserProfile
	err := r.db.GetContext(ctx, &user, `SELECT * FROM users WHERE id = $1`, id)
	return HandleNotFound(&user, err)
}

func (r *userRepo) LinkTherapist(ctx context.Context, patientID, therapistID string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, therapist_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO UPDATE
		SET therapist_id = EXCLUDED.therapist_id, updated_at = EXCLUDED.updated_at
	`, patientID, therapistID, now)
	return err
}

func (r *userRepo) SetStripeCustomerID(ctx context.Context, id, email, customerID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, stripe_customer_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET stripe_customer_id = EXCLUDED.stripe_customer_id, updated_at = NOW()
	`, id, email, customerID)
	return err
}
