package service

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/therapii/api-server-go/internal/database"
	"github.com/therapii/api-server-go/internal/model"
	"github.com/therapii/api-server-go/internal/repository"
)

type mockInvitationRepo struct {
	mock.Mock
}

func (m *mockInvitationRepo) Create(ctx context.Context, params model.CreateInvitationParams) (*model.InvitationCode, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InvitationCode), args.Error(1)
}

func (m *mockInvitationRepo) FindByID(ctx context.Context, id string) (*model.InvitationCode, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InvitationCode), args.Error(1)
}

func (m *mockInvitationRepo) FindRedeemableByCode(ctx context.Context, code string, now time.Time) (*model.InvitationCode, error) {
	args := m.Called(ctx, code, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InvitationCode), args.Error(1)
}

func (m *mockInvitationRepo) ExistsRedeemableByCode(ctx context.Context, code string, now time.Time) (bool, error) {
	args := m.Called(ctx, code, now)
	return args.Bool(0), args.Error(1)
}

func (m *mockInvitationRepo) LockCode(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}

func (m *mockInvitationRepo) ListByOwner(ctx context.Context, q model.ListInvitationsQuery) ([]model.InvitationCode, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.InvitationCode), args.Error(1)
}

func (m *mockInvitationRepo) ConditionalRedeem(ctx context.Context, id, patientID string, now time.Time) (*model.InvitationCode, error) {
	args := m.Called(ctx, id, patientID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.InvitationCode), args.Error(1)
}

func (m *mockInvitationRepo) DeleteUnused(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockInvitationRepo) DeleteExpiredUnused(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockInvitationRepo) WithTx(tx *sqlx.Tx) repository.InvitationRepository {
	return m
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserProfile), args.Error(1)
}

func (m *mockUserRepo) LinkTherapist(ctx context.Context, patientID, therapistID string, now time.Time) error {
	args := m.Called(ctx, patientID, therapistID, now)
	return args.Error(0)
}

func (m *mockUserRepo) SetStripeCustomerID(ctx context.Context, id, email, customerID string) error {
	args := m.Called(ctx, id, email, customerID)
	return args.Error(0)
}

func (m *mockUserRepo) WithTx(tx *sqlx.Tx) repository.UserRepository {
	return m
}

type mockSettingsRepo struct {
	mock.Mock
}

func (m *mockSettingsRepo) Get(ctx context.Context, key string) (*model.AdminSetting, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AdminSetting), args.Error(1)
}

func (m *mockSettingsRepo) Put(ctx context.Context, key string, value any) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

type mockSummaryRepo struct {
	mock.Mock
}

func (m *mockSummaryRepo) Create(ctx context.Context, params model.CreateSummaryParams) (*model.AIConversationSummary, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AIConversationSummary), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyInvitation(ctx context.Context, inv *model.InvitationCode) (bool, error) {
	args := m.Called(ctx, inv)
	return args.Bool(0), args.Error(1)
}

// passthroughTx runs fn without a real transaction; repositories in tests
// ignore the tx handle.
type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

// memoryInvitationStore is an in-memory InvitationRepository whose conditional
// operations are atomic, mirroring the row-locking behaviour of Postgres.
type memoryInvitationStore struct {
	mu          sync.Mutex
	invitations map[string]*model.InvitationCode
}

func newMemoryInvitationStore(invs ...*model.InvitationCode) *memoryInvitationStore {
	s := &memoryInvitationStore{invitations: map[string]*model.InvitationCode{}}
	for _, inv := range invs {
		cp := *inv
		s.invitations[inv.ID] = &cp
	}
	return s
}

func (s *memoryInvitationStore) Create(ctx context.Context, p model.CreateInvitationParams) (*model.InvitationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv := &model.InvitationCode{
		ID:               p.ID,
		Code:             p.Code,
		TherapistID:      p.TherapistID,
		PatientEmail:     p.PatientEmail,
		PatientFirstName: p.PatientFirstName,
		PatientLastName:  p.PatientLastName,
		CreatedAt:        p.CreatedAt,
		ExpiresAt:        p.ExpiresAt,
	}
	s.invitations[inv.ID] = inv
	cp := *inv
	return &cp, nil
}

func (s *memoryInvitationStore) FindByID(ctx context.Context, id string) (*model.InvitationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (s *memoryInvitationStore) FindRedeemableByCode(ctx context.Context, code string, now time.Time) (*model.InvitationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invitations {
		if inv.Code == code && inv.Redeemable(now) {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryInvitationStore) ExistsRedeemableByCode(ctx context.Context, code string, now time.Time) (bool, error) {
	inv, err := s.FindRedeemableByCode(ctx, code, now)
	return inv != nil, err
}

func (s *memoryInvitationStore) LockCode(ctx context.Context, code string) error {
	return nil
}

func (s *memoryInvitationStore) ListByOwner(ctx context.Context, q model.ListInvitationsQuery) ([]model.InvitationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.InvitationCode
	for _, inv := range s.invitations {
		if q.TherapistID != "" && inv.TherapistID != q.TherapistID {
			continue
		}
		if q.PatientID != "" && (inv.PatientID == nil || *inv.PatientID != q.PatientID) {
			continue
		}
		if q.AcceptedOnly && !inv.IsUsed {
			continue
		}
		out = append(out, *inv)
	}
	return out, nil
}

func (s *memoryInvitationStore) ConditionalRedeem(ctx context.Context, id, patientID string, now time.Time) (*model.InvitationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok || !inv.Redeemable(now) {
		return nil, nil
	}
	usedAt := now
	pid := patientID
	inv.IsUsed = true
	inv.UsedAt = &usedAt
	inv.PatientID = &pid
	cp := *inv
	return &cp, nil
}

func (s *memoryInvitationStore) DeleteUnused(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok || inv.IsUsed {
		return false, nil
	}
	delete(s.invitations, id)
	return true, nil
}

func (s *memoryInvitationStore) DeleteExpiredUnused(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, inv := range s.invitations {
		if !inv.IsUsed && inv.ExpiresAt.Before(olderThan) {
			delete(s.invitations, id)
			n++
		}
	}
	return n, nil
}

func (s *memoryInvitationStore) WithTx(tx *sqlx.Tx) repository.InvitationRepository {
	return s
}

// memoryUserRepo records therapist links.
type memoryUserRepo struct {
	mu    sync.Mutex
	links map[string]string
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{links: map[string]string{}}
}

func (r *memoryUserRepo) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	therapistID, ok := r.links[id]
	if !ok {
		return nil, nil
	}
	return &model.UserProfile{ID: id, TherapistID: &therapistID}, nil
}

func (r *memoryUserRepo) LinkTherapist(ctx context.Context, patientID, therapistID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[patientID] = therapistID
	return nil
}

func (r *memoryUserRepo) SetStripeCustomerID(ctx context.Context, id, email, customerID string) error {
	return nil
}

func (r *memoryUserRepo) WithTx(tx *sqlx.Tx) repository.UserRepository {
	return r
}
