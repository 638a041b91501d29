package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/therapii/api-server-go/internal/audit"
	"github.com/therapii/api-server-go/internal/config"
	"github.com/therapii/api-server-go/internal/database"
	apperrors "github.com/therapii/api-server-go/internal/errors"
	"github.com/therapii/api-server-go/internal/model"
	"github.com/therapii/api-server-go/internal/notify"
	"github.com/therapii/api-server-go/internal/repository"
	"github.com/therapii/api-server-go/internal/util"
)

// ErrInvitationNotFound is returned for missing, used and expired codes alike
// so callers cannot tell them apart.
var ErrInvitationNotFound = apperrors.NotFound("Invitation")

var errCreateFailed = apperrors.FailedPrecondition("Failed to create invitation")

var invitationFilters = []string{string(model.InvitationFilterAll), string(model.InvitationFilterAccepted)}

// TxRunner runs fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

type CreateInvitationInput struct {
	TherapistID      string `json:"therapistId"`
	PatientEmail     string `json:"patientEmail"`
	PatientFirstName string `json:"patientFirstName"`
	PatientLastName  string `json:"patientLastName"`
}

type CreateInvitationResult struct {
	Success      bool                  `json:"success"`
	InvitationID string                `json:"invitationId"`
	EmailSent    bool                  `json:"emailSent"`
	Invitation   *model.InvitationCode `json:"invitation"`
}

type ListInvitationsInput struct {
	OwnerID string
	Filter  model.InvitationFilter
	Role    model.Role
}

type InvitationOptions struct {
	NotifyWait time.Duration
	NotifySend time.Duration
}

type InvitationService struct {
	tx          TxRunner
	invitations repository.InvitationRepository
	users       repository.UserRepository
	codes       *CodeGenerator
	notifier    notify.Notifier
	notifyWait  time.Duration
	notifySend  time.Duration
	now         func() time.Time
	inflight    sync.WaitGroup
}

func NewInvitationService(
	tx TxRunner,
	invitations repository.InvitationRepository,
	users repository.UserRepository,
	codes *CodeGenerator,
	notifier notify.Notifier,
	opts InvitationOptions,
) *InvitationService {
	if opts.NotifyWait <= 0 {
		opts.NotifyWait = 3 * time.Second
	}
	if opts.NotifySend <= 0 {
		opts.NotifySend = 15 * time.Second
	}
	return &InvitationService{
		tx:          tx,
		invitations: invitations,
		users:       users,
		codes:       codes,
		notifier:    notifier,
		notifyWait:  opts.NotifyWait,
		notifySend:  opts.NotifySend,
		now:         time.Now,
	}
}

func (s *InvitationService) Create(ctx context.Context, callerID string, in CreateInvitationInput) (*CreateInvitationResult, error) {
	if callerID == "" {
		return nil, apperrors.Unauthenticated("User must be authenticated to create invitations")
	}

	in.TherapistID = strings.TrimSpace(in.TherapistID)
	in.PatientEmail = strings.TrimSpace(in.PatientEmail)
	in.PatientFirstName = strings.TrimSpace(in.PatientFirstName)
	in.PatientLastName = strings.TrimSpace(in.PatientLastName)

	if in.TherapistID == "" || in.PatientEmail == "" || in.PatientFirstName == "" {
		return nil, apperrors.InvalidArgument("Missing required fields: therapistId, patientEmail, or patientFirstName")
	}
	if callerID != in.TherapistID {
		return nil, apperrors.PermissionDenied("You can only create invitations for yourself")
	}

	now := s.now()
	id := util.NewIDAt(now)

	// The code lock and the insert share one transaction so two creators
	// cannot both pass the uniqueness check for the same code.
	var inv *model.InvitationCode
	var codeErr error
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		invitations := s.invitations.WithTx(tx)

		code, err := s.codes.using(invitations).EnsureUnique(ctx)
		if err != nil {
			codeErr = err
			return err
		}

		inv, err = invitations.Create(ctx, model.CreateInvitationParams{
			ID:               id,
			Code:             code,
			TherapistID:      in.TherapistID,
			PatientEmail:     in.PatientEmail,
			PatientFirstName: in.PatientFirstName,
			PatientLastName:  in.PatientLastName,
			CreatedAt:        now,
			ExpiresAt:        now.Add(config.InvitationTTL),
		})
		return err
	})
	if codeErr != nil {
		if errors.Is(codeErr, ErrCodeSpaceExhausted) {
			audit.Log(ctx, audit.Event{
				Type:    audit.EventCodeSpaceExhausted,
				UserID:  callerID,
				Err:     codeErr,
				Details: map[string]interface{}{"therapistId": in.TherapistID},
			})
			return nil, errCreateFailed.WithCause(codeErr)
		}
		return nil, apperrors.Database(codeErr)
	}
	if err != nil {
		s.discardFailedCreate(ctx, id, in, err)
		return nil, errCreateFailed.WithCause(err)
	}

	log.Info().
		Str("invitationId", inv.ID).
		Str("therapistId", inv.TherapistID).
		Str("code", util.MaskCode(inv.Code)).
		Time("expiresAt", inv.ExpiresAt).
		Msg("invitation created")

	audit.Log(ctx, audit.Event{
		Type:    audit.EventInvitationCreate,
		UserID:  callerID,
		Details: map[string]interface{}{"invitationId": inv.ID},
	})

	emailSent := s.notifyPatient(ctx, inv)

	return &CreateInvitationResult{
		Success:      true,
		InvitationID: inv.ID,
		EmailSent:    emailSent,
		Invitation:   inv,
	}, nil
}

// discardFailedCreate removes a possibly half-written record and records the
// failure context.
func (s *InvitationService) discardFailedCreate(ctx context.Context, id string, in CreateInvitationInput, cause error) {
	cleanupCtx := context.WithoutCancel(ctx)
	if _, err := s.invitations.DeleteUnused(cleanupCtx, id); err != nil {
		log.Warn().Err(err).Str("invitationId", id).Msg("failed to delete invitation after create error")
	}

	audit.Log(cleanupCtx, audit.Event{
		Type:   audit.EventInvitationCreateFailed,
		UserID: in.TherapistID,
		Err:    cause,
		Details: map[string]interface{}{
			"invitationId": id,
			"therapistId":  in.TherapistID,
			"patientEmail": util.MaskEmail(in.PatientEmail),
		},
	})
}

// notifyPatient dispatches the invitation email on its own goroutine and waits
// at most notifyWait for the outcome. A slow dispatch keeps running after the
// wait and reports false.
func (s *InvitationService) notifyPatient(ctx context.Context, inv *model.InvitationCode) bool {
	if s.notifier == nil {
		return false
	}

	done := make(chan bool, 1)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()

		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifySend)
		defer cancel()

		sent, err := s.notifier.NotifyInvitation(sendCtx, inv)
		if err != nil {
			audit.Log(sendCtx, audit.Event{
				Type:   audit.EventNotificationFailed,
				UserID: inv.TherapistID,
				Err:    err,
				Details: map[string]interface{}{
					"invitationId": inv.ID,
					"patientEmail": util.MaskEmail(inv.PatientEmail),
				},
			})
		}
		done <- sent && err == nil
	}()

	timer := time.NewTimer(s.notifyWait)
	defer timer.Stop()

	select {
	case sent := <-done:
		return sent
	case <-timer.C:
		log.Warn().Str("invitationId", inv.ID).Dur("wait", s.notifyWait).Msg("invitation email still sending, responding without it")
		return false
	case <-ctx.Done():
		return false
	}
}

// Drain waits for background notifications to finish or ctx to end.
func (s *InvitationService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *InvitationService) Preview(ctx context.Context, rawCode string) (*model.InvitationCode, error) {
	code, ok := util.NormalizeInvitationCode(rawCode)
	if !ok {
		return nil, apperrors.InvalidArgument("code must be a 5-digit string")
	}

	inv, err := s.invitations.FindRedeemableByCode(ctx, code, s.now())
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if inv == nil {
		return nil, ErrInvitationNotFound
	}
	return inv, nil
}

func (s *InvitationService) Redeem(ctx context.Context, rawCode, patientID string) (*model.InvitationCode, error) {
	if patientID == "" {
		return nil, apperrors.Unauthenticated("Sign in required.")
	}
	code, ok := util.NormalizeInvitationCode(rawCode)
	if !ok {
		return nil, apperrors.InvalidArgument("code must be a 5-digit string")
	}

	now := s.now()
	var redeemed *model.InvitationCode
	err := s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		invitations := s.invitations.WithTx(tx)

		inv, err := invitations.FindRedeemableByCode(ctx, code, now)
		if err != nil {
			return apperrors.Database(err)
		}
		if inv == nil {
			return ErrInvitationNotFound
		}

		updated, err := invitations.ConditionalRedeem(ctx, inv.ID, patientID, now)
		if err != nil {
			return apperrors.Database(err)
		}
		if updated == nil {
			return ErrInvitationNotFound
		}

		if err := s.users.WithTx(tx).LinkTherapist(ctx, patientID, updated.TherapistID, now); err != nil {
			return apperrors.Database(err)
		}
		redeemed = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvitationNotFound) {
			audit.Log(ctx, audit.Event{
				Type:    audit.EventInvitationRedeemMiss,
				UserID:  patientID,
				Details: map[string]interface{}{"code": util.MaskCode(code)},
			})
			return nil, ErrInvitationNotFound
		}
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.Database(err)
	}

	audit.Log(ctx, audit.Event{
		Type:   audit.EventInvitationRedeem,
		UserID: patientID,
		Details: map[string]interface{}{
			"invitationId": redeemed.ID,
			"therapistId":  redeemed.TherapistID,
		},
	})
	return redeemed, nil
}

func (s *InvitationService) List(ctx context.Context, callerID string, in ListInvitationsInput) ([]model.InvitationCode, error) {
	if callerID == "" {
		return nil, apperrors.Unauthenticated("Sign in required.")
	}

	ownerID := strings.TrimSpace(in.OwnerID)
	if ownerID == "" {
		ownerID = callerID
	}
	if ownerID != callerID {
		return nil, apperrors.PermissionDenied("You can only view your own invitations.")
	}

	role := in.Role
	if role == "" {
		role = model.RoleTherapist
	}
	if role != model.RoleTherapist && role != model.RolePatient {
		return nil, apperrors.InvalidArgument("role must be therapist or patient")
	}

	if !util.IsValidEnum(string(in.Filter), invitationFilters) {
		return nil, apperrors.InvalidArgument("filter must be all or accepted")
	}
	filter := in.Filter
	if filter == "" {
		filter = model.InvitationFilterAll
	}

	q := model.ListInvitationsQuery{
		AcceptedOnly: filter == model.InvitationFilterAccepted || role == model.RolePatient,
	}
	if role == model.RolePatient {
		q.PatientID = ownerID
	} else {
		q.TherapistID = ownerID
	}

	invitations, err := s.invitations.ListByOwner(ctx, q)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if invitations == nil {
		invitations = []model.InvitationCode{}
	}
	sortInvitations(invitations, q.AcceptedOnly)
	return invitations, nil
}

// sortInvitations orders by createdAt desc, or for accepted lists by usedAt
// desc then createdAt desc.
func sortInvitations(list []model.InvitationCode, accepted bool) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if accepted {
			au, bu := usedAtOrZero(a), usedAtOrZero(b)
			if !au.Equal(bu) {
				return au.After(bu)
			}
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func usedAtOrZero(inv model.InvitationCode) time.Time {
	if inv.UsedAt == nil {
		return time.Time{}
	}
	return *inv.UsedAt
}

func (s *InvitationService) Delete(ctx context.Context, invitationID, requesterID string) error {
	if requesterID == "" {
		return apperrors.Unauthenticated("Sign in required.")
	}
	invitationID = strings.TrimSpace(invitationID)
	if invitationID == "" {
		return apperrors.MissingRequired("invitationId")
	}

	inv, err := s.invitations.FindByID(ctx, invitationID)
	if err != nil {
		return apperrors.Database(err)
	}
	if inv == nil {
		return ErrInvitationNotFound
	}
	if inv.TherapistID != requesterID {
		return apperrors.PermissionDenied("Cannot delete this invitation")
	}
	if inv.IsUsed {
		return apperrors.FailedPrecondition("Invitation already used")
	}

	deleted, err := s.invitations.DeleteUnused(ctx, invitationID)
	if err != nil {
		return apperrors.Database(err)
	}
	if !deleted {
		return apperrors.FailedPrecondition("Invitation already used")
	}

	audit.Log(ctx, audit.Event{
		Type:    audit.EventInvitationDelete,
		UserID:  requesterID,
		Details: map[string]interface{}{"invitationId": invitationID},
	})
	return nil
}
