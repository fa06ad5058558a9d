// README: Profile service exposes the three local-first record kinds and the
// login/app-start sync passes.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ridesafe/internal/infra"
	"ridesafe/internal/pkg/validator"
	"ridesafe/internal/types"
)

type Service struct {
	profiles *Reconciler[Profile]
	medical  *Reconciler[MedicalRecord]
	status   *Reconciler[ParamedicStatus]
	now      func() time.Time
}

func NewService(profiles *Reconciler[Profile], medical *Reconciler[MedicalRecord], status *Reconciler[ParamedicStatus]) *Service {
	return &Service{profiles: profiles, medical: medical, status: status, now: time.Now}
}

// New wires the service over the local cache and the remote store.
func New(local *sql.DB, remote infra.Querier, probe Probe, logger *slog.Logger) *Service {
	return NewService(
		NewReconciler[Profile]("profile", NewLocalProfiles(local), NewRemoteProfiles(remote), probe, logger),
		NewReconciler[MedicalRecord]("medical", NewLocalMedical(local), NewRemoteMedical(remote), probe, logger),
		NewReconciler[ParamedicStatus]("paramedic_status", NewLocalStatus(local), NewRemoteStatus(remote), probe, logger),
	)
}

func (s *Service) GetProfile(ctx context.Context, userID types.ID) (*Profile, error) {
	return found(s.profiles.Get(ctx, userID))
}

func (s *Service) SaveProfile(ctx context.Context, p Profile) error {
	if p.ID.Empty() {
		return ErrBadRequest
	}
	if err := validator.ValidateStruct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return s.profiles.Save(ctx, p)
}

func (s *Service) GetMedical(ctx context.Context, userID types.ID) (*MedicalRecord, error) {
	return found(s.medical.Get(ctx, userID))
}

func (s *Service) SaveMedical(ctx context.Context, m MedicalRecord) error {
	if m.UserID.Empty() {
		return ErrBadRequest
	}
	if err := validator.ValidateStruct(m); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	m.UpdatedAt = s.now()
	return s.medical.Save(ctx, m)
}

func (s *Service) GetStatus(ctx context.Context, userID types.ID) (*ParamedicStatus, error) {
	return found(s.status.Get(ctx, userID))
}

func (s *Service) SetOnDuty(ctx context.Context, userID types.ID, active bool) error {
	if userID.Empty() {
		return ErrBadRequest
	}
	return s.status.Save(ctx, ParamedicStatus{UserID: userID, IsActive: active})
}

// WarmUp pulls every record kind of the user into the local cache. Run at
// app start and after login.
func (s *Service) WarmUp(ctx context.Context, userID types.ID) error {
	_, perr := s.profiles.Download(ctx, userID)
	_, merr := s.medical.Download(ctx, userID)
	_, serr := s.status.Download(ctx, userID)
	return errors.Join(perr, merr, serr)
}

// SyncAll pushes every pending record kind of the user.
func (s *Service) SyncAll(ctx context.Context, userID types.ID) error {
	return errors.Join(
		s.profiles.SyncPending(ctx, userID),
		s.medical.SyncPending(ctx, userID),
		s.status.SyncPending(ctx, userID),
	)
}

// PendingKinds lists the record kinds holding unpushed edits.
func (s *Service) PendingKinds(ctx context.Context, userID types.ID) ([]string, error) {
	var kinds []string
	checks := []struct {
		kind    string
		pending func(context.Context, types.ID) (bool, error)
	}{
		{"profile", s.profiles.Pending},
		{"medical", s.medical.Pending},
		{"paramedic_status", s.status.Pending},
	}
	for _, c := range checks {
		p, err := c.pending(ctx, userID)
		if err != nil {
			return nil, err
		}
		if p {
			kinds = append(kinds, c.kind)
		}
	}
	return kinds, nil
}

func found[T any](rec *T, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}
