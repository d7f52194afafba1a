package service

import (
	"context"
	"errors"
	"fmt"

	"bookingsync/internal/domain"
	"bookingsync/internal/geo"
	"bookingsync/internal/logging"
	"bookingsync/internal/models"
	"bookingsync/internal/wizard"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrSessionNotFound is returned for unknown or expired wizard sessions.
var ErrSessionNotFound = errors.New("wizard session not found")

// Verifier runs the one-time code challenge.
type Verifier interface {
	RequestCode(ctx context.Context, phone string) (string, error)
	Verify(ctx context.Context, phone, code string) (string, error)
}

// Submitter takes a frozen draft off the wizard's hands.
type Submitter interface {
	Submit(ctx context.Context, draft models.BookingDraft) (models.SubmitResult, error)
}

// WizardService runs wizard sessions stored in a StateRepository. Each call
// loads the session, applies one transition and stores the result.
type WizardService struct {
	states    domain.StateRepository
	zones     domain.ZoneSource
	seedZones []models.ServiceZone
	verifier  Verifier
	submitter Submitter
	opts      wizard.Options
	locks     *sessionLocks
	logger    *zerolog.Logger
}

func NewWizardService(
	states domain.StateRepository,
	zones domain.ZoneSource,
	seedZones []models.ServiceZone,
	verifier Verifier,
	submitter Submitter,
	opts wizard.Options,
	logger *zerolog.Logger,
) *WizardService {
	return &WizardService{
		states:    states,
		zones:     zones,
		seedZones: seedZones,
		verifier:  verifier,
		submitter: submitter,
		opts:      opts,
		locks:     newSessionLocks(),
		logger:    logging.Component(logger, "wizard"),
	}
}

// Start opens a session for the service and customer in seed. Zones are
// fetched once here and stay fixed for the session.
func (s *WizardService) Start(ctx context.Context, seed models.BookingDraft) (*models.WizardState, error) {
	zones := s.loadZones(ctx)
	w := wizard.New(uuid.NewString(), seed, zones, s.opts)
	state := w.Snapshot()
	if err := s.states.SetState(ctx, state); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	s.logger.Info().Str("session_id", state.SessionID).Int("zones", len(zones)).Msg("Wizard started")
	return state, nil
}

func (s *WizardService) loadZones(ctx context.Context) []models.ServiceZone {
	if s.zones == nil {
		return s.seedZones
	}
	zones, err := s.zones.ListZones(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Zone catalog unavailable, using seed zones")
		return s.seedZones
	}
	if len(zones) == 0 {
		return s.seedZones
	}
	return zones
}

func (s *WizardService) Get(ctx context.Context, sessionID string) (*models.WizardState, error) {
	state, err := s.states.GetState(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if state == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return state, nil
}

func (s *WizardService) SetPosition(ctx context.Context, sessionID string, lat, lng float64, source string) (*models.WizardState, geo.Result, error) {
	var result geo.Result
	state, err := s.mutate(ctx, sessionID, func(w *wizard.Wizard) error {
		var err error
		result, err = w.SetPosition(lat, lng, source)
		return err
	})
	return state, result, err
}

func (s *WizardService) SetManualAddress(ctx context.Context, sessionID string, addr wizard.ManualAddress) (*models.WizardState, error) {
	return s.mutate(ctx, sessionID, func(w *wizard.Wizard) error {
		return w.SetManualAddress(addr)
	})
}

func (s *WizardService) SubmitLocation(ctx context.Context, sessionID string) (*models.WizardState, error) {
	return s.mutate(ctx, sessionID, (*wizard.Wizard).SubmitLocation)
}

func (s *WizardService) SubmitLandmark(ctx context.Context, sessionID, category, name, notes string) (*models.WizardState, error) {
	return s.mutate(ctx, sessionID, func(w *wizard.Wizard) error {
		return w.SubmitLandmark(category, name, notes)
	})
}

func (s *WizardService) SubmitSchedule(ctx context.Context, sessionID, date, slot string) (*models.WizardState, error) {
	return s.mutate(ctx, sessionID, func(w *wizard.Wizard) error {
		return w.SubmitSchedule(date, slot)
	})
}

// RequestCode sends a one-time code for phone. Only allowed on the Confirm step.
func (s *WizardService) RequestCode(ctx context.Context, sessionID, phone string) error {
	state, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if state.Step != models.StepConfirm {
		return fmt.Errorf("%w: expected %s, at %s", wizard.ErrInvalidState, models.StepConfirm, state.Step)
	}
	_, err = s.verifier.RequestCode(ctx, phone)
	return err
}

// VerifyCode checks the code and marks the phone verified on success.
func (s *WizardService) VerifyCode(ctx context.Context, sessionID, phone, code string) (*models.WizardState, error) {
	return s.mutate(ctx, sessionID, func(w *wizard.Wizard) error {
		if w.Step() != models.StepConfirm {
			return fmt.Errorf("%w: expected %s, at %s", wizard.ErrInvalidState, models.StepConfirm, w.Step())
		}
		normalized, err := s.verifier.Verify(ctx, phone, code)
		if err != nil {
			return err
		}
		return w.MarkVerified(normalized)
	})
}

func (s *WizardService) UseSession(ctx context.Context, sessionID, customerID, name, phone string) (*models.WizardState, error) {
	return s.mutate(ctx, sessionID, func(w *wizard.Wizard) error {
		return w.UseSession(customerID, name, phone)
	})
}

func (s *WizardService) Back(ctx context.Context, sessionID string) (*models.WizardState, error) {
	return s.mutate(ctx, sessionID, (*wizard.Wizard).Back)
}

// Confirm freezes the draft, submits it and ends the session.
func (s *WizardService) Confirm(ctx context.Context, sessionID string) (*models.WizardState, error) {
	return s.mutate(ctx, sessionID, func(w *wizard.Wizard) error {
		draft, err := w.Freeze()
		if err != nil {
			return err
		}
		result, err := s.submitter.Submit(ctx, draft)
		if err != nil {
			return err
		}
		s.logger.Info().Str("session_id", sessionID).Str("mode", string(result.Mode)).Msg("Wizard completed")
		return w.Complete(result)
	})
}

// Cancel aborts the session. Nothing captured so far is kept.
func (s *WizardService) Cancel(ctx context.Context, sessionID string) (*models.WizardState, error) {
	defer s.locks.lock(sessionID)()

	state, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	w := wizard.Restore(state, s.opts)
	if err := w.Cancel(); err != nil {
		return nil, err
	}
	if err := s.states.ClearState(ctx, sessionID); err != nil {
		return nil, fmt.Errorf("clear session: %w", err)
	}
	s.logger.Info().Str("session_id", sessionID).Msg("Wizard cancelled")
	return w.Snapshot(), nil
}

// mutate runs fn under the session lock, so two requests for one session
// (a double-clicked confirm) never act on the same snapshot.
func (s *WizardService) mutate(ctx context.Context, sessionID string, fn func(w *wizard.Wizard) error) (*models.WizardState, error) {
	defer s.locks.lock(sessionID)()

	state, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	w := wizard.Restore(state, s.opts)
	if err := fn(w); err != nil {
		return nil, err
	}
	next := w.Snapshot()
	if err := s.states.SetState(ctx, next); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return next, nil
}
