// Package api serves the local agent HTTP API: connectivity signal, queue
// inspection and the booking wizard.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bookingsync/internal/config"
	"bookingsync/internal/logging"
	"bookingsync/internal/models"
	"bookingsync/internal/otp"
	"bookingsync/internal/queue"
	"bookingsync/internal/service"
	"bookingsync/internal/wizard"
	"bookingsync/internal/worker"

	"github.com/rs/zerolog"
)

// Network is the connectivity signal the API reports and updates.
type Network interface {
	CurrentStatus() models.NetworkStatus
	Set(status models.NetworkStatus) bool
	Probe(ctx context.Context, url string) (models.NetworkStatus, error)
}

// Syncer runs one drain pass on demand.
type Syncer interface {
	Drain(ctx context.Context) (worker.Report, error)
}

// Deps are the components behind the routes.
type Deps struct {
	Queue    queue.Store
	Sync     Syncer
	Network  Network
	Wizard   *service.WizardService
	ProbeURL string
	Now      func() time.Time
}

// HTTPServer exposes the agent API.
type HTTPServer struct {
	cfg    config.APIConfig
	deps   Deps
	server *http.Server
	auth   *HTTPAuth
	logger *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	srv := &HTTPServer{cfg: cfg, deps: deps, logger: logging.Component(logger, "http")}
	srv.auth = NewHTTPAuth(cfg)

	mux := http.NewServeMux()
	srv.routes(mux)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           loggingMiddleware(srv.logger, srv.auth.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	return srv
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, instrument(pattern, h))
	}

	handle("GET /healthz", s.handleHealth)

	handle("GET /api/v1/network", s.handleGetNetwork)
	handle("PUT /api/v1/network", s.handleSetNetwork)
	handle("POST /api/v1/network/probe", s.handleProbe)

	handle("GET /api/v1/queue", s.handleListQueue)
	handle("GET /api/v1/queue/{id}", s.handleGetQueueEntry)
	handle("POST /api/v1/queue/sync", s.handleSync)
	handle("POST /api/v1/queue/cleanup", s.handleCleanup)

	handle("GET /api/v1/slots", s.handleSlots)
	handle("GET /api/v1/landmark_categories", s.handleLandmarkCategories)

	if s.deps.Wizard != nil {
		handle("POST /api/v1/wizard", s.handleWizardStart)
		handle("GET /api/v1/wizard/{id}", s.handleWizardGet)
		handle("DELETE /api/v1/wizard/{id}", s.handleWizardCancel)
		handle("POST /api/v1/wizard/{id}/position", s.handleWizardPosition)
		handle("POST /api/v1/wizard/{id}/manual_address", s.handleWizardManualAddress)
		handle("POST /api/v1/wizard/{id}/location", s.handleWizardLocation)
		handle("POST /api/v1/wizard/{id}/landmark", s.handleWizardLandmark)
		handle("POST /api/v1/wizard/{id}/schedule", s.handleWizardSchedule)
		handle("POST /api/v1/wizard/{id}/otp/request", s.handleWizardOTPRequest)
		handle("POST /api/v1/wizard/{id}/otp/verify", s.handleWizardOTPVerify)
		handle("POST /api/v1/wizard/{id}/session", s.handleWizardSession)
		handle("POST /api/v1/wizard/{id}/back", s.handleWizardBack)
		handle("POST /api/v1/wizard/{id}/confirm", s.handleWizardConfirm)
	}
}

// Handler returns the fully wrapped handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeServiceError maps domain errors to status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	var verr *wizard.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": verr.Reason, "field": verr.Field})
	case errors.Is(err, wizard.ErrStepGate), errors.Is(err, models.ErrNotSubmittable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, wizard.ErrInvalidState), errors.Is(err, worker.ErrSyncInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, otp.ErrInvalidPhone):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error(), "field": "phone"})
	case errors.Is(err, otp.ErrCodeMismatch), errors.Is(err, otp.ErrCodeExpired):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error(), "field": "code"})
	case errors.Is(err, otp.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, worker.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
