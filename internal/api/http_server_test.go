package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"bookingsync/internal/config"
	"bookingsync/internal/models"
	"bookingsync/internal/network"
	"bookingsync/internal/otp"
	"bookingsync/internal/queue"
	"bookingsync/internal/remote"
	"bookingsync/internal/repository"
	"bookingsync/internal/service"
	"bookingsync/internal/wizard"
	"bookingsync/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

type fakeSyncer struct {
	report worker.Report
	err    error
}

func (f *fakeSyncer) Drain(context.Context) (worker.Report, error) {
	return f.report, f.err
}

type unreachableSender struct{}

func (unreachableSender) CreateBooking(context.Context, remote.CreateBookingRequest) (*remote.CreateBookingResult, error) {
	return nil, &remote.HTTPError{StatusCode: http.StatusBadGateway}
}

type codeBox struct {
	mu   sync.Mutex
	code string
}

func (c *codeBox) SendCode(_ context.Context, _, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code = code
	return nil
}

func (c *codeBox) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

type testEnv struct {
	server *HTTPServer
	ts     *httptest.Server
	store  *queue.MemoryStore
	net    *network.Monitor
	syncer *fakeSyncer
	codes  *codeBox
}

func newTestEnv(t *testing.T, cfg config.APIConfig) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	store := queue.NewMemoryStore(queue.WithClock(func() time.Time { return testNow }))
	mon := network.NewMonitor(models.NetworkOffline, &logger)
	repo := repository.NewMemoryStateRepository(time.Hour)
	codes := &codeBox{}
	verifier := otp.NewService(repo, repo, codes, config.OTPConfig{}, &logger)
	bookings := service.NewBookingService(unreachableSender{}, store, mon, nil, &logger)
	zones := []models.ServiceZone{{
		ID:      "z1",
		Name:    "Central",
		Polygon: []models.LatLng{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 10}, {Lat: 10, Lng: 10}, {Lat: 10, Lng: 0}},
	}}
	wiz := service.NewWizardService(repo, nil, zones, verifier, bookings, wizard.Options{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	}, &logger)

	syncer := &fakeSyncer{}
	srv := NewHTTPServer(cfg, Deps{
		Queue:   store,
		Sync:    syncer,
		Network: mon,
		Wizard:  wiz,
		Now:     func() time.Time { return testNow },
	}, &logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, ts: ts, store: store, net: mon, syncer: syncer, codes: codes}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})
	var body map[string]any
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil, &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "offline", body["network"])
}

func TestNetworkSignal(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	var body map[string]any
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/v1/network", map[string]string{"status": "online"}, &body))
	assert.Equal(t, true, body["changed"])
	assert.True(t, env.net.Online())

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPut, "/api/v1/network", map[string]string{"status": "online"}, &body))
	assert.Equal(t, false, body["changed"])

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/api/v1/network", map[string]string{"status": "flaky"}, nil))
	assert.Equal(t, http.StatusNotImplemented, env.do(t, http.MethodPost, "/api/v1/network/probe", nil, nil))
}

func TestWizardFlowQueuesWhileOffline(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	var state models.WizardState
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/wizard",
		map[string]any{"service_id": "svc-1", "service_name": "Full Wash", "price": "499.00"}, &state))
	base := "/api/v1/wizard/" + state.SessionID

	var pos struct {
		InZone bool `json:"in_zone"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/position", map[string]any{"lat": 20, "lng": 20}, &pos))
	assert.False(t, pos.InZone)

	var verr map[string]string
	require.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, base+"/location", nil, &verr))
	assert.Equal(t, "address", verr["field"])

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/manual_address", wizard.ManualAddress{
		ZoneID: "z1", HouseNumber: "4", Street: "Church St", Area: "Ashok Nagar", City: "Bengaluru", Pincode: "560001",
	}, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/location", nil, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/landmark", map[string]string{"category": "park", "name": "Cubbon Park"}, nil))

	require.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, base+"/schedule", map[string]string{"date": "2026-12-01", "time_slot": "09:00"}, &verr))
	assert.Equal(t, "date", verr["field"])
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/schedule", map[string]string{"date": "2026-10-17", "time_slot": "09:00"}, nil))

	require.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, base+"/confirm", nil, &verr))
	assert.Equal(t, "phone", verr["field"])

	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, base+"/otp/request", map[string]string{"phone": "+91 98765 43210"}, nil))
	require.Equal(t, http.StatusUnprocessableEntity, env.do(t, http.MethodPost, base+"/otp/verify", map[string]string{"phone": "9876543210", "code": "abc"}, nil))
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/otp/verify", map[string]string{"phone": "9876543210", "code": env.codes.last()}, &state))
	assert.True(t, state.Draft.Customer.Verified)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/confirm", nil, &state))
	assert.Equal(t, models.StepSuccess, state.Step)
	require.NotNil(t, state.Result)
	assert.Equal(t, models.SubmitQueued, state.Result.Mode)

	var list struct {
		Entries []models.QueueEntry        `json:"entries"`
		Counts  map[models.QueueStatus]int `json:"counts"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/queue?status=pending", nil, &list))
	require.Len(t, list.Entries, 1)
	assert.Equal(t, state.Result.LocalID, list.Entries[0].LocalID)
	assert.Equal(t, 0, list.Entries[0].AttemptCount)
	assert.Equal(t, 1, list.Counts[models.QueueStatusPending])

	var entry models.QueueEntry
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/queue/"+state.Result.LocalID, nil, &entry))
	assert.Equal(t, "560001", entry.Draft.Location.Pincode)
}

func TestWizardErrors(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/wizard/nope", nil, nil))
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/wizard", map[string]any{"service_name": "x"}, nil))
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/v1/wizard", map[string]any{"service_id": "x", "verified": true}, nil),
		"unknown fields are rejected")

	var state models.WizardState
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/v1/wizard", map[string]any{"service_id": "svc-1"}, &state))
	base := "/api/v1/wizard/" + state.SessionID

	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, base+"/back", nil, nil))
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, base+"/otp/request", map[string]string{"phone": "9876543210"}, nil))
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, base+"/position", map[string]any{"lat": 1}, nil))

	require.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, base, nil, &state))
	assert.Equal(t, models.StepCancelled, state.Step)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, base, nil, nil))
}

func TestQueueRoutes(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/queue?status=lost", nil, nil))
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/queue/offline_missing", nil, nil))

	env.syncer.report = worker.Report{Pending: 2, Synced: 1, Retried: 1}
	var report worker.Report
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/queue/sync", nil, &report))
	assert.Equal(t, env.syncer.report, report)

	env.syncer.err = worker.ErrSyncInProgress
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodPost, "/api/v1/queue/sync", nil, nil))
	env.syncer.err = worker.ErrOffline
	assert.Equal(t, http.StatusServiceUnavailable, env.do(t, http.MethodPost, "/api/v1/queue/sync", nil, nil))

	var cleaned map[string]int
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/queue/cleanup", nil, &cleaned))
	assert.Equal(t, 0, cleaned["removed"])

	assert.Equal(t, http.StatusMethodNotAllowed, env.do(t, http.MethodDelete, "/api/v1/queue/sync", nil, nil))
}

func TestCatalogRoutes(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	var slots struct {
		Slots map[string][]models.TimeSlot `json:"slots"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/slots", nil, &slots))
	assert.Len(t, slots.Slots[models.PeriodMorning], 4)
	assert.Len(t, slots.Slots[models.PeriodEvening], 4)

	var cats struct {
		Categories map[string]string `json:"categories"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/landmark_categories", nil, &cats))
	assert.Equal(t, "Other", cats.Categories[models.LandmarkOther])
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t, config.APIConfig{})

	req, _ := http.NewRequest(http.MethodGet, env.ts.URL+"/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "req-42", resp.Header.Get(requestIDHeader))

	resp, err = http.Get(env.ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}
