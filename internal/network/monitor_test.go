package network

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"bookingsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_Transitions(t *testing.T) {
	m := NewMonitor(models.NetworkOffline, nil)
	assert.Equal(t, models.NetworkOffline, m.CurrentStatus())

	var mu sync.Mutex
	var got []models.NetworkStatus
	id := m.Subscribe(func(s models.NetworkStatus) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s)
	})

	assert.True(t, m.Set(models.NetworkOnline))
	assert.False(t, m.Set(models.NetworkOnline), "repeated status is not a transition")
	assert.True(t, m.Set(models.NetworkOffline))
	assert.False(t, m.Set("flaky"))

	mu.Lock()
	assert.Equal(t, []models.NetworkStatus{models.NetworkOnline, models.NetworkOffline}, got)
	mu.Unlock()

	m.Unsubscribe(id)
	m.Set(models.NetworkOnline)
	mu.Lock()
	assert.Len(t, got, 2)
	mu.Unlock()
	assert.True(t, m.Online())
}

func TestMonitor_InitialStatus(t *testing.T) {
	assert.Equal(t, models.NetworkOnline, NewMonitor(models.NetworkOnline, nil).CurrentStatus())
	assert.Equal(t, models.NetworkOffline, NewMonitor("", nil).CurrentStatus())
}

func TestMonitor_ListenerMayReadStatus(t *testing.T) {
	m := NewMonitor(models.NetworkOffline, nil)
	var seen models.NetworkStatus
	m.Subscribe(func(models.NetworkStatus) {
		seen = m.CurrentStatus()
	})
	m.Set(models.NetworkOnline)
	assert.Equal(t, models.NetworkOnline, seen)
}

func TestMonitor_Probe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m := NewMonitor(models.NetworkOffline, nil)
	status, err := m.Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, models.NetworkOnline, status)
	assert.Equal(t, models.NetworkOffline, m.CurrentStatus(), "probe does not record")

	srv.Close()
	status, err = m.Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, models.NetworkOffline, status)
}
