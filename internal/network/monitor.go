// Package network tracks connectivity as reported by the platform.
package network

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"bookingsync/internal/models"

	"github.com/rs/zerolog"
)

// Listener is invoked with the new status on every transition.
type Listener func(status models.NetworkStatus)

// SubscriptionID identifies a registered listener.
type SubscriptionID uint64

// Monitor keeps the last-known connectivity status and fans transitions out to
// subscribers. It does not probe on its own.
type Monitor struct {
	mu        sync.RWMutex
	status    models.NetworkStatus
	listeners map[SubscriptionID]Listener
	nextID    SubscriptionID
	client    *http.Client
	logger    *zerolog.Logger
}

// NewMonitor starts with the given status; anything but online counts as offline.
func NewMonitor(initial models.NetworkStatus, logger *zerolog.Logger) *Monitor {
	if initial != models.NetworkOnline {
		initial = models.NetworkOffline
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "network").Logger()
	return &Monitor{
		status:    initial,
		listeners: make(map[SubscriptionID]Listener),
		client:    &http.Client{Timeout: 5 * time.Second},
		logger:    &l,
	}
}

// CurrentStatus returns the last reported status.
func (m *Monitor) CurrentStatus() models.NetworkStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Online is shorthand for CurrentStatus() == online.
func (m *Monitor) Online() bool {
	return m.CurrentStatus() == models.NetworkOnline
}

// Subscribe registers l. Registering the same function twice yields two subscriptions.
func (m *Monitor) Subscribe(l Listener) SubscriptionID {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.listeners[m.nextID] = l
	return m.nextID
}

// Unsubscribe removes a listener; unknown ids are ignored.
func (m *Monitor) Unsubscribe(id SubscriptionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

// Set records a platform connectivity event. Listeners run synchronously,
// outside the lock, and only when the status actually changes.
func (m *Monitor) Set(status models.NetworkStatus) bool {
	if status != models.NetworkOnline && status != models.NetworkOffline {
		return false
	}

	m.mu.Lock()
	if m.status == status {
		m.mu.Unlock()
		return false
	}
	m.status = status
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	m.logger.Info().Str("status", string(status)).Msg("Connectivity changed")
	for _, l := range listeners {
		l(status)
	}
	return true
}

// Probe actively checks reachability of url with a HEAD request. Any HTTP
// response counts as reachable. The result is returned, not recorded.
func (m *Monitor) Probe(ctx context.Context, url string) (models.NetworkStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return models.NetworkOffline, fmt.Errorf("build probe request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Debug().Err(err).Str("url", url).Msg("Probe failed")
		return models.NetworkOffline, nil
	}
	resp.Body.Close()
	return models.NetworkOnline, nil
}
