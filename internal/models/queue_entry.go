package models

import "time"

// QueueEntry is a persisted snapshot of a draft awaiting transmission.
type QueueEntry struct {
	ID            int64        `json:"id"`
	LocalID       string       `json:"local_id"`
	Status        QueueStatus  `json:"status"`
	Draft         BookingDraft `json:"draft"`
	CreatedAt     time.Time    `json:"created_at"`
	AttemptCount  int          `json:"attempt_count"`
	Failures      int          `json:"failures"`
	LastAttemptAt *time.Time   `json:"last_attempt_at,omitempty"`
	NextAttemptAt *time.Time   `json:"next_attempt_at,omitempty"`
	ServerID      *string      `json:"server_id,omitempty"`
	LastError     *string      `json:"last_error,omitempty"`
}

// Due reports whether a pending entry may be dispatched at now.
func (e QueueEntry) Due(now time.Time) bool {
	if e.Status != QueueStatusPending {
		return false
	}
	return e.NextAttemptAt == nil || !e.NextAttemptAt.After(now)
}
