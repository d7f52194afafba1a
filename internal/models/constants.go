package models

import "time"

// QueueStatus is the lifecycle state of a QueueEntry.
type QueueStatus string

const (
	QueueStatusPending QueueStatus = "pending"
	QueueStatusSyncing QueueStatus = "syncing"
	QueueStatusSynced  QueueStatus = "synced"
	QueueStatusFailed  QueueStatus = "failed"
)

// queueTransitions lists the allowed next states. Synced and failed are terminal;
// pending and syncing may cycle on retry.
var queueTransitions = map[QueueStatus][]QueueStatus{
	QueueStatusPending: {QueueStatusSyncing, QueueStatusFailed},
	QueueStatusSyncing: {QueueStatusPending, QueueStatusSynced, QueueStatusFailed},
}

// Valid reports whether s is one of the known statuses.
func (s QueueStatus) Valid() bool {
	switch s {
	case QueueStatusPending, QueueStatusSyncing, QueueStatusSynced, QueueStatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether an entry in status s may move to next.
func (s QueueStatus) CanTransition(next QueueStatus) bool {
	for _, allowed := range queueTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// WizardStep is a state of the booking wizard.
type WizardStep string

const (
	StepLocation  WizardStep = "location"
	StepLandmark  WizardStep = "landmark"
	StepSchedule  WizardStep = "schedule"
	StepConfirm   WizardStep = "confirm"
	StepSuccess   WizardStep = "success"
	StepCancelled WizardStep = "cancelled"
)

// Terminal reports whether no further transitions are possible from the step.
func (s WizardStep) Terminal() bool {
	return s == StepSuccess || s == StepCancelled
}

// NetworkStatus is the connectivity state reported by the platform.
type NetworkStatus string

const (
	NetworkOnline  NetworkStatus = "online"
	NetworkOffline NetworkStatus = "offline"
)

// SubmitMode tells how a confirmed draft left the wizard.
type SubmitMode string

const (
	SubmitDirect SubmitMode = "direct"
	SubmitQueued SubmitMode = "queued"
)

// Location sources.
const (
	LocationSourceDevice = "device"
	LocationSourceDrag   = "drag"
	LocationSourceManual = "manual"
)

const (
	// MinLandmarkLength is the shortest accepted landmark description.
	MinLandmarkLength = 3
	// MinOtherAddressLength applies when the landmark category is "other".
	MinOtherAddressLength = 10
	// PincodeLength is the number of digits in a postal code.
	PincodeLength = 6
	// OTPLength is the number of digits in a one-time code.
	OTPLength = 6

	// DefaultMaxDaysAhead is the forward booking window in days.
	DefaultMaxDaysAhead = 30
	// DefaultMaxAttempts is the number of failed deliveries before an entry is failed.
	DefaultMaxAttempts = 10
	// DefaultRetention keeps synced entries around before cleanup.
	DefaultRetention = 24 * time.Hour
	// DefaultSessionTTL is how long an idle wizard session survives.
	DefaultSessionTTL = 24 * time.Hour
)

// DefaultBackoff is the retry delay table, indexed by failed attempts.
var DefaultBackoff = []time.Duration{
	60 * time.Second,
	300 * time.Second,
	900 * time.Second,
	1800 * time.Second,
}

// DateLayout is the wire and storage format of schedule dates.
const DateLayout = "2006-01-02"
