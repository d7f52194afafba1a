package domain

import (
	"context"
	"time"

	"bookingsync/internal/models"
	"bookingsync/internal/remote"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// StateRepository stores wizard sessions and rate-limit counters.
type StateRepository interface {
	GetState(ctx context.Context, sessionID string) (*models.WizardState, error)
	SetState(ctx context.Context, state *models.WizardState) error
	ClearState(ctx context.Context, sessionID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	ResetRateLimit(ctx context.Context, key string) error
}

// CodeRepository stores the single active one-time code per phone.
type CodeRepository interface {
	SetCode(ctx context.Context, phone, code string, ttl time.Duration) error
	// GetCode returns "" when no code is active.
	GetCode(ctx context.Context, phone string) (string, error)
	DeleteCode(ctx context.Context, phone string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// BookingSender delivers one booking to the server.
type BookingSender interface {
	CreateBooking(ctx context.Context, req remote.CreateBookingRequest) (*remote.CreateBookingResult, error)
}

// ZoneSource lists the operator coverage zones.
type ZoneSource interface {
	ListZones(ctx context.Context) ([]models.ServiceZone, error)
}

// QueueSaver is the creating side of the offline queue.
type QueueSaver interface {
	Save(ctx context.Context, draft models.BookingDraft) (string, error)
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
