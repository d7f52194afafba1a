package service

import (
	"context"
	"fmt"

	"bookingsync/internal/domain"
	"bookingsync/internal/events"
	"bookingsync/internal/logging"
	"bookingsync/internal/metrics"
	"bookingsync/internal/models"
	"bookingsync/internal/remote"

	"github.com/rs/zerolog"
)

const (
	msgDirect       = "Booking confirmed"
	msgQueued       = "You are offline. The booking is saved and will be sent when the connection returns"
	msgQueuedFailed = "Booking failed, retrying"
)

// Connectivity reports the last known network status.
type Connectivity interface {
	Online() bool
}

// BookingService hands confirmed drafts to the server, or to the offline queue
// when the server cannot be reached.
type BookingService struct {
	sender   domain.BookingSender
	queue    domain.QueueSaver
	net      Connectivity
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewBookingService(sender domain.BookingSender, queue domain.QueueSaver, net Connectivity, eventBus domain.EventPublisher, logger *zerolog.Logger) *BookingService {
	return &BookingService{
		sender:   sender,
		queue:    queue,
		net:      net,
		eventBus: eventBus,
		logger:   logging.Component(logger, "booking"),
	}
}

// Submit sends draft directly when online and falls back to the queue when
// offline or when the direct send fails for any reason.
func (s *BookingService) Submit(ctx context.Context, draft models.BookingDraft) (models.SubmitResult, error) {
	if err := models.ValidateDraft(&draft); err != nil {
		return models.SubmitResult{}, err
	}

	message := msgQueued
	if s.net.Online() {
		res, err := s.sender.CreateBooking(ctx, remote.NewCreateBookingRequest(draft, nil))
		if err == nil {
			metrics.IncSubmission(string(models.SubmitDirect))
			s.publishEvent(events.EventBookingCreated, draft, "", res.ServerID)
			s.logger.Info().Str("server_id", res.ServerID).Msg("Booking sent directly")
			msg := res.Message
			if msg == "" {
				msg = msgDirect
			}
			return models.SubmitResult{Mode: models.SubmitDirect, ServerID: res.ServerID, Message: msg}, nil
		}
		s.logger.Warn().Err(err).Msg("Direct booking failed, queueing")
		message = msgQueuedFailed
	}

	localID, err := s.queue.Save(ctx, draft)
	if err != nil {
		return models.SubmitResult{}, fmt.Errorf("queue booking: %w", err)
	}
	metrics.IncSubmission(string(models.SubmitQueued))
	s.publishEvent(events.EventBookingQueued, draft, localID, "")
	s.logger.Info().Str("local_id", localID).Bool("online", s.net.Online()).Msg("Booking queued")

	return models.SubmitResult{Mode: models.SubmitQueued, LocalID: localID, Message: message}, nil
}

func (s *BookingService) publishEvent(eventType string, draft models.BookingDraft, localID, serverID string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		LocalID:     localID,
		ServerID:    serverID,
		ServiceName: draft.ServiceName,
		Phone:       logging.MaskPhone(draft.Customer.Phone),
		Date:        draft.Schedule.Date,
		TimeSlot:    draft.Schedule.TimeSlot,
	}
	if localID != "" {
		payload.Status = string(models.QueueStatusPending)
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("Publish event error")
	}
}
