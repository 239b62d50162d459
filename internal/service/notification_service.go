package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/plantops/defect-triage/internal/config"
	"github.com/plantops/defect-triage/internal/domain"
	"github.com/plantops/defect-triage/internal/events"
	"github.com/plantops/defect-triage/internal/repository"
)

// VectorSync pushes resolved defects into the vector index so future
// classifications can retrieve them.
type VectorSync interface {
	StoreDefect(ctx context.Context, ticketID, description string, metadata map[string]string) error
}

// NotificationService reacts to domain events: it emits the notification
// stubs and keeps the vector index in sync with resolved defects.
type NotificationService struct {
	dispatcher events.Dispatcher
	defects    repository.DefectRepository
	teams      repository.TeamRepository
	vectors    VectorSync
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, defects repository.DefectRepository, teams repository.TeamRepository, vectors VectorSync, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		defects:    defects,
		teams:      teams,
		vectors:    vectors,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventDefectCreated, n.handleDefectCreated)
	n.dispatcher.Subscribe(events.EventDefectStatusChanged, n.handleDefectStatusChanged)
}

func (n *NotificationService) handleDefectCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("DefectCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))

	payload, ok := event.Payload.(events.DefectCreatedPayload)
	if ok {
		n.sendEmailNotificationStub(ctx, event, payload.AssignedTeam)
	}
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleDefectStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("DefectStatusChanged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)

	payload, ok := event.Payload.(events.DefectStatusChangedPayload)
	if ok && payload.NewStatus == domain.DefectStatusResolved {
		n.syncResolvedDefect(ctx, event.TicketID)
	}
	return nil
}

// syncResolvedDefect upserts the resolved defect into the vector index. A
// failure only degrades future retrieval and is not surfaced.
func (n *NotificationService) syncResolvedDefect(ctx context.Context, ticketID string) {
	if n.vectors == nil {
		return
	}
	record, err := n.defects.GetByTicketID(ctx, ticketID)
	if err != nil {
		n.logger.Warn("vector sync: load defect failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}

	metadata := map[string]string{
		"ticket_id":   record.TicketID,
		"description": record.IssueSummary,
		"category":    string(record.Category),
		"priority":    string(record.Priority),
		"resolution":  record.ResolutionNotes,
	}
	if err := n.vectors.StoreDefect(ctx, record.TicketID, record.RawText, metadata); err != nil {
		n.logger.Warn("vector sync: upsert failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return
	}
	n.logger.Info("vector sync: resolved defect stored", zap.String("ticket_id", ticketID))
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event, teamName string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" || teamName == "" {
		return
	}
	contact := "unknown"
	if team, err := n.teams.GetByName(ctx, teamName); err == nil {
		contact = team.ContactEmail
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to", contact),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}

func (n *NotificationService) sendWebhookNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("ticket_id", event.TicketID),
		zap.String("event_type", string(event.Type)))
}
