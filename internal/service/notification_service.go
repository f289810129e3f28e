package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/helpdesk-sla/sla-service/internal/config"
	"github.com/helpdesk-sla/sla-service/internal/events"
	"github.com/helpdesk-sla/sla-service/internal/notify"
)

// EscalationNotifier delivers a fired escalation to people.
type EscalationNotifier interface {
	NotifyEscalation(ctx context.Context, notice notify.EscalationNotice) (string, error)
}

// NotificationService handles emitting notifications for SLA events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
	chat       EscalationNotifier
}

// NewNotificationService creates the service. chat may be nil when no chat
// integration is configured.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig, chat EscalationNotifier) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
		chat:       chat,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventSLAPaused, n.handleClockChange)
	n.dispatcher.Subscribe(events.EventSLAResumed, n.handleClockChange)
	n.dispatcher.Subscribe(events.EventSLAEscalated, n.handleEscalated)
}

func (n *NotificationService) handleClockChange(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

// handleEscalated returns delivery errors so the publisher can log them; the firing
// itself is still committed.
func (n *NotificationService) handleEscalated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SLAEscalatedPayload)
	if !ok {
		n.logger.Warn("unexpected escalation payload", zap.String("ticket_id", event.TicketID))
		return nil
	}
	n.logger.Info("SLAEscalated",
		zap.String("ticket_id", event.TicketID),
		zap.Int64("rule_id", payload.RuleID),
		zap.Int("level", payload.Level),
		zap.String("action", string(payload.Action)))

	n.sendEmailNotificationStub(ctx, event)
	n.sendWebhookNotificationStub(ctx, event)

	if n.chat == nil {
		return nil
	}
	ts, err := n.chat.NotifyEscalation(ctx, notify.EscalationNotice{
		TicketID:           event.TicketID,
		RuleName:           payload.RuleName,
		Level:              payload.Level,
		Action:             string(payload.Action),
		Clock:              string(payload.Clock),
		ElapsedMinutes:     payload.ElapsedMinutes,
		Overall:            string(payload.Overall),
		TargetUserID:       payload.TargetUserID,
		TargetDepartmentID: payload.TargetDepartmentID,
	})
	if err != nil {
		return err
	}
	n.logger.Debug("escalation posted to chat", zap.String("ticket_id", event.TicketID), zap.String("ts", ts))
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(ctx context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
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
