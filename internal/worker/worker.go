package worker

import (
	"context"
	"time"

	"bike-marketplace/internal/broker"
	"bike-marketplace/internal/service"
	"bike-marketplace/internal/util"

	"go.uber.org/zap"
)

// NotificationRouter builds an event handler that feeds every marketplace
// event into the notification service
func NotificationRouter(notifications *service.NotificationService) *broker.EventHandler {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnOrderCreated(notifications.HandleOrderCreated)
	eventHandler.OnOrderStatusChanged(notifications.HandleOrderStatusChanged)
	eventHandler.OnPayoutReleased(notifications.HandlePayoutReleased)
	eventHandler.OnEscrowRefunded(notifications.HandleEscrowRefunded)
	eventHandler.OnInspectionSubmitted(notifications.HandleInspectionSubmitted)
	eventHandler.OnListingModerated(notifications.HandleListingModerated)
	eventHandler.OnWithdrawal(notifications.HandleWithdrawal)

	return eventHandler
}

// NotificationWorker consumes marketplace events from Kafka
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, notifications *service.NotificationService) *NotificationWorker {
	return &NotificationWorker{
		consumer:     consumer,
		eventHandler: NotificationRouter(notifications),
		logger:       util.ComponentLogger("notification-worker"),
	}
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

// OverdueRefresher recomputes the overdue moderation count
type OverdueRefresher interface {
	RefreshOverdue(ctx context.Context) (int, error)
}

// ModerationSLAWorker periodically scans the moderation queue for listings past their SLA
type ModerationSLAWorker struct {
	listings OverdueRefresher
	interval time.Duration
	logger   *zap.Logger
}

// NewModerationSLAWorker creates a new moderation SLA worker
func NewModerationSLAWorker(listings OverdueRefresher, interval time.Duration) *ModerationSLAWorker {
	return &ModerationSLAWorker{
		listings: listings,
		interval: interval,
		logger:   util.ComponentLogger("moderation-sla-worker"),
	}
}

// Start scans once immediately, then on every tick until ctx is cancelled
func (w *ModerationSLAWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting moderation SLA worker", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.scan(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("Stopping moderation SLA worker")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *ModerationSLAWorker) scan(ctx context.Context) {
	overdue, err := w.listings.RefreshOverdue(ctx)
	if err != nil {
		w.logger.Error("Failed to scan moderation queue", zap.Error(err))
		return
	}
	if overdue > 0 {
		w.logger.Warn("Listings past moderation SLA", zap.Int("overdue", overdue))
	}
}
