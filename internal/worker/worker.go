package worker

import (
	"context"
	"errors"
	"fmt"

	"salon-service/internal/broker"
	"salon-service/internal/models"
	"salon-service/internal/notify"
	"salon-service/internal/util"

	"go.uber.org/zap"
)

// Consumer is the part of broker.Consumer the workers drive
type Consumer interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// EventLog remembers which events were already handled
type EventLog interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// RatingRecomputer rebuilds rating aggregates
type RatingRecomputer interface {
	RecomputeTargets(ctx context.Context, tenantID int64, barberIDs, serviceIDs []int64) error
}

// once runs fn unless the event was handled before, and records it after fn succeeds.
// Kafka delivers at least once, so redelivered events are skipped here.
func once(ctx context.Context, log EventLog, logger *zap.Logger, event models.BaseEvent, fn func() error) error {
	processed, err := log.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("check event %s: %w", event.EventID, err)
	}
	if processed {
		logger.Debug("Event already processed, skipping",
			zap.String("event_id", event.EventID),
			zap.String("type", event.EventType))
		return nil
	}

	if err := fn(); err != nil {
		return err
	}

	if err := log.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return fmt.Errorf("mark event %s: %w", event.EventID, err)
	}
	return nil
}

// NotificationWorker sends customer emails for order events
type NotificationWorker struct {
	consumer Consumer
	handler  *broker.EventHandler
	events   EventLog
	mailer   notify.Mailer
	logger   *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer Consumer, events EventLog, mailer notify.Mailer) *NotificationWorker {
	w := &NotificationWorker{
		consumer: consumer,
		handler:  broker.NewEventHandler(),
		events:   events,
		mailer:   mailer,
		logger:   util.GetLogger(),
	}
	w.handler.OnOrderShipped(w.handleOrderShipped)
	return w
}

// Start consumes order events until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleOrderShipped(ctx context.Context, event *models.OrderShippedEvent) error {
	return once(ctx, w.events, w.logger, event.BaseEvent, func() error {
		if event.Email == "" {
			w.logger.Warn("Shipped order has no email address, skipping notification",
				zap.Int64("order_id", event.OrderID))
			util.NotificationsSentTotal.WithLabelValues("order_shipped", "skipped").Inc()
			return nil
		}

		subject, html, text, err := notify.ShippingEmail(notify.ShippingDetails{
			Name:           event.Name,
			OrderNumber:    event.OrderNumber,
			Carrier:        event.Carrier,
			TrackingNumber: event.TrackingNumber,
		})
		if err != nil {
			util.NotificationsSentTotal.WithLabelValues("order_shipped", "error").Inc()
			return fmt.Errorf("render shipping email: %w", err)
		}

		err = w.mailer.SendEmail(ctx, event.Email, subject, html, text)
		if errors.Is(err, notify.ErrInvalidRecipient) {
			w.logger.Warn("Shipped order has an undeliverable email address, skipping notification",
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
			util.NotificationsSentTotal.WithLabelValues("order_shipped", "skipped").Inc()
			return nil
		}
		if err != nil {
			util.NotificationsSentTotal.WithLabelValues("order_shipped", "error").Inc()
			w.logger.Error("Failed to send shipping email",
				zap.Int64("order_id", event.OrderID),
				zap.Error(err))
			return fmt.Errorf("send shipping email for order %d: %w", event.OrderID, err)
		}

		util.NotificationsSentTotal.WithLabelValues("order_shipped", "sent").Inc()
		w.logger.Info("Shipping email sent",
			zap.Int64("order_id", event.OrderID),
			zap.String("order_number", event.OrderNumber))
		return nil
	})
}

// RatingWorker recomputes rating aggregates from review change events
type RatingWorker struct {
	consumer Consumer
	handler  *broker.EventHandler
	events   EventLog
	ratings  RatingRecomputer
	logger   *zap.Logger
}

// NewRatingWorker creates a new rating worker
func NewRatingWorker(consumer Consumer, events EventLog, ratings RatingRecomputer) *RatingWorker {
	w := &RatingWorker{
		consumer: consumer,
		handler:  broker.NewEventHandler(),
		events:   events,
		ratings:  ratings,
		logger:   util.GetLogger(),
	}
	w.handler.OnReviewChanged(w.handleReviewChanged)
	return w
}

// Start consumes review events until ctx is cancelled
func (w *RatingWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting rating worker")
	return w.consumer.StartConsuming(ctx, w.handler.HandleMessage)
}

// Stop stops the worker
func (w *RatingWorker) Stop() error {
	w.logger.Info("Stopping rating worker")
	return w.consumer.Close()
}

func (w *RatingWorker) handleReviewChanged(ctx context.Context, event *models.ReviewChangedEvent) error {
	return once(ctx, w.events, w.logger, event.BaseEvent, func() error {
		err := w.ratings.RecomputeTargets(ctx, event.TenantID, event.BarberIDs, event.ServiceIDs)
		if err != nil {
			w.logger.Error("Rating recompute failed",
				zap.Int64("review_id", event.ReviewID),
				zap.Error(err))
			return err
		}
		return nil
	})
}
