package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"salon-service/internal/models"
	"salon-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events.
// Order events go to the order topic, review events to the review topic.
type EventPublisher struct {
	orders  *Producer
	reviews *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(orders, reviews *Producer) *EventPublisher {
	return &EventPublisher{orders: orders, reviews: reviews}
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypeOrderCreated)
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderCancelled publishes OrderCancelled event
func (ep *EventPublisher) PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypeOrderCancelled)
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderShipped publishes OrderShipped event
func (ep *EventPublisher) PublishOrderShipped(ctx context.Context, event *models.OrderShippedEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypeOrderShipped)
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishReviewChanged publishes ReviewChanged event keyed by tenant
func (ep *EventPublisher) PublishReviewChanged(ctx context.Context, event *models.ReviewChangedEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypeReviewChanged)
	return ep.reviews.PublishEvent(ctx, fmt.Sprintf("tenant-%d", event.TenantID), event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderCreated   func(context.Context, *models.OrderCreatedEvent) error
	onOrderCancelled func(context.Context, *models.OrderCancelledEvent) error
	onOrderShipped   func(context.Context, *models.OrderShippedEvent) error
	onReviewChanged  func(context.Context, *models.ReviewChangedEvent) error
	logger           *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderCreated registers a handler for OrderCreated events
func (eh *EventHandler) OnOrderCreated(handler func(context.Context, *models.OrderCreatedEvent) error) {
	eh.onOrderCreated = handler
}

// OnOrderCancelled registers a handler for OrderCancelled events
func (eh *EventHandler) OnOrderCancelled(handler func(context.Context, *models.OrderCancelledEvent) error) {
	eh.onOrderCancelled = handler
}

// OnOrderShipped registers a handler for OrderShipped events
func (eh *EventHandler) OnOrderShipped(handler func(context.Context, *models.OrderShippedEvent) error) {
	eh.onOrderShipped = handler
}

// OnReviewChanged registers a handler for ReviewChanged events
func (eh *EventHandler) OnReviewChanged(handler func(context.Context, *models.ReviewChangedEvent) error) {
	eh.onReviewChanged = handler
}

func dispatch[E any](ctx context.Context, value []byte, handler func(context.Context, *E) error) error {
	if handler == nil {
		return nil
	}
	var event E
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("%w: unmarshal %T: %v", ErrMalformedEvent, event, err)
	}
	return handler(ctx, &event)
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: unmarshal base event: %v", ErrMalformedEvent, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID),
	)

	switch baseEvent.EventType {
	case models.EventTypeOrderCreated:
		return dispatch(ctx, msg.Value, eh.onOrderCreated)
	case models.EventTypeOrderCancelled:
		return dispatch(ctx, msg.Value, eh.onOrderCancelled)
	case models.EventTypeOrderShipped:
		return dispatch(ctx, msg.Value, eh.onOrderShipped)
	case models.EventTypeReviewChanged:
		return dispatch(ctx, msg.Value, eh.onReviewChanged)
	default:
		eh.logger.Warn("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
