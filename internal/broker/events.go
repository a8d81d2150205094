package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"registration-service/internal/models"
	"registration-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing payment lifecycle events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishPaymentInitiated publishes PaymentInitiated event
func (ep *EventPublisher) PublishPaymentInitiated(ctx context.Context, event *models.PaymentInitiatedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderNo), event)
}

// PublishPaymentConfirmed publishes PaymentConfirmed event
func (ep *EventPublisher) PublishPaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderNo), event)
}

// PublishPaymentFailed publishes PaymentFailed event
func (ep *EventPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderNo), event)
}

// PublishReconciliationInconsistent publishes ReconciliationInconsistent event
func (ep *EventPublisher) PublishReconciliationInconsistent(ctx context.Context, event *models.ReconciliationInconsistentEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderNo), event)
}

// orderKey partitions all events for one order onto the same partition so
// consumers observe them in order.
func orderKey(orderNo string) string {
	return fmt.Sprintf("order-%s", orderNo)
}

// EventHandler routes consumed events to registered handlers
type EventHandler struct {
	onPaymentConfirmed func(context.Context, *models.PaymentConfirmedEvent) error
	onInconsistent     func(context.Context, *models.ReconciliationInconsistentEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPaymentConfirmed registers a handler for PaymentConfirmed events
func (eh *EventHandler) OnPaymentConfirmed(handler func(context.Context, *models.PaymentConfirmedEvent) error) {
	eh.onPaymentConfirmed = handler
}

// OnReconciliationInconsistent registers a handler for ReconciliationInconsistent events
func (eh *EventHandler) OnReconciliationInconsistent(handler func(context.Context, *models.ReconciliationInconsistentEvent) error) {
	eh.onInconsistent = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	util.GetLogger().Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypePaymentConfirmed:
		if eh.onPaymentConfirmed != nil {
			var event models.PaymentConfirmedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentConfirmed event: %w", err)
			}
			return eh.onPaymentConfirmed(ctx, &event)
		}

	case models.EventTypeReconciliationInconsistent:
		if eh.onInconsistent != nil {
			var event models.ReconciliationInconsistentEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal ReconciliationInconsistent event: %w", err)
			}
			return eh.onInconsistent(ctx, &event)
		}
	}

	return nil
}
