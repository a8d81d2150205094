package worker

import (
	"context"
	"fmt"

	"registration-service/internal/broker"
	"registration-service/internal/models"
	"registration-service/internal/store"
	"registration-service/internal/util"

	"go.uber.org/zap"
)

// ReconciliationWorker heals stale registrations. When the reconciler
// marks an order paid but the registration update fails, the order keeps
// its PAID status and an inconsistency event is published; this worker
// retries the registration update until it lands.
type ReconciliationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	logger       *zap.Logger
}

// NewReconciliationWorker creates a new reconciliation worker
func NewReconciliationWorker(consumer *broker.Consumer, st *store.Store) *ReconciliationWorker {
	w := &ReconciliationWorker{
		consumer: consumer,
		store:    st,
		logger:   util.GetLogger(),
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnReconciliationInconsistent(w.handleInconsistent)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *ReconciliationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting reconciliation worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ReconciliationWorker) Stop() error {
	w.logger.Info("Stopping reconciliation worker")
	return w.consumer.Close()
}

// handleInconsistent retries the registration update for a paid order.
// Returning an error leaves the message uncommitted so it is redelivered;
// the update itself is idempotent, so repeats are harmless.
func (w *ReconciliationWorker) handleInconsistent(ctx context.Context, event *models.ReconciliationInconsistentEvent) error {
	order, err := w.store.GetOrderByOrderNo(ctx, event.OrderNo)
	if err != nil {
		return fmt.Errorf("failed to load order %s: %w", event.OrderNo, err)
	}

	if order.Status != models.OrderStatusPaid {
		w.logger.Warn("Inconsistency event for non-paid order, skipping",
			zap.String("order_no", event.OrderNo),
			zap.String("status", order.Status))
		return nil
	}

	rows, err := w.store.MarkRegistrationPaid(ctx, order.OpenID, order.BatchID)
	if err != nil {
		return fmt.Errorf("failed to heal registration for order %s: %w", event.OrderNo, err)
	}
	if rows == 0 {
		// The registration was never created. Retrying cannot fix that;
		// commit and leave the logged order_no for operators.
		w.logger.Warn("No registration matched while healing",
			zap.String("order_no", event.OrderNo),
			zap.String("open_id", order.OpenID),
			zap.Int64("batch_id", order.BatchID))
		return nil
	}

	util.RegistrationsHealedTotal.Inc()
	w.logger.Info("Registration healed",
		zap.String("order_no", event.OrderNo),
		zap.Int64("batch_id", order.BatchID))
	return nil
}
