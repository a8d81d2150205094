package service

import (
	"context"
	"fmt"
	"time"

	"registration-service/internal/models"
	"registration-service/internal/util"
	"registration-service/internal/wechat"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reconciler processes asynchronous payment notifications. Delivery is
// at-least-once, so every path through Reconcile must be safe to repeat.
type Reconciler struct {
	store     OrderStore
	publisher Publisher
	logger    *zap.Logger
}

// NewReconciler creates a new callback reconciler
func NewReconciler(store OrderStore, publisher Publisher) *Reconciler {
	return &Reconciler{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// Reconcile parses and applies a raw provider notification and always
// returns a well-formed ack. The ack reflects whether the payment was
// accepted, not whether every downstream side effect completed: the
// provider's retry loop must stop once the money-side outcome is recorded.
func (r *Reconciler) Reconcile(ctx context.Context, body []byte) *wechat.NotifyAck {
	ctx, span := util.StartSpan(ctx, "Reconciler.Reconcile")
	defer span.End()

	notification, err := wechat.ParseNotification(body)
	if err != nil {
		util.PaymentNotifyTotal.WithLabelValues("malformed").Inc()
		r.logger.Warn("Malformed payment notification",
			zap.Int("body_bytes", len(body)),
			zap.Error(err))
		return wechat.AckFail("malformed notification")
	}

	if !notification.Succeeded() {
		return r.handleFailureNotification(ctx, notification)
	}

	if notification.OutTradeNo == "" {
		util.PaymentNotifyTotal.WithLabelValues("malformed").Inc()
		r.logger.Warn("Success notification without out_trade_no")
		return wechat.AckFail("missing out_trade_no")
	}

	order, err := r.store.GetOrderByOrderNo(ctx, notification.OutTradeNo)
	if err != nil {
		util.PaymentNotifyTotal.WithLabelValues("unknown_order").Inc()
		r.logger.Warn("Notification for unknown order",
			zap.String("order_no", notification.OutTradeNo),
			zap.Error(err))
		return wechat.AckFail("order not found")
	}

	if order.Status == models.OrderStatusPaid {
		// Duplicate delivery. Ack success without touching anything so
		// redelivery never double-applies side effects.
		util.PaymentNotifyTotal.WithLabelValues("duplicate").Inc()
		r.logger.Info("Duplicate payment notification",
			zap.String("order_no", order.OrderNo),
			zap.String("transaction_id", notification.TransactionID))
		return wechat.AckSuccess()
	}

	transitioned, err := r.store.MarkOrderPaid(ctx, order.OrderNo, notification.TransactionID, time.Now())
	if err != nil {
		util.PaymentNotifyTotal.WithLabelValues("persistence_error").Inc()
		r.logger.Error("Failed to mark order paid",
			zap.String("order_no", order.OrderNo),
			zap.Error(err))
		return wechat.AckFail("store unavailable")
	}
	if !transitioned {
		// A concurrent delivery won the status-guarded update, or the
		// order reached a terminal state between lookup and update.
		// Zero rows means already handled: idempotent success.
		util.PaymentNotifyTotal.WithLabelValues("duplicate").Inc()
		r.logger.Info("Order already transitioned, treating as handled",
			zap.String("order_no", order.OrderNo))
		return wechat.AckSuccess()
	}

	util.PaymentsConfirmedTotal.Inc()
	r.logger.Info("Order paid",
		zap.String("order_no", order.OrderNo),
		zap.String("transaction_id", notification.TransactionID),
		zap.Int64("total_fee", notification.TotalFee))

	if rows, err := r.store.MarkRegistrationPaid(ctx, order.OpenID, order.BatchID); err != nil || rows == 0 {
		if err == nil {
			err = fmt.Errorf("no registration matched openid=%s batch=%d", order.OpenID, order.BatchID)
		}
		r.reportInconsistency(ctx, order, err)
	}

	event := &models.PaymentConfirmedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentConfirmed,
			Timestamp: time.Now(),
		},
		OrderNo:       order.OrderNo,
		BatchID:       order.BatchID,
		OpenID:        order.OpenID,
		TransactionID: notification.TransactionID,
		FeeFen:        order.FeeFen,
	}
	if err := r.publisher.PublishPaymentConfirmed(ctx, event); err != nil {
		r.logger.Error("Failed to publish PaymentConfirmed event", zap.Error(err))
	}

	util.PaymentNotifyTotal.WithLabelValues("confirmed").Inc()
	return wechat.AckSuccess()
}

// handleFailureNotification records a provider-reported payment failure.
// Not a protocol error: the notification is acknowledged so the provider
// stops retrying. Unknown or already-terminal orders are left untouched.
func (r *Reconciler) handleFailureNotification(ctx context.Context, n *wechat.Notification) *wechat.NotifyAck {
	util.PaymentNotifyTotal.WithLabelValues("payment_failed").Inc()
	r.logger.Warn("Payment failure notification",
		zap.String("order_no", n.OutTradeNo),
		zap.String("return_code", n.ReturnCode),
		zap.String("result_code", n.ResultCode),
		zap.String("err_code", n.ErrCode))

	if n.OutTradeNo == "" {
		return wechat.AckSuccess()
	}

	transitioned, err := r.store.MarkOrderFailed(ctx, n.OutTradeNo)
	if err != nil {
		r.logger.Error("Failed to mark order failed",
			zap.String("order_no", n.OutTradeNo),
			zap.Error(err))
		return wechat.AckFail("store unavailable")
	}
	if !transitioned {
		return wechat.AckSuccess()
	}

	event := &models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentFailed,
			Timestamp: time.Now(),
		},
		OrderNo: n.OutTradeNo,
		Reason:  n.ErrCode,
	}
	if err := r.publisher.PublishPaymentFailed(ctx, event); err != nil {
		r.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
	}

	return wechat.AckSuccess()
}

// reportInconsistency makes a paid-order/stale-registration split
// observable. The order keeps its PAID status: the money was received, so
// nothing is rolled back and the provider is still acked.
func (r *Reconciler) reportInconsistency(ctx context.Context, order *models.PaymentOrder, cause error) {
	inconsistency := &ReconciliationInconsistency{OrderNo: order.OrderNo, Err: cause}

	util.ReconciliationInconsistenciesTotal.Inc()
	r.logger.Error("Reconciliation inconsistency",
		zap.String("order_no", order.OrderNo),
		zap.String("open_id", order.OpenID),
		zap.Int64("batch_id", order.BatchID),
		zap.Error(inconsistency))

	event := &models.ReconciliationInconsistentEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReconciliationInconsistent,
			Timestamp: time.Now(),
		},
		OrderNo: order.OrderNo,
		BatchID: order.BatchID,
		OpenID:  order.OpenID,
		Reason:  cause.Error(),
	}
	if err := r.publisher.PublishReconciliationInconsistent(ctx, event); err != nil {
		r.logger.Error("Failed to publish ReconciliationInconsistent event", zap.Error(err))
	}
}
