package models

import "time"

// Event types
const (
	EventTypePaymentInitiated           = "PAYMENT_INITIATED"
	EventTypePaymentConfirmed           = "PAYMENT_CONFIRMED"
	EventTypePaymentFailed              = "PAYMENT_FAILED"
	EventTypeReconciliationInconsistent = "RECONCILIATION_INCONSISTENT"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentInitiatedEvent published when a pending order is persisted
type PaymentInitiatedEvent struct {
	BaseEvent
	OrderNo string `json:"order_no"`
	BatchID int64  `json:"batch_id"`
	OpenID  string `json:"open_id"`
	FeeFen  int64  `json:"fee_fen"`
}

// PaymentConfirmedEvent published when the provider confirms a payment
type PaymentConfirmedEvent struct {
	BaseEvent
	OrderNo       string `json:"order_no"`
	BatchID       int64  `json:"batch_id"`
	OpenID        string `json:"open_id"`
	TransactionID string `json:"transaction_id"`
	FeeFen        int64  `json:"fee_fen"`
}

// PaymentFailedEvent published when the provider reports a failed payment
type PaymentFailedEvent struct {
	BaseEvent
	OrderNo string `json:"order_no"`
	Reason  string `json:"reason"`
}

// ReconciliationInconsistentEvent published when an order was marked paid
// but the matching registration update failed. The order is the source of
// truth for money; the registration is healed asynchronously.
type ReconciliationInconsistentEvent struct {
	BaseEvent
	OrderNo string `json:"order_no"`
	BatchID int64  `json:"batch_id"`
	OpenID  string `json:"open_id"`
	Reason  string `json:"reason"`
}
