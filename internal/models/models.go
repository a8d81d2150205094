package models

import (
	"database/sql"
	"time"
)

// Batch represents an event instance participants register against.
type Batch struct {
	ID        int64     `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Fee       string    `db:"fee" json:"fee"`
	Capacity  int       `db:"capacity" json:"capacity"`
	StartsAt  time.Time `db:"starts_at" json:"starts_at"`
	EndsAt    time.Time `db:"ends_at" json:"ends_at"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Registration represents a participant's signup for a batch.
type Registration struct {
	ID        int64     `db:"id" json:"id"`
	OpenID    string    `db:"open_id" json:"open_id"`
	BatchID   int64     `db:"batch_id" json:"batch_id"`
	Name      string    `db:"name" json:"name"`
	Phone     string    `db:"phone" json:"phone"`
	PayStatus string    `db:"pay_status" json:"pay_status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// PaymentOrder ties a registration fee to a provider transaction. Created
// pending by the initiator; only the reconciler moves it to a terminal
// status.
type PaymentOrder struct {
	ID            int64          `db:"id" json:"id"`
	OrderNo       string         `db:"order_no" json:"order_no"`
	BatchID       int64          `db:"batch_id" json:"batch_id"`
	OpenID        string         `db:"open_id" json:"open_id"`
	FeeFen        int64          `db:"fee_fen" json:"fee_fen"`
	Status        string         `db:"status" json:"status"`
	TransactionID sql.NullString `db:"transaction_id" json:"transaction_id,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	PaidAt        sql.NullTime   `db:"paid_at" json:"paid_at,omitempty"`
}

// Order statuses
const (
	OrderStatusPending = "PENDING"
	OrderStatusPaid    = "PAID"
	OrderStatusFailed  = "FAILED"
)

// Registration pay statuses
const (
	PayStatusUnpaid = "UNPAID"
	PayStatusPaid   = "PAID"
)

// Batch statuses
const (
	BatchStatusOpen   = "OPEN"
	BatchStatusClosed = "CLOSED"
)
