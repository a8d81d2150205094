package service

import (
	"errors"
	"fmt"
)

// Error classes for the payment lifecycle. Handlers map these onto HTTP
// responses; nothing downstream of the provider protocol depends on the
// message text.

// ValidationError reports bad or missing client input. The request is
// terminal; the client corrects and retries.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ProviderError reports a failed payment-provider call. No order was
// persisted for the attempt; the client may retry with a fresh attempt.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// PersistenceError reports a store failure. When it happens after a
// successful provider call the provider holds a live order unknown to us,
// which is logged for manual reconciliation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ErrMalformedNotification reports an unparseable provider callback body.
var ErrMalformedNotification = errors.New("malformed payment notification")

// ReconciliationInconsistency reports that an order was marked paid but
// the matching registration update failed. Non-fatal: the order is the
// money source of truth and the provider is still acked, but the condition
// must be observable.
type ReconciliationInconsistency struct {
	OrderNo string
	Err     error
}

func (e *ReconciliationInconsistency) Error() string {
	return fmt.Sprintf("order %s paid but registration not updated: %v", e.OrderNo, e.Err)
}

func (e *ReconciliationInconsistency) Unwrap() error { return e.Err }
