package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"registration-service/internal/models"
	"registration-service/internal/wechat"
)

// fakeStore implements OrderStore in memory with the same status-guarded
// update semantics the real store gets from SQL.
type fakeStore struct {
	mu sync.Mutex

	orders        map[string]*models.PaymentOrder
	registrations map[string]string // "openid|batch" -> pay status

	createErr error
	regErr    error

	regUpdates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:        make(map[string]*models.PaymentOrder),
		registrations: make(map[string]string),
	}
}

func regKey(openID string, batchID int64) string {
	return fmt.Sprintf("%s|%d", openID, batchID)
}

func (f *fakeStore) addRegistration(openID string, batchID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registrations[regKey(openID, batchID)] = models.PayStatusUnpaid
}

func (f *fakeStore) CreateOrder(_ context.Context, order *models.PaymentOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.orders[order.OrderNo]; exists {
		return fmt.Errorf("order %s: duplicate order number", order.OrderNo)
	}

	order.ID = int64(len(f.orders) + 1)
	order.CreatedAt = time.Now()
	saved := *order
	f.orders[order.OrderNo] = &saved
	return nil
}

func (f *fakeStore) GetOrderByOrderNo(_ context.Context, orderNo string) (*models.PaymentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderNo]
	if !ok {
		return nil, fmt.Errorf("order not found: %s", orderNo)
	}
	copied := *order
	return &copied, nil
}

func (f *fakeStore) MarkOrderPaid(_ context.Context, orderNo, transactionID string, paidAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderNo]
	if !ok || order.Status != models.OrderStatusPending {
		return false, nil
	}
	order.Status = models.OrderStatusPaid
	order.TransactionID.String = transactionID
	order.TransactionID.Valid = true
	order.PaidAt.Time = paidAt
	order.PaidAt.Valid = true
	return true, nil
}

func (f *fakeStore) MarkOrderFailed(_ context.Context, orderNo string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderNo]
	if !ok || order.Status != models.OrderStatusPending {
		return false, nil
	}
	order.Status = models.OrderStatusFailed
	return true, nil
}

func (f *fakeStore) MarkRegistrationPaid(_ context.Context, openID string, batchID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.regErr != nil {
		return 0, f.regErr
	}
	key := regKey(openID, batchID)
	if _, ok := f.registrations[key]; !ok {
		return 0, nil
	}
	f.registrations[key] = models.PayStatusPaid
	f.regUpdates++
	return 1, nil
}

// fakeProvider implements Provider with a scripted outcome.
type fakeProvider struct {
	mu sync.Mutex

	prepayID string
	err      error
	calls    int
}

func (f *fakeProvider) UnifiedOrder(_ context.Context, _, _ string, _ int64, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.prepayID, nil
}

func (f *fakeProvider) PaymentParams(prepayID string) wechat.PayParams {
	return wechat.PayParams{
		TimeStamp: "1700000000",
		NonceStr:  "nonce",
		Package:   "prepay_id=" + prepayID,
		SignType:  "MD5",
		PaySign:   "SIGN",
	}
}

// fakePublisher records published events.
type fakePublisher struct {
	mu sync.Mutex

	initiated    []*models.PaymentInitiatedEvent
	confirmed    []*models.PaymentConfirmedEvent
	failed       []*models.PaymentFailedEvent
	inconsistent []*models.ReconciliationInconsistentEvent
}

func (f *fakePublisher) PublishPaymentInitiated(_ context.Context, e *models.PaymentInitiatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initiated = append(f.initiated, e)
	return nil
}

func (f *fakePublisher) PublishPaymentConfirmed(_ context.Context, e *models.PaymentConfirmedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, e)
	return nil
}

func (f *fakePublisher) PublishPaymentFailed(_ context.Context, e *models.PaymentFailedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, e)
	return nil
}

func (f *fakePublisher) PublishReconciliationInconsistent(_ context.Context, e *models.ReconciliationInconsistentEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inconsistent = append(f.inconsistent, e)
	return nil
}
