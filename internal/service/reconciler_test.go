package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"registration-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notificationXML(orderNo, txID string, totalFee int64) []byte {
	return []byte(fmt.Sprintf(`<xml>
		<return_code><![CDATA[SUCCESS]]></return_code>
		<result_code><![CDATA[SUCCESS]]></result_code>
		<out_trade_no><![CDATA[%s]]></out_trade_no>
		<transaction_id><![CDATA[%s]]></transaction_id>
		<total_fee>%d</total_fee>
	</xml>`, orderNo, txID, totalFee))
}

func pendingOrder(st *fakeStore, orderNo, openID string, batchID, feeFen int64) {
	st.orders[orderNo] = &models.PaymentOrder{
		OrderNo: orderNo,
		BatchID: batchID,
		OpenID:  openID,
		FeeFen:  feeFen,
		Status:  models.OrderStatusPending,
	}
}

func TestReconcileSuccess(t *testing.T) {
	st := newFakeStore()
	pendingOrder(st, "X1", "abc", 5, 2000)
	st.addRegistration("abc", 5)
	publisher := &fakePublisher{}
	r := NewReconciler(st, publisher)

	ack := r.Reconcile(context.Background(), notificationXML("X1", "T1", 2000))

	assert.True(t, ack.Success())

	order := st.orders["X1"]
	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.Equal(t, "T1", order.TransactionID.String)
	assert.True(t, order.PaidAt.Valid)

	assert.Equal(t, models.PayStatusPaid, st.registrations[regKey("abc", 5)])

	require.Len(t, publisher.confirmed, 1)
	assert.Equal(t, "T1", publisher.confirmed[0].TransactionID)
	assert.Empty(t, publisher.inconsistent)
}

func TestReconcileDuplicateDeliveryIsIdempotent(t *testing.T) {
	st := newFakeStore()
	pendingOrder(st, "X1", "abc", 5, 2000)
	st.addRegistration("abc", 5)
	publisher := &fakePublisher{}
	r := NewReconciler(st, publisher)

	first := r.Reconcile(context.Background(), notificationXML("X1", "T1", 2000))
	require.True(t, first.Success())
	paidAt := st.orders["X1"].PaidAt.Time

	second := r.Reconcile(context.Background(), notificationXML("X1", "T1", 2000))

	assert.True(t, second.Success(), "redelivery must be acked so the provider stops retrying")
	assert.Equal(t, paidAt, st.orders["X1"].PaidAt.Time, "paid_at must not be re-applied")
	assert.Equal(t, 1, st.regUpdates, "registration must be updated exactly once")
	assert.Len(t, publisher.confirmed, 1, "confirmation event must not be re-published")
}

func TestReconcileConcurrentDeliveries(t *testing.T) {
	st := newFakeStore()
	pendingOrder(st, "X1", "abc", 5, 2000)
	st.addRegistration("abc", 5)
	r := NewReconciler(st, &fakePublisher{})

	const deliveries = 8
	var wg sync.WaitGroup
	successes := make([]bool, deliveries)

	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ack := r.Reconcile(context.Background(), notificationXML("X1", "T1", 2000))
			successes[i] = ack.Success()
		}(i)
	}
	wg.Wait()

	for i, ok := range successes {
		assert.True(t, ok, "delivery %d must be acked", i)
	}
	assert.Equal(t, models.OrderStatusPaid, st.orders["X1"].Status)
	assert.Equal(t, 1, st.regUpdates, "only the winning delivery applies side effects")
}

func TestReconcileUnknownOrder(t *testing.T) {
	st := newFakeStore()
	publisher := &fakePublisher{}
	r := NewReconciler(st, publisher)

	ack := r.Reconcile(context.Background(), notificationXML("NOPE", "T1", 2000))

	assert.False(t, ack.Success())
	assert.Equal(t, 0, st.regUpdates)
	assert.Empty(t, publisher.confirmed)
}

func TestReconcileMalformedBody(t *testing.T) {
	r := NewReconciler(newFakeStore(), &fakePublisher{})

	ack := r.Reconcile(context.Background(), []byte("not xml at all"))

	assert.False(t, ack.Success(), "a FAIL ack lets the provider redeliver")
}

func TestReconcileFailureNotification(t *testing.T) {
	st := newFakeStore()
	pendingOrder(st, "X1", "abc", 5, 2000)
	st.addRegistration("abc", 5)
	publisher := &fakePublisher{}
	r := NewReconciler(st, publisher)

	body := []byte(`<xml>
		<return_code><![CDATA[SUCCESS]]></return_code>
		<result_code><![CDATA[FAIL]]></result_code>
		<err_code><![CDATA[NOTENOUGH]]></err_code>
		<out_trade_no><![CDATA[X1]]></out_trade_no>
	</xml>`)

	ack := r.Reconcile(context.Background(), body)

	assert.True(t, ack.Success(), "a failure result is processed, not redelivered")
	assert.Equal(t, models.OrderStatusFailed, st.orders["X1"].Status)
	assert.Equal(t, models.PayStatusUnpaid, st.registrations[regKey("abc", 5)])
	require.Len(t, publisher.failed, 1)
	assert.Equal(t, "NOTENOUGH", publisher.failed[0].Reason)
}

func TestReconcileFailureNotificationDoesNotTouchTerminalOrder(t *testing.T) {
	st := newFakeStore()
	pendingOrder(st, "X1", "abc", 5, 2000)
	st.orders["X1"].Status = models.OrderStatusPaid
	publisher := &fakePublisher{}
	r := NewReconciler(st, publisher)

	body := []byte(`<xml>
		<return_code><![CDATA[FAIL]]></return_code>
		<out_trade_no><![CDATA[X1]]></out_trade_no>
	</xml>`)

	ack := r.Reconcile(context.Background(), body)

	assert.True(t, ack.Success())
	assert.Equal(t, models.OrderStatusPaid, st.orders["X1"].Status)
	assert.Empty(t, publisher.failed)
}

func TestReconcileRegistrationUpdateFailure(t *testing.T) {
	st := newFakeStore()
	pendingOrder(st, "X1", "abc", 5, 2000)
	st.regErr = fmt.Errorf("connection reset")
	publisher := &fakePublisher{}
	r := NewReconciler(st, publisher)

	ack := r.Reconcile(context.Background(), notificationXML("X1", "T1", 2000))

	assert.True(t, ack.Success(), "money-received truth wins: the provider is still acked")
	assert.Equal(t, models.OrderStatusPaid, st.orders["X1"].Status, "the order is never rolled back")
	require.Len(t, publisher.inconsistent, 1)
	assert.Equal(t, "X1", publisher.inconsistent[0].OrderNo)
}

func TestReconcileMissingRegistrationReportsInconsistency(t *testing.T) {
	st := newFakeStore()
	pendingOrder(st, "X1", "abc", 5, 2000)
	publisher := &fakePublisher{}
	r := NewReconciler(st, publisher)

	ack := r.Reconcile(context.Background(), notificationXML("X1", "T1", 2000))

	assert.True(t, ack.Success())
	assert.Equal(t, models.OrderStatusPaid, st.orders["X1"].Status)
	require.Len(t, publisher.inconsistent, 1)
}
