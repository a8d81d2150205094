package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"registration-service/internal/models"
	"registration-service/internal/service"
	"registration-service/internal/wechat"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore implements service.OrderStore for handler tests.
type memStore struct {
	mu     sync.Mutex
	orders map[string]*models.PaymentOrder
	regs   map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		orders: make(map[string]*models.PaymentOrder),
		regs:   make(map[string]bool),
	}
}

func (m *memStore) CreateOrder(_ context.Context, order *models.PaymentOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	saved := *order
	m.orders[order.OrderNo] = &saved
	return nil
}

func (m *memStore) GetOrderByOrderNo(_ context.Context, orderNo string) (*models.PaymentOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderNo]
	if !ok {
		return nil, fmt.Errorf("order not found: %s", orderNo)
	}
	copied := *order
	return &copied, nil
}

func (m *memStore) MarkOrderPaid(_ context.Context, orderNo, txID string, paidAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderNo]
	if !ok || order.Status != models.OrderStatusPending {
		return false, nil
	}
	order.Status = models.OrderStatusPaid
	order.TransactionID.String = txID
	order.TransactionID.Valid = true
	order.PaidAt.Time = paidAt
	order.PaidAt.Valid = true
	return true, nil
}

func (m *memStore) MarkOrderFailed(_ context.Context, orderNo string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderNo]
	if !ok || order.Status != models.OrderStatusPending {
		return false, nil
	}
	order.Status = models.OrderStatusFailed
	return true, nil
}

func (m *memStore) MarkRegistrationPaid(_ context.Context, openID string, batchID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%s|%d", openID, batchID)
	if !m.regs[key] {
		return 0, nil
	}
	return 1, nil
}

type stubProvider struct {
	prepayID string
	err      error
}

func (s *stubProvider) UnifiedOrder(context.Context, string, string, int64, string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.prepayID, nil
}

func (s *stubProvider) PaymentParams(prepayID string) wechat.PayParams {
	return wechat.PayParams{
		TimeStamp: "1700000000",
		NonceStr:  "nonce",
		Package:   "prepay_id=" + prepayID,
		SignType:  "MD5",
		PaySign:   "SIGN",
	}
}

type nopPublisher struct{}

func (nopPublisher) PublishPaymentInitiated(context.Context, *models.PaymentInitiatedEvent) error {
	return nil
}
func (nopPublisher) PublishPaymentConfirmed(context.Context, *models.PaymentConfirmedEvent) error {
	return nil
}
func (nopPublisher) PublishPaymentFailed(context.Context, *models.PaymentFailedEvent) error {
	return nil
}
func (nopPublisher) PublishReconciliationInconsistent(context.Context, *models.ReconciliationInconsistentEvent) error {
	return nil
}

func testRouter(st *memStore, provider *stubProvider) *gin.Engine {
	gin.SetMode(gin.TestMode)

	payments := service.NewPaymentService(st, provider, nopPublisher{})
	reconciler := service.NewReconciler(st, nopPublisher{})
	handler := NewHandler(payments, reconciler, nil, nil)

	router := gin.New()
	handler.SetupRoutes(router)
	return router
}

func TestInitiatePaymentEndpoint(t *testing.T) {
	st := newMemStore()
	router := testRouter(st, &stubProvider{prepayID: "wx_prepay_001"})

	body := `{"batch_id":5,"fee":"20.00","open_id":"abc"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pay/initiate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"order_no"`)
	assert.Contains(t, w.Body.String(), `"package":"prepay_id=wx_prepay_001"`)
	assert.Len(t, st.orders, 1)
}

func TestInitiatePaymentEndpointValidation(t *testing.T) {
	st := newMemStore()
	router := testRouter(st, &stubProvider{prepayID: "wx_prepay_001"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pay/initiate",
		bytes.NewBufferString(`{"fee":"20.00","open_id":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, st.orders, "validation failure must leave no side effects")
}

func TestInitiatePaymentEndpointProviderDown(t *testing.T) {
	st := newMemStore()
	router := testRouter(st, &stubProvider{err: errors.New("timeout")})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pay/initiate",
		bytes.NewBufferString(`{"batch_id":5,"fee":"20.00","open_id":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Empty(t, st.orders)
}

func TestPaymentNotifyEndpoint(t *testing.T) {
	st := newMemStore()
	st.orders["X1"] = &models.PaymentOrder{
		OrderNo: "X1",
		BatchID: 5,
		OpenID:  "abc",
		FeeFen:  2000,
		Status:  models.OrderStatusPending,
	}
	st.regs["abc|5"] = true
	router := testRouter(st, &stubProvider{})

	notify := `<xml>
		<return_code><![CDATA[SUCCESS]]></return_code>
		<result_code><![CDATA[SUCCESS]]></result_code>
		<out_trade_no><![CDATA[X1]]></out_trade_no>
		<transaction_id><![CDATA[T1]]></transaction_id>
		<total_fee>2000</total_fee>
	</xml>`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pay/notify", strings.NewReader(notify))
	req.Header.Set("Content-Type", "text/xml")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<![CDATA[SUCCESS]]>")
	assert.Equal(t, models.OrderStatusPaid, st.orders["X1"].Status)
}

func TestPaymentNotifyEndpointUnknownOrder(t *testing.T) {
	st := newMemStore()
	router := testRouter(st, &stubProvider{})

	notify := `<xml>
		<return_code><![CDATA[SUCCESS]]></return_code>
		<result_code><![CDATA[SUCCESS]]></result_code>
		<out_trade_no><![CDATA[NOPE]]></out_trade_no>
	</xml>`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pay/notify", strings.NewReader(notify))
	router.ServeHTTP(w, req)

	// business failure still answers HTTP 200; the body carries the FAIL ack
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<![CDATA[FAIL]]>")
}
