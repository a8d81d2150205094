package service

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"registration-service/internal/models"
	"registration-service/internal/util"
	"registration-service/internal/wechat"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderStore is the slice of the persistence store the payment lifecycle
// uses. *store.Store satisfies it.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.PaymentOrder) error
	GetOrderByOrderNo(ctx context.Context, orderNo string) (*models.PaymentOrder, error)
	MarkOrderPaid(ctx context.Context, orderNo, transactionID string, paidAt time.Time) (bool, error)
	MarkOrderFailed(ctx context.Context, orderNo string) (bool, error)
	MarkRegistrationPaid(ctx context.Context, openID string, batchID int64) (int64, error)
}

// Provider is the payment-provider client contract.
type Provider interface {
	UnifiedOrder(ctx context.Context, orderNo, description string, totalFeeFen int64, openID string) (string, error)
	PaymentParams(prepayID string) wechat.PayParams
}

// Publisher publishes payment lifecycle events.
type Publisher interface {
	PublishPaymentInitiated(ctx context.Context, event *models.PaymentInitiatedEvent) error
	PublishPaymentConfirmed(ctx context.Context, event *models.PaymentConfirmedEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
	PublishReconciliationInconsistent(ctx context.Context, event *models.ReconciliationInconsistentEvent) error
}

// PaymentService is the order initiator: it validates a payment request,
// obtains provider parameters and persists the pending order.
type PaymentService struct {
	store     OrderStore
	provider  Provider
	publisher Publisher
	logger    *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(store OrderStore, provider Provider, publisher Publisher) *PaymentService {
	return &PaymentService{
		store:     store,
		provider:  provider,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// InitiatePaymentRequest represents a request to start a payment.
type InitiatePaymentRequest struct {
	BatchID int64  `json:"batch_id"`
	Fee     string `json:"fee"`
	OpenID  string `json:"open_id"`
}

// InitiatePaymentResponse carries the provider parameters the mini-program
// needs plus the order number for later status queries.
type InitiatePaymentResponse struct {
	OrderNo string `json:"order_no"`
	wechat.PayParams
}

// InitiatePayment validates the request, asks the provider for payment
// parameters and persists the order in PENDING state. If the provider call
// fails nothing is persisted: the caller is told no order exists so it can
// retry with a fresh attempt.
func (ps *PaymentService) InitiatePayment(ctx context.Context, req *InitiatePaymentRequest) (*InitiatePaymentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.InitiatePayment")
	defer span.End()

	if req.BatchID <= 0 {
		return nil, &ValidationError{Field: "batch_id", Reason: "must be a positive id"}
	}
	if req.OpenID == "" {
		return nil, &ValidationError{Field: "open_id", Reason: "must not be empty"}
	}
	feeFen, err := ParseFeeToFen(req.Fee)
	if err != nil {
		return nil, &ValidationError{Field: "fee", Reason: err.Error()}
	}

	orderNo := NewOrderNo()
	description := fmt.Sprintf("activity registration - batch %d", req.BatchID)

	start := time.Now()
	prepayID, err := ps.provider.UnifiedOrder(ctx, orderNo, description, feeFen, req.OpenID)
	util.ProviderRequestLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.PaymentInitiationsFailed.WithLabelValues("provider").Inc()
		ps.logger.Warn("Provider call failed, no order persisted",
			zap.String("order_no", orderNo),
			zap.Error(err))
		return nil, &ProviderError{Err: err}
	}

	order := &models.PaymentOrder{
		OrderNo: orderNo,
		BatchID: req.BatchID,
		OpenID:  req.OpenID,
		FeeFen:  feeFen,
		Status:  models.OrderStatusPending,
	}

	if err := ps.store.CreateOrder(ctx, order); err != nil {
		util.PaymentInitiationsFailed.WithLabelValues("persistence").Inc()
		// The provider already holds a live order for this number. Log
		// loudly so operators can reconcile it manually.
		ps.logger.Error("Order persist failed after provider accepted it",
			zap.String("order_no", orderNo),
			zap.Int64("fee_fen", feeFen),
			zap.Error(err))
		return nil, &PersistenceError{Op: "create order", Err: err}
	}

	util.PaymentsInitiatedTotal.Inc()
	ps.logger.Info("Payment initiated",
		zap.String("order_no", orderNo),
		zap.Int64("batch_id", req.BatchID),
		zap.Int64("fee_fen", feeFen))

	event := &models.PaymentInitiatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentInitiated,
			Timestamp: time.Now(),
		},
		OrderNo: orderNo,
		BatchID: req.BatchID,
		OpenID:  req.OpenID,
		FeeFen:  feeFen,
	}
	if err := ps.publisher.PublishPaymentInitiated(ctx, event); err != nil {
		ps.logger.Error("Failed to publish PaymentInitiated event", zap.Error(err))
	}

	return &InitiatePaymentResponse{
		OrderNo:   orderNo,
		PayParams: ps.provider.PaymentParams(prepayID),
	}, nil
}

// GetOrder retrieves an order by order number.
func (ps *PaymentService) GetOrder(ctx context.Context, orderNo string) (*models.PaymentOrder, error) {
	return ps.store.GetOrderByOrderNo(ctx, orderNo)
}

// ParseFeeToFen converts a decimal yuan amount into fen. Parsing is pure
// string arithmetic so no float rounding can leak into money. Fractions
// beyond two digits are floored: "12.345" becomes 1234.
func ParseFeeToFen(fee string) (int64, error) {
	fee = strings.TrimSpace(fee)
	if fee == "" {
		return 0, fmt.Errorf("must not be empty")
	}

	intPart, fracPart, _ := strings.Cut(fee, ".")
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return 0, fmt.Errorf("must be a positive decimal amount")
	}

	yuan, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("must be a positive decimal amount")
	}

	if len(fracPart) > 2 {
		fracPart = fracPart[:2]
	}
	for len(fracPart) < 2 {
		fracPart += "0"
	}
	cents, _ := strconv.ParseInt(fracPart, 10, 64)

	fen := yuan*100 + cents
	if fen <= 0 {
		return 0, fmt.Errorf("must be greater than zero")
	}
	return fen, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NewOrderNo generates an order number from the current time plus a random
// numeric suffix. Uniqueness is enforced by the database constraint, not
// assumed here.
func NewOrderNo() string {
	return fmt.Sprintf("%s%06d", time.Now().Format("20060102150405"), rand.Intn(1000000))
}
