package service

import (
	"context"
	"fmt"
	"time"

	"registration-service/internal/models"
	"registration-service/internal/redisclient"
	"registration-service/internal/store"
	"registration-service/internal/util"

	"go.uber.org/zap"
)

// RegistrationService handles batch reads and registration writes. This is
// passthrough glue around the store; payment state on a registration is
// owned by the reconciler.
type RegistrationService struct {
	store    *store.Store
	redis    *redisclient.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewRegistrationService creates a new registration service
func NewRegistrationService(store *store.Store, redis *redisclient.Client, cacheTTL time.Duration) *RegistrationService {
	return &RegistrationService{
		store:    store,
		redis:    redis,
		cacheTTL: cacheTTL,
		logger:   util.GetLogger(),
	}
}

// ListOpenBatches returns batches open for signup, served from the Redis
// cache when warm.
func (rs *RegistrationService) ListOpenBatches(ctx context.Context) ([]models.Batch, error) {
	ctx, span := util.StartSpan(ctx, "RegistrationService.ListOpenBatches")
	defer span.End()

	if batches, ok := rs.redis.GetCachedBatches(ctx); ok {
		return batches, nil
	}

	batches, err := rs.store.GetOpenBatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	if err := rs.redis.SetCachedBatches(ctx, batches, rs.cacheTTL); err != nil {
		rs.logger.Warn("Failed to cache batch list", zap.Error(err))
	}

	return batches, nil
}

// GetBatch retrieves one batch by ID.
func (rs *RegistrationService) GetBatch(ctx context.Context, id int64) (*models.Batch, error) {
	return rs.store.GetBatchByID(ctx, id)
}

// CreateRegistrationRequest represents a signup submission.
type CreateRegistrationRequest struct {
	OpenID  string `json:"open_id"`
	BatchID int64  `json:"batch_id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
}

// CreateRegistration stores a new registration in UNPAID state.
func (rs *RegistrationService) CreateRegistration(ctx context.Context, req *CreateRegistrationRequest) (*models.Registration, error) {
	ctx, span := util.StartSpan(ctx, "RegistrationService.CreateRegistration")
	defer span.End()

	if req.OpenID == "" {
		return nil, &ValidationError{Field: "open_id", Reason: "must not be empty"}
	}
	if req.BatchID <= 0 {
		return nil, &ValidationError{Field: "batch_id", Reason: "must be a positive id"}
	}
	if req.Name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}

	batch, err := rs.store.GetBatchByID(ctx, req.BatchID)
	if err != nil {
		return nil, &ValidationError{Field: "batch_id", Reason: "batch does not exist"}
	}
	if batch.Status != models.BatchStatusOpen {
		return nil, &ValidationError{Field: "batch_id", Reason: "batch is closed"}
	}

	reg := &models.Registration{
		OpenID:    req.OpenID,
		BatchID:   req.BatchID,
		Name:      req.Name,
		Phone:     req.Phone,
		PayStatus: models.PayStatusUnpaid,
	}

	if err := rs.store.CreateRegistration(ctx, reg); err != nil {
		return nil, &PersistenceError{Op: "create registration", Err: err}
	}

	util.RegistrationsCreatedTotal.Inc()
	rs.logger.Info("Registration created",
		zap.Int64("registration_id", reg.ID),
		zap.Int64("batch_id", reg.BatchID))

	return reg, nil
}

// ListRegistrations returns a user's registrations.
func (rs *RegistrationService) ListRegistrations(ctx context.Context, openID string) ([]models.Registration, error) {
	if openID == "" {
		return nil, &ValidationError{Field: "open_id", Reason: "must not be empty"}
	}
	return rs.store.GetRegistrationsByOpenID(ctx, openID)
}
