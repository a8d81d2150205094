package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"registration-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetBatchByID retrieves a batch by ID
func (s *Store) GetBatchByID(ctx context.Context, id int64) (*models.Batch, error) {
	var batch models.Batch
	err := s.db.GetContext(ctx, &batch, "SELECT * FROM batches WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

// GetOpenBatches retrieves all batches currently open for registration
func (s *Store) GetOpenBatches(ctx context.Context) ([]models.Batch, error) {
	var batches []models.Batch
	err := s.db.SelectContext(ctx, &batches,
		"SELECT * FROM batches WHERE status = $1 ORDER BY starts_at", models.BatchStatusOpen)
	return batches, err
}

// CreateRegistration creates a new registration in UNPAID state
func (s *Store) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	query := `
		INSERT INTO registrations (open_id, batch_id, name, phone, pay_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, reg, query,
		reg.OpenID, reg.BatchID, reg.Name, reg.Phone, reg.PayStatus)
}

// GetRegistration retrieves a registration by payer identity and batch
func (s *Store) GetRegistration(ctx context.Context, openID string, batchID int64) (*models.Registration, error) {
	var reg models.Registration
	err := s.db.GetContext(ctx, &reg,
		"SELECT * FROM registrations WHERE open_id = $1 AND batch_id = $2", openID, batchID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("registration not found: openid=%s batch=%d", openID, batchID)
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetRegistrationsByOpenID retrieves all registrations for a payer identity
func (s *Store) GetRegistrationsByOpenID(ctx context.Context, openID string) ([]models.Registration, error) {
	var regs []models.Registration
	err := s.db.SelectContext(ctx, &regs,
		"SELECT * FROM registrations WHERE open_id = $1 ORDER BY created_at DESC", openID)
	return regs, err
}

// MarkRegistrationPaid flips a registration's pay_status to PAID, keyed by
// payer identity and batch. Returns the number of rows updated so callers
// can detect a missing registration.
func (s *Store) MarkRegistrationPaid(ctx context.Context, openID string, batchID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE registrations SET pay_status = $1 WHERE open_id = $2 AND batch_id = $3",
		models.PayStatusPaid, openID, batchID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
