package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/iamgideonidoko/sentinel/internal/models"
	"github.com/iamgideonidoko/sentinel/pkg/logger"
)

var ErrNotFound = errors.New("record not found")

type Repository struct {
	db *sqlx.DB
}

// NewRepository connects with the given driver ("postgres" or "sqlite").
func NewRepository(driver, dsn string, maxConns, maxIdleConns int) (*Repository, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == "sqlite" {
		// One writer at a time avoids SQLITE_BUSY under concurrent event writes.
		maxConns, maxIdleConns = 1, 1
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	return &Repository{db: db}, nil
}

func NewFromDB(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS trusted_devices (
		fingerprint_hash TEXT NOT NULL,
		user_id TEXT NOT NULL,
		trusted BOOLEAN NOT NULL DEFAULT TRUE,
		last_login_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (fingerprint_hash, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS security_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		fingerprint_hash TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_security_events_created_at ON security_events (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_security_events_fingerprint ON security_events (fingerprint_hash)`,
}

// Migrate creates the tables the service owns. Statements are idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// FindTrustedDevice returns ErrNotFound when the pair has never been trusted.
func (r *Repository) FindTrustedDevice(ctx context.Context, fingerprintHash, userID string) (*models.TrustedDevice, error) {
	query := r.db.Rebind(`
		SELECT fingerprint_hash, user_id, trusted, last_login_at, created_at
		FROM trusted_devices
		WHERE fingerprint_hash = ? AND user_id = ?
	`)

	var device models.TrustedDevice
	if err := r.db.GetContext(ctx, &device, query, fingerprintHash, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find trusted device: %w", err)
	}

	return &device, nil
}

// UpsertTrustedDevice marks the pair trusted and records the login time.
// Repeated calls only move last_login_at forward.
func (r *Repository) UpsertTrustedDevice(ctx context.Context, fingerprintHash, userID string, at time.Time) error {
	query := r.db.Rebind(`
		INSERT INTO trusted_devices (fingerprint_hash, user_id, trusted, last_login_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint_hash, user_id)
		DO UPDATE SET trusted = excluded.trusted, last_login_at = excluded.last_login_at
	`)

	at = at.UTC()
	if _, err := r.db.ExecContext(ctx, query, fingerprintHash, userID, true, at, at); err != nil {
		return fmt.Errorf("failed to upsert trusted device: %w", err)
	}

	return nil
}

// RevokeTrustedDevice clears the trusted flag, keeping the row for audit.
func (r *Repository) RevokeTrustedDevice(ctx context.Context, fingerprintHash, userID string) error {
	query := r.db.Rebind(`UPDATE trusted_devices SET trusted = ? WHERE fingerprint_hash = ? AND user_id = ?`)

	res, err := r.db.ExecContext(ctx, query, false, fingerprintHash, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke trusted device: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateSecurityEvent persists an audit event.
func (r *Repository) CreateSecurityEvent(ctx context.Context, event *models.SecurityEvent) error {
	query := r.db.Rebind(`
		INSERT INTO security_events (id, event_type, fingerprint_hash, ip_address, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(ctx, query,
		event.ID, event.EventType, event.FingerprintHash, event.IPAddress,
		event.Details, event.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create security event: %w", err)
	}

	return nil
}

// GetRecentSecurityEvents retrieves events newest first with pagination.
func (r *Repository) GetRecentSecurityEvents(ctx context.Context, limit, offset int) ([]models.SecurityEvent, error) {
	query := r.db.Rebind(`
		SELECT id, event_type, fingerprint_hash, ip_address, details, created_at
		FROM security_events
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`)

	rows, err := r.db.QueryxContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent security events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			logger.Warn("Failed to close database rows", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	events := make([]models.SecurityEvent, 0, limit)
	for rows.Next() {
		var event models.SecurityEvent
		if err := rows.StructScan(&event); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate security events: %w", err)
	}

	return events, nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}
