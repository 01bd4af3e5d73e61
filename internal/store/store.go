// Package store is the on-device history cache. Trips, transactions and the
// profile fetched from the backend are mirrored into a local SQLite database
// so the history screens render without network.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gobangladesh/bustrack/internal/api"
)

//go:embed schema.sql
var schemaSQL embed.FS

// Store wraps the cache database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the cache database with WAL mode enabled
// and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	dsn := path + "?_journal=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// The cache is single-app local storage; one writer is plenty.
	db.SetMaxOpenConns(1)

	schema, err := schemaSQL.ReadFile("schema.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTrips upserts a batch of trips into the cache.
func (s *Store) SaveTrips(ctx context.Context, trips []api.Trip) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trips (trip_id, bus_number, route_name, start_time, end_time, fare, distance_km, boarding, alighting, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trip_id) DO UPDATE SET
			bus_number = excluded.bus_number,
			route_name = excluded.route_name,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			fare = excluded.fare,
			distance_km = excluded.distance_km,
			boarding = excluded.boarding,
			alighting = excluded.alighting,
			cached_at = excluded.cached_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare trip upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, t := range trips {
		if _, err := stmt.ExecContext(ctx,
			t.TripID, t.BusNumber, t.RouteName, t.StartTime, t.EndTime,
			t.Fare, t.DistanceKm, t.BoardingAt, t.AlightingAt, now,
		); err != nil {
			return fmt.Errorf("failed to upsert trip %s: %w", t.TripID, err)
		}
	}
	return tx.Commit()
}

// Trips returns cached trips newest first.
func (s *Store) Trips(ctx context.Context, limit, offset int) ([]api.Trip, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trip_id, bus_number, route_name, start_time, end_time, fare, distance_km, boarding, alighting
		FROM trips ORDER BY start_time DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips: %w", err)
	}
	defer rows.Close()

	var trips []api.Trip
	for rows.Next() {
		var t api.Trip
		if err := rows.Scan(&t.TripID, &t.BusNumber, &t.RouteName, &t.StartTime, &t.EndTime,
			&t.Fare, &t.DistanceKm, &t.BoardingAt, &t.AlightingAt); err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

// SaveTransactions upserts a batch of card transactions.
func (s *Store) SaveTransactions(ctx context.Context, txs []api.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (transaction_id, type, amount, created_at, description, cached_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(transaction_id) DO UPDATE SET
			type = excluded.type,
			amount = excluded.amount,
			created_at = excluded.created_at,
			description = excluded.description,
			cached_at = excluded.cached_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare transaction upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, t := range txs {
		if _, err := stmt.ExecContext(ctx,
			t.TransactionID, t.Type, t.Amount, t.CreatedAt, t.Description, now,
		); err != nil {
			return fmt.Errorf("failed to upsert transaction %s: %w", t.TransactionID, err)
		}
	}
	return tx.Commit()
}

// Transactions returns cached transactions newest first.
func (s *Store) Transactions(ctx context.Context, limit, offset int) ([]api.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, type, amount, created_at, description
		FROM transactions ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []api.Transaction
	for rows.Next() {
		var t api.Transaction
		if err := rows.Scan(&t.TransactionID, &t.Type, &t.Amount, &t.CreatedAt, &t.Description); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// SaveProfile caches the passenger profile. The cache keeps one profile per
// user id.
func (s *Store) SaveProfile(ctx context.Context, p *api.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile (user_id, name, phone, email, gender, address, balance, card_number, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			email = excluded.email,
			gender = excluded.gender,
			address = excluded.address,
			balance = excluded.balance,
			card_number = excluded.card_number,
			cached_at = excluded.cached_at`,
		p.UserID, p.Name, p.Phone, p.Email, p.Gender, p.Address, p.Balance, p.CardNumber, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// Profile returns the cached profile for a user, or sql.ErrNoRows wrapped
// when nothing is cached.
func (s *Store) Profile(ctx context.Context, userID string) (*api.Profile, error) {
	var p api.Profile
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, name, phone, email, gender, address, balance, card_number
		FROM profile WHERE user_id = ?`, userID).
		Scan(&p.UserID, &p.Name, &p.Phone, &p.Email, &p.Gender, &p.Address, &p.Balance, &p.CardNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to load cached profile: %w", err)
	}
	return &p, nil
}

// Prune deletes cache entries older than maxAge so the file does not grow
// without bound.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) error {
	cutoff := time.Now().UTC().Add(-maxAge)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM trips WHERE cached_at < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to prune trips: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE cached_at < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to prune transactions: %w", err)
	}
	return nil
}
