// internal/storage/cart_repo.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cartbackend/internal/cart"
)

// One row per cart session, whole state as a JSON blob. The cart is not
// versioned: the last write wins, which is the defined consistency guarantee
// when several tabs share a session.
const cartTableSchema = `
    CREATE TABLE IF NOT EXISTS carts (
        session_id TEXT PRIMARY KEY,
        state_json TEXT NOT NULL DEFAULT '{}',
        updated_at TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_carts_updated_at ON carts(updated_at);`

// CreateTables sets up the cart schema.
func CreateTables() error {
	conn, err := GetDB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	if _, err := conn.ExecContext(ctx, cartTableSchema); err != nil {
		return fmt.Errorf("failed to create carts table: %w", err)
	}
	return nil
}

// LoadCart returns the saved state for a session, or nil when the session
// has no saved cart yet.
func LoadCart(sessionID string) (*cart.State, error) {
	conn, err := GetDB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var stateJSON string
	row := conn.QueryRowContext(ctx,
		`SELECT state_json FROM carts WHERE session_id = ?`, sessionID)
	if err := row.Scan(&stateJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load cart %s: %w", sessionID, err)
	}

	var state cart.State
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("failed to parse cart %s: %w", sessionID, err)
	}
	return &state, nil
}

// SaveCart upserts the full cart state for a session.
func SaveCart(sessionID string, state cart.State) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize cart %s: %w", sessionID, err)
	}

	_, err = ExecDB(`
        INSERT INTO carts (session_id, state_json, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(session_id) DO UPDATE SET
            state_json = excluded.state_json,
            updated_at = excluded.updated_at`,
		sessionID, string(stateJSON), time.Now().UTC().Format(TimeFormat))
	if err != nil {
		return fmt.Errorf("failed to save cart %s: %w", sessionID, err)
	}
	return nil
}

// DeleteCart removes a session's cart row entirely.
func DeleteCart(sessionID string) error {
	if _, err := ExecDB(`DELETE FROM carts WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete cart %s: %w", sessionID, err)
	}
	return nil
}

// PurgeStale deletes carts not touched since cutoff, bounded per run.
func PurgeStale(cutoff time.Time, limit int) (int, error) {
	result, err := ExecDB(`
        DELETE FROM carts
        WHERE session_id IN (
            SELECT session_id FROM carts
            WHERE updated_at < ?
            LIMIT ?
        )`, cutoff.UTC().Format(TimeFormat), limit)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rowsAffected), nil
}

// CartStats reports row count and the oldest update time for monitoring.
func CartStats() (count int, oldest *time.Time, err error) {
	conn, err := GetDB()
	if err != nil {
		return 0, nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	var oldestText sql.NullString
	row := conn.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(updated_at) FROM carts`)
	if err := row.Scan(&count, &oldestText); err != nil {
		return 0, nil, fmt.Errorf("failed to read cart stats: %w", err)
	}

	if oldestText.Valid {
		if t, parseErr := time.Parse(TimeFormat, oldestText.String); parseErr == nil {
			oldest = &t
		}
	}
	return count, oldest, nil
}

// CartPersister adapts the carts table to the cart.Persister interface for
// one session, so the store stays free of any storage dependency.
type CartPersister struct {
	SessionID string
}

func (p CartPersister) Load() (*cart.State, error) {
	return LoadCart(p.SessionID)
}

func (p CartPersister) Save(state cart.State) error {
	return SaveCart(p.SessionID, state)
}
