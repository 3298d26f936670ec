package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresBackend persists conversations in the contacts,
// conversation_state and conversation_history tables, keyed by
// wa_id = "tenant:counterparty".
type PostgresBackend struct {
	db rowQuerier
}

func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	if pool == nil {
		panic("conversation: pgx pool cannot be nil")
	}
	return &PostgresBackend{db: pool}
}

func newPostgresBackendWithExec(db rowQuerier) *PostgresBackend {
	if db == nil {
		panic("conversation: exec required")
	}
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) Name() string { return "postgres" }

func (b *PostgresBackend) LoadState(ctx context.Context, key Key) (State, bool, error) {
	var raw []byte
	err := b.db.QueryRow(ctx, `SELECT state FROM conversation_state WHERE wa_id = $1`, key.String()).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("conversation: load state: %w", err)
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return State{}, false, fmt.Errorf("conversation: decode state: %w", err)
	}
	return state, true, nil
}

func (b *PostgresBackend) SaveState(ctx context.Context, key Key, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("conversation: encode state: %w", err)
	}
	if err := b.touchContact(ctx, key); err != nil {
		return err
	}
	if _, err := b.db.Exec(ctx, `
		INSERT INTO conversation_state (wa_id, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (wa_id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()
	`, key.String(), data); err != nil {
		return fmt.Errorf("conversation: save state: %w", err)
	}
	return nil
}

func (b *PostgresBackend) LoadHistory(ctx context.Context, key Key) ([]ChatMessage, bool, error) {
	var raw []byte
	err := b.db.QueryRow(ctx, `SELECT history FROM conversation_history WHERE wa_id = $1`, key.String()).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("conversation: load history: %w", err)
	}
	var history []ChatMessage
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, false, fmt.Errorf("conversation: decode history: %w", err)
	}
	return history, true, nil
}

func (b *PostgresBackend) SaveHistory(ctx context.Context, key Key, entries []ChatMessage) error {
	if entries == nil {
		entries = []ChatMessage{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("conversation: encode history: %w", err)
	}
	if _, err := b.db.Exec(ctx, `
		INSERT INTO conversation_history (wa_id, history, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (wa_id) DO UPDATE SET history = EXCLUDED.history, updated_at = now()
	`, key.String(), data); err != nil {
		return fmt.Errorf("conversation: save history: %w", err)
	}
	return nil
}

func (b *PostgresBackend) touchContact(ctx context.Context, key Key) error {
	if _, err := b.db.Exec(ctx, `
		INSERT INTO contacts (wa_id, last_seen_at)
		VALUES ($1, now())
		ON CONFLICT (wa_id) DO UPDATE SET last_seen_at = now()
	`, key.String()); err != nil {
		return fmt.Errorf("conversation: upsert contact: %w", err)
	}
	return nil
}
