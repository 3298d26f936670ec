package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores state and history as JSON blobs. Keys never expire.
type RedisBackend struct {
	redis *redis.Client
}

func NewRedisBackend(client *redis.Client) *RedisBackend {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	return &RedisBackend{redis: client}
}

func (b *RedisBackend) Name() string { return "redis" }

func (b *RedisBackend) LoadState(ctx context.Context, key Key) (State, bool, error) {
	var state State
	found, err := b.getJSON(ctx, stateKey(key), &state)
	if err != nil {
		return State{}, false, fmt.Errorf("conversation: failed to load state: %w", err)
	}
	return state, found, nil
}

func (b *RedisBackend) SaveState(ctx context.Context, key Key, state State) error {
	if err := b.setJSON(ctx, stateKey(key), state); err != nil {
		return fmt.Errorf("conversation: failed to persist state: %w", err)
	}
	return nil
}

func (b *RedisBackend) LoadHistory(ctx context.Context, key Key) ([]ChatMessage, bool, error) {
	var history []ChatMessage
	found, err := b.getJSON(ctx, historyKey(key), &history)
	if err != nil {
		return nil, false, fmt.Errorf("conversation: failed to load history: %w", err)
	}
	return history, found, nil
}

func (b *RedisBackend) SaveHistory(ctx context.Context, key Key, entries []ChatMessage) error {
	if err := b.setJSON(ctx, historyKey(key), entries); err != nil {
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

func (b *RedisBackend) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := b.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (b *RedisBackend) setJSON(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return b.redis.Set(ctx, key, data, 0).Err()
}

func stateKey(key Key) string {
	return fmt.Sprintf("conversation:state:%s:%s", key.TenantID, key.Counterparty)
}

func historyKey(key Key) string {
	return fmt.Sprintf("conversation:history:%s:%s", key.TenantID, key.Counterparty)
}
