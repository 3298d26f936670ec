package conversation

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/wolfman30/whatsapp-concierge/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// DefaultHistoryLimit is the number of history entries kept per conversation.
const DefaultHistoryLimit = 12

var storeTracer = otel.Tracer("whatsapp.internal.conversation.store")

// Store holds per-conversation state and a bounded history window.
type Store interface {
	LoadState(ctx context.Context, key Key) (State, error)
	SaveState(ctx context.Context, key Key, state State) error
	LoadHistory(ctx context.Context, key Key) ([]ChatMessage, error)
	AppendHistory(ctx context.Context, key Key, entries ...ChatMessage) error
}

// MemoryStore keeps conversations in process memory. Values are copied on
// the way in and out so callers never share slices or drafts.
type MemoryStore struct {
	mu      sync.RWMutex
	limit   int
	states  map[Key]State
	history map[Key][]ChatMessage
}

// NewMemoryStore returns an empty store keeping at most historyLimit entries
// per conversation.
func NewMemoryStore(historyLimit int) *MemoryStore {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &MemoryStore{
		limit:   historyLimit,
		states:  make(map[Key]State),
		history: make(map[Key][]ChatMessage),
	}
}

// LoadState returns the stored state, or the zero state for new conversations.
func (s *MemoryStore) LoadState(_ context.Context, key Key) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.states[key].clone(), nil
}

func (s *MemoryStore) SaveState(_ context.Context, key Key, state State) error {
	s.mu.Lock()
	s.states[key] = state.clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LoadHistory(_ context.Context, key Key) ([]ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ChatMessage(nil), s.history[key]...), nil
}

func (s *MemoryStore) AppendHistory(_ context.Context, key Key, entries ...ChatMessage) error {
	s.mu.Lock()
	s.history[key] = trimHistory(append(append([]ChatMessage(nil), s.history[key]...), entries...), s.limit)
	s.mu.Unlock()
	return nil
}

// ReplaceHistory overwrites the window for key, trimming to the limit.
func (s *MemoryStore) ReplaceHistory(key Key, entries []ChatMessage) {
	s.mu.Lock()
	s.history[key] = trimHistory(append([]ChatMessage(nil), entries...), s.limit)
	s.mu.Unlock()
}

// Limit returns the history window size.
func (s *MemoryStore) Limit() int {
	return s.limit
}

func trimHistory(entries []ChatMessage, limit int) []ChatMessage {
	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:]
	}
	return entries
}

// Backend is a durable conversation store. The found flags distinguish a
// missing record from an empty one.
type Backend interface {
	Name() string
	LoadState(ctx context.Context, key Key) (State, bool, error)
	SaveState(ctx context.Context, key Key, state State) error
	LoadHistory(ctx context.Context, key Key) ([]ChatMessage, bool, error)
	SaveHistory(ctx context.Context, key Key, entries []ChatMessage) error
}

// CachedStore layers a durable Backend under a MemoryStore. Reads go to the
// backend first and refresh memory; writes land in memory and then in the
// backend. Backend failures are logged and counted, and the memory view is
// used for that call.
type CachedStore struct {
	memory  *MemoryStore
	durable Backend
	timeout time.Duration
	logger  *logging.Logger
	metrics *metrics.ConversationMetrics
}

// CachedStoreOption customizes a CachedStore.
type CachedStoreOption func(*CachedStore)

// WithStoreTimeout bounds each backend call.
func WithStoreTimeout(d time.Duration) CachedStoreOption {
	return func(s *CachedStore) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithStoreMetrics records degradations.
func WithStoreMetrics(m *metrics.ConversationMetrics) CachedStoreOption {
	return func(s *CachedStore) {
		s.metrics = m
	}
}

// NewCachedStore composes memory and durable.
func NewCachedStore(memory *MemoryStore, durable Backend, logger *logging.Logger, opts ...CachedStoreOption) *CachedStore {
	if memory == nil {
		memory = NewMemoryStore(DefaultHistoryLimit)
	}
	if durable == nil {
		panic("conversation: durable backend cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &CachedStore{
		memory:  memory,
		durable: durable,
		timeout: 2 * time.Second,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CachedStore) LoadState(ctx context.Context, key Key) (State, error) {
	ctx, span := storeTracer.Start(ctx, "conversation.store.load_state")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	state, found, err := s.durable.LoadState(callCtx, key)
	if err != nil {
		span.RecordError(err)
		s.degraded("load_state", key, err)
		return s.memory.LoadState(ctx, key)
	}
	if !found {
		return s.memory.LoadState(ctx, key)
	}
	_ = s.memory.SaveState(ctx, key, state)
	return state.clone(), nil
}

func (s *CachedStore) SaveState(ctx context.Context, key Key, state State) error {
	ctx, span := storeTracer.Start(ctx, "conversation.store.save_state")
	defer span.End()

	_ = s.memory.SaveState(ctx, key, state)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.durable.SaveState(callCtx, key, state); err != nil {
		span.RecordError(err)
		s.degraded("save_state", key, err)
	}
	return nil
}

func (s *CachedStore) LoadHistory(ctx context.Context, key Key) ([]ChatMessage, error) {
	ctx, span := storeTracer.Start(ctx, "conversation.store.load_history")
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entries, found, err := s.durable.LoadHistory(callCtx, key)
	if err != nil {
		span.RecordError(err)
		s.degraded("load_history", key, err)
		return s.memory.LoadHistory(ctx, key)
	}
	if !found {
		return s.memory.LoadHistory(ctx, key)
	}
	s.memory.ReplaceHistory(key, entries)
	return s.memory.LoadHistory(ctx, key)
}

func (s *CachedStore) AppendHistory(ctx context.Context, key Key, entries ...ChatMessage) error {
	ctx, span := storeTracer.Start(ctx, "conversation.store.append_history")
	defer span.End()

	current, _ := s.LoadHistory(ctx, key)
	s.memory.ReplaceHistory(key, append(current, entries...))
	window, _ := s.memory.LoadHistory(ctx, key)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.durable.SaveHistory(callCtx, key, window); err != nil {
		span.RecordError(err)
		s.degraded("save_history", key, err)
	}
	return nil
}

func (s *CachedStore) degraded(op string, key Key, err error) {
	s.metrics.ObserveStoreDegraded(s.durable.Name(), op)
	s.logger.Warn("durable store unavailable, using memory view",
		"backend", s.durable.Name(),
		"op", op,
		"tenant_id", key.TenantID,
		"counterparty", key.Counterparty,
		"error", err,
	)
}
