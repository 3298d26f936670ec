package conversation

import "sync"

// DefaultLedgerCapacity is the number of message ids remembered before the
// ledger is cleared.
const DefaultLedgerCapacity = 5000

// Ledger remembers processed message ids. When it grows past its capacity
// the whole set is dropped and rebuilt from empty.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	ids      map[string]struct{}
	onReset  func()
}

// NewLedger returns a ledger holding at most capacity ids.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	return &Ledger{
		capacity: capacity,
		ids:      make(map[string]struct{}, capacity),
	}
}

// Seen reports whether id was already recorded, recording it otherwise.
// Empty ids are never recorded.
func (l *Ledger) Seen(id string) bool {
	if id == "" {
		return false
	}
	l.mu.Lock()
	if _, ok := l.ids[id]; ok {
		l.mu.Unlock()
		return true
	}
	l.ids[id] = struct{}{}
	reset := len(l.ids) > l.capacity
	if reset {
		l.ids = make(map[string]struct{}, l.capacity)
	}
	hook := l.onReset
	l.mu.Unlock()

	if reset && hook != nil {
		hook()
	}
	return false
}

// Len returns the number of ids currently remembered.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}

// OnReset registers a callback invoked after each capacity reset.
func (l *Ledger) OnReset(fn func()) {
	l.mu.Lock()
	l.onReset = fn
	l.mu.Unlock()
}
