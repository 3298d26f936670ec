package conversation

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const defaultMemoryQueueSize = 256

// MemoryQueue is the single-process Queue: webhook and worker share one
// binary and one bounded channel. Received messages stay in flight until
// deleted, which lets shutdown report turns that never finished.
type MemoryQueue struct {
	pending chan QueueMessage
	seq     atomic.Uint64

	mu       sync.Mutex
	inFlight map[string]string // receipt handle -> message id
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = defaultMemoryQueueSize
	}
	return &MemoryQueue{
		pending:  make(chan QueueMessage, size),
		inFlight: make(map[string]string),
	}
}

// Send blocks while the queue is full.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	n := strconv.FormatUint(q.seq.Add(1), 10)
	msg := QueueMessage{ID: "mem-" + n, Body: body, ReceiptHandle: "rh-" + n}
	select {
	case q.pending <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits for the first message (up to waitSeconds, or forever when
// waitSeconds <= 0) and then takes whatever else is already buffered.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error) {
	maxMessages = max(maxMessages, 1)

	var expired <-chan time.Time
	if waitSeconds > 0 {
		t := time.NewTimer(time.Duration(waitSeconds) * time.Second)
		defer t.Stop()
		expired = t.C
	}

	var batch []QueueMessage
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, nil
	case msg := <-q.pending:
		batch = append(batch, msg)
	}
drain:
	for len(batch) < maxMessages {
		select {
		case msg := <-q.pending:
			batch = append(batch, msg)
		default:
			break drain
		}
	}

	q.mu.Lock()
	for _, m := range batch {
		q.inFlight[m.ReceiptHandle] = m.ID
	}
	q.mu.Unlock()
	return batch, nil
}

// Delete acknowledges a received message.
func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	delete(q.inFlight, receiptHandle)
	q.mu.Unlock()
	return nil
}

// Len reports messages waiting to be received.
func (q *MemoryQueue) Len() int {
	return len(q.pending)
}

// InFlight reports messages received but not yet deleted.
func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}
