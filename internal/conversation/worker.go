package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// MessageHandler processes one inbound event.
type MessageHandler interface {
	HandleInboundMessage(ctx context.Context, evt InboundEvent)
}

const (
	defaultPollers    = 2
	defaultPollWait   = 2
	defaultPollBatch  = 5
	deleteTimeout     = 5 * time.Second
	minReceiveBackoff = time.Second
	maxReceiveBackoff = 8 * time.Second
)

type workerConfig struct {
	pollers int
	wait    int
	batch   int
}

// WorkerOption customizes a Worker.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets how many goroutines poll the queue.
func WithWorkerCount(n int) WorkerOption {
	return func(c *workerConfig) {
		if n > 0 {
			c.pollers = n
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait, capped at the SQS maximum.
func WithReceiveWaitSeconds(s int) WorkerOption {
	return func(c *workerConfig) {
		if s >= 0 {
			c.wait = clamp(s, 0, sqsMaxWait)
		}
	}
}

// WithReceiveBatchSize sets how many messages one poll may return.
func WithReceiveBatchSize(n int) WorkerOption {
	return func(c *workerConfig) {
		if n > 0 {
			c.batch = clamp(n, 1, sqsMaxBatch)
		}
	}
}

// Worker drains a Queue into a MessageHandler. Messages of one batch that
// belong to different conversations run concurrently; messages of the same
// conversation run one after another in receive order.
type Worker struct {
	handler MessageHandler
	queue   Queue
	logger  *logging.Logger
	cfg     workerConfig
	wg      sync.WaitGroup
}

func NewWorker(handler MessageHandler, queue Queue, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if handler == nil {
		panic("conversation: message handler cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	cfg := workerConfig{pollers: defaultPollers, wait: defaultPollWait, batch: defaultPollBatch}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{handler: handler, queue: queue, logger: logger, cfg: cfg}
}

// Start launches the pollers. They stop when ctx is cancelled; turns already
// handed to the handler still run to completion.
func (w *Worker) Start(ctx context.Context) {
	for i := 1; i <= w.cfg.pollers; i++ {
		w.wg.Add(1)
		go w.poll(ctx, w.logger.With("worker_id", i))
	}
}

// Wait blocks until every poller and in-flight turn has returned.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) poll(ctx context.Context, log *logging.Logger) {
	defer w.wg.Done()
	log.Debug("conversation worker started")
	defer log.Debug("conversation worker stopped")

	backoff := minReceiveBackoff
	for ctx.Err() == nil {
		batch, err := w.queue.Receive(ctx, w.cfg.batch, w.cfg.wait)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return
		case err != nil:
			log.Error("queue receive failed", "error", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxReceiveBackoff)
			continue
		}
		backoff = minReceiveBackoff
		w.dispatch(context.WithoutCancel(ctx), batch)
	}
}

// dispatch fans a batch out by conversation. Detached from the poller's ctx
// so shutdown never cuts a turn between state save and send.
func (w *Worker) dispatch(ctx context.Context, batch []QueueMessage) {
	lanes := make(map[string][]QueueMessage)
	var order []string
	for _, msg := range batch {
		lane := w.laneFor(msg)
		if _, seen := lanes[lane]; !seen {
			order = append(order, lane)
		}
		lanes[lane] = append(lanes[lane], msg)
	}
	for _, lane := range order {
		msgs := lanes[lane]
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for _, msg := range msgs {
				w.process(ctx, msg)
			}
		}()
	}
}

func (w *Worker) laneFor(msg QueueMessage) string {
	payload, err := decodePayload(msg.Body)
	if err != nil {
		return "msg:" + msg.ID
	}
	return payload.Event.RoutingKey + "|" + NormalizeBR(payload.Event.From)
}

func (w *Worker) process(ctx context.Context, msg QueueMessage) {
	payload, err := decodePayload(msg.Body)
	if err != nil {
		w.logger.Error("dropping undecodable queue message", "error", err, "msg_id", msg.ID)
	} else {
		w.handler.HandleInboundMessage(ctx, payload.Event)
	}
	w.ack(ctx, msg.ReceiptHandle)
}

func (w *Worker) ack(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, deleteTimeout)
	defer cancel()
	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("queue delete failed", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
