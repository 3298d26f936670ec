package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []InboundEvent
}

func (h *recordingHandler) HandleInboundMessage(_ context.Context, evt InboundEvent) {
	h.mu.Lock()
	h.events = append(h.events, evt)
	h.mu.Unlock()
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

type scriptedQueue struct {
	mu       sync.Mutex
	messages []QueueMessage
	deleted  []string
	sent     []string
}

func newScriptedQueue() *scriptedQueue {
	return &scriptedQueue{}
}

func (q *scriptedQueue) enqueue(msg QueueMessage) {
	q.mu.Lock()
	q.messages = append(q.messages, msg)
	q.mu.Unlock()
}

func (q *scriptedQueue) Send(_ context.Context, body string) error {
	q.mu.Lock()
	q.sent = append(q.sent, body)
	q.mu.Unlock()
	return nil
}

func (q *scriptedQueue) Receive(ctx context.Context, maxMessages int, _ int) ([]QueueMessage, error) {
	q.mu.Lock()
	if len(q.messages) > 0 {
		n := maxMessages
		if n > len(q.messages) {
			n = len(q.messages)
		}
		out := append([]QueueMessage(nil), q.messages[:n]...)
		q.messages = q.messages[n:]
		q.mu.Unlock()
		return out, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Millisecond):
		return nil, nil
	}
}

func (q *scriptedQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	q.deleted = append(q.deleted, receiptHandle)
	q.mu.Unlock()
	return nil
}

func (q *scriptedQueue) deletedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.deleted)
}

func encodedEvent(t *testing.T, evt InboundEvent) string {
	t.Helper()
	_, body, err := encodePayload(queuePayload{Event: evt})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return body
}

func TestWorkerProcessesMessages(t *testing.T) {
	queue := newScriptedQueue()
	handler := &recordingHandler{}
	worker := NewWorker(handler, queue, logging.Default(), WithWorkerCount(1), WithReceiveBatchSize(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	queue.enqueue(QueueMessage{
		ID:            "msg-1",
		Body:          encodedEvent(t, InboundEvent{RoutingKey: "pn-1", MessageID: "wamid.1", From: "5511987654321", Type: MessageTypeText, Text: "oi"}),
		ReceiptHandle: "rh-1",
	})

	waitFor(func() bool { return queue.deletedCount() == 1 }, time.Second, t)
	cancel()
	worker.Wait()

	if handler.count() != 1 {
		t.Fatalf("expected 1 handled event, got %d", handler.count())
	}
	if got := handler.events[0]; got.MessageID != "wamid.1" || got.Text != "oi" || got.RoutingKey != "pn-1" {
		t.Fatalf("unexpected event: %#v", got)
	}
}

func TestWorkerDropsUndecodableMessages(t *testing.T) {
	queue := newScriptedQueue()
	handler := &recordingHandler{}
	worker := NewWorker(handler, queue, logging.Default(), WithWorkerCount(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	queue.enqueue(QueueMessage{ID: "bad-1", Body: "{not json", ReceiptHandle: "rh-bad"})
	queue.enqueue(QueueMessage{ID: "bad-2", Body: `{"id":"x","kind":"voice.v1"}`, ReceiptHandle: "rh-kind"})

	waitFor(func() bool { return queue.deletedCount() == 2 }, time.Second, t)
	cancel()
	worker.Wait()

	if handler.count() != 0 {
		t.Fatalf("expected no handled events, got %d", handler.count())
	}
}

func TestWorkerHandlesBatchConcurrently(t *testing.T) {
	queue := newScriptedQueue()
	release := make(chan struct{})
	handler := &blockingHandler{release: release}
	worker := NewWorker(handler, queue, logging.Default(), WithWorkerCount(1), WithReceiveBatchSize(10), WithReceiveWaitSeconds(0))

	for i := 0; i < 3; i++ {
		queue.enqueue(QueueMessage{
			ID:            "m",
			Body:          encodedEvent(t, InboundEvent{MessageID: "wamid.b" + string(rune('0'+i)), From: "551198765432" + string(rune('0'+i)), Type: MessageTypeText}),
			ReceiptHandle: "rh",
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	// Three senders, so all three turns are in flight at once.
	waitFor(func() bool { return handler.inFlight() == 3 }, time.Second, t)
	close(release)
	cancel()
	worker.Wait()

	if queue.deletedCount() != 3 {
		t.Fatalf("expected 3 deletes, got %d", queue.deletedCount())
	}
}

func TestWorkerSerializesOneConversation(t *testing.T) {
	queue := newScriptedQueue()
	handler := &recordingHandler{}
	worker := NewWorker(handler, queue, logging.Default(), WithWorkerCount(1), WithReceiveBatchSize(10), WithReceiveWaitSeconds(0))

	for _, id := range []string{"wamid.1", "wamid.2", "wamid.3", "wamid.4"} {
		queue.enqueue(QueueMessage{
			ID:            id,
			Body:          encodedEvent(t, InboundEvent{RoutingKey: "pn-barber", MessageID: id, From: "5511987654321", Type: MessageTypeText}),
			ReceiptHandle: "rh-" + id,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	waitFor(func() bool { return handler.count() == 4 }, time.Second, t)
	cancel()
	worker.Wait()

	handler.mu.Lock()
	defer handler.mu.Unlock()
	for i, evt := range handler.events {
		if want := "wamid." + string(rune('1'+i)); evt.MessageID != want {
			t.Fatalf("turn %d: expected %s, got %s", i, want, evt.MessageID)
		}
	}
}

func TestWorkerSerializesLegacyAndModernSenderForms(t *testing.T) {
	queue := newScriptedQueue()
	handler := &overlapHandler{hold: 20 * time.Millisecond}
	worker := NewWorker(handler, queue, logging.Default(), WithWorkerCount(1), WithReceiveBatchSize(10), WithReceiveWaitSeconds(0))

	// Both ids normalize to 5511987654321.
	for i, from := range []string{"551187654321", "5511987654321", "551187654321"} {
		id := "wamid.form" + string(rune('0'+i))
		queue.enqueue(QueueMessage{
			ID:            id,
			Body:          encodedEvent(t, InboundEvent{RoutingKey: "pn-barber", MessageID: id, From: from, Type: MessageTypeText}),
			ReceiptHandle: "rh-" + id,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	waitFor(func() bool { return handler.done() == 3 }, time.Second, t)
	cancel()
	worker.Wait()

	if peak := handler.maxActive(); peak != 1 {
		t.Fatalf("expected one turn at a time for one conversation, peak was %d", peak)
	}
}

type overlapHandler struct {
	mu       sync.Mutex
	hold     time.Duration
	active   int
	peak     int
	finished int
}

func (h *overlapHandler) HandleInboundMessage(_ context.Context, _ InboundEvent) {
	h.mu.Lock()
	h.active++
	h.peak = max(h.peak, h.active)
	h.mu.Unlock()

	time.Sleep(h.hold)

	h.mu.Lock()
	h.active--
	h.finished++
	h.mu.Unlock()
}

func (h *overlapHandler) done() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finished
}

func (h *overlapHandler) maxActive() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peak
}

type blockingHandler struct {
	mu      sync.Mutex
	started int
	release chan struct{}
}

func (h *blockingHandler) HandleInboundMessage(ctx context.Context, _ InboundEvent) {
	h.mu.Lock()
	h.started++
	h.mu.Unlock()
	select {
	case <-h.release:
	case <-ctx.Done():
	}
}

func (h *blockingHandler) inFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

func TestMemoryQueueRoundTrip(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()
	for _, body := range []string{"a", "b", "c"} {
		if err := q.Send(ctx, body); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("expected 3 queued, got %d", q.Len())
	}

	msgs, err := q.Receive(ctx, 2, 1)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "a" || msgs[1].Body != "b" {
		t.Fatalf("unexpected batch: %#v", msgs)
	}
	if msgs[0].ReceiptHandle == "" {
		t.Fatalf("expected receipt handle")
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 remaining, got %d", q.Len())
	}
	if q.InFlight() != 2 {
		t.Fatalf("expected 2 in flight, got %d", q.InFlight())
	}
	_ = q.Delete(ctx, msgs[0].ReceiptHandle)
	if q.InFlight() != 1 {
		t.Fatalf("expected delete to ack, got %d in flight", q.InFlight())
	}
}

func TestMemoryQueueReceiveHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Receive(ctx, 1, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	full := NewMemoryQueue(1)
	_ = full.Send(context.Background(), "x")
	sendCtx, cancelSend := context.WithCancel(context.Background())
	cancelSend()
	if err := full.Send(sendCtx, "y"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled send on full queue, got %v", err)
	}
}

func TestMemoryQueueFeedsWorker(t *testing.T) {
	q := NewMemoryQueue(8)
	handler := &recordingHandler{}
	publisher := NewPublisher(q, logging.Default())
	worker := NewWorker(handler, q, logging.Default(), WithWorkerCount(2), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	for i := 0; i < 5; i++ {
		if err := publisher.Publish(ctx, InboundEvent{MessageID: "wamid.p" + string(rune('0'+i)), Type: MessageTypeText}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	waitFor(func() bool { return handler.count() == 5 }, 2*time.Second, t)
	cancel()
	worker.Wait()
	if q.InFlight() != 0 {
		t.Fatalf("worker must ack every message, %d in flight", q.InFlight())
	}
}

func TestPublisherEncodesInboundPayload(t *testing.T) {
	queue := newScriptedQueue()
	publisher := NewPublisher(queue, logging.Default())

	evt := InboundEvent{RoutingKey: "pn-1", MessageID: "wamid.1", From: "5511987654321", Type: MessageTypeText, Text: "oi"}
	if err := publisher.Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(queue.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(queue.sent))
	}

	var payload queuePayload
	if err := json.Unmarshal([]byte(queue.sent[0]), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Kind != payloadKindInbound || payload.ID == "" {
		t.Fatalf("unexpected envelope: %#v", payload)
	}
	if payload.Event.MessageID != "wamid.1" || payload.Event.RoutingKey != "pn-1" {
		t.Fatalf("unexpected event: %#v", payload.Event)
	}
}

type failingQueue struct{ scriptedQueue }

func (q *failingQueue) Send(context.Context, string) error { return errors.New("queue unavailable") }

func TestPublisherWrapsSendErrors(t *testing.T) {
	publisher := NewPublisher(&failingQueue{}, logging.Default())
	if err := publisher.Publish(context.Background(), InboundEvent{MessageID: "x"}); err == nil {
		t.Fatalf("expected error")
	}
}

type stubSQS struct {
	sent     []*sqs.SendMessageInput
	received []sqstypes.Message
	deleted  []string
}

func (s *stubSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	s.sent = append(s.sent, in)
	return &sqs.SendMessageOutput{}, nil
}

func (s *stubSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{Messages: s.received}, nil
}

func (s *stubSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	s.deleted = append(s.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue(t *testing.T) {
	client := &stubSQS{received: []sqstypes.Message{{
		MessageId:     aws.String("sqs-1"),
		Body:          aws.String("body"),
		ReceiptHandle: aws.String("rh-1"),
	}}}
	q := NewSQSQueue(client, "https://sqs.local/queue")
	ctx := context.Background()

	if err := q.Send(ctx, "payload"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if aws.ToString(client.sent[0].QueueUrl) != "https://sqs.local/queue" || aws.ToString(client.sent[0].MessageBody) != "payload" {
		t.Fatalf("unexpected send input: %#v", client.sent[0])
	}

	msgs, err := q.Receive(ctx, 10, 20)
	if err != nil || len(msgs) != 1 || msgs[0].ReceiptHandle != "rh-1" {
		t.Fatalf("unexpected receive: %#v %v", msgs, err)
	}

	if err := q.Delete(ctx, ""); err != nil || len(client.deleted) != 0 {
		t.Fatalf("empty receipt handle must be ignored")
	}
	if err := q.Delete(ctx, "rh-1"); err != nil || len(client.deleted) != 1 {
		t.Fatalf("expected delete call")
	}
}

func TestHandleSQSEventSkipsBadRecords(t *testing.T) {
	handler := &recordingHandler{}
	evt := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "1", Body: encodedEvent(t, InboundEvent{MessageID: "wamid.1", Type: MessageTypeText, Text: "oi"})},
		{MessageId: "2", Body: "garbage"},
		{MessageId: "3", Body: encodedEvent(t, InboundEvent{MessageID: "wamid.3", Type: MessageTypeText, Text: "menu"})},
	}}

	if err := HandleSQSEvent(context.Background(), handler, logging.Default(), evt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handler.count() != 2 {
		t.Fatalf("expected 2 handled records, got %d", handler.count())
	}
}

func TestSQSQueueFIFOGroupsByConversation(t *testing.T) {
	client := &stubSQS{}
	q := NewSQSQueue(client, "https://sqs.local/inbound.fifo")
	ctx := context.Background()

	body := encodedEvent(t, InboundEvent{RoutingKey: "pn-barber", From: "5511987654321", MessageID: "wamid.1"})
	if err := q.Send(ctx, body); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := q.Send(ctx, "garbage"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if got := aws.ToString(client.sent[0].MessageGroupId); got != "pn-barber:5511987654321" {
		t.Fatalf("unexpected group %q", got)
	}
	if aws.ToString(client.sent[0].MessageDeduplicationId) == "" {
		t.Fatalf("expected deduplication id")
	}
	if got := aws.ToString(client.sent[1].MessageGroupId); got != "undecodable" {
		t.Fatalf("unexpected group for bad body %q", got)
	}
}

func TestFIFOKeysNormalizeSender(t *testing.T) {
	legacy, _ := fifoKeys(encodedEvent(t, InboundEvent{RoutingKey: "pn-barber", From: "551187654321", MessageID: "wamid.a"}))
	modern, _ := fifoKeys(encodedEvent(t, InboundEvent{RoutingKey: "pn-barber", From: "5511987654321", MessageID: "wamid.b"}))
	if legacy != modern || modern != "pn-barber:5511987654321" {
		t.Fatalf("expected one group for both sender forms, got %q and %q", legacy, modern)
	}
}

func TestFIFOKeysDedupeOnPlatformMessageID(t *testing.T) {
	evt := InboundEvent{RoutingKey: "pn-barber", From: "5511987654321", MessageID: "wamid.redelivered"}
	_, first, err := encodePayload(queuePayload{ID: "job-1", Event: evt})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, second, err := encodePayload(queuePayload{ID: "job-2", Event: evt})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	_, dedupeFirst := fifoKeys(first)
	_, dedupeSecond := fifoKeys(second)
	if dedupeFirst != "wamid.redelivered" || dedupeSecond != dedupeFirst {
		t.Fatalf("expected redeliveries to share a deduplication id, got %q and %q", dedupeFirst, dedupeSecond)
	}

	_, anonymous, err := encodePayload(queuePayload{ID: "job-3", Event: InboundEvent{RoutingKey: "pn-barber", From: "5511987654321"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, dedupe := fifoKeys(anonymous); dedupe != "job-3" {
		t.Fatalf("expected job id fallback, got %q", dedupe)
	}
}

func TestSQSQueueClampsReceive(t *testing.T) {
	var captured *sqs.ReceiveMessageInput
	client := &capturingSQS{stubSQS: &stubSQS{}, onReceive: func(in *sqs.ReceiveMessageInput) { captured = in }}
	q := NewSQSQueue(client, "https://sqs.local/queue")

	if _, err := q.Receive(context.Background(), 50, 90); err != nil {
		t.Fatalf("receive: %v", err)
	}
	if captured.MaxNumberOfMessages != 10 || captured.WaitTimeSeconds != 20 {
		t.Fatalf("expected clamped input, got %d/%d", captured.MaxNumberOfMessages, captured.WaitTimeSeconds)
	}
}

type capturingSQS struct {
	*stubSQS
	onReceive func(*sqs.ReceiveMessageInput)
}

func (c *capturingSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	c.onReceive(in)
	return c.stubSQS.ReceiveMessage(ctx, in, opts...)
}
