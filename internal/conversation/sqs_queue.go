package conversation

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// SQS hard limits.
const (
	sqsMaxBatch    = 10
	sqsMaxWait     = 20
	sqsMaxDedupeID = 128
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue is the Queue used when webhook and workers run as separate
// processes. On a FIFO queue every conversation gets its own message group,
// so turns from one sender are never processed out of order.
type SQSQueue struct {
	api  sqsAPI
	url  string
	fifo bool
}

func NewSQSQueue(api sqsAPI, queueURL string) *SQSQueue {
	switch {
	case api == nil:
		panic("conversation: SQS client cannot be nil")
	case queueURL == "":
		panic("conversation: SQS queueURL cannot be empty")
	}
	return &SQSQueue{api: api, url: queueURL, fifo: strings.HasSuffix(queueURL, ".fifo")}
}

func (q *SQSQueue) Send(ctx context.Context, body string) error {
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.url),
		MessageBody: aws.String(body),
	}
	if q.fifo {
		group, dedupe := fifoKeys(body)
		in.MessageGroupId = aws.String(group)
		in.MessageDeduplicationId = aws.String(dedupe)
	}
	if _, err := q.api.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("conversation: sqs send: %w", err)
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error) {
	out, err := q.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.url),
		MaxNumberOfMessages: int32(clamp(maxMessages, 1, sqsMaxBatch)),
		WaitTimeSeconds:     int32(clamp(waitSeconds, 0, sqsMaxWait)),
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: sqs receive: %w", err)
	}
	return fromSQS(out.Messages), nil
}

func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	if receiptHandle == "" {
		return nil
	}
	if _, err := q.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.url),
		ReceiptHandle: aws.String(receiptHandle),
	}); err != nil {
		return fmt.Errorf("conversation: sqs delete: %w", err)
	}
	return nil
}

func fromSQS(in []sqstypes.Message) []QueueMessage {
	out := make([]QueueMessage, len(in))
	for i, m := range in {
		out[i] = QueueMessage{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
		}
	}
	return out
}

// fifoKeys derives the message group (tenant routing key plus normalized
// sender) and deduplication id from an encoded payload. Redeliveries of one
// platform message id collapse; the job id and a body hash are the fallbacks.
// Undecodable bodies share one group.
func fifoKeys(body string) (group, dedupe string) {
	payload, err := decodePayload(body)
	if err != nil {
		return "undecodable", hashKey(body)
	}
	group = payload.Event.RoutingKey + ":" + NormalizeBR(payload.Event.From)
	if group == ":" {
		group = "unrouted"
	}
	dedupe = cmp.Or(payload.Event.MessageID, payload.ID)
	if dedupe == "" {
		return group, hashKey(body)
	}
	// SQS caps the id at 128 characters.
	if len(dedupe) > sqsMaxDedupeID {
		dedupe = hashKey(dedupe)
	}
	return group, dedupe
}

func hashKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
