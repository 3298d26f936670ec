package conversation

import (
	"context"

	"github.com/aws/aws-lambda-go/events"

	"github.com/wolfman30/whatsapp-concierge/pkg/logging"
)

// HandleSQSEvent runs every record of an SQS-triggered Lambda invocation
// through handler. Undecodable records are logged and skipped so one bad
// record does not force redelivery of the whole batch.
func HandleSQSEvent(ctx context.Context, handler MessageHandler, logger *logging.Logger, evt events.SQSEvent) error {
	if logger == nil {
		logger = logging.Default()
	}
	for _, record := range evt.Records {
		payload, err := decodePayload(record.Body)
		if err != nil {
			logger.Error("dropping undecodable sqs record", "error", err, "sqs_message_id", record.MessageId)
			continue
		}
		handler.HandleInboundMessage(ctx, payload.Event)
	}
	return nil
}
