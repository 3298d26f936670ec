package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	dynamoStateSK   = "STATE"
	dynamoHistorySK = "HISTORY"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

type dynamoStateItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	State     State  `dynamodbav:"state"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}

type dynamoHistoryItem struct {
	PK        string        `dynamodbav:"PK"`
	SK        string        `dynamodbav:"SK"`
	History   []ChatMessage `dynamodbav:"history"`
	UpdatedAt string        `dynamodbav:"updatedAt"`
}

// DynamoBackend keeps each conversation in a single partition with one item
// for the state and one for the history window.
type DynamoBackend struct {
	client    dynamoAPI
	tableName string
}

func NewDynamoBackend(client dynamoAPI, tableName string) *DynamoBackend {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	return &DynamoBackend{client: client, tableName: tableName}
}

func (b *DynamoBackend) Name() string { return "dynamodb" }

func (b *DynamoBackend) LoadState(ctx context.Context, key Key) (State, bool, error) {
	var item dynamoStateItem
	found, err := b.get(ctx, key, dynamoStateSK, &item)
	if err != nil || !found {
		return State{}, false, err
	}
	return item.State, true, nil
}

func (b *DynamoBackend) SaveState(ctx context.Context, key Key, state State) error {
	return b.put(ctx, dynamoStateItem{
		PK:        dynamoPK(key),
		SK:        dynamoStateSK,
		State:     state,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (b *DynamoBackend) LoadHistory(ctx context.Context, key Key) ([]ChatMessage, bool, error) {
	var item dynamoHistoryItem
	found, err := b.get(ctx, key, dynamoHistorySK, &item)
	if err != nil || !found {
		return nil, false, err
	}
	return item.History, true, nil
}

func (b *DynamoBackend) SaveHistory(ctx context.Context, key Key, entries []ChatMessage) error {
	return b.put(ctx, dynamoHistoryItem{
		PK:        dynamoPK(key),
		SK:        dynamoHistorySK,
		History:   entries,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (b *DynamoBackend) get(ctx context.Context, key Key, sk string, dst any) (bool, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(b.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: dynamoPK(key)},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return false, fmt.Errorf("conversation: dynamodb get %s: %w", sk, err)
	}
	if out == nil || out.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(out.Item, dst); err != nil {
		return false, fmt.Errorf("conversation: dynamodb decode %s: %w", sk, err)
	}
	return true, nil
}

func (b *DynamoBackend) put(ctx context.Context, item any) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("conversation: dynamodb marshal: %w", err)
	}
	if _, err := b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.tableName),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("conversation: dynamodb put: %w", err)
	}
	return nil
}

func dynamoPK(key Key) string {
	return "CONV#" + key.TenantID + "#" + key.Counterparty
}
