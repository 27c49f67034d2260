// Package store implements the durable subscriber table access layer on
// DynamoDB. Rows are keyed by customer email; each write is a single
// PutItem or UpdateItem call, so per-key atomicity comes from DynamoDB
// itself and the pipeline performs no cross-invocation coordination.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"subsync/internal/types"
)

// emailKey is the partition key attribute of the subscribers table.
const emailKey = "email"

// AttributeUpdates maps attribute names to the new values a partial update
// sets. The dispatch table in the pipeline decides the field set per event
// type; the store only translates it into an update expression.
type AttributeUpdates map[string]any

// SubscriberStore is the storage contract the upserter depends on. The table
// name is passed per call because it is resolved from SSM on every
// invocation, not fixed at construction.
type SubscriberStore interface {
	// PutSubscriber unconditionally replaces the row keyed by the item's
	// email (insert-or-replace).
	PutSubscriber(ctx context.Context, table string, item *types.SubscriberItem) error

	// UpdateSubscriber applies a partial update to the row keyed by email
	// and returns the attributes the storage layer reports as changed.
	UpdateSubscriber(ctx context.Context, table, email string, updates AttributeUpdates) (map[string]any, error)
}

// DynamoClient is the subset of the DynamoDB SDK client used by DynamoStore.
// The interface enables testing with a mock client.
type DynamoClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStore implements SubscriberStore against DynamoDB.
type DynamoStore struct {
	client DynamoClient
	logger types.Logger
}

// NewDynamoStore creates a DynamoStore backed by the given client.
func NewDynamoStore(client DynamoClient, logger types.Logger) *DynamoStore {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &DynamoStore{client: client, logger: logger}
}

// PutSubscriber marshals the item and replaces the row keyed by its email.
// DynamoDB PutItem reports nothing about prior state, which is what makes
// the full-replace branch idempotent: the final row depends only on the
// derived item, never on what was there before.
func (s *DynamoStore) PutSubscriber(ctx context.Context, table string, item *types.SubscriberItem) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return types.NewAppError(types.ErrCodeStorageOperation,
			fmt.Sprintf("marshaling subscriber item for %q", item.Email), err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      av,
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeStorageOperation,
			fmt.Sprintf("putting subscriber item for %q", item.Email), err)
	}

	s.logger.Info("subscriber row replaced", "email", item.Email, "table", table)
	return nil
}

// UpdateSubscriber builds a SET update expression from the given field set
// and applies it to the row keyed by email, requesting UPDATED_NEW so the
// caller can echo the changed attributes back to the orchestrator.
//
// Attribute names are routed through expression placeholders because
// "status" is a DynamoDB reserved word.
func (s *DynamoStore) UpdateSubscriber(ctx context.Context, table, email string, updates AttributeUpdates) (map[string]any, error) {
	if len(updates) == 0 {
		return nil, types.NewAppError(types.ErrCodeStorageOperation,
			fmt.Sprintf("empty attribute update set for %q", email), nil)
	}

	// Deterministic expression order keeps logs and tests stable.
	names := make([]string, 0, len(updates))
	for name := range updates {
		names = append(names, name)
	}
	sort.Strings(names)

	exprNames := make(map[string]string, len(names))
	exprValues := make(map[string]dbtypes.AttributeValue, len(names))
	clauses := make([]string, 0, len(names))

	for i, name := range names {
		namePlaceholder := fmt.Sprintf("#a%d", i)
		valuePlaceholder := fmt.Sprintf(":v%d", i)

		av, err := attributevalue.Marshal(updates[name])
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeStorageOperation,
				fmt.Sprintf("marshaling update value for attribute %q", name), err)
		}

		exprNames[namePlaceholder] = name
		exprValues[valuePlaceholder] = av
		clauses = append(clauses, fmt.Sprintf("%s = %s", namePlaceholder, valuePlaceholder))
	}

	keyAV, err := attributevalue.Marshal(email)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeStorageOperation,
			fmt.Sprintf("marshaling key for %q", email), err)
	}

	output, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(table),
		Key:                       map[string]dbtypes.AttributeValue{emailKey: keyAV},
		UpdateExpression:          aws.String("SET " + strings.Join(clauses, ", ")),
		ExpressionAttributeNames:  exprNames,
		ExpressionAttributeValues: exprValues,
		ReturnValues:              dbtypes.ReturnValueUpdatedNew,
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeStorageOperation,
			fmt.Sprintf("updating subscriber row for %q", email), err)
	}

	changed := make(map[string]any, len(output.Attributes))
	if err := attributevalue.UnmarshalMap(output.Attributes, &changed); err != nil {
		return nil, types.NewAppError(types.ErrCodeStorageOperation,
			fmt.Sprintf("unmarshaling changed attributes for %q", email), err)
	}

	s.logger.Info("subscriber row updated",
		"email", email,
		"table", table,
		"attributes", names,
	)
	return changed, nil
}

// Compile-time assertion that DynamoStore implements SubscriberStore.
var _ SubscriberStore = (*DynamoStore)(nil)
