package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// ttlAttribute is the numeric epoch attribute the upsert Lambda stamps on
// canceled rows. DynamoDB's TTL sweep expires rows once the epoch passes.
const ttlAttribute = "planned_deletion_date"

// tableKeyAttribute is the partition key of the subscribers table.
const tableKeyAttribute = "email"

// DynamoDBClient defines the subset of the DynamoDB API required to
// provision the subscribers table.
type DynamoDBClient interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	UpdateTimeToLive(ctx context.Context, params *dynamodb.UpdateTimeToLiveInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// TableManager provisions the DynamoDB subscribers table.
type TableManager struct {
	client DynamoDBClient
	logger *slog.Logger

	// pollInterval is the wait between DescribeTable polls while the table
	// is being created. Overridable in tests.
	pollInterval time.Duration
}

// tableActiveTimeout bounds the wait for a newly created table to become
// ACTIVE.
const tableActiveTimeout = 2 * time.Minute

// NewTableManager creates a TableManager from the BootstrapContext.
func NewTableManager(bctx *BootstrapContext) *TableManager {
	return &TableManager{
		client:       dynamodb.NewFromConfig(bctx.AWSConfig),
		logger:       bctx.Logger,
		pollInterval: 3 * time.Second,
	}
}

// NewTableManagerWithClient creates a TableManager with an injected client.
// Intended for testing.
func NewTableManagerWithClient(client DynamoDBClient, logger *slog.Logger) *TableManager {
	return &TableManager{
		client:       client,
		logger:       logger,
		pollInterval: time.Millisecond,
	}
}

// TableExists reports whether the named table already exists.
func (t *TableManager) TableExists(ctx context.Context, name string) (bool, error) {
	_, err := t.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(name),
	})
	if err != nil {
		var notFound *dbtypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking table %q: %w", name, err)
	}
	return true, nil
}

// EnsureTable creates the subscribers table if it does not exist, waits for
// it to become ACTIVE, and enables TTL on the planned_deletion_date
// attribute. The table is keyed by email only and uses on-demand billing so
// a burst of lifecycle events never throttles on provisioned capacity.
func (t *TableManager) EnsureTable(ctx context.Context, name string) error {
	exists, err := t.TableExists(ctx, name)
	if err != nil {
		return err
	}

	if exists {
		t.logger.Info("subscribers table already exists", "table", name)
	} else {
		_, err = t.client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(name),
			AttributeDefinitions: []dbtypes.AttributeDefinition{
				{
					AttributeName: aws.String(tableKeyAttribute),
					AttributeType: dbtypes.ScalarAttributeTypeS,
				},
			},
			KeySchema: []dbtypes.KeySchemaElement{
				{
					AttributeName: aws.String(tableKeyAttribute),
					KeyType:       dbtypes.KeyTypeHash,
				},
			},
			BillingMode: dbtypes.BillingModePayPerRequest,
		})
		if err != nil {
			return fmt.Errorf("creating table %q: %w", name, err)
		}

		t.logger.Info("subscribers table created, waiting for ACTIVE", "table", name)

		if err := t.waitForActive(ctx, name); err != nil {
			return err
		}
	}

	return t.enableTTL(ctx, name)
}

// waitForActive polls DescribeTable until the table status is ACTIVE or the
// timeout elapses.
func (t *TableManager) waitForActive(ctx context.Context, name string) error {
	deadline := time.Now().Add(tableActiveTimeout)

	for {
		output, err := t.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
			TableName: aws.String(name),
		})
		if err != nil {
			return fmt.Errorf("polling table %q: %w", name, err)
		}

		if output.Table != nil && output.Table.TableStatus == dbtypes.TableStatusActive {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("table %q did not become ACTIVE within %s", name, tableActiveTimeout)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for table %q: %w", name, ctx.Err())
		case <-time.After(t.pollInterval):
		}
	}
}

// enableTTL turns on TTL for the planned_deletion_date attribute. A
// ValidationException from DynamoDB when TTL is already enabled is treated
// as success.
func (t *TableManager) enableTTL(ctx context.Context, name string) error {
	_, err := t.client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(name),
		TimeToLiveSpecification: &dbtypes.TimeToLiveSpecification{
			AttributeName: aws.String(ttlAttribute),
			Enabled:       aws.Bool(true),
		},
	})
	if err != nil {
		// DynamoDB returns a ValidationException when TTL is already
		// enabled with the same attribute; treat that as success.
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException" {
			t.logger.Info("TTL already enabled", "table", name)
			return nil
		}
		return fmt.Errorf("enabling TTL on table %q: %w", name, err)
	}

	t.logger.Info("TTL enabled", "table", name, "attribute", ttlAttribute)
	return nil
}
