package main

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// mockTableClient implements DynamoDBClient for testing. A fresh table
// "appears" (DescribeTable reports ACTIVE) once CreateTable has been called,
// which exercises the create-then-wait path without real polling.
type mockTableClient struct {
	exists bool
	ttlErr error

	describeCalls int
	createCalls   []*dynamodb.CreateTableInput
	ttlCalls      []*dynamodb.UpdateTimeToLiveInput
}

func (m *mockTableClient) DescribeTable(_ context.Context, input *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	m.describeCalls++
	if m.exists || len(m.createCalls) > 0 {
		return &dynamodb.DescribeTableOutput{
			Table: &dbtypes.TableDescription{
				TableName:   input.TableName,
				TableStatus: dbtypes.TableStatusActive,
			},
		}, nil
	}
	return nil, &dbtypes.ResourceNotFoundException{Message: aws.String("not found")}
}

func (m *mockTableClient) CreateTable(_ context.Context, input *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	m.createCalls = append(m.createCalls, input)
	return &dynamodb.CreateTableOutput{}, nil
}

func (m *mockTableClient) UpdateTimeToLive(_ context.Context, input *dynamodb.UpdateTimeToLiveInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error) {
	m.ttlCalls = append(m.ttlCalls, input)
	if m.ttlErr != nil {
		return nil, m.ttlErr
	}
	return &dynamodb.UpdateTimeToLiveOutput{}, nil
}

func TestTableExists(t *testing.T) {
	mgr := NewTableManagerWithClient(&mockTableClient{exists: true}, discardLogger())

	exists, err := mgr.TableExists(context.Background(), "subscribers-dev")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected exists = true")
	}
}

func TestTableExists_NotFound(t *testing.T) {
	mgr := NewTableManagerWithClient(&mockTableClient{}, discardLogger())

	exists, err := mgr.TableExists(context.Background(), "subscribers-dev")
	if err != nil {
		t.Fatalf("ResourceNotFoundException must not surface as an error: %v", err)
	}
	if exists {
		t.Error("expected exists = false")
	}
}

func TestEnsureTable_CreatesAndEnablesTTL(t *testing.T) {
	mock := &mockTableClient{}
	mgr := NewTableManagerWithClient(mock, discardLogger())

	err := mgr.EnsureTable(context.Background(), "subscribers-dev")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.createCalls) != 1 {
		t.Fatalf("expected 1 CreateTable call, got %d", len(mock.createCalls))
	}
	input := mock.createCalls[0]
	if aws.ToString(input.TableName) != "subscribers-dev" {
		t.Errorf("table name = %q", aws.ToString(input.TableName))
	}
	if input.BillingMode != dbtypes.BillingModePayPerRequest {
		t.Errorf("billing mode = %s, want PAY_PER_REQUEST", input.BillingMode)
	}
	if len(input.KeySchema) != 1 ||
		aws.ToString(input.KeySchema[0].AttributeName) != tableKeyAttribute ||
		input.KeySchema[0].KeyType != dbtypes.KeyTypeHash {
		t.Errorf("key schema = %+v, want single HASH key on %s", input.KeySchema, tableKeyAttribute)
	}

	if len(mock.ttlCalls) != 1 {
		t.Fatalf("expected 1 UpdateTimeToLive call, got %d", len(mock.ttlCalls))
	}
	ttl := mock.ttlCalls[0]
	if aws.ToString(ttl.TimeToLiveSpecification.AttributeName) != ttlAttribute {
		t.Errorf("TTL attribute = %q, want %s", aws.ToString(ttl.TimeToLiveSpecification.AttributeName), ttlAttribute)
	}
	if !aws.ToBool(ttl.TimeToLiveSpecification.Enabled) {
		t.Error("TTL should be enabled")
	}
}

func TestEnsureTable_ExistingTableSkipsCreate(t *testing.T) {
	mock := &mockTableClient{exists: true}
	mgr := NewTableManagerWithClient(mock, discardLogger())

	err := mgr.EnsureTable(context.Background(), "subscribers-dev")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.createCalls) != 0 {
		t.Error("existing table must not be recreated")
	}
	if len(mock.ttlCalls) != 1 {
		t.Error("TTL should still be verified on an existing table")
	}
}

func TestEnsureTable_TTLAlreadyEnabled(t *testing.T) {
	mock := &mockTableClient{
		exists: true,
		ttlErr: &smithy.GenericAPIError{
			Code:    "ValidationException",
			Message: "TimeToLive is already enabled",
		},
	}
	mgr := NewTableManagerWithClient(mock, discardLogger())

	if err := mgr.EnsureTable(context.Background(), "subscribers-dev"); err != nil {
		t.Fatalf("ValidationException for already-enabled TTL must be tolerated: %v", err)
	}
}

func TestEnsureTable_TTLFailureSurfaces(t *testing.T) {
	mock := &mockTableClient{
		exists: true,
		ttlErr: &smithy.GenericAPIError{Code: "InternalServerError", Message: "boom"},
	}
	mgr := NewTableManagerWithClient(mock, discardLogger())

	if err := mgr.EnsureTable(context.Background(), "subscribers-dev"); err == nil {
		t.Fatal("expected TTL failure to surface")
	}
}
