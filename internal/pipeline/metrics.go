package pipeline

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"subsync/internal/types"
)

// MetricResult labels the outcome dimension of an operation metric.
type MetricResult string

const (
	MetricSuccess MetricResult = "success"
	MetricFailed  MetricResult = "failed"
)

// Metric and dimension names emitted by the upserter.
const (
	metricUpsertOperation = "UpsertOperation"
	metricUpsertLatency   = "UpsertLatency"

	dimOperation = "Operation"
	dimResult    = "Result"
)

// dimNone is the Operation value when a failure happened before dispatch
// chose a branch.
const dimNone = "none"

// Metrics is the telemetry sink the upserter reports to. Emission failures
// are logged and swallowed; telemetry never fails an invocation.
type Metrics interface {
	// RecordOperation counts one storage operation outcome. operation is
	// the dispatch branch label, or empty when the failure happened before
	// dispatch.
	RecordOperation(ctx context.Context, operation string, result MetricResult)

	// RecordLatency records end-to-end handler duration.
	RecordLatency(ctx context.Context, duration time.Duration)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements Metrics by publishing to a CloudWatch
// namespace.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// Compile-time assertion that CloudWatchMetrics implements Metrics.
var _ Metrics = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the given
// namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordOperation emits an UpsertOperation count with Operation and Result
// dimensions.
func (m *CloudWatchMetrics) RecordOperation(ctx context.Context, operation string, result MetricResult) {
	if operation == "" {
		operation = dimNone
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricUpsertOperation),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(dimOperation),
						Value: aws.String(operation),
					},
					{
						Name:  aws.String(dimResult),
						Value: aws.String(string(result)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record operation metric",
			"error", err.Error(),
			"operation", operation,
			"result", string(result),
		)
	}
}

// RecordLatency emits the handler duration in milliseconds.
func (m *CloudWatchMetrics) RecordLatency(ctx context.Context, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricUpsertLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record latency metric",
			"error", err.Error(),
			"duration_ms", duration.Milliseconds(),
		)
	}
}

// NopMetrics discards all telemetry. Used when no sink is configured and in
// tests.
type NopMetrics struct{}

func (NopMetrics) RecordOperation(ctx context.Context, operation string, result MetricResult) {}
func (NopMetrics) RecordLatency(ctx context.Context, duration time.Duration)                 {}

var _ Metrics = NopMetrics{}
