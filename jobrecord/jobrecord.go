// Package jobrecord persists the performance metrics of finished job runs.
package jobrecord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/gurre/amc-etl/aws"
	"github.com/gurre/amc-etl/logger"
	"github.com/gurre/amc-etl/metrics"
)

// Recorder stores the report of a job run.
type Recorder interface {
	Record(ctx context.Context, report metrics.Report) error
}

// Event is the item written per job run. JobRunID is the table's partition key.
type Event struct {
	JobRunID     string `dynamodbav:"jobRunId"`
	DatasetID    string `dynamodbav:"datasetId"`
	StartTime    string `dynamodbav:"startTime"`
	EndTime      string `dynamodbav:"endTime"`
	NumBytes     int64  `dynamodbav:"numBytes"`
	NumRows      int64  `dynamodbav:"numRows"`
	FilesWritten int64  `dynamodbav:"filesWritten"`
	DurationMs   int64  `dynamodbav:"durationMs"`
}

// NewEvent converts a report into the stored item.
func NewEvent(r metrics.Report) Event {
	return Event{
		JobRunID:     r.JobRunID,
		DatasetID:    r.DatasetID,
		StartTime:    r.StartTime.UTC().Format(time.RFC3339Nano),
		EndTime:      r.EndTime.UTC().Format(time.RFC3339Nano),
		NumBytes:     r.NumBytes,
		NumRows:      r.NumRows,
		FilesWritten: r.FilesWritten,
		DurationMs:   r.Duration.Milliseconds(),
	}
}

// maxRetries bounds retries of errors other than throttling. Throttling is
// retried until the context ends.
const maxRetries = 5

// DynamoDBRecorder writes one item per job run with PutItem.
type DynamoDBRecorder struct {
	client     aws.DynamoDBClient
	tableName  string
	logger     *slog.Logger
	newBackOff func() backoff.BackOff
}

// Option configures a DynamoDBRecorder.
type Option func(*DynamoDBRecorder)

// WithBackOff replaces the retry schedule.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(r *DynamoDBRecorder) { r.newBackOff = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *DynamoDBRecorder) { r.logger = l }
}

// NewDynamoDBRecorder creates a recorder writing to tableName.
// Example:
//
//	rec := jobrecord.NewDynamoDBRecorder(dynamodb.NewFromConfig(cfg), "amc-etl-metrics")
//	err := rec.Record(ctx, report)
func NewDynamoDBRecorder(client aws.DynamoDBClient, tableName string, opts ...Option) *DynamoDBRecorder {
	r := &DynamoDBRecorder{
		client:     client,
		tableName:  tableName,
		logger:     logger.Discard(),
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func defaultBackOff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 100 * time.Millisecond
	exp.MaxInterval = 30 * time.Second
	exp.MaxElapsedTime = 0
	return exp
}

// isThrottlingError reports whether DynamoDB rejected the request for lack of
// capacity. Capacity refills over time so these are always worth retrying.
func isThrottlingError(err error) bool {
	var throughputErr *types.ProvisionedThroughputExceededException
	var requestLimitErr *types.RequestLimitExceeded
	return errors.As(err, &throughputErr) || errors.As(err, &requestLimitErr)
}

// Record writes the report, retrying with exponential backoff.
func (r *DynamoDBRecorder) Record(ctx context.Context, report metrics.Report) error {
	item, err := attributevalue.MarshalMap(NewEvent(report))
	if err != nil {
		return fmt.Errorf("failed to marshal job record: %w", err)
	}
	input := &dynamodb.PutItemInput{
		TableName: &r.tableName,
		Item:      item,
	}

	failures := 0
	op := func() error {
		_, err := r.client.PutItem(ctx, input)
		if err == nil || isThrottlingError(err) {
			return err
		}
		failures++
		if failures > maxRetries {
			return backoff.Permanent(fmt.Errorf("failed to record job run after %d retries: %w", maxRetries, err))
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Debug("retrying job record", "table", r.tableName, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(r.newBackOff(), ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// NoopRecorder drops every report.
type NoopRecorder struct{}

func (NoopRecorder) Record(context.Context, metrics.Report) error { return nil }

var (
	_ Recorder = (*DynamoDBRecorder)(nil)
	_ Recorder = NoopRecorder{}
)
