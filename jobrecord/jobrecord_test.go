package jobrecord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/gurre/amc-etl/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDynamoDBClient fails with the queued errors before succeeding.
type mockDynamoDBClient struct {
	errs  []error
	calls int
	items []map[string]types.AttributeValue
}

func (m *mockDynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	m.items = append(m.items, params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func noWait() backoff.BackOff { return &backoff.ZeroBackOff{} }

var testReport = metrics.Report{
	JobRunID:     "run-1",
	DatasetID:    "customers",
	StartTime:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	EndTime:      time.Date(2024, 3, 1, 12, 0, 2, 0, time.UTC),
	NumBytes:     2048,
	NumRows:      10,
	FilesWritten: 2,
	Duration:     2 * time.Second,
}

func TestRecordHappyPath(t *testing.T) {
	client := &mockDynamoDBClient{}
	rec := NewDynamoDBRecorder(client, "metrics", WithBackOff(noWait))
	require.NoError(t, rec.Record(context.Background(), testReport))
	require.Len(t, client.items, 1)

	var got Event
	require.NoError(t, attributevalue.UnmarshalMap(client.items[0], &got))
	assert.Equal(t, Event{
		JobRunID:     "run-1",
		DatasetID:    "customers",
		StartTime:    "2024-03-01T12:00:00Z",
		EndTime:      "2024-03-01T12:00:02Z",
		NumBytes:     2048,
		NumRows:      10,
		FilesWritten: 2,
		DurationMs:   2000,
	}, got)
}

func TestRecordRetriesThrottling(t *testing.T) {
	throttled := &types.ProvisionedThroughputExceededException{}
	limited := &types.RequestLimitExceeded{}
	errs := []error{throttled, limited}
	for i := 0; i < maxRetries+3; i++ {
		errs = append(errs, throttled)
	}
	client := &mockDynamoDBClient{errs: errs}

	rec := NewDynamoDBRecorder(client, "metrics", WithBackOff(noWait))
	require.NoError(t, rec.Record(context.Background(), testReport))
	assert.Equal(t, len(errs)+1, client.calls)
}

func TestRecordGivesUpOnOtherErrors(t *testing.T) {
	boom := errors.New("validation failed")
	errs := make([]error, maxRetries+5)
	for i := range errs {
		errs[i] = boom
	}
	client := &mockDynamoDBClient{errs: errs}

	rec := NewDynamoDBRecorder(client, "metrics", WithBackOff(noWait))
	err := rec.Record(context.Background(), testReport)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, maxRetries+1, client.calls)
}

func TestRecordStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &mockDynamoDBClient{errs: []error{&types.RequestLimitExceeded{}}}

	err := NewDynamoDBRecorder(client, "metrics", WithBackOff(noWait)).Record(ctx, testReport)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsThrottlingError(t *testing.T) {
	assert.True(t, isThrottlingError(&types.ProvisionedThroughputExceededException{}))
	assert.True(t, isThrottlingError(&types.RequestLimitExceeded{}))
	assert.False(t, isThrottlingError(errors.New("other")))
}

func TestNoopRecorder(t *testing.T) {
	assert.NoError(t, NoopRecorder{}.Record(context.Background(), testReport))
}
