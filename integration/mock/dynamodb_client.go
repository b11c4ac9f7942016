package mock

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBClient is a mock implementation of aws.DynamoDBClient for testing.
// It keeps every written item per table in write order.
type DynamoDBClient struct {
	mu     sync.Mutex
	tables map[string][]map[string]types.AttributeValue
	// Throttle is the number of upcoming PutItem calls that fail with a
	// ProvisionedThroughputExceededException.
	Throttle int
	calls    int
}

// NewDynamoDBClient creates a new mock DynamoDB client
func NewDynamoDBClient() *DynamoDBClient {
	return &DynamoDBClient{tables: make(map[string][]map[string]types.AttributeValue)}
}

// PutItem implements the DynamoDBClient interface
func (m *DynamoDBClient) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Throttle > 0 {
		m.Throttle--
		return nil, &types.ProvisionedThroughputExceededException{Message: aws.String("throttled")}
	}
	table := aws.ToString(params.TableName)
	m.tables[table] = append(m.tables[table], params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

// Items returns the items written to table.
func (m *DynamoDBClient) Items(table string) []map[string]types.AttributeValue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]types.AttributeValue(nil), m.tables[table]...)
}

// Calls returns the number of PutItem calls, including throttled ones.
func (m *DynamoDBClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
