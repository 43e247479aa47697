package idempotency

import (
	"context"
	"errors"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// simpleMock is a small in-memory ledger table. It evaluates the three
// condition expressions the Store issues and nothing else.
type simpleMock struct {
	mu          sync.Mutex
	table       map[string]map[string]types.AttributeValue
	putCalls    int
	getCalls    int
	updateCalls int
	failPut     error
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func strAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func numAttr(item map[string]types.AttributeValue, name string) int64 {
	if v, ok := item[name].(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}

func sessionKey(item map[string]types.AttributeValue) (string, error) {
	k := strAttr(item, "session_id")
	if k == "" {
		return "", errors.New("missing key")
	}
	return k, nil
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.failPut != nil {
		return nil, m.failPut
	}
	k, err := sessionKey(params.Item)
	if err != nil {
		return nil, err
	}
	existing, exists := m.table[k]
	if params.ConditionExpression != nil && exists {
		vals := params.ExpressionAttributeValues
		status := strAttr(existing, "status")
		switch *params.ConditionExpression {
		case ClaimCondition:
			stale := numAttr(vals, ":stale")
			failed := status == strAttr(vals, ":failed")
			staleClaim := status == strAttr(vals, ":inprog") && numAttr(existing, "claimed_at") < stale
			if !failed && !staleClaim {
				return nil, &types.ConditionalCheckFailedException{}
			}
		case MarkCondition:
			if status == strAttr(vals, ":done") {
				return nil, &types.ConditionalCheckFailedException{}
			}
		default:
			return nil, errors.New("unsupported condition")
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	k, err := sessionKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

// UpdateItem only supports the Release update.
func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	k, err := sessionKey(params.Key)
	if err != nil {
		return nil, err
	}
	vals := params.ExpressionAttributeValues
	item, ok := m.table[k]
	if !ok || strAttr(item, "status") != strAttr(vals, ":inprog") {
		return nil, &types.ConditionalCheckFailedException{}
	}
	updated := make(map[string]types.AttributeValue, len(item)+1)
	for name, v := range item {
		updated[name] = v
	}
	updated["status"] = vals[":failed"]
	updated["note"] = vals[":n"]
	updated["updated_at"] = vals[":ua"]
	m.table[k] = updated
	return &dyn.UpdateItemOutput{Attributes: updated}, nil
}

func (m *simpleMock) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	return nil, errors.New("ledger records are never deleted")
}

func (m *simpleMock) Scan(ctx context.Context, params *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	return nil, errors.New("not used by the ledger")
}
