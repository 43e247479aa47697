package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/leadflow/internal/aws"
)

// Condition expressions, exported for test doubles.
const (
	ClaimCondition   = "attribute_not_exists(session_id) OR #s = :failed OR (#s = :inprog AND claimed_at < :stale)"
	ReleaseCondition = "#s = :inprog"
	MarkCondition    = "attribute_not_exists(session_id) OR #s <> :done"
)

// Store is the DynamoDB-backed fulfillment ledger.
type Store struct {
	client       aws.DynamoDBAPI
	tableName    string
	claimTimeout time.Duration // an IN_PROGRESS claim older than this may be taken over
	nowFunc      func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for ledger entries.
// claimTimeout: how long a claim protects an in-flight fulfillment (e.g., 10*time.Minute).
func NewStore(client aws.DynamoDBAPI, tableName string, claimTimeout time.Duration) *Store {
	return &Store{
		client:       client,
		tableName:    tableName,
		claimTimeout: claimTimeout,
		nowFunc:      time.Now,
	}
}

// Get retrieves a ledger record by session id. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, sessionID string) (*FulfillmentRecord, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            keyFor(sessionID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec FulfillmentRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// IsProcessed reports whether the session has been fulfilled.
func (s *Store) IsProcessed(ctx context.Context, sessionID string) (bool, error) {
	rec, err := s.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return rec != nil && rec.Status == StatusDone, nil
}

// Claim records an IN_PROGRESS intent for the session.
// Returns (true, nil) if this caller now owns the fulfillment.
// Returns (false, nil) if it is done or another claim is still live.
func (s *Store) Claim(ctx context.Context, sessionID string) (bool, error) {
	now := s.nowFunc()
	rec := FulfillmentRecord{
		SessionID: sessionID,
		Status:    StatusInProgress,
		ClaimedAt: now.Unix(),
		UpdatedAt: now.UTC(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	stale := now.Add(-s.claimTimeout).Unix()
	if s.claimTimeout <= 0 {
		stale = 0 // no takeover of live claims
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      awsString(ClaimCondition),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":inprog": &types.AttributeValueMemberS{Value: StatusInProgress},
			":stale":  &types.AttributeValueMemberN{Value: strconv.FormatInt(stale, 10)},
		},
	})
	if err != nil {
		if isConditionalFailure(err) {
			return false, nil
		}
		return false, fmt.Errorf("put item (claim): %w", err)
	}
	return true, nil
}

// Release marks a live claim FAILED so a redelivered event can claim again.
// Releasing a DONE or missing record is a no-op.
func (s *Store) Release(ctx context.Context, sessionID, note string) error {
	now := s.nowFunc()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      keyFor(sessionID),
		UpdateExpression:         awsString("SET #s = :failed, note = :n, updated_at = :ua"),
		ConditionExpression:      awsString(ReleaseCondition),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":inprog": &types.AttributeValueMemberS{Value: StatusInProgress},
			":n":      &types.AttributeValueMemberS{Value: note},
			":ua":     &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		if isConditionalFailure(err) {
			return nil
		}
		return fmt.Errorf("update item (release): %w", err)
	}
	return nil
}

// MarkProcessed records the session as fulfilled. It works with or without a
// prior Claim and never rewrites a DONE record.
func (s *Store) MarkProcessed(ctx context.Context, sessionID, runID string) error {
	now := s.nowFunc().UTC()
	rec := FulfillmentRecord{
		SessionID:   sessionID,
		Status:      StatusDone,
		ClaimedAt:   now.Unix(),
		ProcessedAt: &now,
		RunID:       runID,
		UpdatedAt:   now,
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      awsString(MarkCondition),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: StatusDone},
		},
	})
	if err != nil {
		if isConditionalFailure(err) {
			return nil // already DONE
		}
		return fmt.Errorf("put item (mark processed): %w", err)
	}
	return nil
}

func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

func keyFor(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"session_id": &types.AttributeValueMemberS{Value: sessionID},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
