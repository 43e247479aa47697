package orders

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/leadflow/internal/aws"
)

// Store keeps pending orders in a DynamoDB table keyed by session_id.
// The table should have TTL enabled on expires_at; PurgeExpired covers the
// gap until DynamoDB gets around to deleting.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttl       time.Duration
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store. ttl of zero disables expiry.
func NewStore(client aws.DynamoDBAPI, tableName string, ttl time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		nowFunc:   time.Now,
	}
}

// Put writes the order, replacing any previous order for the same session.
func (s *Store) Put(ctx context.Context, order PendingOrder) error {
	if err := order.Validate(); err != nil {
		return err
	}
	order.stamp(s.nowFunc(), s.ttl)

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an order by session id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, sessionID string) (*PendingOrder, error) {
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
	var o PendingOrder
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// Delete removes the order. Deleting a missing order is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key:       keyFor(sessionID),
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// PurgeExpired deletes orders whose expires_at is before now and returns how
// many were removed. A concurrent fulfillment may already have deleted some.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	var (
		purged   int
		startKey map[string]types.AttributeValue
	)
	for {
		out, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:            &s.tableName,
			ProjectionExpression: awsString("session_id"),
			FilterExpression:     awsString("expires_at < :now"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return purged, fmt.Errorf("scan expired orders: %w", err)
		}
		for _, item := range out.Items {
			idAttr, ok := item["session_id"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			if err := s.Delete(ctx, idAttr.Value); err != nil {
				return purged, err
			}
			purged++
		}
		if len(out.LastEvaluatedKey) == 0 {
			return purged, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func keyFor(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"session_id": &types.AttributeValueMemberS{Value: sessionID},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
