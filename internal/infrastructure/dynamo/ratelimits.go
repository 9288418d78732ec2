package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/carpschool/access-api/internal/domain"
)

// RateLimitRepo manages durable rate-limit entries.
// PK: account_id, SK: name. CheckAndRecord is a single conditional update so
// two concurrent calls on the same key can never both be allowed within one
// interval.
type RateLimitRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewRateLimitRepo(client *dynamodb.Client, tableName string) *RateLimitRepo {
	return &RateLimitRepo{client: client, tableName: tableName}
}

// CheckAndRecord stamps the entry at nowMs and returns true if either no
// entry exists or at least limitMs elapsed since the last allowed call.
// Returns false without mutating anything otherwise.
func (r *RateLimitRepo) CheckAndRecord(ctx context.Context, accountID, name string, limitMs, nowMs int64) (bool, error) {
	cutoff := nowMs - limitMs
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("account_id", accountID, "name", name),
		UpdateExpression: aws.String(
			"SET last_called = :now, limit_ms = :limit, updated_at = :now, created_at = if_not_exists(created_at, :now)"),
		ConditionExpression: aws.String("attribute_not_exists(last_called) OR last_called <= :cutoff"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":    &types.AttributeValueMemberN{Value: strconv.FormatInt(nowMs, 10)},
			":limit":  &types.AttributeValueMemberN{Value: strconv.FormatInt(limitMs, 10)},
			":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoff, 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Record unconditionally stamps the entry at nowMs, creating it if needed.
func (r *RateLimitRepo) Record(ctx context.Context, accountID, name string, limitMs, nowMs int64) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("account_id", accountID, "name", name),
		UpdateExpression: aws.String(
			"SET last_called = :now, limit_ms = :limit, updated_at = :now, created_at = if_not_exists(created_at, :now)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now":   &types.AttributeValueMemberN{Value: strconv.FormatInt(nowMs, 10)},
			":limit": &types.AttributeValueMemberN{Value: strconv.FormatInt(limitMs, 10)},
		},
	})
	return err
}

func (r *RateLimitRepo) Get(ctx context.Context, accountID, name string) (*domain.RateLimitEntry, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey("account_id", accountID, "name", name),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("rate limit entry not found: %w", domain.ErrNotFound)
	}
	var e domain.RateLimitEntry
	if err := attributevalue.UnmarshalMap(out.Item, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListByAccount returns all entries for one account via a PK query.
func (r *RateLimitRepo) ListByAccount(ctx context.Context, accountID string) ([]domain.RateLimitEntry, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		KeyConditionExpression:    aws.String("account_id = :a"),
		ExpressionAttributeValues: map[string]types.AttributeValue{":a": &types.AttributeValueMemberS{Value: accountID}},
	})
	if err != nil {
		return nil, err
	}
	var entries []domain.RateLimitEntry
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListAll scans the whole table. Privileged callers only.
func (r *RateLimitRepo) ListAll(ctx context.Context) ([]domain.RateLimitEntry, error) {
	var entries []domain.RateLimitEntry
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(r.tableName),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}
		var page []domain.RateLimitEntry
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		entries = append(entries, page...)
		if out.LastEvaluatedKey == nil {
			return entries, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// DeleteOlderThan removes entries whose updated_at is before cutoffMs and
// returns how many were deleted.
func (r *RateLimitRepo) DeleteOlderThan(ctx context.Context, cutoffMs int64) (int, error) {
	deleted := 0
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:            aws.String(r.tableName),
			FilterExpression:     aws.String("updated_at < :cutoff"),
			ProjectionExpression: aws.String("account_id, #n"),
			ExpressionAttributeNames: map[string]string{
				"#n": "name",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoffMs, 10)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return deleted, err
		}
		for _, item := range out.Items {
			_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: aws.String(r.tableName),
				Key: map[string]types.AttributeValue{
					"account_id": item["account_id"],
					"name":       item["name"],
				},
			})
			if err != nil {
				return deleted, err
			}
			deleted++
		}
		if out.LastEvaluatedKey == nil {
			return deleted, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// ListSince returns entries stamped at or after sinceMs. Used to warm the
// admission-control cache after a restart.
func (r *RateLimitRepo) ListSince(ctx context.Context, sinceMs int64) ([]domain.RateLimitEntry, error) {
	var entries []domain.RateLimitEntry
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(r.tableName),
			FilterExpression: aws.String("last_called >= :since"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":since": &types.AttributeValueMemberN{Value: strconv.FormatInt(sinceMs, 10)},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, err
		}
		var page []domain.RateLimitEntry
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, err
		}
		entries = append(entries, page...)
		if out.LastEvaluatedKey == nil {
			return entries, nil
		}
		startKey = out.LastEvaluatedKey
	}
}
