package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/carpschool/access-api/internal/domain"
)

// InstitutionRepo provides typed DynamoDB operations for the institutions table.
type InstitutionRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewInstitutionRepo(client *dynamodb.Client, tableName string) *InstitutionRepo {
	return &InstitutionRepo{client: client, tableName: tableName}
}

func (r *InstitutionRepo) Put(ctx context.Context, inst *domain.Institution) error {
	item, err := attributevalue.MarshalMap(inst)
	if err != nil {
		return fmt.Errorf("marshal institution: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *InstitutionRepo) Get(ctx context.Context, institutionID string) (*domain.Institution, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("institution_id", institutionID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("institution not found: %w", domain.ErrNotFound)
	}
	var inst domain.Institution
	if err := attributevalue.UnmarshalMap(out.Item, &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// GetByCode looks up an institution by its unique short code via the code GSI.
func (r *InstitutionRepo) GetByCode(ctx context.Context, code string) (*domain.Institution, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tableName),
		IndexName:                 aws.String("code-index"),
		KeyConditionExpression:    aws.String("#c = :v"),
		ExpressionAttributeNames:  map[string]string{"#c": "code"},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: code}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("institution not found: %w", domain.ErrNotFound)
	}
	var inst domain.Institution
	if err := attributevalue.UnmarshalMap(out.Items[0], &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (r *InstitutionRepo) Update(ctx context.Context, institutionID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now().UTC().Format(time.RFC3339)
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("institution_id", institutionID),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return err
}

// ListActive scans for active institutions. The table is small (one row per
// school) so a filtered scan is fine here.
func (r *InstitutionRepo) ListActive(ctx context.Context) ([]domain.Institution, error) {
	out, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("active = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return nil, err
	}
	var insts []domain.Institution
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &insts); err != nil {
		return nil, err
	}
	return insts, nil
}
