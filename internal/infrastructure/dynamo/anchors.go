package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-support-chat/internal/domain"
)

const (
	fieldClientID  = "client_id"
	fieldAnchorKey = "anchor_key"
	fieldTicketID  = "ticket_id"
	fieldUpdatedAt = "updated_at"
)

// anchorAPI is the subset of the DynamoDB client AnchorRepo uses.
type anchorAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type anchorItem struct {
	ClientID  string `dynamodbav:"client_id"`
	AnchorKey string `dynamodbav:"anchor_key"`
	TicketID  string `dynamodbav:"ticket_id"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

// AnchorRepo stores the active-ticket anchor of one client installation.
// PK: client_id, SK: anchor_key
type AnchorRepo struct {
	client    anchorAPI
	tableName string
	clientID  string
	key       string
	now       func() time.Time
}

func NewAnchorRepo(client anchorAPI, tableName, clientID, key string) *AnchorRepo {
	return &AnchorRepo{client: client, tableName: tableName, clientID: clientID, key: key, now: time.Now}
}

// Load returns the anchored ticket id, or "" when none is stored.
func (r *AnchorRepo) Load(ctx context.Context) (string, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey(fieldClientID, r.clientID, fieldAnchorKey, r.key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("get anchor: %w", errors.Join(domain.ErrTransport, err))
	}
	if out.Item == nil {
		return "", nil
	}
	var item anchorItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return "", fmt.Errorf("unmarshal anchor: %w", err)
	}
	return item.TicketID, nil
}

// Save upserts the anchor.
func (r *AnchorRepo) Save(ctx context.Context, ticketID string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldTicketID:  ticketID,
		fieldUpdatedAt: r.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       compositeKey(fieldClientID, r.clientID, fieldAnchorKey, r.key),
		UpdateExpression:          aws.String(ue.Expr),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		return fmt.Errorf("save anchor: %w", errors.Join(domain.ErrTransport, err))
	}
	return nil
}

// Clear deletes the anchor. Deleting an absent item succeeds.
func (r *AnchorRepo) Clear(ctx context.Context) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey(fieldClientID, r.clientID, fieldAnchorKey, r.key),
	})
	if err != nil {
		return fmt.Errorf("clear anchor: %w", errors.Join(domain.ErrTransport, err))
	}
	return nil
}
