package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nobat/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	skSession = "SESSION"
	skUpdate  = "UPDATE"
	skRate    = "RATE"
)

// dynamodbAPI is the subset of *dynamodb.Client the store calls.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoStateRepository keeps one item per conversation (PK CONV#<id>, SK SESSION) and one
// item per seen update (PK UPDATE#<id>, SK UPDATE) and one counter per conversation and rate
// window (PK RATE#<id>#<window>, SK RATE). All carry a ttl attribute for table expiry.
type DynamoStateRepository struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	dedupeTTL time.Duration
	now       func() time.Time
}

func NewDynamoStateRepository(api dynamodbAPI, tableName string, ttl, dedupeTTL time.Duration) (*DynamoStateRepository, error) {
	if api == nil {
		return nil, errors.New("repository: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStateRepository{
		api:       api,
		tableName: tableName,
		ttl:       ttl,
		dedupeTTL: dedupeTTL,
		now:       time.Now,
	}, nil
}

func convPK(conversationID int64) string {
	return "CONV#" + strconv.FormatInt(conversationID, 10)
}

func updatePK(updateID int) string {
	return "UPDATE#" + strconv.Itoa(updateID)
}

func ratePK(conversationID int64, windowIndex int64) string {
	return "RATE#" + strconv.FormatInt(conversationID, 10) + "#" + strconv.FormatInt(windowIndex, 10)
}

func (r *DynamoStateRepository) GetSession(ctx context.Context, conversationID int64) (*models.Session, error) {
	out, err := r.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skSession},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: get session: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}

	// TTL deletion in DynamoDB is lazy, so an expired item can still be returned.
	if exp, err := intAttr(out.Item, "ttl"); err == nil && exp > 0 && r.now().Unix() > exp {
		return nil, nil
	}

	raw, err := strAttr(out.Item, "state")
	if err != nil {
		return nil, err
	}
	var session models.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("repository: decode session: %w", err)
	}
	if session.Answers == nil {
		session.Answers = make(map[string]string)
	}
	return &session, nil
}

func (r *DynamoStateRepository) SaveSession(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("repository: encode session: %w", err)
	}

	item := map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: convPK(session.ConversationID)},
		"SK":             &types.AttributeValueMemberS{Value: skSession},
		"conversationId": &types.AttributeValueMemberN{Value: strconv.FormatInt(session.ConversationID, 10)},
		"step":           &types.AttributeValueMemberS{Value: string(session.Step)},
		"state":          &types.AttributeValueMemberS{Value: string(data)},
	}
	if r.ttl > 0 {
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(r.now().Add(r.ttl).Unix(), 10)}
	}

	if _, err := r.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("repository: save session: %w", err)
	}
	return nil
}

// IsNewUpdate writes the update marker with attribute_not_exists; a failed condition means
// the update was already seen.
func (r *DynamoStateRepository) IsNewUpdate(ctx context.Context, updateID int) (bool, error) {
	item := map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: updatePK(updateID)},
		"SK": &types.AttributeValueMemberS{Value: skUpdate},
	}
	if r.dedupeTTL > 0 {
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(r.now().Add(r.dedupeTTL).Unix(), 10)}
	}

	_, err := r.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			return false, nil
		}
		return false, fmt.Errorf("repository: record update: %w", err)
	}
	return true, nil
}

// CheckRateLimit increments the counter of the current window with an atomic ADD. The
// counter expires at the end of its window.
func (r *DynamoStateRepository) CheckRateLimit(ctx context.Context, conversationID int64, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}

	now := r.now()
	index := now.UnixNano() / int64(window)
	windowEnd := time.Unix(0, (index+1)*int64(window))

	out, err := r.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: ratePK(conversationID, index)},
			"SK": &types.AttributeValueMemberS{Value: skRate},
		},
		UpdateExpression:         aws.String("ADD #count :one SET #ttl = :ttl"),
		ExpressionAttributeNames: map[string]string{"#count": "count", "#ttl": "ttl"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":ttl": &types.AttributeValueMemberN{Value: strconv.FormatInt(windowEnd.Unix()+1, 10)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return false, fmt.Errorf("repository: increment rate counter: %w", err)
	}
	if out == nil {
		return false, errors.New("repository: empty rate counter response")
	}

	count, err := intAttr(out.Attributes, "count")
	if err != nil {
		return false, err
	}
	return count <= int64(limit), nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
