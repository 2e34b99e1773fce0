package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"call-insights/internal/domain"
)

const (
	skLatest          = "LATEST"
	skPrefixRun       = "RUN#"
	defaultTTL        = 90 * 24 * time.Hour
	defaultQueryLimit = 20
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Client stores analyses in a single table. Each conversation has one LATEST
// item that is overwritten and an append-only RUN# item per analysis run.
type Client struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

type Option func(*Client)

// WithTTL sets how long items live before DynamoDB expires them. Zero disables
// expiry.
func WithTTL(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.ttl = d
		}
	}
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	c := &Client{api: api, tableName: tableName, ttl: defaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// convPK returns the DynamoDB partition key for a conversation.
func convPK(conversationID string) string {
	return "CONV#" + conversationID
}

func runSK(ts time.Time) string {
	return skPrefixRun + ts.UTC().Format(time.RFC3339Nano)
}

func (c *Client) ttlValue(now time.Time) int64 {
	if c.ttl == 0 {
		return 0
	}
	return now.Add(c.ttl).Unix()
}

// SaveAnalysis writes the run item and replaces the LATEST item in one
// transaction.
func (c *Client) SaveAnalysis(ctx context.Context, rec domain.AnalysisRecord) error {
	if strings.TrimSpace(rec.ConversationID) == "" {
		return errors.New("repository: SaveAnalysis: conversation ID is required")
	}
	now := c.now().UTC()
	rec.PK = convPK(rec.ConversationID)
	if rec.UpdatedAt == "" {
		rec.UpdatedAt = now.Format(time.RFC3339)
	}
	rec.TTL = c.ttlValue(now)

	latest := rec
	latest.SK = skLatest
	latestItem, err := recordItem(latest)
	if err != nil {
		return fmt.Errorf("repository: SaveAnalysis: %w", err)
	}
	run := rec
	run.SK = runSK(now)
	runItem, err := recordItem(run)
	if err != nil {
		return fmt.Errorf("repository: SaveAnalysis: %w", err)
	}

	_, err = c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(c.tableName),
					Item:                runItem,
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item:      latestItem,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveAnalysis: %w", err)
	}
	return nil
}

// GetAnalysis returns the most recent analysis of a conversation. found is
// false when none exists.
func (c *Client) GetAnalysis(ctx context.Context, conversationID string) (rec domain.AnalysisRecord, found bool, err error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: convPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: skLatest},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.AnalysisRecord{}, false, fmt.Errorf("repository: GetAnalysis get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.AnalysisRecord{}, false, nil
	}
	rec, err = itemToRecord(out.Item)
	if err != nil {
		return domain.AnalysisRecord{}, false, fmt.Errorf("repository: GetAnalysis decode: %w", err)
	}
	return rec, true, nil
}

// ListRuns returns up to limit past runs of a conversation, newest first.
func (c *Client) ListRuns(ctx context.Context, conversationID string, limit int) ([]domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: convPK(conversationID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixRun},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: ListRuns query: %w", err)
	}

	recs := make([]domain.AnalysisRecord, 0, len(out.Items))
	for _, item := range out.Items {
		rec, err := itemToRecord(item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListRuns unmarshal: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func recordItem(rec domain.AnalysisRecord) (map[string]types.AttributeValue, error) {
	analysis, err := json.Marshal(rec.Analysis)
	if err != nil {
		return nil, fmt.Errorf("marshal analysis: %w", err)
	}
	actions := rec.Actions
	if actions == nil {
		actions = []domain.IntelligentAction{}
	}
	actionsJSON, err := json.Marshal(actions)
	if err != nil {
		return nil, fmt.Errorf("marshal actions: %w", err)
	}

	item := map[string]types.AttributeValue{
		"PK":               &types.AttributeValueMemberS{Value: rec.PK},
		"SK":               &types.AttributeValueMemberS{Value: rec.SK},
		"conversationId":   &types.AttributeValueMemberS{Value: rec.ConversationID},
		"analysis":         &types.AttributeValueMemberS{Value: string(analysis)},
		"actions":          &types.AttributeValueMemberS{Value: string(actionsJSON)},
		"provider":         &types.AttributeValueMemberS{Value: rec.Provider},
		"model":            &types.AttributeValueMemberS{Value: rec.Model},
		"overallSentiment": &types.AttributeValueMemberS{Value: string(rec.Analysis.OverallSentiment)},
		"tokens":           &types.AttributeValueMemberN{Value: strconv.Itoa(rec.TokensUsed)},
		"cost":             &types.AttributeValueMemberN{Value: strconv.FormatFloat(rec.Cost, 'f', -1, 64)},
		"processingTime":   &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.ProcessingTime, 10)},
		"updatedAt":        &types.AttributeValueMemberS{Value: rec.UpdatedAt},
	}
	if rec.TTL > 0 {
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.TTL, 10)}
	}
	return item, nil
}

// itemToRecord converts a DynamoDB attribute map to an AnalysisRecord.
func itemToRecord(item map[string]types.AttributeValue) (domain.AnalysisRecord, error) {
	var rec domain.AnalysisRecord
	var err error
	if rec.PK, err = strAttr(item, "PK"); err != nil {
		return rec, err
	}
	if rec.SK, err = strAttr(item, "SK"); err != nil {
		return rec, err
	}
	if rec.ConversationID, err = strAttr(item, "conversationId"); err != nil {
		return rec, err
	}
	analysis, err := strAttr(item, "analysis")
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(analysis), &rec.Analysis); err != nil {
		return rec, fmt.Errorf("repository: decode analysis: %w", err)
	}
	if actions, err := strAttr(item, "actions"); err == nil {
		if err := json.Unmarshal([]byte(actions), &rec.Actions); err != nil {
			return rec, fmt.Errorf("repository: decode actions: %w", err)
		}
	}

	rec.Provider, _ = strAttr(item, "provider") // allow empty
	rec.Model, _ = strAttr(item, "model")
	rec.UpdatedAt, _ = strAttr(item, "updatedAt")
	if rec.TokensUsed, err = intAttr(item, "tokens"); err != nil {
		return rec, err
	}
	if rec.Cost, err = floatAttr(item, "cost"); err != nil {
		return rec, err
	}
	pt, err := intAttr(item, "processingTime")
	if err != nil {
		return rec, err
	}
	rec.ProcessingTime = int64(pt)
	if ttl, err := intAttr(item, "ttl"); err == nil {
		rec.TTL = int64(ttl)
	}
	return rec, nil
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

func numAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a number", key)
	}
	return n.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	raw, err := numAttr(item, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}

func floatAttr(item map[string]types.AttributeValue, key string) (float64, error) {
	raw, err := numAttr(item, key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
