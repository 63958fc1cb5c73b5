package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DDBStore implements Store backed by DynamoDB. Conditional writes give the
// first-writer-wins semantics that concurrent chain runs need.
//
// Table schema:
//   - Partition key: chain (string)
//   - Sort key: job (number)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name graphmap-checkpoints \
//	  --attribute-definitions AttributeName=chain,AttributeType=S AttributeName=job,AttributeType=N \
//	  --key-schema AttributeName=chain,KeyType=HASH AttributeName=job,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBStore struct {
	client    DDBClient
	tableName string
}

// NewDDBStore creates a checkpoint store on the given DynamoDB table.
func NewDDBStore(client DDBClient, tableName string) *DDBStore {
	return &DDBStore{client: client, tableName: tableName}
}

// Lookup implements the Store interface.
func (s *DDBStore) Lookup(ctx context.Context, chain string, job int) (*Record, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"chain": &types.AttributeValueMemberS{Value: chain},
			"job":   &types.AttributeValueMemberN{Value: strconv.Itoa(job)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	if len(resp.Item) == 0 {
		return nil, nil
	}

	rec, err := decodeItem(resp.Item)
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// Mark implements the Store interface.
func (s *DDBStore) Mark(ctx context.Context, rec Record) error {
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}

	item := map[string]types.AttributeValue{
		"chain":        &types.AttributeValueMemberS{Value: rec.Chain},
		"job":          &types.AttributeValueMemberN{Value: strconv.Itoa(rec.Job)},
		"completed_at": &types.AttributeValueMemberS{Value: rec.CompletedAt.UTC().Format(time.RFC3339Nano)},
	}
	if rec.Output != "" {
		item["output"] = &types.AttributeValueMemberS{Value: rec.Output}
	}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(job)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrAlreadyMarked
		}

		return fmt.Errorf("failed to mark checkpoint: %w", err)
	}

	return nil
}

// Records implements the Store interface.
func (s *DDBStore) Records(ctx context.Context, chain string) ([]Record, error) {
	var (
		out     []Record
		lastKey map[string]types.AttributeValue
	)

	for {
		resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("#c = :chain"),
			ExpressionAttributeNames: map[string]string{
				"#c": "chain",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":chain": &types.AttributeValueMemberS{Value: chain},
			},
			ExclusiveStartKey: lastKey,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query checkpoints: %w", err)
		}

		for _, item := range resp.Items {
			rec, err := decodeItem(item)
			if err != nil {
				return nil, err
			}

			out = append(out, *rec)
		}

		if len(resp.LastEvaluatedKey) == 0 {
			break
		}

		lastKey = resp.LastEvaluatedKey
	}

	return out, nil
}

func decodeItem(item map[string]types.AttributeValue) (*Record, error) {
	chainAttr, ok := item["chain"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("invalid chain attribute in DynamoDB")
	}

	jobAttr, ok := item["job"].(*types.AttributeValueMemberN)
	if !ok {
		return nil, errors.New("invalid job attribute in DynamoDB")
	}

	job, err := strconv.Atoi(jobAttr.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}

	rec := &Record{Chain: chainAttr.Value, Job: job}

	if outputAttr, ok := item["output"].(*types.AttributeValueMemberS); ok {
		rec.Output = outputAttr.Value
	}

	if tsAttr, ok := item["completed_at"].(*types.AttributeValueMemberS); ok {
		ts, err := time.Parse(time.RFC3339Nano, tsAttr.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse completed_at: %w", err)
		}

		rec.CompletedAt = ts
	}

	return rec, nil
}
