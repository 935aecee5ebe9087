package jobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

const hashKeyAttr = "instance_id"
const recordAttr = "record"

// DynamoDB is the production Store: one table, one hash key (instance_id),
// one opaque "record" attribute holding the job's JSON blob. spec.md §3
// requires only Get/Put consistency, no secondary indexes, and that load
// following a completed save sees the write — satisfied by ConsistentRead.
type DynamoDB struct {
	client    *dynamodb.Client
	tableName string
}

type DynamoDBConfig struct {
	Region    string
	TableName string
}

func OpenDynamoDB(ctx context.Context, cfg DynamoDBConfig) (*DynamoDB, error) {
	if cfg.TableName == "" {
		return nil, errors.New("dynamodb table name is required")
	}
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &DynamoDB{
		client:    dynamodb.NewFromConfig(awsCfg),
		tableName: cfg.TableName,
	}, nil
}

// EnsureTable creates the table if absent and waits for it to become
// active. A ResourceInUseException (table already exists) is treated as
// success, so it is safe to call at the start of every run.
func (d *DynamoDB) EnsureTable(ctx context.Context) error {
	_, err := d.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(d.tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(hashKeyAttr), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(hashKeyAttr), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		var inUse *types.ResourceInUseException
		if errors.As(err, &inUse) {
			return nil
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ResourceInUseException" {
			return nil
		}
		return fmt.Errorf("create job table: %w", err)
	}

	waiter := dynamodb.NewTableExistsWaiter(d.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.tableName)}, maxTableWait); err != nil {
		return fmt.Errorf("wait for job table to become active: %w", err)
	}
	return nil
}

func (d *DynamoDB) Load(ctx context.Context, key string) ([]byte, error) {
	pk, err := attributevalue.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            map[string]types.AttributeValue{hashKeyAttr: pk},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("load job record: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	recordAV, ok := out.Item[recordAttr]
	if !ok {
		return nil, ErrNotFound
	}
	var record string
	if err := attributevalue.Unmarshal(recordAV, &record); err != nil {
		return nil, fmt.Errorf("unmarshal job record: %w", err)
	}
	return []byte(record), nil
}

func (d *DynamoDB) Save(ctx context.Context, key string, raw []byte) error {
	item, err := attributevalue.MarshalMap(map[string]any{
		hashKeyAttr: key,
		recordAttr:  string(raw),
	})
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("save job record: %w", err)
	}
	return nil
}

func (d *DynamoDB) Close() error { return nil }

const maxTableWait = 2 * time.Minute

var _ Store = (*DynamoDB)(nil)
