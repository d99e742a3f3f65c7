package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/picklr-io/shipyard/internal/ir"
)

// objectAPI is the part of the S3 client the backend uses.
type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// lockAPI is the part of the DynamoDB client the backend uses.
type lockAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// S3Options configures an S3Backend.
type S3Options struct {
	Bucket string
	Key    string
	// LockTable is a DynamoDB table keyed by the string attribute LockID.
	// Without it the ledger is not locked.
	LockTable string
}

// S3Backend keeps the ledger in an S3 object, optionally locked through a
// DynamoDB conditional put.
type S3Backend struct {
	bucket    string
	key       string
	lockTable string

	s3Client objectAPI
	dbClient lockAPI
	now      func() time.Time
	lockID   string
}

func NewS3Backend(cfg aws.Config, opts S3Options) *S3Backend {
	b := newS3Backend(s3.NewFromConfig(cfg), nil, opts)
	if opts.LockTable != "" {
		b.dbClient = dynamodb.NewFromConfig(cfg)
	}
	return b
}

func newS3Backend(objects objectAPI, locks lockAPI, opts S3Options) *S3Backend {
	key := opts.Key
	if key == "" {
		key = DefaultKey
	}
	return &S3Backend{
		bucket:    opts.Bucket,
		key:       key,
		lockTable: opts.LockTable,
		s3Client:  objects,
		dbClient:  locks,
		now:       time.Now,
	}
}

func (b *S3Backend) Read(ctx context.Context) (*ir.Ledger, error) {
	result, err := b.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return NewLedger(), nil
		}
		return nil, fmt.Errorf("failed to read ledger from s3://%s/%s: %w", b.bucket, b.key, err)
	}
	defer result.Body.Close()

	raw, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}
	ledger, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse remote ledger: %w", err)
	}
	return ledger, nil
}

func (b *S3Backend) Write(ctx context.Context, ledger *ir.Ledger) error {
	content, err := Encode(ledger, b.now())
	if err != nil {
		return err
	}

	_, err = b.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(b.bucket),
		Key:                  aws.String(b.key),
		Body:                 bytes.NewReader(content),
		ContentType:          aws.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("failed to write ledger to s3://%s/%s: %w", b.bucket, b.key, err)
	}
	return nil
}

func (b *S3Backend) Lock(ctx context.Context) error {
	if b.lockTable == "" {
		return nil
	}

	b.lockID = fmt.Sprintf("shipyard-%d-%s", os.Getpid(), uuid.NewString())

	_, err := b.dbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.lockTable),
		Item: map[string]dbtypes.AttributeValue{
			"LockID":  &dbtypes.AttributeValueMemberS{Value: b.lockKey()},
			"Info":    &dbtypes.AttributeValueMemberS{Value: b.lockID},
			"Created": &dbtypes.AttributeValueMemberS{Value: b.now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(LockID)"),
	})
	if err != nil {
		var ccf *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("ledger is locked by another process. If this is an error, "+
				"manually delete the lock item with LockID=%q from DynamoDB table %q", b.lockKey(), b.lockTable)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

// Unlock deletes the lock item, but only if this backend wrote it.
func (b *S3Backend) Unlock(ctx context.Context) error {
	if b.lockTable == "" || b.lockID == "" {
		return nil
	}

	_, err := b.dbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.lockTable),
		Key: map[string]dbtypes.AttributeValue{
			"LockID": &dbtypes.AttributeValueMemberS{Value: b.lockKey()},
		},
		ConditionExpression:       aws.String("Info = :id"),
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{":id": &dbtypes.AttributeValueMemberS{Value: b.lockID}},
	})
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	b.lockID = ""
	return nil
}

func (b *S3Backend) lockKey() string {
	return b.bucket + "/" + b.key
}
