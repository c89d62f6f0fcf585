package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/observability"
	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/stats"
)

const backendS3 = "s3"

// ObjectAPI is the subset of *s3.Client used by S3Store
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Store keeps snapshots as JSON objects in one bucket
type S3Store struct {
	client  ObjectAPI
	bucket  string
	prefix  string
	metrics *observability.Metrics
}

// NewS3Store wraps an existing object client
func NewS3Store(client ObjectAPI, bucket, prefix string, metrics *observability.Metrics) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix, metrics: metrics}
}

// NewS3Client builds an S3 client from storage configuration. Static keys
// take precedence over the default credential chain.
func NewS3Client(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3Region),
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	}), nil
}

// Get implements SnapshotStore.Get
func (s *S3Store) Get(ctx context.Context, rt stats.ReportType, day stats.Day) Lookup {
	key := SnapshotKey(s.prefix, rt, day)
	ctx, span := observability.Tracer().Start(ctx, "S3.GetObject",
		trace.WithAttributes(
			attribute.String("s3.operation", "GetObject"),
			attribute.String("s3.bucket", s.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			span.SetStatus(codes.Ok, "snapshot missing")
			s.metrics.RecordSnapshotOp("get", backendS3, "missing")
			return missing(rt, day)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get object from s3")
		s.metrics.RecordSnapshotOp("get", backendS3, observability.OutcomeFailed)
		return unreadable(rt, day, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err == nil {
		var snap *stats.Snapshot
		if snap, err = decodeSnapshot(data, rt, day); err == nil {
			span.SetAttributes(attribute.Int("content.size", len(data)))
			span.SetStatus(codes.Ok, "snapshot loaded")
			s.metrics.RecordSnapshotOp("get", backendS3, observability.OutcomeOK)
			return Lookup{Snapshot: snap, Status: Found}
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "snapshot unreadable")
	s.metrics.RecordSnapshotOp("get", backendS3, observability.OutcomeFailed)
	return unreadable(rt, day, err)
}

// Put implements SnapshotStore.Put with a single PutObject per key
func (s *S3Store) Put(ctx context.Context, snapshot *stats.Snapshot) error {
	data, err := encodeSnapshot(snapshot)
	if err != nil {
		s.metrics.RecordSnapshotOp("put", backendS3, observability.OutcomeFailed)
		return err
	}
	day, err := stats.ParseDay(snapshot.Date, nil)
	if err != nil {
		s.metrics.RecordSnapshotOp("put", backendS3, observability.OutcomeFailed)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	key := SnapshotKey(s.prefix, snapshot.ReportType, day)

	ctx, span := observability.Tracer().Start(ctx, "S3.PutObject",
		trace.WithAttributes(
			attribute.String("s3.operation", "PutObject"),
			attribute.String("s3.bucket", s.bucket),
			attribute.String("s3.key", key),
			attribute.Int("content.size", len(data)),
		),
	)
	defer span.End()

	hash := sha256.Sum256(data)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(hash[:]),
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload to s3")
		s.metrics.RecordSnapshotOp("put", backendS3, observability.OutcomeFailed)
		return fmt.Errorf("%w: put %s: %v", ErrPersistence, key, err)
	}

	span.SetStatus(codes.Ok, "snapshot stored")
	s.metrics.RecordSnapshotOp("put", backendS3, observability.OutcomeOK)
	return nil
}

// HealthCheck verifies S3 connectivity
func (s *S3Store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
