package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/debemdeboas/draftsync/internal/metrics"
	"github.com/debemdeboas/draftsync/internal/model"
	"github.com/debemdeboas/draftsync/internal/util/compression"
)

type S3Options struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Backend stores one compressed JSON object per conversation in an S3-compatible bucket.
// Each save is a full overwrite of the object.
type S3Backend struct {
	client     *s3.Client
	bucket     string
	prefix     string
	compressor compression.Compressor
}

func NewS3Backend(ctx context.Context, opts S3Options) (*S3Backend, error) {
	region := opts.Region
	if region == "" {
		region = "auto"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing S3 client: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Backend{
		client:     client,
		bucket:     opts.Bucket,
		prefix:     opts.Prefix,
		compressor: compression.ZstdCompressor{},
	}, nil
}

func (b *S3Backend) objectKey(key model.ConversationKey) string {
	return b.prefix + string(key) + ".json.zst"
}

func (b *S3Backend) GetDraft(ctx context.Context, key model.ConversationKey) (Record, error) {
	defer observe("get", time.Now())

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		return Record{}, b.mapError("get", key, err)
	}
	defer out.Body.Close()

	compressed, err := io.ReadAll(out.Body)
	if err != nil {
		metrics.BackendRequests.WithLabelValues("get", "error").Inc()
		return Record{}, fmt.Errorf("%w: reading draft %q: %v", ErrNetwork, key, err)
	}

	data, err := b.compressor.Decompress(compressed)
	if err != nil {
		metrics.BackendRequests.WithLabelValues("get", "error").Inc()
		return Record{}, fmt.Errorf("%w: decompressing draft %q: %v", ErrNetwork, key, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		metrics.BackendRequests.WithLabelValues("get", "error").Inc()
		return Record{}, fmt.Errorf("%w: decoding draft %q: %v", ErrNetwork, key, err)
	}

	metrics.BackendRequests.WithLabelValues("get", "ok").Inc()
	return rec, nil
}

func (b *S3Backend) SaveDraft(ctx context.Context, key model.ConversationKey, content string, meta model.DraftMeta) error {
	defer observe("save", time.Now())

	rawMeta, err := EncodeMeta(meta)
	if err != nil {
		return err
	}

	data, err := json.Marshal(Record{
		Content:   content,
		Meta:      rawMeta,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("error encoding draft %q: %w", key, err)
	}

	compressed, err := b.compressor.Compress(data)
	if err != nil {
		return fmt.Errorf("error compressing draft %q: %w", key, err)
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.objectKey(key)),
		Body:        bytes.NewReader(compressed),
		ContentType: aws.String("application/zstd"),
	})
	if err != nil {
		return b.mapError("save", key, err)
	}

	metrics.BackendRequests.WithLabelValues("save", "ok").Inc()
	return nil
}

// DeleteDraft is idempotent on the S3 side: deleting a missing object succeeds.
func (b *S3Backend) DeleteDraft(ctx context.Context, key model.ConversationKey) error {
	defer observe("delete", time.Now())

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		return b.mapError("delete", key, err)
	}

	metrics.BackendRequests.WithLabelValues("delete", "ok").Inc()
	return nil
}

func (b *S3Backend) mapError(op string, key model.ConversationKey, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			metrics.BackendRequests.WithLabelValues(op, "not_found").Inc()
			return ErrNotFound
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "NoSuchBucket":
			metrics.BackendRequests.WithLabelValues(op, "rejected").Inc()
			backendLogger.Warn().Err(err).Str("op", op).Str("key", string(key)).Msg("Draft object request rejected")
			return fmt.Errorf("%w: %s %q: %v", ErrRejected, op, key, err)
		}
	}

	metrics.BackendRequests.WithLabelValues(op, "error").Inc()
	return fmt.Errorf("%w: %s %q: %v", ErrNetwork, op, key, err)
}

func observe(op string, start time.Time) {
	metrics.BackendRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
