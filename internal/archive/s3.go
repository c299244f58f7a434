// Package archive exports board snapshots to S3-compatible storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/lizmareco/tablero/internal/board/models"
	"github.com/lizmareco/tablero/internal/common/config"
	"github.com/lizmareco/tablero/internal/common/errors"
	"github.com/lizmareco/tablero/internal/common/logger"
)

const keyTimeLayout = "20060102T150405Z"

// ObjectStore is the subset of the S3 API the exporter uses.
type ObjectStore interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Snapshot is the exported document.
type Snapshot struct {
	BoardID    int64          `json:"board_id"`
	ExportedAt time.Time      `json:"exported_at"`
	Lists      []*models.List `json:"lists"`
}

// Exporter writes and reads board snapshots.
type Exporter struct {
	store  ObjectStore
	bucket string
	prefix string
	now    func() time.Time
	logger *logger.Logger
}

// NewS3Client builds an S3 client for cfg. It works with MinIO and other
// S3-compatible services when an endpoint is set.
func NewS3Client(ctx context.Context, cfg config.ArchiveConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var endpoint *string
	if cfg.Endpoint != "" {
		if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
			return nil, fmt.Errorf("invalid archive endpoint: %w", err)
		}
		endpoint = aws.String(cfg.Endpoint)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = endpoint
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// NewS3Exporter creates an exporter for the configured bucket.
func NewS3Exporter(ctx context.Context, cfg config.ArchiveConfig, log *logger.Logger) (*Exporter, error) {
	if cfg.Bucket == "" {
		return nil, errors.ValidationError("archive.bucket", "a bucket is required to export snapshots")
	}
	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewExporter(client, cfg.Bucket, cfg.Prefix, log), nil
}

// NewExporter wraps an existing object store.
func NewExporter(store ObjectStore, bucket, prefix string, log *logger.Logger) *Exporter {
	return &Exporter{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
		logger: log.WithComponent("archive"),
	}
}

// ObjectKey returns <prefix>/board-<id>/<timestamp>.json. Timestamps sort
// lexically in time order.
func ObjectKey(prefix string, boardID int64, at time.Time) string {
	return boardPrefix(prefix, boardID) + at.UTC().Format(keyTimeLayout) + ".json"
}

func boardPrefix(prefix string, boardID int64) string {
	p := "board-" + strconv.FormatInt(boardID, 10) + "/"
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		p = prefix + "/" + p
	}
	return p
}

// CheckBucket verifies the bucket is reachable.
func (e *Exporter) CheckBucket(ctx context.Context) error {
	_, err := e.store.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(e.bucket)})
	if err != nil {
		var apiErr smithy.APIError
		if stderrors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchBucket") {
			return errors.NotFoundf("bucket %s does not exist", e.bucket)
		}
		return errors.ServiceUnavailable("archive", err)
	}
	return nil
}

// Export writes lists as a new snapshot object and returns its key.
func (e *Exporter) Export(ctx context.Context, boardID int64, lists []*models.List) (string, error) {
	snap := Snapshot{BoardID: boardID, ExportedAt: e.now().UTC(), Lists: lists}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("error encoding snapshot: %w", err)
	}

	key := ObjectKey(e.prefix, boardID, snap.ExportedAt)
	_, err = e.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", errors.ServiceUnavailable("archive", fmt.Errorf("error saving snapshot to S3: %w", err))
	}
	e.logger.Info("board snapshot exported",
		zap.Int64("board_id", boardID),
		zap.String("bucket", e.bucket),
		zap.String("key", key))
	return key, nil
}

// Latest reads the most recent snapshot of a board.
func (e *Exporter) Latest(ctx context.Context, boardID int64) (*Snapshot, error) {
	prefix := boardPrefix(e.prefix, boardID)
	var keys []string
	var token *string
	for {
		out, err := e.store.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(e.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, errors.ServiceUnavailable("archive", err)
		}
		for _, obj := range out.Contents {
			if k := aws.ToString(obj.Key); strings.HasSuffix(k, ".json") {
				keys = append(keys, k)
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	if len(keys) == 0 {
		return nil, errors.NotFound("snapshot for board", boardID)
	}
	sort.Strings(keys)
	return e.read(ctx, keys[len(keys)-1])
}

func (e *Exporter) read(ctx context.Context, key string) (*Snapshot, error) {
	resp, err := e.store.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var apiErr smithy.APIError
		if stderrors.As(err, &apiErr) && (apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound") {
			return nil, errors.NotFoundf("snapshot %s not found", key)
		}
		return nil, errors.ServiceUnavailable("archive", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errors.ValidationError("snapshot", fmt.Sprintf("error decoding %s: %v", key, err))
	}
	return &snap, nil
}
