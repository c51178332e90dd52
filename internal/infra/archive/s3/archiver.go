package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"storagepricing/internal/app/dto"
	"storagepricing/internal/domain/availability"
)

// Archiver persists pruned snapshot history into an S3-compatible
// bucket, one JSON object per prune batch.
type Archiver interface {
	ArchiveSnapshots(ctx context.Context, snaps []availability.Snapshot, prunedAt time.Time) (objectKey string, err error)
}

// Client wraps a MinIO/S3 client.
type Client struct {
	bucket         string
	client         *minio.Client
	logger         *slog.Logger
	bucketInitOnce sync.Once
	bucketInitErr  error
}

// NewClient configures an archiver using the provided endpoint and credentials.
func NewClient(endpoint string, useSSL bool, accessKey, secretKey, bucket string, logger *slog.Logger) (*Client, error) {
	cleanEndpoint := strings.TrimSpace(endpoint)
	if cleanEndpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(accessKey), strings.TrimSpace(secretKey), ""),
		Secure: useSSL,
	}
	minioClient, err := minio.New(parseEndpoint(cleanEndpoint), opts)
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}

	return &Client{
		bucket: bucket,
		client: minioClient,
		logger: logger,
	}, nil
}

type archiveDocument struct {
	PrunedAt  time.Time                  `json:"pruned_at"`
	Count     int                        `json:"count"`
	Snapshots []dto.AvailabilitySnapshot `json:"snapshots"`
}

// ArchiveSnapshots writes the batch as a single timestamped JSON object
// and returns its key. Empty batches are skipped.
func (c *Client) ArchiveSnapshots(ctx context.Context, snaps []availability.Snapshot, prunedAt time.Time) (string, error) {
	if len(snaps) == 0 {
		return "", nil
	}
	if err := c.ensureBucket(ctx); err != nil {
		return "", err
	}

	doc := archiveDocument{
		PrunedAt:  prunedAt.UTC(),
		Count:     len(snaps),
		Snapshots: dto.MapSnapshots(snaps),
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("s3: marshal archive: %w", err)
	}

	key := fmt.Sprintf("snapshots/%s/%s.json",
		prunedAt.UTC().Format("2006/01/02"), prunedAt.UTC().Format("150405.000000000"))
	_, err = c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("s3: put object: %w", err)
	}

	if c.logger != nil {
		c.logger.Info("snapshot archive stored", "bucket", c.bucket, "key", key, "count", len(snaps))
	}
	return key, nil
}

// NoopArchiver discards pruned snapshots when no archive is configured.
type NoopArchiver struct{}

func (NoopArchiver) ArchiveSnapshots(_ context.Context, _ []availability.Snapshot, _ time.Time) (string, error) {
	return "", nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	c.bucketInitOnce.Do(func() {
		exists, err := c.client.BucketExists(ctx, c.bucket)
		if err != nil {
			c.bucketInitErr = fmt.Errorf("s3: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			c.bucketInitErr = fmt.Errorf("s3: create bucket: %w", err)
		}
	})
	return c.bucketInitErr
}

func parseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var _ Archiver = (*Client)(nil)
var _ Archiver = NoopArchiver{}
