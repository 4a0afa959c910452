package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/expenso-ai/expenso/pkg/models"
)

// Config holds S3/MinIO client configuration.
type Config struct {
	Endpoint        string // "localhost:9000" for MinIO
	Bucket          string // "expenso-receipts"
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// Client wraps the MinIO/S3 client for receipt image storage. Images
// are content-addressed: the object name is derived from the image
// bytes, so the same picture uploaded twice lands on the same key.
type Client struct {
	minioClient *minio.Client
	bucket      string
}

// New creates a new S3/MinIO client.
func New(config Config) (*Client, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	minioClient, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &Client{
		minioClient: minioClient,
		bucket:      config.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minioClient.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}

	err = c.minioClient.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{})
	if err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// objectName builds the session-scoped key for an image hash.
func objectName(userID, sessionID, hashID string) string {
	return path.Join("sessions", userID, sessionID, hashID)
}

// PutImage stores an image under its content hash and returns the hash
// ID. If an object with that hash already exists in the session the
// upload is skipped; the bytes are identical by construction.
func (c *Client) PutImage(ctx context.Context, userID, sessionID string, data []byte, mimeType string) (string, error) {
	hashID := models.HashImageID(data)
	name := objectName(userID, sessionID, hashID)

	_, err := c.minioClient.StatObject(ctx, c.bucket, name, minio.StatObjectOptions{})
	if err == nil {
		slog.Debug("image already stored, skipping upload", "hash_id", hashID)
		return hashID, nil
	}
	if resp := minio.ToErrorResponse(err); resp.Code != "NoSuchKey" {
		return "", fmt.Errorf("failed to check image %s: %w", hashID, err)
	}

	_, err = c.minioClient.PutObject(ctx, c.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put image %s: %w", hashID, err)
	}

	slog.Debug("image stored", "hash_id", hashID, "bytes", len(data), "mime_type", mimeType)
	return hashID, nil
}

// GetImage reads an image by its hash ID, returning the bytes and the
// stored content type. A missing image comes back as nil bytes with no
// error.
func (c *Client) GetImage(ctx context.Context, userID, sessionID, hashID string) ([]byte, string, error) {
	name := objectName(userID, sessionID, hashID)

	object, err := c.minioClient.GetObject(ctx, c.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get image %s: %w", hashID, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to read image %s: %w", hashID, err)
	}

	stat, err := object.Stat()
	if err != nil {
		return nil, "", fmt.Errorf("failed to stat image %s: %w", hashID, err)
	}

	return data, stat.ContentType, nil
}

// ListImages returns the hash IDs of every image stored for a session.
func (c *Client) ListImages(ctx context.Context, userID, sessionID string) ([]string, error) {
	prefix := path.Join("sessions", userID, sessionID) + "/"
	var ids []string

	objectCh := c.minioClient.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list images: %w", object.Err)
		}
		ids = append(ids, path.Base(object.Key))
	}

	return ids, nil
}

// Bucket returns the bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}
