package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/maneesh/docvault/internal/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// minioPartSize bounds the memory a streaming PutObject buffers per part.
const minioPartSize = 16 * 1024 * 1024

// MinioBackend stores objects in a MinIO (or any S3-compatible) bucket
type MinioBackend struct {
	client        *minio.Client
	bucketName    string
	publicBaseURL string
}

// NewMinioBackend initializes a MinIO client and ensures the bucket exists
func NewMinioBackend(endpoint, accessKey, secretKey, bucketName string, useSSL bool, publicBaseURL string) (*MinioBackend, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		logger.Info().Str("bucket", bucketName).Msg("creating bucket")
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	if publicBaseURL == "" {
		publicBaseURL = client.EndpointURL().String() + "/" + bucketName
	}

	return &MinioBackend{
		client:        client,
		bucketName:    bucketName,
		publicBaseURL: publicBaseURL,
	}, nil
}

func (mb *MinioBackend) URL(key string) string {
	return objectURL(mb.publicBaseURL, key)
}

// OpenChannel starts a streaming PutObject fed by the returned channel.
func (mb *MinioBackend) OpenChannel(ctx context.Context, info ObjectInfo) (Channel, error) {
	_, span := tracer.Start(ctx, "minio.open_channel",
		trace.WithAttributes(
			attribute.String("object_key", info.Key),
			attribute.Int64("size_bytes", info.Size),
		),
	)
	defer span.End()

	put := func(ctx context.Context, r io.Reader) error {
		_, err := mb.client.PutObject(ctx, mb.bucketName, info.Key, r, info.Size, minio.PutObjectOptions{
			ContentType: info.ContentType,
			PartSize:    minioPartSize,
		})
		return err
	}
	cleanup := func(ctx context.Context) error {
		if err := mb.client.RemoveIncompleteUpload(ctx, mb.bucketName, info.Key); err != nil {
			return fmt.Errorf("failed to remove incomplete upload: %w", err)
		}
		return nil
	}

	return newPipeChannel(mb.URL(info.Key), put, cleanup), nil
}

// Put uploads a whole object in one call
func (mb *MinioBackend) Put(ctx context.Context, info ObjectInfo, r io.Reader) (string, error) {
	ctx, span := tracer.Start(ctx, "minio.put_object",
		trace.WithAttributes(
			attribute.String("object_key", info.Key),
			attribute.Int64("size_bytes", info.Size),
		),
	)
	defer span.End()

	_, err := mb.client.PutObject(ctx, mb.bucketName, info.Key, r, info.Size, minio.PutObjectOptions{
		ContentType: info.ContentType,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	span.SetAttributes(attribute.Bool("upload_success", true))
	return mb.URL(info.Key), nil
}

// Get opens an object for reading
func (mb *MinioBackend) Get(ctx context.Context, key string) (io.ReadCloser, ObjectStat, error) {
	ctx, span := tracer.Start(ctx, "minio.get_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
		),
	)
	defer span.End()

	stat, err := mb.client.StatObject(ctx, mb.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ObjectStat{}, ErrNotFound
		}
		span.RecordError(err)
		return nil, ObjectStat{}, fmt.Errorf("failed to stat object: %w", err)
	}

	object, err := mb.client.GetObject(ctx, mb.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return nil, ObjectStat{}, fmt.Errorf("failed to get object: %w", err)
	}

	return object, ObjectStat{
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
	}, nil
}

// Delete removes an object
func (mb *MinioBackend) Delete(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "minio.delete_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
		),
	)
	defer span.End()

	err := mb.client.RemoveObject(ctx, mb.bucketName, key, minio.RemoveObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}
