package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// s3MinPartSize is the smallest part S3 accepts for any part but the last.
const s3MinPartSize = 5 * 1024 * 1024

// S3Options configures an S3Backend
type S3Options struct {
	Endpoint      string
	Region        string
	Bucket        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// S3Backend stores objects in an S3 bucket and implements resumable writes
// with multipart uploads.
type S3Backend struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
	partSize      int
}

// NewS3Backend creates an S3 backend
func NewS3Backend(ctx context.Context, opts S3Options) (*S3Backend, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("bucket required for S3 backend")
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	s3Opts := []func(*s3.Options){}
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	base := opts.PublicBaseURL
	if base == "" {
		if opts.Endpoint != "" {
			base = opts.Endpoint + "/" + opts.Bucket
		} else {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", opts.Bucket, opts.Region)
		}
	}

	return &S3Backend{
		client:        s3.NewFromConfig(awsCfg, s3Opts...),
		bucket:        opts.Bucket,
		publicBaseURL: base,
		partSize:      s3MinPartSize,
	}, nil
}

func (s *S3Backend) URL(key string) string {
	return objectURL(s.publicBaseURL, key)
}

func (s *S3Backend) OpenChannel(ctx context.Context, info ObjectInfo) (Channel, error) {
	ctx, span := tracer.Start(ctx, "s3.create_multipart_upload",
		trace.WithAttributes(
			attribute.String("object_key", info.Key),
			attribute.Int64("size_bytes", info.Size),
		),
	)
	defer span.End()

	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(info.Key),
		ContentType: aws.String(info.ContentType),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create multipart upload: %w", err)
	}

	return &s3Channel{
		backend:  s,
		key:      info.Key,
		uploadID: aws.ToString(out.UploadId),
	}, nil
}

// Put buffers the payload; it is only used for small files.
func (s *S3Backend) Put(ctx context.Context, info ObjectInfo, r io.Reader) (string, error) {
	ctx, span := tracer.Start(ctx, "s3.put_object",
		trace.WithAttributes(
			attribute.String("object_key", info.Key),
			attribute.Int64("size_bytes", info.Size),
		),
	)
	defer span.End()

	buf, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read data: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(info.Key),
		Body:          bytes.NewReader(buf),
		ContentLength: aws.Int64(int64(len(buf))),
		ContentType:   aws.String(info.ContentType),
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("put object: %w", err)
	}
	return s.URL(info.Key), nil
}

func (s *S3Backend) Get(ctx context.Context, key string) (io.ReadCloser, ObjectStat, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ObjectStat{}, ErrNotFound
		}
		return nil, ObjectStat{}, fmt.Errorf("get object: %w", err)
	}

	return out.Body, ObjectStat{
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

func (s *S3Backend) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// s3Channel accumulates appended bytes into parts of at least s3MinPartSize.
type s3Channel struct {
	mu       sync.Mutex
	backend  *S3Backend
	key      string
	uploadID string
	buf      bytes.Buffer
	parts    []types.CompletedPart

	closed  bool
	aborted bool
}

func (c *s3Channel) Append(ctx context.Context, p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}

	c.buf.Write(p)
	for c.buf.Len() >= c.backend.partSize {
		part := make([]byte, c.backend.partSize)
		copy(part, c.buf.Next(c.backend.partSize))
		if err := c.uploadPart(ctx, part); err != nil {
			return err
		}
	}
	return nil
}

func (c *s3Channel) uploadPart(ctx context.Context, part []byte) error {
	number := int32(len(c.parts) + 1)

	ctx, span := tracer.Start(ctx, "s3.upload_part",
		trace.WithAttributes(
			attribute.String("object_key", c.key),
			attribute.Int("part_number", int(number)),
			attribute.Int("size_bytes", len(part)),
		),
	)
	defer span.End()

	out, err := c.backend.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(c.backend.bucket),
		Key:           aws.String(c.key),
		UploadId:      aws.String(c.uploadID),
		PartNumber:    aws.Int32(number),
		Body:          bytes.NewReader(part),
		ContentLength: aws.Int64(int64(len(part))),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("upload part %d: %w", number, err)
	}

	c.parts = append(c.parts, types.CompletedPart{
		ETag:       out.ETag,
		PartNumber: aws.Int32(number),
	})
	return nil
}

func (c *s3Channel) Commit(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", ErrChannelClosed
	}
	c.closed = true

	if c.buf.Len() > 0 || len(c.parts) == 0 {
		if err := c.uploadPart(ctx, c.buf.Bytes()); err != nil {
			return "", err
		}
		c.buf.Reset()
	}

	_, err := c.backend.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(c.backend.bucket),
		Key:      aws.String(c.key),
		UploadId: aws.String(c.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: c.parts,
		},
	})
	if err != nil {
		return "", fmt.Errorf("complete multipart upload: %w", err)
	}
	return c.backend.URL(c.key), nil
}

func (c *s3Channel) Abort(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.aborted {
		return nil
	}
	if c.closed {
		return ErrChannelClosed
	}
	c.closed = true
	c.aborted = true
	c.buf.Reset()

	_, err := c.backend.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(c.backend.bucket),
		Key:      aws.String(c.key),
		UploadId: aws.String(c.uploadID),
	})
	if err != nil {
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	return nil
}
