package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"candidate-pipeline/internal/config"
)

// Publisher stores a rendered export and returns a link to it.
type Publisher interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// NewPublisher picks S3 when a bucket is configured, local disk otherwise.
func NewPublisher(ctx context.Context, cfg config.Config) (Publisher, error) {
	if cfg.ExportS3Bucket == "" {
		dir := cfg.ExportDir
		if dir == "" {
			dir = "./exports"
		}
		return &LocalPublisher{BaseDir: dir}, nil
	}
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ttl := cfg.ExportLinkTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &S3Publisher{client: client, bucket: cfg.ExportS3Bucket, ttl: ttl}, nil
}

// ObjectKey builds a unique key for an export of the given extension.
func ObjectKey(workspace, ext string) string {
	if workspace == "" {
		workspace = "default"
	}
	return fmt.Sprintf("exports/%s/%s.%s", sanitize(workspace), uuid.NewString(), ext)
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.ExportS3Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ExportS3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.ExportS3Endpoint)
		}
		o.UsePathStyle = cfg.ExportS3PathStyle
	}), nil
}

// S3Publisher uploads to a bucket and hands out presigned GET links.
type S3Publisher struct {
	client *s3.Client
	bucket string
	ttl    time.Duration
}

func (s *S3Publisher) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	presigned, err := s3.NewPresignClient(s.client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return presigned.URL, nil
}

// LocalPublisher writes exports under BaseDir and returns file:// links.
type LocalPublisher struct {
	BaseDir string
}

func (l *LocalPublisher) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	path := filepath.Join(l.BaseDir, sanitize(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func sanitize(key string) string {
	key = filepath.Clean("/" + key)
	key = strings.TrimPrefix(key, string(filepath.Separator))
	return key
}
