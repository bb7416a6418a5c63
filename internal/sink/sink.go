// Package sink writes output artifacts either to the local filesystem or,
// for s3://bucket/key paths, to an S3 compatible object store.
package sink

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config holds the S3 settings, only used when an s3:// path is written.
// Credentials come from the default AWS chain.
type Config struct {
	Region    string `mapstructure:"s3-region" yaml:"s3-region"`
	Endpoint  string `mapstructure:"s3-endpoint" yaml:"s3-endpoint"` // optional, eg MinIO
	PathStyle bool   `mapstructure:"s3-path-style" yaml:"s3-path-style"`
}

// Sink writes artifacts. The S3 client is created on first use.
type Sink struct {
	conf Config

	mu     sync.Mutex
	client *s3.Client
}

// New returns a Sink using conf for any S3 writes.
func New(conf Config) *Sink {
	return &Sink{conf: conf}
}

// Write saves data at dst, creating local parent directories as needed.
func (s *Sink) Write(ctx context.Context, dst string, data []byte, contentType string) error {
	bucket, key, ok := ParseS3(dst)
	if !ok {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", dst, err)
		}
		if err := os.WriteFile(dst, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", dst, err)
		}
		return nil
	}

	client, err := s.s3Client(ctx)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to upload %s: %w", dst, err)
	}
	return nil
}

// s3Client returns the sink's client, loading AWS config the first time.
func (s *Sink) s3Client(ctx context.Context) (*s3.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil {
		return s.client, nil
	}

	region := s.conf.Region
	if region == "" {
		region = "us-east-1"
	}
	awsConf, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s.client = s3.NewFromConfig(awsConf, func(o *s3.Options) {
		o.UsePathStyle = s.conf.PathStyle
		if s.conf.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.conf.Endpoint)
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})
	return s.client, nil
}

// ParseS3 splits an s3://bucket/key path. ok is false for anything else.
func ParseS3(p string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(p, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// Sibling returns the path of name in the same directory as p, keeping
// s3:// paths in their bucket.
func Sibling(p string, name ...string) string {
	if bucket, key, ok := ParseS3(p); ok {
		return "s3://" + bucket + "/" + path.Join(append([]string{path.Dir(key)}, name...)...)
	}
	return filepath.Join(append([]string{filepath.Dir(p)}, name...)...)
}
