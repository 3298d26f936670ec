package tenant

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Loader yields the current tenant configuration.
type Loader interface {
	Fetch(ctx context.Context) ([]Config, error)
	String() string
}

// FileLoader reads a local YAML file. An empty path yields the built-ins.
type FileLoader struct {
	Path string
}

func (s FileLoader) Fetch(context.Context) ([]Config, error) {
	return Load(s.Path)
}

func (s FileLoader) String() string {
	if strings.TrimSpace(s.Path) == "" {
		return "builtin"
	}
	return s.Path
}

// S3API is the subset of the S3 client used by S3Loader.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Loader reads the tenants document from an S3 object.
type S3Loader struct {
	client S3API
	bucket string
	key    string
}

// NewS3Loader returns a loader for s3://bucket/key.
func NewS3Loader(client S3API, bucket, key string) *S3Loader {
	return &S3Loader{client: client, bucket: bucket, key: key}
}

func (s *S3Loader) Fetch(ctx context.Context) ([]Config, error) {
	if s.client == nil {
		return nil, fmt.Errorf("tenant: s3 client not configured")
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("tenant: s3 get %s: %w", s, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("tenant: s3 read %s: %w", s, err)
	}
	return Parse(data)
}

func (s *S3Loader) String() string {
	return "s3://" + s.bucket + "/" + s.key
}

// ParseS3URI splits s3://bucket/key. ok is false for anything else.
func ParseS3URI(location string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(location), "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
