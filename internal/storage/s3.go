package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client the store calls.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds S3 connection settings
type S3Config struct {
	Region       string
	Endpoint     string
	Anonymous    bool
	UsePathStyle bool
}

// S3Store reads figures from S3 or an S3-compatible endpoint
type S3Store struct {
	client S3API
}

// NewS3Store builds a client from the default AWS credential chain, or with
// anonymous credentials for public buckets.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Anonymous {
		opts = append(opts, config.WithCredentialsProvider(aws.AnonymousCredentials{}))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3StoreWithClient(client), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API) *S3Store {
	return &S3Store{client: client}
}

// Glob lists the literal prefix of the pattern and keeps the keys that match.
func (s *S3Store) Glob(ctx context.Context, pattern string) ([]string, error) {
	bucket, keyPattern := SplitPath(pattern)
	if bucket == "" {
		return nil, fmt.Errorf("pattern %q has no bucket", pattern)
	}
	if _, err := path.Match(keyPattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(LiteralPrefix(keyPattern)),
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, input)

	var matches []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", bucket, aws.ToString(input.Prefix), err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if ok, _ := path.Match(keyPattern, key); ok {
				matches = append(matches, bucket+"/"+key)
			}
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// Open fetches one object.
func (s *S3Store) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	bucket, key := SplitPath(p)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(strings.TrimPrefix(key, "/")),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get s3://%s: %w", p, err)
	}
	return out.Body, nil
}
