// Package storage reads the source documents from the R2 bucket through its
// S3-compatible API.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrObjectNotFound is returned by Get for a missing key.
var ErrObjectNotFound = errors.New("object not found")

type Config struct {
	Endpoint        string `split_words:"true"`
	Region          string `default:"auto"`
	AccessKeyID     string `envconfig:"STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey string `split_words:"true"`
	Bucket          string `default:"tgxai-buckets"`
	PublicBaseURL   string `envconfig:"PUBLIC_BUCKET_URL" default:"https://tgxai-buckets.abidf.com"`
	MaxObjectBytes  int64  `split_words:"true" default:"33554432"`
}

type Object struct {
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	Uploaded time.Time `json:"uploaded"`
}

type Page struct {
	Objects   []Object `json:"objects"`
	Cursor    string   `json:"cursor,omitempty"`
	Truncated bool     `json:"truncated"`
}

type Bucket struct {
	client *s3.Client
	cfg    Config
}

func New(ctx context.Context, cfg Config) (*Bucket, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage: bucket name is required")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &Bucket{client: s3.NewFromConfig(awsCfg, s3Opts...), cfg: cfg}, nil
}

// List returns one page of objects. An empty cursor starts from the beginning.
func (b *Bucket) List(ctx context.Context, cursor string, limit int) (*Page, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(b.cfg.Bucket)}
	if limit > 0 {
		input.MaxKeys = aws.Int32(int32(min(limit, 1000))) // #nosec G115 -- clamped
	}
	if cursor != "" {
		input.ContinuationToken = aws.String(cursor)
	}

	out, err := b.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	page := &Page{
		Objects:   toObjects(out.Contents),
		Truncated: aws.ToBool(out.IsTruncated),
	}
	if page.Truncated {
		page.Cursor = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

// Walk visits every object in the bucket. Returning an error from fn stops
// the walk and is passed back to the caller.
func (b *Bucket) Walk(ctx context.Context, fn func(Object) error) error {
	p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{Bucket: aws.String(b.cfg.Bucket)})
	for p.HasMorePages() {
		out, err := p.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range toObjects(out.Contents) {
			if err := fn(obj); err != nil {
				return err
			}
		}
	}
	return nil
}

// Get reads a whole object into memory together with its content type.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, string, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, "", fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, "", fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	limit := b.cfg.MaxObjectBytes
	if limit <= 0 {
		limit = 32 << 20
	}
	data, err := io.ReadAll(io.LimitReader(out.Body, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read object: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, "", fmt.Errorf("object %s exceeds %d bytes", key, limit)
	}
	return data, aws.ToString(out.ContentType), nil
}

// PublicURL is the address users can open the document at.
func (b *Bucket) PublicURL(key string) string {
	return PublicURL(b.cfg.PublicBaseURL, key)
}

func PublicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(key)
}

func toObjects(in []types.Object) []Object {
	objs := make([]Object, 0, len(in))
	for _, o := range in {
		obj := Object{Key: aws.ToString(o.Key), Size: aws.ToInt64(o.Size)}
		if o.LastModified != nil {
			obj.Uploaded = *o.LastModified
		}
		objs = append(objs, obj)
	}
	return objs
}
