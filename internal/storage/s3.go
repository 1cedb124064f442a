// Package storage archives search reports in S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var ErrObjectNotFound = errors.New("object not found")

const defaultLinkTTL = time.Hour

// BucketConfig points at the report bucket. Endpoint is set for
// self-hosted stores (RustFS, MinIO), which also need path-style addressing.
type BucketConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Name            string
	LinkTTL         time.Duration
}

// Object is what the archive writes: a body plus the metadata stored next
// to it.
type Object struct {
	Key         string
	ContentType string
	// Filename is offered to browsers that follow a download link.
	Filename string
	Metadata map[string]string
	Body     []byte
}

// ObjectInfo is the stored state of an object.
type ObjectInfo struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
	ModifiedAt  time.Time
}

// Bucket is a single S3 bucket holding reports.
type Bucket struct {
	client  *s3.Client
	presign *s3.PresignClient
	name    string
	linkTTL time.Duration
}

// OpenBucket connects to the store and creates the bucket on first use.
func OpenBucket(ctx context.Context, cfg BucketConfig) (*Bucket, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	ttl := cfg.LinkTTL
	if ttl <= 0 {
		ttl = defaultLinkTTL
	}
	b := &Bucket{
		client:  client,
		presign: s3.NewPresignClient(client),
		name:    cfg.Name,
		linkTTL: ttl,
	}
	if err := b.ensure(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bucket) Name() string { return b.name }

func (b *Bucket) ensure(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.name)})
	if err == nil {
		return nil
	}
	_, err = b.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(b.name)})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("failed to create bucket %s: %w", b.name, err)
	}
	return nil
}

func (b *Bucket) Put(ctx context.Context, obj Object) error {
	in := &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(obj.Key),
		ContentType: aws.String(obj.ContentType),
		Metadata:    obj.Metadata,
		Body:        bytes.NewReader(obj.Body),
	}
	if obj.Filename != "" {
		in.ContentDisposition = aws.String(fmt.Sprintf("attachment; filename=%q", obj.Filename))
	}
	if _, err := b.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("failed to put %s: %w", obj.Key, err)
	}
	return nil
}

// Stat returns ErrObjectNotFound for a missing key.
func (b *Bucket) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return &ObjectInfo{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		Metadata:    out.Metadata,
		ModifiedAt:  aws.ToTime(out.LastModified),
	}, nil
}

// Link presigns a GET for key, valid for the bucket's link TTL.
func (b *Bucket) Link(ctx context.Context, key string) (string, error) {
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(b.linkTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}
