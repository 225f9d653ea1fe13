// Package s3ledger implements ledger.Backend on an S3-compatible bucket: one
// object per key under a prefix, with the signature carried in object
// metadata.
package s3ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/alfredjeanlab/peerledger/internal/ledger"
)

// Object metadata keys. S3 lowercases user metadata names.
const (
	metaWriter    = "writer"
	metaScheme    = "scheme"
	metaPublicKey = "public-key"
	metaSignature = "signature"
)

// API is the subset of *s3.Client the ledger uses.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config locates the bucket.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string // non-empty enables path-style addressing (MinIO and similar)
	Prefix   string
}

// Ledger is a ledger.Backend on S3.
type Ledger struct {
	client API
	bucket string
	prefix string
}

// Compile-time checks.
var (
	_ ledger.Backend = (*Ledger)(nil)
	_ ledger.Lister  = (*Ledger)(nil)
)

// New loads the default AWS configuration and returns a ledger on cfg.Bucket.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 ledger: bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return NewWithClient(s3.NewFromConfig(awsCfg, s3opts...), cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient returns a ledger using an existing client.
func NewWithClient(client API, bucket, prefix string) *Ledger {
	return &Ledger{client: client, bucket: bucket, prefix: prefix}
}

func (l *Ledger) objectKey(key string) string { return l.prefix + key }

func (l *Ledger) Get(ctx context.Context, key string) ([]byte, error) {
	w, err := l.Entry(ctx, key)
	if err != nil || w == nil {
		return nil, err
	}
	return w.Value, nil
}

// Entry returns the signed write stored under key, or nil.
func (l *Ledger) Entry(ctx context.Context, key string) (*ledger.SignedWrite, error) {
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(l.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, mapErr(fmt.Errorf("s3 get object %s: %w", key, err))
	}
	defer out.Body.Close()

	value, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, mapErr(fmt.Errorf("s3 read object %s: %w", key, err))
	}
	w := &ledger.SignedWrite{
		Key:    key,
		Value:  value,
		Writer: out.Metadata[metaWriter],
		Scheme: out.Metadata[metaScheme],
	}
	w.PublicKey, _ = base64.StdEncoding.DecodeString(out.Metadata[metaPublicKey])
	w.Signature, _ = base64.StdEncoding.DecodeString(out.Metadata[metaSignature])
	return w, nil
}

func (l *Ledger) Put(ctx context.Context, w *ledger.SignedWrite) error {
	_, err := l.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(l.bucket),
		Key:         aws.String(l.objectKey(w.Key)),
		Body:        bytes.NewReader(w.Value),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			metaWriter:    w.Writer,
			metaScheme:    w.Scheme,
			metaPublicKey: base64.StdEncoding.EncodeToString(w.PublicKey),
			metaSignature: base64.StdEncoding.EncodeToString(w.Signature),
		},
	})
	if err != nil {
		return mapErr(fmt.Errorf("s3 put object %s: %w", w.Key, err))
	}
	return nil
}

func (l *Ledger) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(l.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(l.objectKey(prefix)),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, mapErr(fmt.Errorf("s3 list objects %s: %w", prefix, err))
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), l.prefix))
		}
	}
	return keys, nil
}

func (l *Ledger) Ping(ctx context.Context) error {
	_, err := l.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(l.bucket)})
	if err != nil {
		return mapErr(fmt.Errorf("s3 head bucket %s: %w", l.bucket, err))
	}
	return nil
}

func (l *Ledger) Close() error { return nil }

func mapErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", ledger.ErrUnavailable, err)
	}
	return err
}
