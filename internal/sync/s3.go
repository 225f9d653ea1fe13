package sync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const snapshotContentType = "application/x-ndjson"

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination overwrites a single snapshot object on every sync. The
// bucket should have versioning enabled if history matters. Snapshots hold
// ciphertext only; on AWS the object is also encrypted at rest.
type S3Destination struct {
	client objectPutter
	bucket string
	key    string
	sse    types.ServerSideEncryption
}

// NewS3Destination resolves credentials the usual AWS way (env, shared
// config, instance role). A non-empty endpoint selects path-style
// addressing so MinIO and other S3-compatible stores work.
func NewS3Destination(ctx context.Context, bucket, key, region, endpoint string) (*S3Destination, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 snapshot needs a bucket and key (got %q, %q)", bucket, key)
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint == "" {
			return
		}
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	d := &S3Destination{client: client, bucket: bucket, key: key}
	if endpoint == "" {
		// MinIO without a KMS rejects SSE headers.
		d.sse = types.ServerSideEncryptionAes256
	}
	return d, nil
}

func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	sum := sha256.Sum256(data)
	in := &s3.PutObjectInput{
		Bucket:               aws.String(d.bucket),
		Key:                  aws.String(d.key),
		Body:                 bytes.NewReader(data),
		ContentType:          aws.String(snapshotContentType),
		ContentLength:        aws.Int64(int64(len(data))),
		ChecksumSHA256:       aws.String(base64.StdEncoding.EncodeToString(sum[:])),
		ServerSideEncryption: d.sse,
	}
	if _, err := d.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("uploading snapshot to s3://%s/%s: %w", d.bucket, d.key, err)
	}
	return nil
}
