package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"strongbox/internal/config"
	"strongbox/internal/engine"
)

// S3Store stores blobs in an S3 (or S3-compatible) bucket under
// <prefix>/<hash>. S3 object puts are already atomic — an object is visible
// only once fully written — which matches the store contract directly.
// Large blobs go through the SDK's multipart upload manager.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Store creates an S3-backed blob store from configuration.
// Credentials fall back to the default AWS chain when not set explicitly;
// a custom endpoint enables S3-compatible backends.
func NewS3Store(ctx context.Context, cfg config.BlobConfig) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 store requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.S3Bucket,
		prefix:   cfg.S3Prefix,
	}, nil
}

func (s *S3Store) key(hash string) string {
	return path.Join(s.prefix, hash)
}

// Put uploads a blob. S3 puts are last-write-wins over identical content, so
// a duplicate put for the same hash is harmless.
func (s *S3Store) Put(ctx context.Context, hash string, r io.Reader, size int64) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(hash)),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("uploading blob: %w", storeErr(err))
	}
	return nil
}

// Get streams a blob to w.
func (s *S3Store) Get(ctx context.Context, hash string, w io.Writer) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(hash)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("blob %s: %w", hash, engine.ErrNotFound)
		}
		return fmt.Errorf("fetching blob: %w", storeErr(err))
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("reading blob: %w", storeErr(err))
	}
	return nil
}

// Hashes lists every stored hash under the prefix.
func (s *S3Store) Hashes(ctx context.Context) ([]string, error) {
	var hashes []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing blobs: %w", storeErr(err))
		}
		for _, obj := range page.Contents {
			hashes = append(hashes, path.Base(aws.ToString(obj.Key)))
		}
	}
	return hashes, nil
}

// Delete removes a blob. S3 deletes of absent keys succeed, matching the
// store contract.
func (s *S3Store) Delete(ctx context.Context, hash string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(hash)),
	})
	if err != nil {
		return fmt.Errorf("deleting blob: %w", storeErr(err))
	}
	return nil
}

// Validate verifies the bucket is reachable with the configured credentials.
func (s *S3Store) Validate(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("bucket %s not accessible: %w", s.bucket, storeErr(err))
	}
	return nil
}

// Compile-time check that S3Store implements engine.BlobStore.
var _ engine.BlobStore = (*S3Store)(nil)
