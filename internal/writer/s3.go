package writer

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "klinevault/config"
	"klinevault/internal/model"
	"klinevault/logger"
)

const uploadTimeout = 2 * time.Minute

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror copies finished store artifacts to an S3 bucket. The local store
// stays the source of truth; the bucket is a read replica.
type S3Mirror struct {
	client  objectPutter
	bucket  string
	prefix  string
	version string
	log     *logger.Log
}

// NewS3Mirror builds an S3 client from the storage section of cfg.
func NewS3Mirror(ctx context.Context, cfg *appconfig.Config) (*S3Mirror, error) {
	if !cfg.Storage.S3.Enabled {
		return nil, fmt.Errorf("s3 storage disabled")
	}
	bucket, err := normalizeBucketName(cfg.Storage.S3.Bucket)
	if err != nil {
		return nil, err
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Storage.S3.Region)}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	m := newS3Mirror(client, bucket, cfg.Storage.S3.Prefix, cfg.App.Version)
	m.log.WithComponent("s3_mirror").WithFields(logger.Fields{
		"bucket":   bucket,
		"prefix":   m.prefix,
		"region":   cfg.Storage.S3.Region,
		"endpoint": cfg.Storage.S3.Endpoint,
	}).Info("s3 mirror initialized")
	return m, nil
}

func newS3Mirror(client objectPutter, bucket, prefix, version string) *S3Mirror {
	return &S3Mirror{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		version: version,
		log:     logger.GetLogger(),
	}
}

func normalizeBucketName(raw string) (string, error) {
	bucket := strings.TrimSpace(raw)
	if bucket == "" {
		return "", fmt.Errorf("s3 bucket not configured")
	}
	return bucket, nil
}

// ObjectKey is the key an artifact of symbol is stored under.
func (m *S3Mirror) ObjectKey(category model.AssetCategory, symbol, file string) string {
	return path.Join(m.prefix, category.String(), strings.ToUpper(symbol), filepath.Base(file))
}

// Upload puts the file at localPath into the bucket.
func (m *S3Mirror) Upload(ctx context.Context, category model.AssetCategory, symbol, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat artifact: %w", err)
	}

	key := m.ObjectKey(category, symbol, localPath)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(contentType(localPath)),
		Metadata: map[string]string{
			"asset-category":     category.String(),
			"symbol":             strings.ToUpper(symbol),
			"klinevault-version": m.version,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()
	start := time.Now()
	if _, err := m.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	m.log.WithComponent("s3_mirror").WithSymbol(symbol).WithFields(logger.Fields{
		"s3_key":      key,
		"file_size":   info.Size(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("artifact uploaded")
	return nil
}

func contentType(file string) string {
	if strings.HasSuffix(file, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}
