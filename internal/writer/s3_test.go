package writer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "klinevault/config"
	"klinevault/internal/model"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func TestNormalizeBucketName(t *testing.T) {
	bucket, err := normalizeBucketName(" my-bucket ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bucket != "my-bucket" {
		t.Fatalf("expected trimmed bucket 'my-bucket', got %q", bucket)
	}
}

func TestNormalizeBucketNameRequiresValue(t *testing.T) {
	if _, err := normalizeBucketName("   \t  "); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

func TestObjectKey(t *testing.T) {
	m := newS3Mirror(&fakePutter{}, "bucket", "/klines/", "test")
	got := m.ObjectKey(model.USDM, "btcusdt", "/store/um/BTCUSDT/BTCUSDT-5m.parquet")
	if got != "klines/um/BTCUSDT/BTCUSDT-5m.parquet" {
		t.Fatalf("ObjectKey = %s", got)
	}

	bare := newS3Mirror(&fakePutter{}, "bucket", "", "test")
	if got := bare.ObjectKey(model.Spot, "ETHUSDT", "manifest.json"); got != "spot/ETHUSDT/manifest.json" {
		t.Fatalf("ObjectKey without prefix = %s", got)
	}
}

func TestUpload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := os.WriteFile(path, []byte(`{"symbol":"BTCUSDT"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	put := &fakePutter{}
	m := newS3Mirror(put, "bucket", "vault", "1.2.3")

	if err := m.Upload(context.Background(), model.COINM, "BTCUSD_PERP", path); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if len(put.inputs) != 1 {
		t.Fatalf("PutObject calls = %d", len(put.inputs))
	}
	in := put.inputs[0]
	if aws.ToString(in.Bucket) != "bucket" || aws.ToString(in.Key) != "vault/cm/BTCUSD_PERP/manifest.json" {
		t.Errorf("bucket/key = %s/%s", aws.ToString(in.Bucket), aws.ToString(in.Key))
	}
	if aws.ToString(in.ContentType) != "application/json" {
		t.Errorf("content type = %s", aws.ToString(in.ContentType))
	}
	if in.Metadata["klinevault-version"] != "1.2.3" || in.Metadata["asset-category"] != "cm" {
		t.Errorf("metadata = %v", in.Metadata)
	}
	if !strings.Contains(put.bodies[0], "BTCUSDT") {
		t.Errorf("body = %q", put.bodies[0])
	}
}

func TestUploadErrors(t *testing.T) {
	m := newS3Mirror(&fakePutter{err: errors.New("denied")}, "bucket", "", "")
	if err := m.Upload(context.Background(), model.Spot, "BTCUSDT", filepath.Join(t.TempDir(), "missing.parquet")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "BTCUSDT.parquet")
	if err := os.WriteFile(path, []byte("PAR1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Upload(context.Background(), model.Spot, "BTCUSDT", path); err == nil || !strings.Contains(err.Error(), "denied") {
		t.Fatalf("expected wrapped put error, got %v", err)
	}
}

func TestNewS3MirrorDisabled(t *testing.T) {
	cfg := appconfig.Default()
	if _, err := NewS3Mirror(context.Background(), &cfg); err == nil {
		t.Fatal("expected error when s3 is disabled")
	}
	cfg.Storage.S3.Enabled = true
	cfg.Storage.S3.Bucket = "  "
	if _, err := NewS3Mirror(context.Background(), &cfg); err == nil {
		t.Fatal("expected error for blank bucket")
	}
}
