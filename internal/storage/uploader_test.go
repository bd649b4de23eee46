package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/digkill/designforge/internal/config"
)

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func newFakeUploader(t *testing.T, client objectPutter) *Uploader {
	t.Helper()
	u, err := NewUploader(Config{
		Region: "us-east-1", AccessKey: "a", SecretKey: "s",
		Bucket: "bucket", PublicBaseURL: "https://cdn.test/", Prefix: "/df/",
	})
	if err != nil {
		t.Fatalf("NewUploader: %v", err)
	}
	u.client = client
	u.now = func() time.Time { return time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC) }
	return u
}

func TestUploadBuildsDatedKey(t *testing.T) {
	fake := &fakeS3{}
	u := newFakeUploader(t, fake)

	got, err := u.Upload(context.Background(), FolderReferences, []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	key := aws.ToString(fake.inputs[0].Key)
	if !strings.HasPrefix(key, "df/references/2026/03/07/") || !strings.HasSuffix(key, ".png") {
		t.Fatalf("key = %q", key)
	}
	if got != "https://cdn.test/"+key {
		t.Fatalf("url = %q", got)
	}
	if aws.ToString(fake.inputs[0].Bucket) != "bucket" || fake.bodies[0] != "png" {
		t.Fatalf("unexpected put input %+v", fake.inputs[0])
	}
}

func TestUploadRejectsEmptyAndWrapsErrors(t *testing.T) {
	u := newFakeUploader(t, &fakeS3{err: errors.New("denied")})
	if _, err := u.Upload(context.Background(), FolderExports, nil, "application/json"); err == nil {
		t.Fatal("expected error for empty data")
	}
	if _, err := u.Upload(context.Background(), FolderExports, []byte("{}"), "application/json"); err == nil || !strings.Contains(err.Error(), "denied") {
		t.Fatalf("err = %v, want wrapped s3 error", err)
	}
}

func TestNewUploaderValidates(t *testing.T) {
	if _, err := NewUploader(Config{Region: "r"}); err == nil {
		t.Fatal("expected missing bucket error")
	}
	if _, err := NewUploader(Config{Bucket: "b", Region: "r", AccessKey: "a", SecretKey: "s"}); err == nil {
		t.Fatal("expected missing public url error")
	}
}

func TestFromConfig(t *testing.T) {
	if _, ok := FromConfig(config.Config{}); ok {
		t.Fatal("no bucket should disable uploads")
	}
	cfg, ok := FromConfig(config.Config{S3Bucket: "b", S3Region: "r", S3Prefix: "p"})
	if !ok || cfg.Bucket != "b" || cfg.Prefix != "p" {
		t.Fatalf("FromConfig = %+v, %v", cfg, ok)
	}
}

func TestExtensionFromContentType(t *testing.T) {
	tests := map[string]string{
		"image/png":                  ".png",
		"IMAGE/JPEG":                 ".jpg",
		"image/webp; charset=binary": ".webp",
		"application/json":           ".json",
		"text/plain":                 ".bin",
	}
	for in, want := range tests {
		if got := extensionFromContentType(in); got != want {
			t.Fatalf("extensionFromContentType(%q) = %q, want %q", in, got, want)
		}
	}
}
