package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/tanq16/hlsget/internal/types"
)

type fakeUploader struct {
	bucket, key, contentType string
	body                     []byte
	err                      error
}

func (f *fakeUploader) Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(input.Bucket)
	f.key = aws.ToString(input.Key)
	f.contentType = aws.ToString(input.ContentType)
	f.body, _ = io.ReadAll(input.Body)
	return &manager.UploadOutput{Location: "https://" + f.bucket + "/" + f.key}, nil
}

func TestPublishUploadsOutput(t *testing.T) {
	local := filepath.Join(t.TempDir(), "show.ts")
	os.WriteFile(local, []byte("merged bytes"), 0644)
	up := &fakeUploader{}
	s := &S3{uploader: up, cfg: S3Config{Bucket: "media", Prefix: "incoming/hls", RemoveLocal: true}}

	job := types.Job{ID: 4, FileName: "show.ts", MimeType: "video/mp2t"}
	if err := s.Publish(context.Background(), job, local); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if up.bucket != "media" || up.key != "incoming/hls/show.ts" {
		t.Errorf("unexpected destination %s/%s", up.bucket, up.key)
	}
	if up.contentType != "video/mp2t" || string(up.body) != "merged bytes" {
		t.Errorf("unexpected upload content %q (%s)", up.body, up.contentType)
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Error("local file should be removed after upload")
	}
}

func TestPublishUploadError(t *testing.T) {
	local := filepath.Join(t.TempDir(), "show.ts")
	os.WriteFile(local, []byte("x"), 0644)
	boom := errors.New("access denied")
	s := &S3{uploader: &fakeUploader{err: boom}, cfg: S3Config{Bucket: "media", RemoveLocal: true}}
	if err := s.Publish(context.Background(), types.Job{FileName: "show.ts"}, local); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped upload error, got %v", err)
	}
	if _, err := os.Stat(local); err != nil {
		t.Error("local file must stay when the upload failed")
	}
}
