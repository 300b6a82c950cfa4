package publish

import (
	"context"
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/hlsget/internal/types"
)

// Publisher ships a finished download somewhere after it is merged.
type Publisher interface {
	Publish(ctx context.Context, job types.Job, localPath string) error
}

type S3Config struct {
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
	Profile string `yaml:"profile"`
	Region  string `yaml:"region"`
	// RemoveLocal deletes the local file once the upload succeeded.
	RemoveLocal bool `yaml:"remove_local"`
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type S3 struct {
	uploader uploader
	cfg      S3Config
}

func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 publisher needs a bucket")
	}
	opts := []func(*config.LoadOptions) error{config.WithRetryMode("adaptive")}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %w", err)
	}
	up := manager.NewUploader(s3.NewFromConfig(awsCfg), func(u *manager.Uploader) {
		u.PartSize = 16 * 1024 * 1024
		u.Concurrency = 4
	})
	return &S3{uploader: up, cfg: cfg}, nil
}

func (s *S3) key(job types.Job) string {
	return path.Join(s.cfg.Prefix, job.FileName)
}

func (s *S3) Publish(ctx context.Context, job types.Job, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return &types.IOError{Op: "error opening output for upload", Err: err}
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.key(job)),
		Body:   f,
	}
	if job.MimeType != "" {
		input.ContentType = aws.String(job.MimeType)
	}
	out, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return fmt.Errorf("error uploading to s3://%s/%s: %w", s.cfg.Bucket, s.key(job), err)
	}
	log.Info().Str("op", "publish/s3").Int64("job", job.ID).Msgf("Uploaded %s to %s", job.FileName, out.Location)
	if s.cfg.RemoveLocal {
		f.Close()
		if err := os.Remove(localPath); err != nil {
			log.Warn().Str("op", "publish/s3").Err(err).Msgf("Could not remove %s after upload", localPath)
		}
	}
	return nil
}
