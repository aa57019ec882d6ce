// Package export archives exported files to S3-compatible object storage.
package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

type Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func (c Config) Enabled() bool {
	return c.Bucket != ""
}

type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Archive struct {
	client PutObjectAPI
	bucket string
	prefix string
	log    *zerolog.Logger
	now    func() time.Time
}

func NewArchive(client PutObjectAPI, bucket, prefix string, log *zerolog.Logger) *Archive {
	if prefix == "" {
		prefix = "exports"
	}
	return &Archive{client: client, bucket: bucket, prefix: prefix, log: log, now: time.Now}
}

// New builds an S3 client from cfg. A custom endpoint switches to path-style
// addressing so R2 and MinIO work too.
func New(ctx context.Context, cfg Config, log *zerolog.Logger) (*Archive, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewArchive(client, cfg.Bucket, cfg.Prefix, log), nil
}

// Key places name under prefix/YYYY/MM/DD with a time component so repeated
// exports on one day do not overwrite each other.
func (a *Archive) Key(name string, at time.Time) string {
	at = at.UTC()
	return path.Join(a.prefix, at.Format("2006/01/02"), at.Format("150405")+"-"+name)
}

func (a *Archive) Upload(ctx context.Context, name, contentType string, body []byte) (string, error) {
	key := a.Key(name, a.now())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	location := fmt.Sprintf("s3://%s/%s", a.bucket, key)
	a.log.Info().Str("location", location).Int("bytes", len(body)).Msg("export archived")
	return location, nil
}
