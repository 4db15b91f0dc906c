package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"audimg/internal/model"
	"audimg/internal/study"
)

// S3Options configures an S3-compatible bucket (AWS S3 or MinIO).
type S3Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool
}

// S3Store keeps one object per partial result under Prefix.
type S3Store struct {
	opts   S3Options
	client *s3.Client
}

func NewS3Store(opts S3Options) *S3Store {
	return &S3Store{opts: opts}
}

func (s *S3Store) Init(ctx context.Context) error {
	if s.opts.Bucket == "" {
		return errors.New("s3 bucket is required")
	}
	if s.client != nil {
		return nil
	}
	region := s.opts.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if s.opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.opts.AccessKeyID, s.opts.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = s.opts.PathStyle
		if s.opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.opts.Endpoint)
		}
	})
	return nil
}

func (s *S3Store) SavePartial(ctx context.Context, partial model.PartialResult) error {
	if s.client == nil {
		return errors.New("store is not initialized")
	}
	payload, err := EncodePartial(partial)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(s.objectKey(partial.Key())),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/zstd"),
	})
	return err
}

func (s *S3Store) GetPartial(ctx context.Context, subject study.Subject, task study.Task) (model.PartialResult, bool, error) {
	if s.client == nil {
		return model.PartialResult{}, false, errors.New("store is not initialized")
	}
	key := model.PartialKey(subject, task)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return model.PartialResult{}, false, nil
		}
		return model.PartialResult{}, false, err
	}
	defer func() { _ = out.Body.Close() }()

	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return model.PartialResult{}, false, err
	}
	partial, err := DecodePartial(payload)
	if err != nil {
		return model.PartialResult{}, false, fmt.Errorf("decode partial %s: %w", key, err)
	}
	return partial, true, nil
}

func (s *S3Store) ListPartials(ctx context.Context) ([]string, error) {
	if s.client == nil {
		return nil, errors.New("store is not initialized")
	}
	prefix := s.objectKey("")
	var keys []string
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.opts.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if strings.HasSuffix(name, partialExt) {
				keys = append(keys, strings.TrimSuffix(name, partialExt))
			}
		}
		if aws.ToBool(out.IsTruncated) && out.NextContinuationToken != nil {
			token = out.NextContinuationToken
			continue
		}
		break
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *S3Store) objectKey(key string) string {
	prefix := strings.Trim(s.opts.Prefix, "/")
	if key != "" {
		key += partialExt
	}
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
