package datastore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/dapper/pkg/directory"
)

// maxObjectSize bounds the document read from S3 (16MB).
const maxObjectSize = 16 << 20

// S3Config locates the document object.
type S3Config struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Key    string `mapstructure:"key" yaml:"key,omitempty" json:"key,omitempty"`
	Region string `mapstructure:"region" yaml:"region,omitempty" json:"region,omitempty"`

	// Endpoint overrides the AWS endpoint, e.g. for MinIO or Localstack.
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	ForcePathStyle bool   `mapstructure:"force_path_style" yaml:"force_path_style,omitempty" json:"force_path_style,omitempty"`

	// Static credentials. When empty the default AWS credential chain is
	// used.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty" json:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty" json:"secret_access_key,omitempty"`
}

// objectGetter is the part of *s3.Client the provider uses.
type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 reads a YAML or JSON document from one object. It is read-only.
type S3 struct {
	client objectGetter
	bucket string
	key    string
}

// NewS3 builds an S3 client from the AWS default configuration chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" || cfg.Key == "" {
		return nil, errors.New("datastore.s3.bucket and datastore.s3.key are required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return newS3(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, cfg.Key), nil
}

func newS3(client objectGetter, bucket, key string) *S3 {
	return &S3{client: client, bucket: bucket, key: key}
}

func (s *S3) Name() string { return ProviderS3 }

func (s *S3) Load(ctx context.Context) (*directory.Document, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("s3 read object: %w", err)
	}
	if len(data) > maxObjectSize {
		return nil, fmt.Errorf("s3 object s3://%s/%s exceeds %d bytes", s.bucket, s.key, maxObjectSize)
	}
	return decodeDocument(s.key, data)
}

func (s *S3) Close() error { return nil }
