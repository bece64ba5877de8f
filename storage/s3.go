package storage

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3Config contains minimal configuration for creating an S3 client.
// Empty values fall back to the standard AWS config and credential chain.
type S3Config struct {
	Bucket       string
	Region       string
	Profile      string
	Prefix       string
	UsePathStyle bool
}

// objectAPI is the part of *s3.Client the mirror uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Mirror uploads saved files to <bucket>/<prefix><name>.
type S3Mirror struct {
	bucket  string
	prefix  string
	client  objectAPI
	verbose bool
	logger  *log.Logger
}

// NewS3Mirror creates a mirror using the default AWS configuration chain,
// with optional overrides from cfg.
func NewS3Mirror(ctx context.Context, cfg S3Config, verbose bool, logger *log.Logger) (*S3Mirror, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	c := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	m := newS3Mirror(cfg.Bucket, cfg.Prefix, c)
	m.verbose = verbose
	if logger != nil {
		m.logger = logger
	}
	return m, nil
}

func newS3Mirror(bucket, prefix string, client objectAPI) *S3Mirror {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Mirror{bucket: bucket, prefix: prefix, client: client, logger: log.Default()}
}

// Key is the object key a file name is stored under.
func (m *S3Mirror) Key(name string) string {
	return m.prefix + name
}

// Mirror uploads content as text/markdown, replacing any existing object.
// In verbose mode a replaced object is logged.
func (m *S3Mirror) Mirror(ctx context.Context, name, content string) error {
	if m.verbose {
		if ok, err := m.Exists(ctx, name); err == nil && ok {
			m.logger.Printf("[s3] replacing s3://%s/%s", m.bucket, m.Key(name))
		}
	}
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(m.bucket),
		Key:          aws.String(m.Key(name)),
		Body:         strings.NewReader(content),
		ContentType:  aws.String("text/markdown; charset=utf-8"),
		CacheControl: aws.String("no-cache"),
	})
	return err
}

// Exists reports whether name has been mirrored. A 404 or NotFound is false, not an error.
func (m *S3Mirror) Exists(ctx context.Context, name string) (bool, error) {
	_, err := m.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(m.Key(name)),
	})
	if err == nil {
		return true, nil
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return false, nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return false, nil
	}
	return false, err
}
