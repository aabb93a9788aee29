package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"

	"agridash/internal/engine"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Config locates CSV exports in an S3 compatible bucket (AWS S3 or MinIO).
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // optional, for MinIO
	PathStyle       bool
	AccessKeyID     string // optional, falls back to the default credentials chain
	SecretAccessKey string
}

// S3 reads <prefix><name>.csv objects.
type S3 struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 builds the client. optFns are applied last, after the config derived ones.
func NewS3(ctx context.Context, cfg S3Config, optFns ...func(*s3.Options)) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	opts := []func(*s3.Options){func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}}
	client := s3.NewFromConfig(awsCfg, append(opts, optFns...)...)
	return &S3{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3) key(name engine.TableName) string {
	return s.prefix + string(name) + ".csv"
}

func (s *S3) Fetch(ctx context.Context, name engine.TableName) (*engine.RawTable, error) {
	if _, err := engine.SchemaFor(name); err != nil {
		return nil, err
	}
	key := s.key(name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", engine.ErrNotFound, s.bucket, key)
		}
		return nil, fmt.Errorf("%w: get s3://%s/%s: %w", engine.ErrConnectivity, s.bucket, key, err)
	}
	defer out.Body.Close()

	raw, err := readCSV(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: s3://%s/%s: %w", readErrorKind(err), s.bucket, key, err)
	}
	return raw, nil
}

// readErrorKind separates malformed content from a body that broke off
// while streaming.
func readErrorKind(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) || errors.Is(err, errEmptyFile) {
		return engine.ErrSchema
	}
	return engine.ErrConnectivity
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
