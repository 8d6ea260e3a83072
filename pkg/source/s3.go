package source

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/go-logr/logr"
	"kubegems.io/nemopub/pkg/config"
	"kubegems.io/nemopub/pkg/errors"
)

const SchemeS3 = "s3"

// IsRemote reports whether the model path has to be fetched before loading.
func IsRemote(modelPath string) bool {
	return strings.HasPrefix(modelPath, SchemeS3+"://")
}

func ParseS3URI(uri string) (bucket string, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 uri: %w", err)
	}
	if u.Scheme != SchemeS3 {
		return "", "", fmt.Errorf("invalid s3 uri %s: scheme must be s3", uri)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("invalid s3 uri %s: expect s3://<bucket>/<key>", uri)
	}
	return u.Host, key, nil
}

type S3Fetcher struct {
	Client *s3.Client
}

func NewS3Fetcher(ctx context.Context, options config.S3Options) (*S3Fetcher, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if options.Region != "" {
		opts = append(opts, awsconfig.WithRegion(options.Region))
	}
	if options.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(options.AccessKey, options.SecretKey, ""),
		))
	}
	if options.Endpoint != "" {
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(
				func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{URL: options.Endpoint, SigningRegion: region}, nil
				},
			),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	s3cli := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = options.PathStyle
	})
	return &S3Fetcher{Client: s3cli}, nil
}

// Fetch downloads the object into intodir keeping the key's base name, so the model
// name derived from the local file matches the one derived from the uri.
func (f *S3Fetcher) Fetch(ctx context.Context, uri string, intodir string) (string, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return "", err
	}
	log := logr.FromContextOrDiscard(ctx).WithValues("bucket", bucket, "key", key)

	if err := os.MkdirAll(intodir, 0o755); err != nil {
		return "", err
	}
	into := filepath.Join(intodir, path.Base(key))
	file, err := os.Create(into)
	if err != nil {
		return "", err
	}
	defer file.Close()

	log.Info("downloading checkpoint")
	n, err := manager.NewDownloader(f.Client).Download(ctx, file, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		_ = file.Close()
		_ = os.Remove(into)
		if IsS3NotFound(err) {
			return "", errors.NewSourceNotFoundError(uri)
		}
		return "", fmt.Errorf("download %s: %w", uri, err)
	}
	log.V(1).Info("checkpoint downloaded", "size", n, "path", into)
	return into, file.Close()
}

func IsS3NotFound(err error) bool {
	var apierr smithy.APIError
	if stderrors.As(err, &apierr) {
		switch apierr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return true
		}
	}
	return false
}
