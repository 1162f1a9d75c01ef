package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"dsync-go/internal/dsync"
)

// S3Options configures the S3 client behind S3Transport.
type S3Options struct {
	Region          string
	Endpoint        string // custom endpoint for S3-compatible stores; enables path-style addressing
	AccessKeyID     string // empty means the default credential chain
	SecretAccessKey string
	TransferTimeout time.Duration
	ProbeTimeout    time.Duration
}

// S3Transport stores blobs as objects. Endpoints are s3://bucket/prefix
// URLs; the message id of a blob is its object key and the locator is
// s3://bucket/key.
type S3Transport struct {
	client          *s3.Client
	uploader        *manager.Uploader
	ids             dsync.IDGenerator
	transferTimeout time.Duration
	probeTimeout    time.Duration
	logger          dsync.Logger
}

// NewS3Transport builds an S3 client from opts and wraps it.
func NewS3Transport(ctx context.Context, opts S3Options, ids dsync.IDGenerator, logger dsync.Logger) (*S3Transport, error) {
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
		// Send plain bodies without the streaming checksum trailer.
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})
	return NewS3TransportFromClient(client, opts.TransferTimeout, opts.ProbeTimeout, ids, logger), nil
}

// NewS3TransportFromClient wraps an existing client.
func NewS3TransportFromClient(client *s3.Client, transferTimeout, probeTimeout time.Duration, ids dsync.IDGenerator, logger dsync.Logger) *S3Transport {
	if ids == nil {
		ids = dsync.UUIDGenerator{}
	}
	if logger == nil {
		logger = dsync.NewNopLogger()
	}
	return &S3Transport{
		client:          client,
		uploader:        manager.NewUploader(client),
		ids:             ids,
		transferTimeout: transferTimeout,
		probeTimeout:    probeTimeout,
		logger:          logger,
	}
}

func (t *S3Transport) Upload(ctx context.Context, endpoint string, data []byte, name string) (*dsync.RemoteBlob, error) {
	bucket, prefix, err := parseS3URL(endpoint)
	if err != nil {
		return nil, err
	}
	key := path.Join(prefix, t.ids.New(), name)
	if err := t.put(ctx, bucket, key, data); err != nil {
		return nil, err
	}
	t.logger.Debug("uploaded object", "bucket", bucket, "key", key, "size", len(data))
	return &dsync.RemoteBlob{MessageID: key, Locator: s3Locator(bucket, key)}, nil
}

// Patch overwrites the object in place. The object must already exist.
func (t *S3Transport) Patch(ctx context.Context, endpoint, messageID string, data []byte, name string) (*dsync.RemoteBlob, error) {
	bucket, _, err := parseS3URL(endpoint)
	if err != nil {
		return nil, err
	}
	if err := t.head(ctx, bucket, messageID, t.transferTimeout); err != nil {
		return nil, err
	}
	if err := t.put(ctx, bucket, messageID, data); err != nil {
		return nil, err
	}
	return &dsync.RemoteBlob{MessageID: messageID, Locator: s3Locator(bucket, messageID)}, nil
}

func (t *S3Transport) Delete(ctx context.Context, endpoint, messageID string) error {
	bucket, _, err := parseS3URL(endpoint)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, t.transferTimeout)
	defer cancel()

	_, err = t.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(messageID),
	})
	if err != nil {
		return fmt.Errorf("deleting object %s: %w: %w", messageID, dsync.ErrTransport, err)
	}
	return nil
}

func (t *S3Transport) Fetch(ctx context.Context, locator string) ([]byte, error) {
	bucket, key, err := parseS3URL(locator)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, t.transferTimeout)
	defer cancel()

	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting object %s: %w: %w", key, dsync.ErrTransport, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w: %w", key, dsync.ErrTransport, err)
	}
	return data, nil
}

func (t *S3Transport) Probe(ctx context.Context, locator string) error {
	bucket, key, err := parseS3URL(locator)
	if err != nil {
		return err
	}
	return t.head(ctx, bucket, key, t.probeTimeout)
}

func (t *S3Transport) put(ctx context.Context, bucket, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, t.transferTimeout)
	defer cancel()

	_, err := t.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("putting object %s: %w: %w", key, dsync.ErrTransport, err)
	}
	return nil
}

func (t *S3Transport) head(ctx context.Context, bucket, key string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("head object %s: %w: %w", key, dsync.ErrTransport, err)
	}
	return nil
}

// parseS3URL splits s3://bucket/rest into bucket and rest.
func parseS3URL(raw string) (bucket, rest string, err error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 url %q: %w", raw, errors.Join(dsync.ErrConfiguration, err))
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func s3Locator(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}

var _ dsync.Transport = (*S3Transport)(nil)
