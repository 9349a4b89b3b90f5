package s3

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3aws "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/veridoc/veridoc/core/certificate"
	"github.com/veridoc/veridoc/core/tenant"
)

// Compile-time check against the engine's artifact store port.
var _ certificate.ArtifactStore = (*Storage)(nil)

// Client is the narrow slice of the S3 API this package uses. Satisfied by
// *s3aws.Client and by mocks in tests.
type Client interface {
	PutObject(ctx context.Context, params *s3aws.PutObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3aws.HeadObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3aws.DeleteObjectInput, optFns ...func(*s3aws.Options)) (*s3aws.DeleteObjectOutput, error)
}

// Presigner issues signed GET URLs. Satisfied by *s3aws.PresignClient.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3aws.GetObjectInput, optFns ...func(*s3aws.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Config holds S3 connection settings, mapped from the environment. Static
// credentials are optional; without them the SDK falls back to IAM roles and
// environment credentials.
type Config struct {
	Bucket         string        `env:"S3_BUCKET,required"`
	Region         string        `env:"S3_REGION,required"`
	AccessKeyID    string        `env:"S3_ACCESS_KEY_ID"`
	SecretKey      string        `env:"S3_SECRET_ACCESS_KEY"`
	Endpoint       string        `env:"S3_ENDPOINT"`
	ForcePathStyle bool          `env:"S3_FORCE_PATH_STYLE" envDefault:"false"`
	SignedURLTTL   time.Duration `env:"S3_SIGNED_URL_TTL" envDefault:"15m"`
}

// Storage implements the artifact store over S3. Thread-safe.
type Storage struct {
	client       Client
	presigner    Presigner
	bucket       string
	signedURLTTL time.Duration
}

// Option configures Storage construction.
type Option func(*options)

type options struct {
	client        Client
	presigner     Presigner
	httpClient    *http.Client
	configOptions []func(*config.LoadOptions) error
}

// WithClient sets a pre-configured S3 client, primarily for tests.
func WithClient(client Client) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithPresigner sets a custom presign client, primarily for tests.
func WithPresigner(p Presigner) Option {
	return func(o *options) {
		o.presigner = p
	}
}

// WithHTTPClient sets a custom HTTP client for S3 requests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithConfigOption adds a custom AWS config option.
func WithConfigOption(option func(*config.LoadOptions) error) Option {
	return func(o *options) {
		o.configOptions = append(o.configOptions, option)
	}
}

// New creates the artifact store. With no WithClient option it builds a real
// SDK client from Config.
func New(ctx context.Context, cfg Config, opts ...Option) (*Storage, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, ErrInvalidConfig
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	client := o.client
	if client == nil {
		awsOptions := []func(*config.LoadOptions) error{
			config.WithRegion(cfg.Region),
		}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions,
				config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID,
					cfg.SecretKey,
					"",
				)),
			)
		}
		if o.httpClient != nil {
			awsOptions = append(awsOptions, config.WithHTTPClient(o.httpClient))
		}
		awsOptions = append(awsOptions, o.configOptions...)

		awsConfig, err := config.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}

		client = s3aws.NewFromConfig(awsConfig, func(so *s3aws.Options) {
			if cfg.Endpoint != "" {
				so.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			so.UsePathStyle = cfg.ForcePathStyle
		})
	}

	presigner := o.presigner
	if presigner == nil {
		if realClient, ok := client.(*s3aws.Client); ok {
			presigner = s3aws.NewPresignClient(realClient)
		}
		// Mock clients must supply their own presigner via WithPresigner.
	}

	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &Storage{
		client:       client,
		presigner:    presigner,
		bucket:       cfg.Bucket,
		signedURLTTL: ttl,
	}, nil
}

// ObjectPath builds the canonical storage key for a certificate artifact.
// The month segment is not zero-padded.
func (s *Storage) ObjectPath(ns tenant.Namespace, certID uuid.UUID, issuedAt time.Time) string {
	at := issuedAt.UTC()
	return fmt.Sprintf("%s/certificates/%d/%d/%s.pdf", ns, at.Year(), int(at.Month()), certID)
}

// Upload stores the artifact bytes under the given key.
func (s *Storage) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	key, err := cleanKey(path)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3aws.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return classifyError(err, "upload artifact")
	}
	return nil
}

// Exists reports whether an object is stored under the key.
func (s *Storage) Exists(ctx context.Context, path string) bool {
	key, err := cleanKey(path)
	if err != nil {
		return false
	}

	_, err = s.client.HeadObject(ctx, &s3aws.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err == nil
}

// Delete removes the object. Missing objects report ErrObjectNotFound so the
// caller can distinguish cleanup races from real failures.
func (s *Storage) Delete(ctx context.Context, path string) error {
	key, err := cleanKey(path)
	if err != nil {
		return err
	}

	if _, err := s.client.HeadObject(ctx, &s3aws.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return classifyError(err, "check artifact")
	}

	if _, err := s.client.DeleteObject(ctx, &s3aws.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return classifyError(err, "delete artifact")
	}
	return nil
}

// SignedURL returns a time-limited download URL for the object.
func (s *Storage) SignedURL(ctx context.Context, path string) (string, error) {
	if s.presigner == nil {
		return "", ErrPresignerNil
	}

	key, err := cleanKey(path)
	if err != nil {
		return "", err
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3aws.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(po *s3aws.PresignOptions) {
		po.Expires = s.signedURLTTL
	})
	if err != nil {
		return "", classifyError(err, "presign artifact url")
	}
	return req.URL, nil
}

// cleanKey rejects traversal sequences so a stored path can never escape the
// bucket layout.
func cleanKey(path string) (string, error) {
	key := strings.TrimPrefix(path, "/")
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	return key, nil
}
