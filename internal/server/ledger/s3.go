package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/dsemenov/datavault/internal/common"
)

// S3Client is a content-addressed ledger over an S3-compatible backend
// (MinIO in development). The object key is the hex SHA-256 of the payload,
// which doubles as the content identifier: writes are idempotent per payload
// and the stored bytes can never drift from their id.
//
// Objects are only ever put and got, never deleted, matching the append-only
// contract.
type S3Client struct {
	api     s3API
	bucket  string
	timeout time.Duration
}

// s3API is the subset of *s3.Client used, as a seam for tests.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config carries the settings for the S3-compatible backend.
type S3Config struct {
	User         string
	Password     string
	Bucket       string
	Region       string
	BaseEndpoint string
	Timeout      time.Duration
}

// NewS3Client builds a content-addressed ledger client over the configured
// S3-compatible endpoint.
func NewS3Client(ctx context.Context, cfg S3Config) (*S3Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.User, cfg.Password, "",
		)))
	if err != nil {
		return nil, fmt.Errorf("s3 config error: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Client{api: api, bucket: cfg.Bucket, timeout: cfg.Timeout}, nil
}

// Write stores payload under its SHA-256 key and returns the key.
func (c *S3Client) Write(ctx context.Context, payload []byte) (string, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	sum := sha256.Sum256(payload)
	key := hex.EncodeToString(sum[:])

	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return "", wrapTimeout(err)
	}
	return key, nil
}

// Read fetches the bytes stored under id.
func (c *S3Client) Read(ctx context.Context, id string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: object %s", common.ErrNotFound, id)
		}
		return nil, wrapTimeout(err)
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}
