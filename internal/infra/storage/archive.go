// Package storage archives terminal scan results in S3-compatible storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/klauspost/compress/gzip"

	"github.com/auditflow/api/internal/config"
	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/logger"
)

// ObjectPutter is the subset of the S3 client used by the archive.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive stores gzip-compressed scan results.
type S3Archive struct {
	client ObjectPutter
	bucket string
	logger *logger.Logger
}

// NewS3Archive creates an archive for the configured bucket. Static keys
// take precedence; otherwise RoleARN is assumed through STS on top of the
// default credential chain.
func NewS3Archive(ctx context.Context, cfg *config.StorageConfig, log *logger.Logger) (*S3Archive, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("storage bucket is not configured")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	switch {
	case cfg.AccessKeyID != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	case cfg.RoleARN != "":
		base, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(base), cfg.RoleARN,
			func(o *stscreds.AssumeRoleOptions) {
				if cfg.ExternalID != "" {
					o.ExternalID = aws.String(cfg.ExternalID)
				}
			})
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.NewCredentialsCache(provider)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewS3ArchiveWithClient(client, cfg.Bucket, log), nil
}

// NewS3ArchiveWithClient creates an archive over an existing client.
func NewS3ArchiveWithClient(client ObjectPutter, bucket string, log *logger.Logger) *S3Archive {
	return &S3Archive{
		client: client,
		bucket: bucket,
		logger: log.With("component", "scan_archive"),
	}
}

// ObjectKey returns the key a scan result is stored under.
func ObjectKey(repoID int64, scanID string) string {
	return fmt.Sprintf("scans/%d/%s.json.gz", repoID, scanID)
}

// Store implements scan.Archive.
func (a *S3Archive) Store(ctx context.Context, repoID int64, scanID string, result *finding.ScanResult) error {
	body, err := compress(result)
	if err != nil {
		return err
	}

	key := ObjectKey(repoID, scanID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentLength:   aws.Int64(int64(len(body))),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	a.logger.Debug("scan result archived", "key", key, "bytes", len(body))
	return nil
}

func compress(result *finding.ScanResult) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(result); err != nil {
		return nil, fmt.Errorf("encode scan result: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress scan result: %w", err)
	}
	return buf.Bytes(), nil
}

// NopArchive discards scan results.
type NopArchive struct{}

// Store implements scan.Archive.
func (NopArchive) Store(context.Context, int64, string, *finding.ScanResult) error { return nil }
