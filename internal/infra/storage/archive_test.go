package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auditflow/api/internal/config"
	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/logger"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archive_Store(t *testing.T) {
	putter := &fakePutter{}
	archive := NewS3ArchiveWithClient(putter, "artifacts", logger.NewNop())

	result := &finding.ScanResult{
		ScanSummary: "2 findings",
		Stats:       finding.ScanStats{FilesSelected: 3},
	}
	require.NoError(t, archive.Store(context.Background(), 12, "scan-9", result))

	require.NotNil(t, putter.input)
	assert.Equal(t, "artifacts", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "scans/12/scan-9.json.gz", aws.ToString(putter.input.Key))
	assert.Equal(t, "gzip", aws.ToString(putter.input.ContentEncoding))
	assert.Equal(t, int64(len(putter.body)), aws.ToInt64(putter.input.ContentLength))

	zr, err := gzip.NewReader(bytes.NewReader(putter.body))
	require.NoError(t, err)
	var decoded finding.ScanResult
	require.NoError(t, json.NewDecoder(zr).Decode(&decoded))
	assert.Equal(t, "2 findings", decoded.ScanSummary)
	assert.Equal(t, 3, decoded.Stats.FilesSelected)
}

func TestS3Archive_StoreError(t *testing.T) {
	archive := NewS3ArchiveWithClient(&fakePutter{err: errors.New("access denied")}, "b", logger.NewNop())

	err := archive.Store(context.Background(), 1, "s", &finding.ScanResult{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scans/1/s.json.gz")
}

func TestNewS3Archive_RequiresBucket(t *testing.T) {
	_, err := NewS3Archive(context.Background(), &config.StorageConfig{}, logger.NewNop())
	assert.Error(t, err)
}

func TestNopArchive(t *testing.T) {
	assert.NoError(t, NopArchive{}.Store(context.Background(), 1, "s", nil))
}
