// Package storage archives finished import reports to S3-compatible object
// storage (AWS S3, Cloudflare R2, MinIO).
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/config"
	"github.com/codenamekii/Sukamaju-run-2025-V2-sub000/internal/core"
)

// objectPutter is the subset of *s3.Client the archive uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ReportArchive writes import reports as JSON objects under a key prefix.
type ReportArchive struct {
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
}

var _ core.ReportArchiver = (*ReportArchive)(nil)

// NewReportArchive builds an S3 client from cfg. Static credentials are used
// when both keys are set, otherwise the default AWS credential chain. A
// custom endpoint switches to path-style addressing.
func NewReportArchive(ctx context.Context, cfg config.StorageConfig) (*ReportArchive, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	sdkCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(sdkCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newReportArchive(client, cfg.Bucket, cfg.Prefix), nil
}

func newReportArchive(client objectPutter, bucket, prefix string) *ReportArchive {
	return &ReportArchive{client: client, bucket: bucket, prefix: prefix, now: time.Now}
}

// Key returns the object key of an import report: prefix/YYYY/MM/DD/<id>.json.
func (a *ReportArchive) Key(importID string, at time.Time) string {
	return path.Join(a.prefix, at.UTC().Format("2006/01/02"), importID+".json")
}

// ArchiveImportReport uploads report and returns its object key.
func (a *ReportArchive) ArchiveImportReport(ctx context.Context, importID string, report *core.ImportReport) (string, error) {
	body, err := json.MarshalIndent(struct {
		ImportID   string             `json:"importId"`
		ArchivedAt time.Time          `json:"archivedAt"`
		Report     *core.ImportReport `json:"report"`
	}{importID, a.now().UTC(), report}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode import report: %w", err)
	}

	key := a.Key(importID, a.now())
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload import report (key: %s): %w", key, err)
	}
	return key, nil
}
