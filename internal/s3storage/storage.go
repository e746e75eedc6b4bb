// Package s3storage archives delivered audit reports in an S3 compatible
// bucket and hands out short-lived download links for them.
package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nexusai/auditoria/internal/config"
)

// ReportArchive wraps MinIO/S3 interactions for delivered reports.
type ReportArchive struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*ReportArchive, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &ReportArchive{
		client: client,
		bucket: cfg.ReportBucket,
		region: cfg.S3Region,
	}, nil
}

// EnsureBucket makes sure the report bucket exists before use.
func (a *ReportArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", a.bucket, err)
		}
	}
	return nil
}

// ReportKey is the object key a report for orderID is stored under.
func ReportKey(orderID string) string {
	return path.Join("reports", path.Base(orderID)+".json")
}

// UploadReport stores the JSON report for orderID and returns its key.
func (a *ReportArchive) UploadReport(ctx context.Context, orderID string, data []byte) (string, error) {
	key := ReportKey(orderID)
	opts := minio.PutObjectOptions{ContentType: "application/json; charset=utf-8"}
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return "", fmt.Errorf("upload report: %w", err)
	}
	return key, nil
}

// PresignReportURL returns a signed GET URL for an archived report.
func (a *ReportArchive) PresignReportURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(key)))
	u, err := a.client.PresignedGetObject(ctx, a.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign report: %w", err)
	}
	return u.String(), nil
}
