package ledgerexport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ContestHub/app/models"
)

// EntryLister reads ledger entries paid in [from, to).
type EntryLister interface {
	EntriesPaidBetween(ctx context.Context, from, to time.Time) ([]models.LedgerEntry, error)
}

// Uploader is the subset of the S3 API the exporter needs.
type Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter writes daily ledger snapshots to object storage. It never writes
// to the ledger.
type Exporter struct {
	entries  EntryLister
	uploader Uploader
	bucket   string
}

// NewExporter creates an exporter on an existing uploader
func NewExporter(entries EntryLister, uploader Uploader, bucket string) *Exporter {
	return &Exporter{entries: entries, uploader: uploader, bucket: bucket}
}

// NewS3Exporter builds an S3 client from cfg and wraps it in an Exporter
func NewS3Exporter(ctx context.Context, cfg *Config, entries EntryLister) (*Exporter, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("ledger export is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible providers (MinIO, B2) want path-style URLs
			o.UsePathStyle = true
		}
	})

	log.Infof("[LedgerExport] Exporting to bucket %s", cfg.BucketName)
	return NewExporter(entries, client, cfg.BucketName), nil
}

// ExportDay uploads the entries paid on day (UTC) as JSON Lines. Days without
// payments still produce an empty object so gaps are visible downstream.
func (e *Exporter) ExportDay(ctx context.Context, day time.Time) (string, int, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	entries, err := e.entries.EntriesPaidBetween(ctx, from, to)
	if err != nil {
		return "", 0, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return "", 0, fmt.Errorf("failed to encode ledger entry %s: %w", entries[i].TransactionID, err)
		}
	}

	key := ObjectKey(from)
	_, err = e.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(e.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentType:   aws.String("application/x-ndjson"),
		ContentLength: aws.Int64(int64(buf.Len())),
		Metadata: map[string]string{
			"upload-source": "contesthub-ledger-export",
			"entry-count":   fmt.Sprintf("%d", len(entries)),
		},
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload %s: %w", key, err)
	}

	log.Infof("[LedgerExport] Uploaded %d entries to s3://%s/%s", len(entries), e.bucket, key)
	return key, len(entries), nil
}
