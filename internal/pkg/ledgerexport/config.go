package ledgerexport

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/ContestHub/internal/pkg/env"
)

// Config holds the ledger export target
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Enabled         bool
}

// LoadConfig loads the export configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Enabled:         env.GetEnvBool("LEDGER_EXPORT_ENABLED", false),
	}

	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when ledger export is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when ledger export is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when ledger export is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if the daily export is switched on
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectKey returns the object key for one UTC day: ledger/YYYY/MM/DD.jsonl
func ObjectKey(day time.Time) string {
	day = day.UTC()
	return fmt.Sprintf("ledger/%04d/%02d/%02d.jsonl", day.Year(), int(day.Month()), day.Day())
}
