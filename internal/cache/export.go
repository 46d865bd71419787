package cache

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Exporter ships durable-tier rows to S3 as a cold-storage backup,
// keyed by category/date so a day's snapshot can be restored wholesale.
// Disabled when no bucket is configured.
type Exporter struct {
	client  *s3.Client
	bucket  string
	durable *Durable
	log     zerolog.Logger
}

// NewExporter builds an S3-backed exporter for the given bucket/region. It
// returns (nil, nil) when bucket is empty, signalling that export is
// disabled for this deployment rather than misconfigured.
func NewExporter(ctx context.Context, bucket, region string, durable *Durable, log zerolog.Logger) (*Exporter, error) {
	if bucket == "" {
		return nil, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config for durable-tier export: %w", err)
	}

	return &Exporter{
		client:  s3.NewFromConfig(cfg),
		bucket:  bucket,
		durable: durable,
		log:     log.With().Str("component", "cache_export").Logger(),
	}, nil
}

// Run satisfies cron.Job: it snapshots every category's non-expired rows to
// a dated object key once per scheduled tick.
func (e *Exporter) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for category := range categoryTables {
		rows, packed, err := e.durable.snapshot(category)
		if err != nil {
			e.log.Error().Err(err).Str("category", string(category)).Msg("durable-tier snapshot failed")
			continue
		}
		if rows == 0 {
			continue
		}

		key := fmt.Sprintf("cache-export/%s/%s.msgpack", category, time.Now().UTC().Format("2006-01-02"))
		_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(e.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(packed),
		})
		if err != nil {
			e.log.Error().Err(err).Str("category", string(category)).Msg("durable-tier export upload failed")
			continue
		}
		e.log.Info().Str("category", string(category)).Str("key", key).Int("rows", rows).Msg("durable-tier snapshot exported")
	}
}
