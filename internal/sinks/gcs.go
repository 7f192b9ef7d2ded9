package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// GCSStorer archives each row as a JSON object in a Cloud Storage bucket,
// partitioned by day: <prefix>/YYYY/MM/DD/<id>.json
type GCSStorer struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStorer opens a client for bucket
func NewGCSStorer(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSStorer, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud Storage client: %w", err)
	}
	if prefix == "" {
		prefix = "alerts"
	}
	return &GCSStorer{client: client, bucket: bucket, prefix: prefix}, nil
}

// ObjectName returns the object path for a row
func ObjectName(prefix string, row Row, now time.Time) string {
	id, _ := row["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	return path.Join(prefix, now.UTC().Format("2006/01/02"), id+".json")
}

// Insert implements Storer
func (s *GCSStorer) Insert(ctx context.Context, rows []Row) error {
	for _, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encode row: %w", err)
		}

		name := ObjectName(s.prefix, row, time.Now())
		w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
		w.ContentType = "application/json"
		if _, err := w.Write(data); err != nil {
			_ = w.Close()
			return fmt.Errorf("write gs://%s/%s: %w", s.bucket, name, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("write gs://%s/%s: %w", s.bucket, name, err)
		}
	}
	return nil
}

// Close releases the client
func (s *GCSStorer) Close() error {
	return s.client.Close()
}
