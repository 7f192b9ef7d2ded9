package sinks

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/hashicorp/go-multierror"
	"google.golang.org/api/option"
)

// BigQueryStorer streams rows into a BigQuery table
type BigQueryStorer struct {
	client   *bigquery.Client
	inserter *bigquery.Inserter
	table    string
}

// NewBigQueryStorer opens an inserter for projectID.dataset.table
func NewBigQueryStorer(ctx context.Context, projectID, dataset, table string, opts ...option.ClientOption) (*BigQueryStorer, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create BigQuery client: %w", err)
	}

	ins := client.Dataset(dataset).Table(table).Inserter()
	// Flattened alerts carry free-form metric keys the table may not have
	ins.IgnoreUnknownValues = true

	return &BigQueryStorer{
		client:   client,
		inserter: ins,
		table:    fmt.Sprintf("%s.%s.%s", projectID, dataset, table),
	}, nil
}

// bqRow saves a Row without a dedupe id; delivery is at-least-once
type bqRow Row

// Save implements bigquery.ValueSaver
func (r bqRow) Save() (map[string]bigquery.Value, string, error) {
	out := make(map[string]bigquery.Value, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out, bigquery.NoDedupeID, nil
}

// Insert implements Storer. Per-row failures are returned as they were
// reported by BigQuery.
func (s *BigQueryStorer) Insert(ctx context.Context, rows []Row) error {
	savers := make([]bigquery.ValueSaver, 0, len(rows))
	for _, r := range rows {
		savers = append(savers, bqRow(r))
	}

	err := s.inserter.Put(ctx, savers)
	if err == nil {
		return nil
	}

	if multi, ok := err.(bigquery.PutMultiError); ok {
		var result *multierror.Error
		for _, rowErr := range multi {
			result = multierror.Append(result, fmt.Errorf("%s row %d: %v", s.table, rowErr.RowIndex, rowErr.Errors))
		}
		return result.ErrorOrNil()
	}
	return fmt.Errorf("insert into %s: %w", s.table, err)
}

// Close releases the client
func (s *BigQueryStorer) Close() error {
	return s.client.Close()
}
