package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pratik-mahalle/secwatch/internal/domain/alert"
	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
	"github.com/pratik-mahalle/secwatch/internal/pkg/metrics"
)

// timestampLayout is fixed width so text timestamps in SQLite sort correctly
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

type AlertRepository struct {
	db *sql.DB
}

func NewAlertRepository(db *sql.DB) alert.Repository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Create(ctx context.Context, e *alert.HistoryEntry) (int64, error) {
	defer observe("insert", time.Now())

	var metricsJSON sql.NullString
	if len(e.Metrics) > 0 {
		data, err := json.Marshal(e.Metrics)
		if err != nil {
			return 0, errors.DatabaseError("Failed to encode alert metrics", err)
		}
		metricsJSON = sql.NullString{String: string(data), Valid: true}
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO alert_history (alert_id, alert_name, severity, instance, description,
			source_ip, user_name, metrics, occurred_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		e.AlertID, e.Name, e.Severity, e.Instance, e.Description,
		nullString(e.SourceIP), nullString(e.User), metricsJSON,
		e.OccurredAt.UTC().Format(timestampLayout), now.Format(timestampLayout),
	).Scan(&id)
	if err != nil {
		return 0, errors.DatabaseError("Failed to store alert history", err)
	}

	e.ID = id
	e.CreatedAt = now
	return id, nil
}

func (r *AlertRepository) List(ctx context.Context, filter alert.Filter, limit, offset int) ([]*alert.HistoryEntry, int64, error) {
	defer observe("select", time.Now())

	var where []string
	var args []interface{}
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("alert_name", filter.Name)
	add("severity", filter.Severity)
	add("source_ip", filter.SourceIP)

	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_history "+clause, args...).Scan(&total); err != nil {
		return nil, 0, errors.DatabaseError("Failed to count alert history", err)
	}

	query := fmt.Sprintf(`
		SELECT id, alert_id, alert_name, severity, instance, description,
			source_ip, user_name, metrics, occurred_at, created_at
		FROM alert_history %s
		ORDER BY occurred_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, clause, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.DatabaseError("Failed to list alert history", err)
	}
	defer rows.Close()

	entries := make([]*alert.HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			e                     alert.HistoryEntry
			sourceIP, user, mjson sql.NullString
			occurredAt, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.AlertID, &e.Name, &e.Severity, &e.Instance, &e.Description,
			&sourceIP, &user, &mjson, &occurredAt, &createdAt); err != nil {
			return nil, 0, errors.DatabaseError("Failed to scan alert history", err)
		}

		e.SourceIP = sourceIP.String
		e.User = user.String
		if mjson.Valid && mjson.String != "" {
			if err := json.Unmarshal([]byte(mjson.String), &e.Metrics); err != nil {
				return nil, 0, errors.DatabaseError("Failed to decode alert metrics", err)
			}
		}
		e.OccurredAt = parseTimestamp(occurredAt)
		e.CreatedAt = parseTimestamp(createdAt)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.DatabaseError("Failed to iterate alert history", err)
	}

	return entries, total, nil
}

func observe(operation string, start time.Time) {
	metrics.RecordDBQuery(operation, "alert_history", time.Since(start))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// parseTimestamp accepts what either driver hands back for a timestamp column
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
