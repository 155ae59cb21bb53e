package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sentrymesh/sentry/internal/domain"
)

// validSteps are the query resolutions the store supports.
var validSteps = map[time.Duration]bool{
	time.Second:     true,
	time.Minute:     true,
	5 * time.Minute: true,
	time.Hour:       true,
	24 * time.Hour:  true,
}

// Name identifies this sink to the batcher.
func (d *DB) Name() string { return "sqlite" }

// WriteBatch persists a batch of enriched events. Duplicate fingerprints
// are ignored; the first write wins.
func (d *DB) WriteBatch(ctx context.Context, events []domain.EnrichedEvent) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO events (fingerprint, source, kind, severity, processed_at, body)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.OriginalHash, err)
		}
		if _, err := stmt.ExecContext(ctx,
			e.OriginalHash, e.Raw.Source, string(e.Raw.Kind),
			e.Severity.String(), e.ProcessedAt.Unix(), body,
		); err != nil {
			return fmt.Errorf("write event %s: %w", e.OriginalHash, err)
		}
	}
	return tx.Commit()
}

// EventCount returns the number of persisted events.
func (d *DB) EventCount() (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

// ─── Time Series ────────────────────────────────────────────────────────────

// WritePoint appends one metric observation.
func (d *DB) WritePoint(p domain.TimeSeriesPoint) error {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	if p.Tags == nil {
		tags = []byte("{}")
	}
	_, err = d.db.Exec(
		`INSERT INTO timeseries (metric, ts, value, tags) VALUES (?, ?, ?, ?)`,
		p.Metric, p.Timestamp.UnixNano(), p.Value, tags,
	)
	return err
}

// QueryRange returns per-step averages of a metric over [start, end].
// Buckets with no observations are omitted.
func (d *DB) QueryRange(metric string, start, end time.Time, step time.Duration) ([]domain.TimeSeriesPoint, error) {
	if !validSteps[step] {
		return nil, domain.ErrInvalidStep
	}

	stepNs := step.Nanoseconds()
	rows, err := d.db.Query(
		`SELECT (ts / ?) * ?, AVG(value)
		 FROM timeseries
		 WHERE metric = ? AND ts >= ? AND ts <= ?
		 GROUP BY ts / ?
		 ORDER BY 1`,
		stepNs, stepNs, metric, start.UnixNano(), end.UnixNano(), stepNs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TimeSeriesPoint
	for rows.Next() {
		var bucket int64
		var value float64
		if err := rows.Scan(&bucket, &value); err != nil {
			return nil, err
		}
		out = append(out, domain.TimeSeriesPoint{
			Timestamp: time.Unix(0, bucket).UTC(),
			Metric:    metric,
			Value:     value,
		})
	}
	return out, rows.Err()
}

// QueryInstant returns the newest observation of a metric at or before
// the given instant.
func (d *DB) QueryInstant(metric string, ts time.Time) (domain.TimeSeriesPoint, error) {
	row := d.db.QueryRow(
		`SELECT ts, value, tags FROM timeseries
		 WHERE metric = ? AND ts <= ?
		 ORDER BY ts DESC LIMIT 1`,
		metric, ts.UnixNano(),
	)

	var at int64
	var value float64
	var tags []byte
	if err := row.Scan(&at, &value, &tags); err != nil {
		if err == sql.ErrNoRows {
			return domain.TimeSeriesPoint{}, domain.ErrUnknownMetric
		}
		return domain.TimeSeriesPoint{}, err
	}

	p := domain.TimeSeriesPoint{
		Timestamp: time.Unix(0, at).UTC(),
		Metric:    metric,
		Value:     value,
	}
	if len(tags) > 0 && string(tags) != "{}" {
		if err := json.Unmarshal(tags, &p.Tags); err != nil {
			return domain.TimeSeriesPoint{}, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return p, nil
}

// DeleteOld removes observations and events older than the cutoff.
// Returns the number of deleted time-series rows.
func (d *DB) DeleteOld(before time.Time) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM timeseries WHERE ts < ?`, before.UnixNano())
	if err != nil {
		return 0, err
	}
	deleted, _ := res.RowsAffected()
	if _, err := d.db.Exec(`DELETE FROM events WHERE processed_at < ?`, before.Unix()); err != nil {
		return deleted, err
	}
	return deleted, nil
}

// ─── Retention ──────────────────────────────────────────────────────────────

// CreateRetention registers or updates a named retention policy.
func (d *DB) CreateRetention(name string, days int) error {
	if days <= 0 {
		return fmt.Errorf("retention %s: days must be positive", name)
	}
	_, err := d.db.Exec(
		`INSERT INTO retention_policies (name, days) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET days=excluded.days`,
		name, days,
	)
	return err
}

// Retention returns a policy's configured days.
func (d *DB) Retention(name string) (int, error) {
	var days int
	err := d.db.QueryRow(`SELECT days FROM retention_policies WHERE name = ?`, name).Scan(&days)
	if err == sql.ErrNoRows {
		return 0, domain.ErrNoSuchRetention
	}
	return days, err
}

// ApplyRetention runs every policy against the store, deleting data
// older than the shortest policy allows. Returns rows deleted.
func (d *DB) ApplyRetention(now time.Time) (int64, error) {
	rows, err := d.db.Query(`SELECT days FROM retention_policies`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	maxDays := 0
	for rows.Next() {
		var days int
		if err := rows.Scan(&days); err != nil {
			return 0, err
		}
		if days > maxDays {
			maxDays = days
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if maxDays == 0 {
		return 0, nil
	}
	return d.DeleteOld(now.AddDate(0, 0, -maxDays))
}
