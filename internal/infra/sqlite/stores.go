package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/sentrymesh/sentry/internal/domain"
)

// ─── Incident Store ─────────────────────────────────────────────────────────

// SaveIncident inserts or updates an incident snapshot.
func (d *DB) SaveIncident(inc domain.Incident) error {
	body, err := json.Marshal(inc)
	if err != nil {
		return fmt.Errorf("marshal incident %s: %w", inc.ID, err)
	}
	_, err = d.db.Exec(
		`INSERT INTO incidents (id, threat_id, severity, status, created_at, body)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			severity=excluded.severity,
			status=excluded.status,
			body=excluded.body`,
		inc.ID, inc.ThreatID, inc.Severity.String(), inc.Status.String(),
		inc.CreatedAt.Unix(), body,
	)
	return err
}

// GetIncident retrieves one incident by ID.
func (d *DB) GetIncident(id string) (domain.Incident, error) {
	row := d.db.QueryRow(`SELECT body FROM incidents WHERE id = ?`, id)
	return scanIncident(row)
}

// ListIncidents returns incidents with the given status, newest first.
// An empty status returns everything.
func (d *DB) ListIncidents(status string, limit int) ([]domain.Incident, error) {
	query := `SELECT body FROM incidents ORDER BY created_at DESC LIMIT ?`
	args := []any{limit}
	if status != "" {
		query = `SELECT body FROM incidents WHERE status = ? ORDER BY created_at DESC LIMIT ?`
		args = []any{status, limit}
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func scanIncident(s scanner) (domain.Incident, error) {
	var body []byte
	if err := s.Scan(&body); err != nil {
		if err == sql.ErrNoRows {
			return domain.Incident{}, domain.ErrIncidentNotFound
		}
		return domain.Incident{}, err
	}
	var inc domain.Incident
	if err := json.Unmarshal(body, &inc); err != nil {
		return domain.Incident{}, fmt.Errorf("unmarshal incident: %w", err)
	}
	return inc, nil
}

// ─── Action Records ─────────────────────────────────────────────────────────

// AppendActionRecord persists one audit row. Records are append-only;
// the rollback status transition rewrites the stored body in place.
func (d *DB) AppendActionRecord(rec domain.ActionRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal action record %s: %w", rec.ID, err)
	}
	_, err = d.db.Exec(
		`INSERT INTO action_records (id, execution_id, threat_id, action, status, executed_at, body)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, body=excluded.body`,
		rec.ID, rec.ExecutionID, rec.ThreatID, string(rec.Action),
		rec.Status.String(), rec.ExecutedAt.Unix(), body,
	)
	return err
}

// ActionRecords returns the audit trail for one execution, oldest first.
func (d *DB) ActionRecords(executionID string) ([]domain.ActionRecord, error) {
	rows, err := d.db.Query(
		`SELECT body FROM action_records WHERE execution_id = ? ORDER BY executed_at, id`,
		executionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActionRecord
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var rec domain.ActionRecord
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("unmarshal action record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ─── Model Registry ─────────────────────────────────────────────────────────

// SaveModelVersion persists one registry entry. Marking a version active
// deactivates its siblings.
func (d *DB) SaveModelVersion(v domain.ModelVersion) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal model version %s: %w", v.ID, err)
	}

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if v.Active {
		if _, err := tx.Exec(
			`UPDATE model_registry SET active = 0 WHERE model_name = ?`, v.ModelName,
		); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(
		`INSERT INTO model_registry (id, model_name, version, trained_at, active, body)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET active=excluded.active, body=excluded.body`,
		v.ID, v.ModelName, v.Version, v.TrainedAt.Unix(), v.Active, body,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// ActiveModelVersion returns the active version for a model.
func (d *DB) ActiveModelVersion(model string) (domain.ModelVersion, error) {
	row := d.db.QueryRow(
		`SELECT body FROM model_registry WHERE model_name = ? AND active = 1`, model,
	)
	var body []byte
	if err := row.Scan(&body); err != nil {
		if err == sql.ErrNoRows {
			return domain.ModelVersion{}, domain.ErrModelNotFound
		}
		return domain.ModelVersion{}, err
	}
	var v domain.ModelVersion
	if err := json.Unmarshal(body, &v); err != nil {
		return domain.ModelVersion{}, fmt.Errorf("unmarshal model version: %w", err)
	}
	return v, nil
}

// ModelVersions returns all versions of a model, oldest first.
func (d *DB) ModelVersions(model string) ([]domain.ModelVersion, error) {
	rows, err := d.db.Query(
		`SELECT body FROM model_registry WHERE model_name = ? ORDER BY version`, model,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ModelVersion
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var v domain.ModelVersion
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("unmarshal model version: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ─── Feedback Store ─────────────────────────────────────────────────────────

// SaveFeedback persists one feedback record.
func (d *DB) SaveFeedback(fb domain.OperationalFeedback) error {
	body, err := json.Marshal(fb)
	if err != nil {
		return fmt.Errorf("marshal feedback %s: %w", fb.ID, err)
	}
	_, err = d.db.Exec(
		`INSERT OR IGNORE INTO feedback (id, threat_id, submitted_at, body) VALUES (?, ?, ?, ?)`,
		fb.ID, fb.ThreatID, fb.SubmittedAt.Unix(), body,
	)
	return err
}

// RecentFeedback returns the newest feedback records, oldest first, so
// the training buffer can be replayed in submission order.
func (d *DB) RecentFeedback(limit int) ([]domain.OperationalFeedback, error) {
	rows, err := d.db.Query(
		`SELECT body FROM (
			SELECT body, submitted_at FROM feedback ORDER BY submitted_at DESC LIMIT ?
		 ) ORDER BY submitted_at`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.OperationalFeedback
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var fb domain.OperationalFeedback
		if err := json.Unmarshal(body, &fb); err != nil {
			return nil, fmt.Errorf("unmarshal feedback: %w", err)
		}
		out = append(out, fb)
	}
	return out, rows.Err()
}
