// Package report persists finalized inspection results into the tabular
// inspection log backed by SQLite.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/plantops/inspectd/pkg/models"
)

// StoreConfig holds report store configuration.
type StoreConfig struct {
	Path     string // Path to the SQLite database file
	MaxConns int    // Maximum number of open connections (default: 4)
}

// Store is the SQLite-backed inspection log.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS inspection_records (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	date             TEXT NOT NULL,
	time             TEXT NOT NULL,
	operator         TEXT NOT NULL,
	asset            TEXT NOT NULL,
	item             TEXT NOT NULL,
	outcome          TEXT NOT NULL,
	note             TEXT NOT NULL DEFAULT '',
	evidence_ref     TEXT NOT NULL DEFAULT '',
	verdict          TEXT NOT NULL,
	duration         TEXT NOT NULL DEFAULT '',
	created_at_epoch INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_asset ON inspection_records(asset);
CREATE INDEX IF NOT EXISTS idx_records_epoch ON inspection_records(created_at_epoch);
`

// NewStore opens the database, enabling WAL mode for concurrent readers, and
// creates the schema if needed.
func NewStore(cfg StoreConfig) (*Store, error) {
	dsn := cfg.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open report db: %w", err)
	}

	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping report db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create report schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes one inspection record. Failures are always surfaced to the
// caller; the sink never swallows a write error.
func (s *Store) Append(ctx context.Context, rec *models.InspectionRecord) error {
	const query = `
		INSERT INTO inspection_records
		(date, time, operator, asset, item, outcome, note, evidence_ref, verdict, duration, created_at_epoch)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	epoch := rec.CreatedAtEpoch
	if epoch == 0 {
		epoch = time.Now().UnixMilli()
	}

	result, err := s.db.ExecContext(ctx, query,
		rec.Date, rec.Time, rec.Operator, rec.Asset, rec.Item,
		string(rec.Outcome), rec.Note, rec.EvidenceRef, string(rec.Verdict),
		rec.Duration, epoch,
	)
	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}

	rec.ID, _ = result.LastInsertId()
	rec.CreatedAtEpoch = epoch
	return nil
}

// Records returns the newest records, newest first. limit <= 0 returns all.
func (s *Store) Records(ctx context.Context, limit int) ([]*models.InspectionRecord, error) {
	query := `
		SELECT id, date, time, operator, asset, item, outcome, note,
		       evidence_ref, verdict, duration, created_at_epoch
		FROM inspection_records
		ORDER BY created_at_epoch DESC, id DESC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	return scanRecordRows(rows)
}

// Stats summarizes the inspection log.
type Stats struct {
	TotalRecords  int                      `json:"total_records"`
	PassCount     int                      `json:"pass_count"`
	ReviewCount   int                      `json:"review_count"`
	FaultCount    int                      `json:"fault_count"`
	EvidenceCount int                      `json:"evidence_count"`
	LastRecord    *models.InspectionRecord `json:"last_record,omitempty"`
}

// Stats computes aggregate counts over the whole log plus the latest record.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	const query = `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN evidence_ref != '' THEN 1 ELSE 0 END), 0)
		FROM inspection_records
	`

	var stats Stats
	err := s.db.QueryRowContext(ctx, query,
		string(models.OutcomePass), string(models.OutcomeFlagReview), string(models.OutcomeFlagFault),
	).Scan(&stats.TotalRecords, &stats.PassCount, &stats.ReviewCount, &stats.FaultCount, &stats.EvidenceCount)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}

	if stats.TotalRecords > 0 {
		last, err := s.Records(ctx, 1)
		if err != nil {
			return nil, err
		}
		if len(last) > 0 {
			stats.LastRecord = last[0]
		}
	}
	return &stats, nil
}

// RecordsToday returns the count of records appended today.
func (s *Store) RecordsToday(ctx context.Context) (int, error) {
	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	const query = `SELECT COUNT(*) FROM inspection_records WHERE created_at_epoch >= ?`

	var count int
	err := s.db.QueryRowContext(ctx, query, startOfDay.UnixMilli()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("query records today: %w", err)
	}
	return count, nil
}

// scanRecordRows scans inspection records from rows.
func scanRecordRows(rows *sql.Rows) ([]*models.InspectionRecord, error) {
	var records []*models.InspectionRecord
	for rows.Next() {
		var rec models.InspectionRecord
		if err := rows.Scan(
			&rec.ID, &rec.Date, &rec.Time, &rec.Operator, &rec.Asset, &rec.Item,
			&rec.Outcome, &rec.Note, &rec.EvidenceRef, &rec.Verdict,
			&rec.Duration, &rec.CreatedAtEpoch,
		); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
