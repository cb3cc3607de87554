package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"alerts_ingestor/internal/model"
	"alerts_ingestor/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const alertColumns = `id, aggregator_platform, publication_source_url, publication_datetime, raw_data,
	summarization_status, summarization_text, tagging_status, tags`

// SQLite implements Store backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// AddIfNotDuplicate checks for an existing alert with the same source URL and
// inserts rec if there is none. On insert rec.ID is populated.
func (s *SQLite) AddIfNotDuplicate(ctx context.Context, rec *model.AlertRecord) (string, bool, error) {
	if rec.PublicationSourceURL == "" {
		return "", false, ErrMissingSourceURL
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE publication_source_url = ?`, rec.PublicationSourceURL,
	).Scan(&count)
	if err != nil {
		return "", false, fmt.Errorf("check duplicate: %w", err)
	}
	if count > 0 {
		return "", false, nil
	}

	return s.insert(ctx, rec)
}

// AddBatchIfNotDuplicate adds each record in order and returns the IDs of the
// inserted ones.
func (s *SQLite) AddBatchIfNotDuplicate(ctx context.Context, recs []model.AlertRecord) ([]string, error) {
	return addBatch(ctx, s, recs)
}

// insert writes rec unconditionally. A unique index violation is reported as
// a duplicate, which covers a concurrent writer winning the race after the
// existence check.
func (s *SQLite) insert(ctx context.Context, rec *model.AlertRecord) (string, bool, error) {
	raw, err := json.Marshal(rec.RawData)
	if err != nil {
		return "", false, fmt.Errorf("encode raw data: %w", err)
	}
	tags := rec.Tagging.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", false, fmt.Errorf("encode tags: %w", err)
	}
	summaryStatus, err := rec.Summarization.Status.MarshalText()
	if err != nil {
		return "", false, err
	}
	taggingStatus, err := rec.Tagging.Status.MarshalText()
	if err != nil {
		return "", false, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (aggregator_platform, publication_source_url, publication_datetime, raw_data,
		   summarization_status, summarization_text, tagging_status, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.AggregatorPlatform), rec.PublicationSourceURL, rec.PublicationDatetime, string(raw),
		string(summaryStatus), rec.Summarization.Text, string(taggingStatus), string(tagsJSON),
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("insert alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", false, fmt.Errorf("last insert id: %w", err)
	}
	rec.ID = strconv.FormatInt(id, 10)
	return rec.ID, true, nil
}

// Get returns a single alert by its ID.
func (s *SQLite) Get(ctx context.Context, id string) (*model.AlertRecord, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, n)
	rec, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List returns all alerts in insertion order.
func (s *SQLite) List(ctx context.Context) ([]model.AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []model.AlertRecord
	for rows.Next() {
		rec, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *rec)
	}
	return alerts, rows.Err()
}

// Delete removes an alert by its ID.
func (s *SQLite) Delete(ctx context.Context, id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, n)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of stored alerts.
func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(se.Error(), "UNIQUE")
	}
	return false
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAlert(row scannable) (*model.AlertRecord, error) {
	var (
		rec                          model.AlertRecord
		id                           int64
		platform, raw, tags          string
		summaryStatus, taggingStatus string
		summaryText                  sql.NullString
	)
	err := row.Scan(&id, &platform, &rec.PublicationSourceURL, &rec.PublicationDatetime, &raw,
		&summaryStatus, &summaryText, &taggingStatus, &tags)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	rec.ID = strconv.FormatInt(id, 10)
	rec.AggregatorPlatform = model.AggregatorPlatform(platform)
	if err := json.Unmarshal([]byte(raw), &rec.RawData); err != nil {
		return nil, fmt.Errorf("decode raw data: %w", err)
	}
	if err := rec.Summarization.Status.UnmarshalText([]byte(summaryStatus)); err != nil {
		return nil, err
	}
	if summaryText.Valid {
		rec.Summarization.Text = &summaryText.String
	}
	if err := rec.Tagging.Status.UnmarshalText([]byte(taggingStatus)); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &rec.Tagging.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	return &rec, nil
}
