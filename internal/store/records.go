package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Record statuses.
const (
	StatusDraft   = "draft"
	StatusPublish = "publish"
	StatusFuture  = "future"
	StatusPending = "pending"
	StatusTrash   = "trash"
)

// LiveStatuses are every status except trash.
var LiveStatuses = []string{StatusDraft, StatusPublish, StatusFuture, StatusPending}

// AllStatuses includes trashed records.
var AllStatuses = []string{StatusDraft, StatusPublish, StatusFuture, StatusPending, StatusTrash}

// Record is a stored content item with its metadata.
type Record struct {
	ID         int64
	Type       string
	Title      string
	Status     string
	Date       time.Time // original creation time of the item
	InsertedAt time.Time
	Meta       map[string][]string
}

// MetaValue returns the first value stored under key, or "".
func (r Record) MetaValue(key string) string {
	if vs := r.Meta[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

type RecordInput struct {
	Type   string
	Title  string
	Status string
	Date   time.Time
}

// Filter selects records for FindRecords. Zero fields do not filter.
type Filter struct {
	Type      string
	MetaKey   string // when set, records must carry this key
	MetaValue string // compared only when MetaKey is set
	Statuses  []string

	// OrderMetaKey orders by the numeric value of a metadata key; records
	// missing the key sort last. When empty, OrderByDate picks the record
	// date, otherwise the insertion id is used.
	OrderMetaKey string
	OrderByDate  bool
	Descending   bool

	Limit int
}

// Meta is one metadata row written by CreateRecordWithMeta.
type Meta struct {
	Key    string
	Value  string
	Unique bool // fail with ErrMetaExists if key is already present
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) CreateRecord(ctx context.Context, in RecordInput) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	return s.insertRecord(ctx, s.db, in)
}

// CreateRecordWithMeta inserts a record and all of its metadata in one
// transaction. On any error nothing is stored.
func (s *Store) CreateRecordWithMeta(ctx context.Context, in RecordInput, meta []Meta) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create record: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id, err := s.insertRecord(ctx, tx, in)
	if err != nil {
		return 0, err
	}
	for _, m := range meta {
		if err := insertMeta(ctx, tx, id, m); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit record: %w", err)
	}
	return id, nil
}

func (s *Store) insertRecord(ctx context.Context, q execer, in RecordInput) (int64, error) {
	if strings.TrimSpace(in.Type) == "" {
		return 0, errors.New("type is required")
	}
	if strings.TrimSpace(in.Status) == "" {
		return 0, errors.New("status is required")
	}

	date := in.Date
	now := s.now()
	if date.IsZero() {
		date = now
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO records (type, title, status, date, inserted_at)
		VALUES (?, ?, ?, ?, ?)
	`, in.Type, in.Title, in.Status, formatTime(date), formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("record id: %w", err)
	}
	return id, nil
}

// AttachMeta appends a key/value pair to a record. With unique set, an
// existing value for key makes the call fail with ErrMetaExists.
func (s *Store) AttachMeta(ctx context.Context, id int64, key, value string, unique bool) error {
	if err := s.ready(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attach meta: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE id = ?", id).Scan(&exists); err != nil {
		return fmt.Errorf("check record: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("record %d: %w", id, ErrRecordNotFound)
	}
	if err := insertMeta(ctx, tx, id, Meta{Key: key, Value: value, Unique: unique}); err != nil {
		return err
	}
	return tx.Commit()
}

func insertMeta(ctx context.Context, q execer, id int64, m Meta) error {
	if strings.TrimSpace(m.Key) == "" {
		return errors.New("meta key is required")
	}
	if m.Unique {
		var n int
		if err := q.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM record_meta WHERE record_id = ? AND key = ?", id, m.Key,
		).Scan(&n); err != nil {
			return fmt.Errorf("check meta %s: %w", m.Key, err)
		}
		if n > 0 {
			return fmt.Errorf("record %d meta %s: %w", id, m.Key, ErrMetaExists)
		}
	}
	if _, err := q.ExecContext(ctx,
		"INSERT INTO record_meta (record_id, key, value) VALUES (?, ?, ?)", id, m.Key, m.Value,
	); err != nil {
		return fmt.Errorf("insert meta %s: %w", m.Key, err)
	}
	return nil
}

// FindRecords returns matching records with their metadata loaded.
func (s *Store) FindRecords(ctx context.Context, f Filter) ([]Record, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if f.Type != "" {
		where = append(where, "r.type = ?")
		args = append(args, f.Type)
	}
	if len(f.Statuses) > 0 {
		where = append(where, fmt.Sprintf("r.status IN (%s)", placeholders(len(f.Statuses))))
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	if f.MetaKey != "" {
		where = append(where, "EXISTS (SELECT 1 FROM record_meta m WHERE m.record_id = r.id AND m.key = ? AND m.value = ?)")
		args = append(args, f.MetaKey, f.MetaValue)
	}

	query := "SELECT r.id, r.type, r.title, r.status, r.date, r.inserted_at FROM records r"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	dir := "ASC"
	if f.Descending {
		dir = "DESC"
	}
	switch {
	case f.OrderMetaKey != "":
		sortKey := "(SELECT CAST(om.value AS INTEGER) FROM record_meta om WHERE om.record_id = r.id AND om.key = ? ORDER BY om.id LIMIT 1)"
		query += fmt.Sprintf(" ORDER BY %s IS NULL, %s %s, r.id %s", sortKey, sortKey, dir, dir)
		args = append(args, f.OrderMetaKey, f.OrderMetaKey)
	case f.OrderByDate:
		query += fmt.Sprintf(" ORDER BY r.date %s, r.id %s", dir, dir)
	default:
		query += " ORDER BY r.id " + dir
	}

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return records, nil
	}

	if err := s.loadMeta(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetRecord loads one record by id.
func (s *Store) GetRecord(ctx context.Context, id int64) (Record, error) {
	if err := s.ready(); err != nil {
		return Record{}, err
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, type, title, status, date, inserted_at FROM records WHERE id = ?", id)
	if err != nil {
		return Record{}, fmt.Errorf("get record: %w", err)
	}
	records, err := scanRecords(rows)
	if err != nil {
		return Record{}, err
	}
	if len(records) == 0 {
		return Record{}, fmt.Errorf("record %d: %w", id, ErrRecordNotFound)
	}
	if err := s.loadMeta(ctx, records); err != nil {
		return Record{}, err
	}
	return records[0], nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		var (
			r                Record
			date, insertedAt string
		)
		if err := rows.Scan(&r.ID, &r.Type, &r.Title, &r.Status, &date, &insertedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var err error
		if r.Date, err = parseTime(date); err != nil {
			return nil, fmt.Errorf("parse date: %w", err)
		}
		if r.InsertedAt, err = parseTime(insertedAt); err != nil {
			return nil, fmt.Errorf("parse inserted_at: %w", err)
		}
		r.Meta = make(map[string][]string)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func (s *Store) loadMeta(ctx context.Context, records []Record) error {
	index := make(map[int64]int, len(records))
	args := make([]any, len(records))
	for i, r := range records {
		index[r.ID] = i
		args[i] = r.ID
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT record_id, key, value FROM record_meta WHERE record_id IN (%s) ORDER BY id",
		placeholders(len(records)),
	), args...)
	if err != nil {
		return fmt.Errorf("load meta: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id         int64
			key, value string
		)
		if err := rows.Scan(&id, &key, &value); err != nil {
			return fmt.Errorf("scan meta: %w", err)
		}
		i := index[id]
		records[i].Meta[key] = append(records[i].Meta[key], value)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate meta: %w", err)
	}
	return nil
}

// RecordStats summarises stored records of one type.
type RecordStats struct {
	Total    int
	ByStatus map[string]int
	Oldest   time.Time
	Newest   time.Time
	LastRun  time.Time // most recent insertion
}

func (s *Store) Stats(ctx context.Context, recordType string) (RecordStats, error) {
	if err := s.ready(); err != nil {
		return RecordStats{}, err
	}

	stats := RecordStats{ByStatus: make(map[string]int)}
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM records WHERE type = ? GROUP BY status ORDER BY status
	`, recordType)
	if err != nil {
		return RecordStats{}, fmt.Errorf("count records: %w", err)
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			_ = rows.Close()
			return RecordStats{}, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[status] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return RecordStats{}, fmt.Errorf("iterate status counts: %w", err)
	}
	_ = rows.Close()

	if stats.Total == 0 {
		return stats, nil
	}

	var oldest, newest, lastRun string
	if err := s.db.QueryRowContext(ctx, `
		SELECT MIN(date), MAX(date), MAX(inserted_at) FROM records WHERE type = ?
	`, recordType).Scan(&oldest, &newest, &lastRun); err != nil {
		return RecordStats{}, fmt.Errorf("record range: %w", err)
	}
	if stats.Oldest, err = parseTime(oldest); err != nil {
		return RecordStats{}, fmt.Errorf("parse oldest: %w", err)
	}
	if stats.Newest, err = parseTime(newest); err != nil {
		return RecordStats{}, fmt.Errorf("parse newest: %w", err)
	}
	if stats.LastRun, err = parseTime(lastRun); err != nil {
		return RecordStats{}, fmt.Errorf("parse last insert: %w", err)
	}
	return stats, nil
}
