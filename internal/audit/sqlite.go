package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/privacyshield/privacyshield/internal/privacy"
)

//go:embed schema.sql
var schemaSQL string

const (
	// DefaultRecentLimit is used when Recent is called with limit <= 0.
	DefaultRecentLimit = 50
	// MaxRecentLimit caps a single Recent call.
	MaxRecentLimit = 500
)

// SQLiteStore keeps audit records in a local SQLite database and serves
// the most recent ones back.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path, applies pragmas and
// the schema. ":memory:" is accepted for tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect audit database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps an
	// in-memory database alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Name() string { return "sqlite" }

// Deliver inserts rec. Re-delivering the same record is a no-op.
func (s *SQLiteStore) Deliver(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	types, err := json.Marshal(rec.EntityTypes)
	if err != nil {
		return fmt.Errorf("encode entity types: %w", err)
	}

	var genProvider, genStatus, genReason sql.NullString
	var genLength sql.NullInt64
	if g := rec.Generation; g != nil {
		genProvider = sql.NullString{String: g.Provider, Valid: true}
		genStatus = sql.NullString{String: g.Status, Valid: true}
		genReason = sql.NullString{String: g.Reason, Valid: g.Reason != ""}
		genLength = sql.NullInt64{Int64: int64(g.Length), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO audit_logs (
			id, created_at, privacy_score, entity_types, entity_count,
			input_length, output_length, redacted_text_sample,
			gen_provider, gen_status, gen_reason, gen_length
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Timestamp.UnixNano(), rec.PrivacyScore, string(types), rec.EntityCount,
		rec.InputLength, rec.OutputLength, rec.RedactedSample,
		genProvider, genStatus, genReason, genLength)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first. limit <= 0 means
// DefaultRecentLimit; larger values are capped at MaxRecentLimit.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	limit = min(limit, MaxRecentLimit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, privacy_score, entity_types, entity_count,
		       input_length, output_length, redacted_text_sample,
		       gen_provider, gen_status, gen_reason, gen_length
		FROM audit_logs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec                               Record
		created                           int64
		types                             string
		genProvider, genStatus, genReason sql.NullString
		genLength                         sql.NullInt64
	)
	if err := rows.Scan(&rec.ID, &created, &rec.PrivacyScore, &types, &rec.EntityCount,
		&rec.InputLength, &rec.OutputLength, &rec.RedactedSample,
		&genProvider, &genStatus, &genReason, &genLength); err != nil {
		return Record{}, fmt.Errorf("scan audit record: %w", err)
	}
	rec.Timestamp = time.Unix(0, created).UTC()
	rec.EntityTypes = []privacy.EntityType{}
	if err := json.Unmarshal([]byte(types), &rec.EntityTypes); err != nil {
		return Record{}, fmt.Errorf("decode entity types of %s: %w", rec.ID, err)
	}
	if genStatus.Valid {
		rec.Generation = &Generation{
			Provider: genProvider.String,
			Status:   genStatus.String,
			Reason:   genReason.String,
			Length:   int(genLength.Int64),
		}
	}
	return rec, nil
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}
