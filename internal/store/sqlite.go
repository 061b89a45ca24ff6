package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	apperrors "leaddecisions/internal/errors"
	"leaddecisions/internal/etl"
	"leaddecisions/pkg/contracts/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	content      BLOB,
	uploaded_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS leads (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	lead_id     TEXT NOT NULL,
	created_at  TIMESTAMP,
	sold        BOOLEAN,
	document_id TEXT NOT NULL REFERENCES documents(id)
);
CREATE INDEX IF NOT EXISTS idx_leads_lead_id ON leads(lead_id);

CREATE TABLE IF NOT EXISTS markets (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	name    TEXT NOT NULL,
	lead_id INTEGER NOT NULL REFERENCES leads(id)
);
CREATE INDEX IF NOT EXISTS idx_markets_name ON markets(name);

CREATE TABLE IF NOT EXISTS sources (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	sub_source TEXT NOT NULL DEFAULT '',
	lead_id    INTEGER NOT NULL REFERENCES leads(id)
);
CREATE INDEX IF NOT EXISTS idx_sources_name ON sources(name);

CREATE TABLE IF NOT EXISTS locations (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	name    TEXT NOT NULL,
	lead_id INTEGER NOT NULL REFERENCES leads(id)
);

CREATE TABLE IF NOT EXISTS sizes (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	size_range TEXT NOT NULL,
	lead_id    INTEGER NOT NULL REFERENCES leads(id)
);

CREATE TABLE IF NOT EXISTS objectives (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	description TEXT NOT NULL,
	lead_id     INTEGER NOT NULL REFERENCES leads(id)
);
`

// Store persists extracted lead data in SQLite and serves the
// aggregation queries the reporting engine runs. One Store per database
// file; *sql.DB pools connections internally.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the SQLite database at path and
// applies the schema. Foreign keys are enforced per connection.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.NewStorageError("failed to create database directory", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open database", err)
	}
	// SQLite serializes writers; a single connection avoids busy errors
	// under concurrent uploads.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("failed to apply schema", err)
	}

	logger.Info("database ready", slog.String("path", path))
	return &Store{db: db, logger: logger.With(slog.String("component", "store"))}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// InTx runs fn with a sink bound to one transaction. Any error from fn
// rolls the whole transaction back, so an upload either lands completely
// or not at all.
func (s *Store) InTx(ctx context.Context, fn func(etl.Sink) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError("failed to begin transaction", err)
	}

	if err := fn(&txSink{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.ErrorContext(ctx, "rollback failed", slog.String("error", rbErr.Error()))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError("failed to commit transaction", err)
	}
	return nil
}

// txSink writes extraction batches inside one transaction. Lead rows get
// their generated keys written back so the fact inserts can reference
// them without re-querying.
type txSink struct {
	tx *sql.Tx
}

func (s *txSink) SaveDocument(ctx context.Context, doc *domain.Document) error {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO documents (id, name, content_type, content, uploaded_at) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Name, doc.ContentType, doc.Content, doc.UploadedAt)
	if err != nil {
		return apperrors.NewStorageError("failed to save document", err)
	}
	return nil
}

func (s *txSink) SaveLeads(ctx context.Context, leads []*domain.Lead) error {
	stmt, err := s.tx.PrepareContext(ctx,
		`INSERT INTO leads (lead_id, created_at, sold, document_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return apperrors.NewStorageError("failed to prepare lead insert", err)
	}
	defer stmt.Close()

	for _, lead := range leads {
		var createdAt, sold interface{}
		if lead.CreatedAt != nil {
			createdAt = *lead.CreatedAt
		}
		if lead.Sold != nil {
			sold = *lead.Sold
		}

		res, err := stmt.ExecContext(ctx, lead.LeadID, createdAt, sold, lead.Document.ID)
		if err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("failed to save lead %s", lead.LeadID), err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return apperrors.NewStorageError("failed to read lead key", err)
		}
		lead.ID = id
	}
	return nil
}

func (s *txSink) SaveMarkets(ctx context.Context, markets []domain.Market) error {
	stmt, err := s.tx.PrepareContext(ctx,
		`INSERT INTO markets (name, lead_id) VALUES (?, ?)`)
	if err != nil {
		return apperrors.NewStorageError("failed to prepare market insert", err)
	}
	defer stmt.Close()

	for _, m := range markets {
		if _, err := stmt.ExecContext(ctx, m.Name, m.Lead.ID); err != nil {
			return apperrors.NewStorageError("failed to save market", err)
		}
	}
	return nil
}

func (s *txSink) SaveSources(ctx context.Context, sources []domain.Source) error {
	stmt, err := s.tx.PrepareContext(ctx,
		`INSERT INTO sources (name, sub_source, lead_id) VALUES (?, ?, ?)`)
	if err != nil {
		return apperrors.NewStorageError("failed to prepare source insert", err)
	}
	defer stmt.Close()

	for _, src := range sources {
		if _, err := stmt.ExecContext(ctx, src.Name, src.SubSource, src.Lead.ID); err != nil {
			return apperrors.NewStorageError("failed to save source", err)
		}
	}
	return nil
}

func (s *txSink) SaveLocations(ctx context.Context, locations []domain.Location) error {
	stmt, err := s.tx.PrepareContext(ctx,
		`INSERT INTO locations (name, lead_id) VALUES (?, ?)`)
	if err != nil {
		return apperrors.NewStorageError("failed to prepare location insert", err)
	}
	defer stmt.Close()

	for _, loc := range locations {
		if _, err := stmt.ExecContext(ctx, loc.Name, loc.Lead.ID); err != nil {
			return apperrors.NewStorageError("failed to save location", err)
		}
	}
	return nil
}

func (s *txSink) SaveSizes(ctx context.Context, sizes []domain.Size) error {
	stmt, err := s.tx.PrepareContext(ctx,
		`INSERT INTO sizes (size_range, lead_id) VALUES (?, ?)`)
	if err != nil {
		return apperrors.NewStorageError("failed to prepare size insert", err)
	}
	defer stmt.Close()

	for _, sz := range sizes {
		if _, err := stmt.ExecContext(ctx, sz.Range, sz.Lead.ID); err != nil {
			return apperrors.NewStorageError("failed to save size", err)
		}
	}
	return nil
}

func (s *txSink) SaveObjectives(ctx context.Context, objectives []domain.Objective) error {
	stmt, err := s.tx.PrepareContext(ctx,
		`INSERT INTO objectives (description, lead_id) VALUES (?, ?)`)
	if err != nil {
		return apperrors.NewStorageError("failed to prepare objective insert", err)
	}
	defer stmt.Close()

	for _, obj := range objectives {
		if _, err := stmt.ExecContext(ctx, obj.Description, obj.Lead.ID); err != nil {
			return apperrors.NewStorageError("failed to save objective", err)
		}
	}
	return nil
}

// CountTotalLeads returns the number of leads across every upload.
func (s *Store) CountTotalLeads(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads`).Scan(&count)
	if err != nil {
		return 0, apperrors.NewStorageError("failed to count leads", err)
	}
	return count, nil
}

// CountTotalSold returns the number of leads recorded as sold. Leads
// with unknown sold state count as not sold.
func (s *Store) CountTotalSold(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM leads WHERE sold = 1`).Scan(&count)
	if err != nil {
		return 0, apperrors.NewStorageError("failed to count sold leads", err)
	}
	return count, nil
}

// StatsByMarket aggregates lead and sale counts per market name.
func (s *Store) StatsByMarket(ctx context.Context) ([]domain.DimensionStat, error) {
	return s.dimensionStats(ctx, `
		SELECT m.name,
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN l.sold = 1 THEN 1 ELSE 0 END), 0)
		FROM markets m
		JOIN leads l ON l.id = m.lead_id
		GROUP BY m.name
		ORDER BY m.name`)
}

// StatsBySource aggregates lead and sale counts per source name.
// Sub-sources roll up into their parent source.
func (s *Store) StatsBySource(ctx context.Context) ([]domain.DimensionStat, error) {
	return s.dimensionStats(ctx, `
		SELECT src.name,
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN l.sold = 1 THEN 1 ELSE 0 END), 0)
		FROM sources src
		JOIN leads l ON l.id = src.lead_id
		GROUP BY src.name
		ORDER BY src.name`)
}

func (s *Store) dimensionStats(ctx context.Context, query string) ([]domain.DimensionStat, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.NewStorageError("aggregation query failed", err)
	}
	defer rows.Close()

	var stats []domain.DimensionStat
	for rows.Next() {
		var stat domain.DimensionStat
		if err := rows.Scan(&stat.CategoryName, &stat.TotalLeads, &stat.TotalSold); err != nil {
			return nil, apperrors.NewStorageError("failed to scan aggregation row", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("aggregation iteration failed", err)
	}
	return stats, nil
}
