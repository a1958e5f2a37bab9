// Package postgres stores documents in a single jsonb table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/docstore"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Password,
		c.Name,
		c.SSLMode,
	)
}

// NewDB opens and pings a postgres connection pool.
func NewDB(cfg Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

type Store struct {
	db    *sqlx.DB
	nowFn func() time.Time
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db, nowFn: time.Now}
}

type documentRow struct {
	Path       string    `db:"path"`
	Data       []byte    `db:"data"`
	Version    int64     `db:"version"`
	CreateTime time.Time `db:"create_time"`
	UpdateTime time.Time `db:"update_time"`
}

func (r documentRow) toDocument() *docstore.Document {
	return &docstore.Document{
		Path:       r.Path,
		Data:       r.Data,
		Version:    r.Version,
		CreateTime: r.CreateTime,
		UpdateTime: r.UpdateTime,
	}
}

const selectColumns = `SELECT path, data, version, create_time, update_time FROM documents`

func (s *Store) Get(ctx context.Context, path string) (*docstore.Document, error) {
	if err := docstore.ValidatePath(path); err != nil {
		return nil, err
	}
	var row documentRow
	err := s.db.GetContext(ctx, &row, selectColumns+` WHERE path = $1`, path)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return row.toDocument(), nil
}

func (s *Store) Set(ctx context.Context, path string, data interface{}) error {
	return s.Batch().Set(path, data).Commit(ctx)
}

func (s *Store) Create(ctx context.Context, path string, data interface{}) error {
	return s.Batch().Create(path, data).Commit(ctx)
}

func (s *Store) Update(ctx context.Context, path string, data interface{}, version int64) error {
	return s.Batch().Update(path, data, version).Commit(ctx)
}

func (s *Store) Delete(ctx context.Context, path string) error {
	return s.Batch().Delete(path).Commit(ctx)
}

func (s *Store) DeleteIf(ctx context.Context, path string, version int64) error {
	return s.Batch().DeleteIf(path, version).Commit(ctx)
}

func (s *Store) Batch() docstore.Batch {
	return docstore.NewBatch(s.commit)
}

const (
	upsertQuery = `INSERT INTO documents (path, collection_path, collection_id, data, version, create_time, update_time)
		VALUES ($1, $2, $3, $4, 1, $5, $5)
		ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, version = documents.version + 1, update_time = EXCLUDED.update_time`
	insertQuery = `INSERT INTO documents (path, collection_path, collection_id, data, version, create_time, update_time)
		VALUES ($1, $2, $3, $4, 1, $5, $5)
		ON CONFLICT (path) DO NOTHING`
	updateQuery = `UPDATE documents SET data = $2, version = version + 1, update_time = $3
		WHERE path = $1 AND version = $4`
	existsQuery   = `SELECT EXISTS(SELECT 1 FROM documents WHERE path = $1)`
	deleteQuery   = `DELETE FROM documents WHERE path = $1`
	deleteIfQuery = `DELETE FROM documents WHERE path = $1 AND version = $2`
)

// WithTx executes a function within a transaction
func (s *Store) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) commit(ctx context.Context, writes []docstore.Write) error {
	now := s.nowFn().UTC()
	return s.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, w := range writes {
			if err := applyWrite(ctx, tx, w, now); err != nil {
				return err
			}
		}
		return nil
	})
}

func applyWrite(ctx context.Context, tx *sqlx.Tx, w docstore.Write, now time.Time) error {
	collectionPath, collectionID, _ := docstore.Split(w.Path)
	switch w.Kind {
	case docstore.WriteSet:
		if _, err := tx.ExecContext(ctx, upsertQuery, w.Path, collectionPath, collectionID, []byte(w.Data), now); err != nil {
			return fmt.Errorf("failed to set document %s: %w", w.Path, err)
		}
	case docstore.WriteCreate:
		res, err := tx.ExecContext(ctx, insertQuery, w.Path, collectionPath, collectionID, []byte(w.Data), now)
		if err != nil {
			return fmt.Errorf("failed to create document %s: %w", w.Path, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return docstore.ErrAlreadyExists
		}
	case docstore.WriteUpdate:
		res, err := tx.ExecContext(ctx, updateQuery, w.Path, []byte(w.Data), now, w.Version)
		if err != nil {
			return fmt.Errorf("failed to update document %s: %w", w.Path, err)
		}
		return checkPrecondition(ctx, tx, res, w.Path)
	case docstore.WriteDelete:
		if _, err := tx.ExecContext(ctx, deleteQuery, w.Path); err != nil {
			return fmt.Errorf("failed to delete document %s: %w", w.Path, err)
		}
	case docstore.WriteDeleteIf:
		res, err := tx.ExecContext(ctx, deleteIfQuery, w.Path, w.Version)
		if err != nil {
			return fmt.Errorf("failed to delete document %s: %w", w.Path, err)
		}
		return checkPrecondition(ctx, tx, res, w.Path)
	}
	return nil
}

// checkPrecondition tells a missing document from a stale version when a
// versioned write touched no rows.
func checkPrecondition(ctx context.Context, tx *sqlx.Tx, res sql.Result, path string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := tx.GetContext(ctx, &exists, existsQuery, path); err != nil {
		return fmt.Errorf("failed to check document %s: %w", path, err)
	}
	if !exists {
		return docstore.ErrNotFound
	}
	return docstore.ErrConflict
}

func (s *Store) Query(ctx context.Context, collectionPath string, filters ...docstore.Filter) ([]*docstore.Document, error) {
	return s.selectWhere(ctx, "collection_path", collectionPath, filters)
}

func (s *Store) CollectionGroup(ctx context.Context, collectionID string, filters ...docstore.Filter) ([]*docstore.Document, error) {
	return s.selectWhere(ctx, "collection_id", collectionID, filters)
}

func (s *Store) selectWhere(ctx context.Context, column, value string, filters []docstore.Filter) ([]*docstore.Document, error) {
	query, args, err := buildSelect(column, value, filters)
	if err != nil {
		return nil, err
	}

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}

	docs := make([]*docstore.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, r.toDocument())
	}
	return docs, nil
}

func buildSelect(column, value string, filters []docstore.Filter) (string, []interface{}, error) {
	var b strings.Builder
	b.WriteString(selectColumns)
	b.WriteString(fmt.Sprintf(" WHERE %s = $1", column))
	args := []interface{}{value}

	for _, f := range filters {
		containment, err := docstore.Containment(f)
		if err != nil {
			return "", nil, err
		}
		args = append(args, string(containment))
		b.WriteString(fmt.Sprintf(" AND data @> $%d::jsonb", len(args)))
	}
	b.WriteString(" ORDER BY path")
	return b.String(), args, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
