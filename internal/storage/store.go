// Package storage is the document store the core persists through.
//
// Documents are json bodies addressed by (collection, id) with one optional
// secondary key. Save is an upsert and the last write wins. Multi-document
// transactions are available through WithTx, but callers must not assume
// them: the membership saga works with or without one.
package storage

import (
	"concord-backend/internal/database"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Store interface {
	// Fetch decodes the document into dst. It returns false when absent.
	Fetch(ctx context.Context, collection string, id int64, dst any) (bool, error)
	Save(ctx context.Context, collection string, id int64, key string, doc any) error
	Delete(ctx context.Context, collection string, id int64) error
	DeleteByKey(ctx context.Context, collection string, key string) (int64, error)
	// Count returns how many documents carry the secondary key.
	Count(ctx context.Context, collection string, key string) (int, error)
	// List returns bodies with the secondary key, newest id first. A before
	// of 0 starts from the newest document.
	List(ctx context.Context, collection string, key string, before int64, limit int) ([][]byte, error)
	All(ctx context.Context, collection string) ([][]byte, error)
	// WithTx runs fn against a transactional view of the store.
	WithTx(ctx context.Context, fn func(tx Store) error) error
	Transactional() bool
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlStore struct {
	db      querier
	conn    *sql.DB
	dialect database.Dialect
	inTx    bool
	txOff   bool
}

// NewSQL wraps an open database. With transactional set to false WithTx runs
// fn directly against the database and every write is committed on its own.
func NewSQL(db *sql.DB, dialect database.Dialect, transactional bool) Store {
	return &sqlStore{db: db, conn: db, dialect: dialect, txOff: !transactional}
}

func (s *sqlStore) Transactional() bool {
	return !s.txOff
}

func (s *sqlStore) rebind(query string) string {
	if s.dialect != database.Postgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) Fetch(ctx context.Context, collection string, id int64, dst any) (bool, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT body FROM documents WHERE collection = ? AND id = ?"), collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to fetch %s %d: %w", collection, id, err)
	}

	err = json.Unmarshal([]byte(body), dst)
	if err != nil {
		return false, fmt.Errorf("failed to decode %s %d: %w", collection, id, err)
	}
	return true, nil
}

func (s *sqlStore) Save(ctx context.Context, collection string, id int64, key string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s %d: %w", collection, id, err)
	}

	var query string
	switch s.dialect {
	case database.Mysql:
		query = `
			INSERT INTO documents (collection, id, index_key, body) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE index_key = VALUES(index_key), body = VALUES(body)`
	default:
		query = `
			INSERT INTO documents (collection, id, index_key, body) VALUES (?, ?, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE SET index_key = excluded.index_key, body = excluded.body`
	}

	_, err = s.db.ExecContext(ctx, s.rebind(query), collection, id, key, string(body))
	if err != nil {
		return fmt.Errorf("failed to save %s %d: %w", collection, id, err)
	}
	return nil
}

func (s *sqlStore) Delete(ctx context.Context, collection string, id int64) error {
	_, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM documents WHERE collection = ? AND id = ?"), collection, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", collection, id, err)
	}
	return nil
}

func (s *sqlStore) DeleteByKey(ctx context.Context, collection string, key string) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM documents WHERE collection = ? AND index_key = ?"), collection, key)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s by key %s: %w", collection, key, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return affected, nil
}

func (s *sqlStore) Count(ctx context.Context, collection string, key string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind("SELECT COUNT(*) FROM documents WHERE collection = ? AND index_key = ?"), collection, key).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s by key %s: %w", collection, key, err)
	}
	return count, nil
}

func (s *sqlStore) List(ctx context.Context, collection string, key string, before int64, limit int) ([][]byte, error) {
	query := "SELECT body FROM documents WHERE collection = ? AND index_key = ?"
	args := []any{collection, key}
	if before > 0 {
		query += " AND id < ?"
		args = append(args, before)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	return s.queryBodies(ctx, s.rebind(query), args...)
}

func (s *sqlStore) All(ctx context.Context, collection string) ([][]byte, error) {
	return s.queryBodies(ctx, s.rebind("SELECT body FROM documents WHERE collection = ? ORDER BY id ASC"), collection)
}

func (s *sqlStore) queryBodies(ctx context.Context, query string, args ...any) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	bodies := [][]byte{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		bodies = append(bodies, []byte(body))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}
	return bodies, nil
}

// WithTx commits when fn returns nil and rolls back on error or panic.
// Nested calls reuse the outer transaction.
func (s *sqlStore) WithTx(ctx context.Context, fn func(tx Store) error) (err error) {
	if s.inTx || s.txOff {
		return fn(s)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}

		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
			}
			return
		}

		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
	}()

	err = fn(&sqlStore{db: tx, conn: s.conn, dialect: s.dialect, inTx: true})
	return
}
