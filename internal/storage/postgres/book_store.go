// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classic-hero/classichero/internal/book"
	"github.com/classic-hero/classichero/internal/storage"
)

// Schema creates the tables used by BookStore. The vocabulary column is
// optional; stores opened against a schema without it skip vocabulary.
const Schema = `
CREATE TABLE IF NOT EXISTS books (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	author      TEXT NOT NULL,
	difficulty  TEXT NOT NULL,
	genre       TEXT NOT NULL,
	year        INTEGER NOT NULL,
	description TEXT NOT NULL,
	cover_color TEXT NOT NULL,
	hero_id     TEXT NOT NULL DEFAULT '',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS chapters (
	id             TEXT PRIMARY KEY,
	book_id        TEXT NOT NULL REFERENCES books(id) ON DELETE CASCADE,
	chapter_number INTEGER NOT NULL,
	title          TEXT NOT NULL,
	content        TEXT NOT NULL,
	word_count     INTEGER NOT NULL,
	vocabulary     JSONB,
	UNIQUE (book_id, chapter_number)
);`

const capabilitiesQuery = `
SELECT EXISTS (
	SELECT 1 FROM information_schema.columns
	WHERE table_name = 'chapters' AND column_name = 'vocabulary'
)`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// Migrate applies Schema before capabilities are detected.
	Migrate bool
}

// Capabilities records optional schema features, detected once at open.
type Capabilities struct {
	Vocabulary bool
}

type queryer interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Pool is the subset of pgxpool.Pool used by BookStore.
type Pool interface {
	queryer
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// BookStore implements book.Store on Postgres.
type BookStore struct {
	pool Pool
	caps Capabilities
}

// Open connects to Postgres, optionally migrates, and detects capabilities.
func Open(ctx context.Context, cfg Config) (*BookStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if cfg.Migrate {
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	caps, err := DetectCapabilities(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return NewWithPool(pool, caps)
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool Pool, caps Capabilities) (*BookStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &BookStore{pool: pool, caps: caps}, nil
}

// Migrate applies Schema.
func Migrate(ctx context.Context, q queryer) error {
	if _, err := q.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// DetectCapabilities inspects the schema for optional columns.
func DetectCapabilities(ctx context.Context, q queryer) (Capabilities, error) {
	var caps Capabilities
	if err := q.QueryRow(ctx, capabilitiesQuery).Scan(&caps.Vocabulary); err != nil {
		return Capabilities{}, fmt.Errorf("detect capabilities: %w", err)
	}
	return caps, nil
}

// Capabilities reports the features detected at open.
func (s *BookStore) Capabilities() Capabilities {
	return s.caps
}

// Close releases the underlying pool resources.
func (s *BookStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks the connection with a trivial query.
func (s *BookStore) Ping(ctx context.Context) error {
	var one int
	if err := s.pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// UpsertBook writes the book row and replaces its chapters in one transaction.
func (s *BookStore) UpsertBook(ctx context.Context, b book.Book) (err error) {
	rec := fromBook(b)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("%w (rollback: %v)", err, rbErr)
			}
		}
	}()

	if _, err = tx.Exec(ctx, upsertBookSQL, rec.args()...); err != nil {
		return fmt.Errorf("upsert book %s: %w", rec.ID, err)
	}
	if _, err = tx.Exec(ctx, `DELETE FROM chapters WHERE book_id = $1`, rec.ID); err != nil {
		return fmt.Errorf("delete chapters of %s: %w", rec.ID, err)
	}
	for _, ch := range rec.Chapters {
		if err = s.insertChapter(ctx, tx, ch); err != nil {
			return err
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit book %s: %w", rec.ID, err)
	}
	return nil
}

func (s *BookStore) insertChapter(ctx context.Context, tx pgx.Tx, ch chapterRecord) error {
	var err error
	if s.caps.Vocabulary {
		_, err = tx.Exec(ctx, `
INSERT INTO chapters (id, book_id, chapter_number, title, content, word_count, vocabulary)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			ch.ID, ch.BookID, ch.Number, ch.Title, ch.Content, ch.WordCount, ch.Vocabulary)
	} else {
		_, err = tx.Exec(ctx, `
INSERT INTO chapters (id, book_id, chapter_number, title, content, word_count)
VALUES ($1,$2,$3,$4,$5,$6)`,
			ch.ID, ch.BookID, ch.Number, ch.Title, ch.Content, ch.WordCount)
	}
	if err != nil {
		return fmt.Errorf("insert chapter %s: %w", ch.ID, err)
	}
	return nil
}

// ListBooks returns books without chapters, optionally filtered by difficulty.
func (s *BookStore) ListBooks(ctx context.Context, difficulty book.Difficulty) ([]book.Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books`
	var args []any
	if difficulty != "" {
		query += ` WHERE difficulty = $1`
		args = append(args, string(difficulty))
	}
	query += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := []book.Book{}
	for rows.Next() {
		rec, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, rec.toBook(nil))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// GetBook returns a book with its chapters in order.
func (s *BookStore) GetBook(ctx context.Context, id string) (book.Book, error) {
	rec, err := scanBook(s.pool.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
	if err != nil {
		return book.Book{}, notFound(err, "book "+id)
	}
	chapters, err := s.chapters(ctx, id)
	if err != nil {
		return book.Book{}, err
	}
	return rec.toBook(chapters), nil
}

// ListChapters returns the served chapters of a book.
func (s *BookStore) ListChapters(ctx context.Context, bookID string) ([]book.ServedChapter, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, bookID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("lookup book %s: %w", bookID, err)
	}
	if !exists {
		return nil, fmt.Errorf("book %s: %w", bookID, storage.ErrNotFound)
	}
	recs, err := s.chapters(ctx, bookID)
	if err != nil {
		return nil, err
	}
	served := make([]book.ServedChapter, 0, len(recs))
	for _, rec := range recs {
		served = append(served, rec.toServed())
	}
	return served, nil
}

// GetChapter returns one served chapter by its 1-based number.
func (s *BookStore) GetChapter(ctx context.Context, bookID string, number int) (book.ServedChapter, error) {
	query := `SELECT ` + s.chapterColumns() + ` FROM chapters WHERE book_id = $1 AND chapter_number = $2`
	rec, err := s.scanChapter(s.pool.QueryRow(ctx, query, bookID, number))
	if err != nil {
		return book.ServedChapter{}, notFound(err, fmt.Sprintf("chapter %d of %s", number, bookID))
	}
	return rec.toServed(), nil
}

func (s *BookStore) chapters(ctx context.Context, bookID string) ([]chapterRecord, error) {
	query := `SELECT ` + s.chapterColumns() + ` FROM chapters WHERE book_id = $1 ORDER BY chapter_number`
	rows, err := s.pool.Query(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("list chapters of %s: %w", bookID, err)
	}
	defer rows.Close()

	var recs []chapterRecord
	for rows.Next() {
		rec, err := s.scanChapter(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chapters of %s: %w", bookID, err)
	}
	return recs, nil
}

func (s *BookStore) chapterColumns() string {
	if s.caps.Vocabulary {
		return chapterColumns + `, vocabulary`
	}
	return chapterColumns
}

func (s *BookStore) scanChapter(row pgx.Row) (chapterRecord, error) {
	var rec chapterRecord
	dest := []any{&rec.ID, &rec.BookID, &rec.Number, &rec.Title, &rec.Content, &rec.WordCount}
	if s.caps.Vocabulary {
		dest = append(dest, &rec.Vocabulary)
	}
	if err := row.Scan(dest...); err != nil {
		return chapterRecord{}, fmt.Errorf("scan chapter: %w", err)
	}
	return rec, nil
}

func scanBook(row pgx.Row) (bookRecord, error) {
	var rec bookRecord
	if err := row.Scan(
		&rec.ID, &rec.Title, &rec.Author, &rec.Difficulty, &rec.Genre,
		&rec.Year, &rec.Description, &rec.CoverColor, &rec.HeroID,
	); err != nil {
		return bookRecord{}, fmt.Errorf("scan book: %w", err)
	}
	return rec, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", what, err)
}
