package postgres

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classic-hero/classichero/internal/book"
	"github.com/classic-hero/classichero/internal/storage"
)

var (
	bookCols    = []string{"id", "title", "author", "difficulty", "genre", "year", "description", "cover_color", "hero_id"}
	chapterCols = []string{"id", "book_id", "chapter_number", "title", "content", "word_count"}
)

func newMockStore(t *testing.T, caps Capabilities) (*BookStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, caps)
	require.NoError(t, err)
	return store, mock
}

func fables() book.Book {
	return book.Book{
		ID:          "aesop-21",
		Title:       "Aesop's Fables",
		Author:      "Aesop",
		Difficulty:  book.DifficultyEasy,
		Genre:       "Fable",
		Year:        1900,
		Description: "Fables",
		CoverColor:  "#87CEEB",
		HeroID:      "aesop",
		Chapters: []book.Chapter{
			{ID: 1, Title: "The Fox and the Grapes", Content: "A hungry fox saw some fine bunches of grapes", Vocabulary: []string{"bunches"}},
			{ID: 2, Title: "The Crow", Content: "A crow was sitting on a branch"},
		},
	}
}

func TestNewWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, Capabilities{})
	require.Error(t, err)
}

func TestDetectCapabilities(t *testing.T) {
	t.Parallel()

	_, mock := newMockStore(t, Capabilities{})
	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns")).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	caps, err := DetectCapabilities(context.Background(), mock)
	require.NoError(t, err)
	assert.True(t, caps.Vocabulary)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	_, mock := newMockStore(t, Capabilities{})
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS books")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, Migrate(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBookWithVocabulary(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, Capabilities{Vocabulary: true})
	b := fables()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO books")).
		WithArgs("aesop-21", "Aesop's Fables", "Aesop", "easy", "Fable", 1900, "Fables", "#87CEEB", "aesop").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chapters WHERE book_id = $1")).
		WithArgs("aesop-21").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chapters (id, book_id, chapter_number, title, content, word_count, vocabulary)")).
		WithArgs("aesop-21-ch1", "aesop-21", 1, "The Fox and the Grapes", b.Chapters[0].Content, 9, []byte(`["bunches"]`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chapters (id, book_id, chapter_number, title, content, word_count, vocabulary)")).
		WithArgs("aesop-21-ch2", "aesop-21", 2, "The Crow", b.Chapters[1].Content, 7, []byte(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.UpsertBook(context.Background(), b))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBookWithoutVocabularyColumn(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, Capabilities{})
	b := fables()
	b.Chapters = b.Chapters[:1]

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO books")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chapters")).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chapters (id, book_id, chapter_number, title, content, word_count)\nVALUES ($1,$2,$3,$4,$5,$6)")).
		WithArgs("aesop-21-ch1", "aesop-21", 1, "The Fox and the Grapes", b.Chapters[0].Content, 9).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.UpsertBook(context.Background(), b))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBookRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, Capabilities{})

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO books")).
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	err := store.UpsertBook(context.Background(), fables())
	require.ErrorContains(t, err, "unique violation")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBooks(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, Capabilities{})
	mock.ExpectQuery(regexp.QuoteMeta("FROM books WHERE difficulty = $1 ORDER BY id")).
		WithArgs("easy").
		WillReturnRows(pgxmock.NewRows(bookCols).
			AddRow("aesop-21", "Aesop's Fables", "Aesop", "easy", "Fable", 1900, "Fables", "#87CEEB", "aesop").
			AddRow("franklin-148", "Autobiography", "Franklin, Benjamin", "easy", "Biography", 1706, "Autobiographies", "#FFB6C1", "franklin"))

	books, err := store.ListBooks(context.Background(), book.DifficultyEasy)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "franklin-148", books[1].ID)
	assert.Equal(t, book.DifficultyEasy, books[1].Difficulty)
	assert.Empty(t, books[1].Chapters)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBooksUnfiltered(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, Capabilities{})
	mock.ExpectQuery(`SELECT .* FROM books ORDER BY id`).
		WillReturnRows(pgxmock.NewRows(bookCols))

	books, err := store.ListBooks(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBookWithChapters(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, Capabilities{Vocabulary: true})
	mock.ExpectQuery(regexp.QuoteMeta("FROM books WHERE id = $1")).
		WithArgs("aesop-21").
		WillReturnRows(pgxmock.NewRows(bookCols).
			AddRow("aesop-21", "Aesop's Fables", "Aesop", "easy", "Fable", 1900, "Fables", "#87CEEB", "aesop"))
	mock.ExpectQuery(regexp.QuoteMeta("word_count, vocabulary FROM chapters WHERE book_id = $1 ORDER BY chapter_number")).
		WithArgs("aesop-21").
		WillReturnRows(pgxmock.NewRows(append(chapterCols, "vocabulary")).
			AddRow("aesop-21-ch1", "aesop-21", 1, "The Fox", "content one", 2, []byte(`["grapes","fox"]`)).
			AddRow("aesop-21-ch2", "aesop-21", 2, "The Crow", "content two", 2, []byte(nil)))

	b, err := store.GetBook(context.Background(), "aesop-21")
	require.NoError(t, err)
	assert.Equal(t, "Aesop", b.Author)
	require.Len(t, b.Chapters, 2)
	assert.Equal(t, book.Chapter{ID: 1, Title: "The Fox", Content: "content one", Vocabulary: []string{"grapes", "fox"}}, b.Chapters[0])
	assert.Nil(t, b.Chapters[1].Vocabulary)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBookNotFound(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, Capabilities{})
	mock.ExpectQuery(regexp.QuoteMeta("FROM books WHERE id = $1")).
		WithArgs("nobody-1").
		WillReturnRows(pgxmock.NewRows(bookCols))

	_, err := store.GetBook(context.Background(), "nobody-1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListChapters(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, Capabilities{})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)")).
		WithArgs("aesop-21").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(regexp.QuoteMeta("word_count FROM chapters WHERE book_id = $1 ORDER BY chapter_number")).
		WithArgs("aesop-21").
		WillReturnRows(pgxmock.NewRows(chapterCols).
			AddRow("aesop-21-ch1", "aesop-21", 1, "The Fox", "a hungry fox", 3))

	chapters, err := store.ListChapters(context.Background(), "aesop-21")
	require.NoError(t, err)
	assert.Equal(t, []book.ServedChapter{{
		ID: "aesop-21-ch1", ChapterNumber: 1, Title: "The Fox", Content: "a hungry fox", WordCount: 3,
	}}, chapters)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListChaptersUnknownBook(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, Capabilities{})
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("missing-1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := store.ListChapters(context.Background(), "missing-1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetChapter(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t, Capabilities{})
	mock.ExpectQuery(regexp.QuoteMeta("FROM chapters WHERE book_id = $1 AND chapter_number = $2")).
		WithArgs("aesop-21", 2).
		WillReturnRows(pgxmock.NewRows(chapterCols).
			AddRow("aesop-21-ch2", "aesop-21", 2, "The Crow", "a crow sat", 3))
	mock.ExpectQuery(regexp.QuoteMeta("FROM chapters WHERE book_id = $1 AND chapter_number = $2")).
		WithArgs("aesop-21", 9).
		WillReturnRows(pgxmock.NewRows(chapterCols))

	ch, err := store.GetChapter(context.Background(), "aesop-21", 2)
	require.NoError(t, err)
	assert.Equal(t, "aesop-21-ch2", ch.ID)
	assert.Equal(t, 3, ch.WordCount)

	_, err = store.GetChapter(context.Background(), "aesop-21", 9)
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.True(t, strings.Contains(err.Error(), "chapter 9"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordMapping(t *testing.T) {
	t.Parallel()

	rec := fromBook(fables())
	require.Len(t, rec.Chapters, 2)
	assert.Equal(t, "aesop-21-ch2", rec.Chapters[1].ID)
	assert.Nil(t, rec.Chapters[1].Vocabulary)

	round := rec.toBook(rec.Chapters)
	assert.Equal(t, fables(), round)
}
