package postgres

import (
	"encoding/json"

	"github.com/classic-hero/classichero/internal/book"
)

const (
	bookColumns    = `id, title, author, difficulty, genre, year, description, cover_color, hero_id`
	chapterColumns = `id, book_id, chapter_number, title, content, word_count`

	upsertBookSQL = `
INSERT INTO books (id, title, author, difficulty, genre, year, description, cover_color, hero_id, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now())
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	author = EXCLUDED.author,
	difficulty = EXCLUDED.difficulty,
	genre = EXCLUDED.genre,
	year = EXCLUDED.year,
	description = EXCLUDED.description,
	cover_color = EXCLUDED.cover_color,
	hero_id = EXCLUDED.hero_id,
	updated_at = now()`
)

// bookRecord is the row shape of the books table.
type bookRecord struct {
	ID          string
	Title       string
	Author      string
	Difficulty  string
	Genre       string
	Year        int
	Description string
	CoverColor  string
	HeroID      string
	Chapters    []chapterRecord
}

// chapterRecord is the row shape of the chapters table.
type chapterRecord struct {
	ID         string
	BookID     string
	Number     int
	Title      string
	Content    string
	WordCount  int
	Vocabulary []byte
}

func fromBook(b book.Book) bookRecord {
	rec := bookRecord{
		ID:          b.ID,
		Title:       b.Title,
		Author:      b.Author,
		Difficulty:  string(b.Difficulty),
		Genre:       b.Genre,
		Year:        b.Year,
		Description: b.Description,
		CoverColor:  b.CoverColor,
		HeroID:      b.HeroID,
		Chapters:    make([]chapterRecord, 0, len(b.Chapters)),
	}
	for _, ch := range b.Chapters {
		served := book.Serve(b.ID, ch)
		rec.Chapters = append(rec.Chapters, chapterRecord{
			ID:         served.ID,
			BookID:     b.ID,
			Number:     served.ChapterNumber,
			Title:      served.Title,
			Content:    served.Content,
			WordCount:  served.WordCount,
			Vocabulary: vocabularyJSON(ch.Vocabulary),
		})
	}
	return rec
}

func (r bookRecord) args() []any {
	return []any{r.ID, r.Title, r.Author, r.Difficulty, r.Genre, r.Year, r.Description, r.CoverColor, r.HeroID}
}

func (r bookRecord) toBook(chapters []chapterRecord) book.Book {
	b := book.Book{
		ID:          r.ID,
		Title:       r.Title,
		Author:      r.Author,
		Difficulty:  book.Difficulty(r.Difficulty),
		Genre:       r.Genre,
		Year:        r.Year,
		Description: r.Description,
		CoverColor:  r.CoverColor,
		HeroID:      r.HeroID,
	}
	for _, ch := range chapters {
		b.Chapters = append(b.Chapters, book.Chapter{
			ID:         ch.Number,
			Title:      ch.Title,
			Content:    ch.Content,
			Vocabulary: ch.words(),
		})
	}
	return b
}

func (r chapterRecord) toServed() book.ServedChapter {
	return book.ServedChapter{
		ID:            r.ID,
		ChapterNumber: r.Number,
		Title:         r.Title,
		Content:       r.Content,
		WordCount:     r.WordCount,
		Vocabulary:    r.words(),
	}
}

func (r chapterRecord) words() []string {
	if len(r.Vocabulary) == 0 {
		return nil
	}
	var words []string
	if err := json.Unmarshal(r.Vocabulary, &words); err != nil {
		return nil
	}
	return words
}

// vocabularyJSON encodes a word list for the JSONB column; empty lists are NULL.
func vocabularyJSON(words []string) []byte {
	if len(words) == 0 {
		return nil
	}
	data, err := json.Marshal(words)
	if err != nil {
		return nil
	}
	return data
}
