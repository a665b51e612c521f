// Package book defines core types shared across the collector, store, and API.
package book

import "time"

// FullTextTitle is the title of the single fallback chapter.
const FullTextTitle = "Full Text"

// Difficulty grades a book for learners.
type Difficulty string

// Difficulty values accepted in configuration and the store.
const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Valid reports whether d is one of the known difficulty levels.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	default:
		return false
	}
}

// Chapter is one segment of a book's text.
type Chapter struct {
	ID         int      `json:"id" validate:"required,gte=1"`
	Title      string   `json:"title" validate:"required"`
	Content    string   `json:"content" validate:"required,min=100"`
	Vocabulary []string `json:"vocabulary,omitempty"`
}

// Book is the served record produced by the collector.
type Book struct {
	ID          string     `json:"id" validate:"required"`
	Title       string     `json:"title" validate:"required"`
	Author      string     `json:"author" validate:"required"`
	Difficulty  Difficulty `json:"difficulty" validate:"required,difficulty"`
	Genre       string     `json:"genre" validate:"required"`
	Year        int        `json:"year" validate:"required"`
	Description string     `json:"description" validate:"required"`
	CoverColor  string     `json:"coverColor" validate:"required"`
	HeroID      string     `json:"heroId,omitempty"`
	Chapters    []Chapter  `json:"chapters" validate:"required,min=1,dive"`
}

// ServedChapter is the chapter shape exposed by the store and the catalog API.
type ServedChapter struct {
	ID            string   `json:"id"`
	ChapterNumber int      `json:"chapterNumber"`
	Title         string   `json:"title"`
	Content       string   `json:"content"`
	WordCount     int      `json:"wordCount"`
	Vocabulary    []string `json:"vocabulary,omitempty"`
}

// Author is a Gutendex author entry.
type Author struct {
	Name      string `json:"name"`
	BirthYear *int   `json:"birth_year"`
	DeathYear *int   `json:"death_year"`
}

// Metadata is the subset of the Gutendex book document used by the generator.
type Metadata struct {
	ID          int      `json:"id"`
	Title       string   `json:"title"`
	Authors     []Author `json:"authors"`
	Subjects    []string `json:"subjects"`
	Bookshelves []string `json:"bookshelves"`
	Languages   []string `json:"languages"`
}

// Source is the operator-supplied configuration for one book to collect.
type Source struct {
	ID         int        `json:"id" mapstructure:"id"`
	Title      string     `json:"title" mapstructure:"title"`
	Genre      string     `json:"genre" mapstructure:"genre"`
	Difficulty Difficulty `json:"difficulty" mapstructure:"difficulty"`
}

// Hero groups the books linked to one persona.
type Hero struct {
	ID    string   `json:"id" mapstructure:"id"`
	Name  string   `json:"name" mapstructure:"name"`
	Books []Source `json:"books" mapstructure:"books"`
}

// BookSummary is a per-book line in the quality report.
type BookSummary struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Chapters   int        `json:"chapters"`
	Difficulty Difficulty `json:"difficulty"`
}

// QualityReport aggregates statistics over a collection run.
type QualityReport struct {
	RunID                  string         `json:"run_id,omitempty"`
	GeneratedAt            time.Time      `json:"generated_at,omitzero"`
	TotalBooks             int            `json:"total_books"`
	TotalChapters          int            `json:"total_chapters"`
	AvgChaptersPerBook     float64        `json:"avg_chapters_per_book"`
	DifficultyDistribution map[string]int `json:"difficulty_distribution,omitempty"`
	GenreDistribution      map[string]int `json:"genre_distribution,omitempty"`
	HeroDistribution       map[string]int `json:"hero_distribution,omitempty"`
	Books                  []BookSummary  `json:"books,omitempty"`
	Failed                 []FailedBook   `json:"failed,omitempty"`
	Error                  string         `json:"error,omitempty"`
}

// FailedBook records a book whose pipeline aborted.
type FailedBook struct {
	Hero   string `json:"hero"`
	BookID int    `json:"book_id"`
	Title  string `json:"title"`
	Stage  string `json:"stage"`
	Error  string `json:"error"`
}
