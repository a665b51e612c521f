// Package generator assembles served book records from collected text and
// Gutendex metadata, validates them, and summarizes a collection run.
package generator

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/classic-hero/classichero/internal/book"
)

// ErrInvalidBook is returned when a generated record fails validation.
var ErrInvalidBook = errors.New("invalid book record")

const (
	// DefaultYear is used when no source yields a publication year.
	DefaultYear = 1900
	// DefaultDescription is used when neither subjects nor text yield one.
	DefaultDescription = "A classic work from Project Gutenberg."
	// UnknownAuthor is used when the metadata lists no authors.
	UnknownAuthor = "Unknown Author"

	minYear               = 1500
	deathYearOffset       = 10
	maxDescriptionLength  = 200
	maxSentenceLength     = 197
	minSentenceLength     = 20
	maxSubjectWords       = 5
	maxDescriptionKeyword = 3
	ellipsis              = "..."
)

// DefaultPalette is the cover palette for genres without a configured one.
var DefaultPalette = []string{"#87CEEB", "#FFB6C1", "#98FB98"}

var (
	yearPattern     = regexp.MustCompile(`\b(1[6-9]\d{2}|20[0-2]\d)\b`)
	sentencePattern = regexp.MustCompile(`[.!?]+`)
)

// Generator builds and validates book records.
type Generator struct {
	palettes map[string][]string
	validate *validator.Validate
}

// New returns a Generator using the given genre palettes. Genre keys match
// case-insensitively.
func New(palettes map[string][]string) *Generator {
	normalized := make(map[string][]string, len(palettes))
	for genre, colors := range palettes {
		normalized[strings.ToLower(genre)] = colors
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("difficulty", func(fl validator.FieldLevel) bool {
		return book.Difficulty(fl.Field().String()).Valid()
	})
	return &Generator{palettes: normalized, validate: v}
}

// ExtractYear estimates the publication year. Subjects are searched first,
// then bookshelves, then the first author's death year minus ten.
func ExtractYear(meta book.Metadata) int {
	for _, tags := range [][]string{meta.Subjects, meta.Bookshelves} {
		for _, tag := range tags {
			if m := yearPattern.FindStringSubmatch(tag); m != nil {
				year, err := strconv.Atoi(m[1])
				if err == nil {
					return year
				}
			}
		}
	}
	if len(meta.Authors) > 0 && meta.Authors[0].DeathYear != nil && *meta.Authors[0].DeathYear != 0 {
		return max(*meta.Authors[0].DeathYear-deathYearOffset, minYear)
	}
	return DefaultYear
}

// GenerateDescription prefers short subject keywords, then the first usable
// sentence of the opening chapter.
func GenerateDescription(meta book.Metadata, firstChapter string) string {
	var keywords []string
	for _, s := range meta.Subjects {
		if len(strings.Fields(s)) <= maxSubjectWords && !strings.Contains(s, "Gutenberg") {
			keywords = append(keywords, s)
		}
		if len(keywords) == maxDescriptionKeyword {
			break
		}
	}
	if len(keywords) > 0 {
		desc := strings.Join(keywords, ", ")
		if utf8.RuneCountInString(desc) > maxDescriptionLength {
			desc = string([]rune(desc)[:maxDescriptionLength]) + ellipsis
		}
		return desc
	}

	for _, sentence := range sentencePattern.Split(firstChapter, -1) {
		sentence = strings.TrimSpace(sentence)
		n := utf8.RuneCountInString(sentence)
		if n < minSentenceLength {
			continue
		}
		if n > maxDescriptionLength {
			return string([]rune(sentence)[:maxSentenceLength]) + ellipsis
		}
		return sentence + "."
	}
	return DefaultDescription
}

// AssignCoverColor picks palette[index mod len] for the genre.
func (g *Generator) AssignCoverColor(genre string, index int) string {
	palette := g.palettes[strings.ToLower(genre)]
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	if index < 0 {
		index = -index
	}
	return palette[index%len(palette)]
}

// Generate assembles the served record for one configured book. index is the
// book's position within its hero and drives the cover color.
func (g *Generator) Generate(src book.Source, heroID string, index int, meta book.Metadata, chapters []book.Chapter) book.Book {
	author := UnknownAuthor
	if len(meta.Authors) > 0 && meta.Authors[0].Name != "" {
		author = meta.Authors[0].Name
	}
	var first string
	if len(chapters) > 0 {
		first = chapters[0].Content
	}
	return book.Book{
		ID:          fmt.Sprintf("%s-%d", heroID, src.ID),
		Title:       src.Title,
		Author:      author,
		Difficulty:  src.Difficulty,
		Genre:       src.Genre,
		Year:        ExtractYear(meta),
		Description: GenerateDescription(meta, first),
		CoverColor:  g.AssignCoverColor(src.Genre, index),
		HeroID:      heroID,
		Chapters:    chapters,
	}
}

// Validate checks the required fields of the record and of every chapter.
func (g *Generator) Validate(b book.Book) error {
	if err := g.validate.Struct(b); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidBook, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidBook, err)
	}
	return nil
}

// QualityReport summarizes the collected books. Run metadata is left for the
// caller to fill in.
func QualityReport(books []book.Book) book.QualityReport {
	if len(books) == 0 {
		return book.QualityReport{Error: "no books collected"}
	}

	report := book.QualityReport{
		TotalBooks: len(books),
		DifficultyDistribution: map[string]int{
			string(book.DifficultyEasy):   0,
			string(book.DifficultyMedium): 0,
			string(book.DifficultyHard):   0,
		},
		GenreDistribution: make(map[string]int),
		HeroDistribution:  make(map[string]int),
		Books:             make([]book.BookSummary, 0, len(books)),
	}
	for _, b := range books {
		report.TotalChapters += len(b.Chapters)
		if _, ok := report.DifficultyDistribution[string(b.Difficulty)]; ok {
			report.DifficultyDistribution[string(b.Difficulty)]++
		}
		report.GenreDistribution[b.Genre]++
		hero, _, _ := strings.Cut(b.ID, "-")
		report.HeroDistribution[hero]++
		report.Books = append(report.Books, book.BookSummary{
			ID:         b.ID,
			Title:      b.Title,
			Chapters:   len(b.Chapters),
			Difficulty: b.Difficulty,
		})
	}
	avg := float64(report.TotalChapters) / float64(len(books))
	report.AvgChaptersPerBook = math.Round(avg*10) / 10
	return report
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return f.Name
	}
	return name
}
