// Package splitter segments cleaned book text into chapters.
//
// Detection tries an ordered list of heading strategies and falls back to a
// single "Full Text" chapter. Post-processing re-splits overlong chapters on
// paragraph boundaries and optionally merges undersized ones. SplitSafe ties
// the stages together and never fails.
package splitter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/classic-hero/classichero/internal/book"
)

const (
	// DefaultMaxLength is the split-long threshold in characters.
	DefaultMaxLength = 8000
	// DefaultMinLength is the merge-short threshold in characters.
	DefaultMinLength = 500
	// MinValidLength is the minimum content length of a valid chapter.
	MinValidLength = 50
	// warnChapterCount flags a probable mis-detection.
	warnChapterCount = 100

	paragraphSeparator = "\n\n"
	titleSeparator     = " / "
)

// Options controls the post-processing stages of SplitSafe.
type Options struct {
	SplitLong  bool
	MaxLength  int
	MergeShort bool
	MinLength  int
	Detectors  []Detector
}

// DefaultOptions mirrors the collector defaults: split long, no merging.
func DefaultOptions() Options {
	return Options{
		SplitLong: true,
		MaxLength: DefaultMaxLength,
		MinLength: DefaultMinLength,
	}
}

// Splitter runs the safe splitting pipeline with a logger attached.
type Splitter struct {
	opts   Options
	logger *zap.Logger
}

// New builds a Splitter. Zero limits fall back to the defaults.
func New(opts Options, logger *zap.Logger) *Splitter {
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultMinLength
	}
	if len(opts.Detectors) == 0 {
		opts.Detectors = DefaultDetectors()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Splitter{opts: opts, logger: logger}
}

// Split is the total entry point: detection, optional split-long, optional
// merge-short, then validation. Any failure, including a panic inside a
// stage, degrades to the single full-text chapter.
func (s *Splitter) Split(text string) (chapters []book.Chapter) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Warn("chapter split failed, using full text", zap.Any("panic", rec))
			chapters = FullText(text)
		}
	}()

	chapters, err := s.split(text)
	if err != nil {
		s.logger.Warn("chapter split failed, using full text", zap.Error(err))
		return FullText(text)
	}
	return chapters
}

func (s *Splitter) split(text string) ([]book.Chapter, error) {
	chapters, strategy := detect(text, s.opts.Detectors)
	s.logger.Debug("chapters detected", zap.String("strategy", strategy), zap.Int("chapters", len(chapters)))

	if s.opts.SplitLong {
		chapters = SplitLong(chapters, s.opts.MaxLength)
		s.logger.Info("long chapters split", zap.Int("chapters", len(chapters)))
	}
	if s.opts.MergeShort && len(chapters) > 1 {
		chapters = MergeShort(chapters, s.opts.MinLength)
	}
	if !Validate(chapters) {
		return nil, fmt.Errorf("invalid chapter structure (%d chapters)", len(chapters))
	}
	if len(chapters) > warnChapterCount {
		s.logger.Warn("unusually many chapters, detection may be wrong", zap.Int("chapters", len(chapters)))
	}
	s.logger.Info("average chapter length", zap.Int("chars", averageLength(chapters)))
	return chapters, nil
}

// SplitSafe runs the pipeline with the given options and no logging.
func SplitSafe(text string, opts Options) []book.Chapter {
	return New(opts, nil).Split(text)
}

// SplitLong re-splits chapters longer than maxLength on paragraph boundaries.
// A chapter that yields several parts has every part numbered; a paragraph
// longer than maxLength becomes its own oversized part.
func SplitLong(chapters []book.Chapter, maxLength int) []book.Chapter {
	result := make([]book.Chapter, 0, len(chapters))
	for _, ch := range chapters {
		if runeLen(ch.Content) <= maxLength {
			result = append(result, ch)
			continue
		}

		var (
			part    []string
			partLen int
			partNum = 1
		)
		for _, para := range strings.Split(ch.Content, paragraphSeparator) {
			paraLen := runeLen(para)
			if partLen+paraLen > maxLength && len(part) > 0 {
				result = append(result, book.Chapter{
					Title:   fmt.Sprintf("%s (Part %d)", ch.Title, partNum),
					Content: strings.Join(part, paragraphSeparator),
				})
				part = []string{para}
				partLen = paraLen + len(paragraphSeparator)
				partNum++
				continue
			}
			part = append(part, para)
			partLen += paraLen + len(paragraphSeparator)
		}
		title := ch.Title
		if partNum > 1 {
			title = fmt.Sprintf("%s (Part %d)", ch.Title, partNum)
		}
		result = append(result, book.Chapter{
			Title:   title,
			Content: strings.Join(part, paragraphSeparator),
		})
	}
	return renumber(result)
}

// MergeShort folds chapters shorter than minLength into a pending buffer that
// is emitted before the next long chapter. A trailing buffer is appended to
// the last emitted chapter, or becomes the only chapter.
func MergeShort(chapters []book.Chapter, minLength int) []book.Chapter {
	if len(chapters) == 0 {
		return nil
	}

	var (
		merged []book.Chapter
		buffer *book.Chapter
	)
	for _, ch := range chapters {
		if runeLen(ch.Content) < minLength {
			if buffer == nil {
				cp := ch
				buffer = &cp
				continue
			}
			buffer.Content += paragraphSeparator + ch.Content
			buffer.Title += titleSeparator + ch.Title
			continue
		}
		if buffer != nil {
			merged = append(merged, *buffer)
			buffer = nil
		}
		merged = append(merged, ch)
	}

	if buffer != nil {
		if len(merged) > 0 {
			merged[len(merged)-1].Content += paragraphSeparator + buffer.Content
		} else {
			merged = append(merged, *buffer)
		}
	}
	return renumber(merged)
}

// Validate reports whether every chapter is populated and at least
// MinValidLength characters long.
func Validate(chapters []book.Chapter) bool {
	if len(chapters) == 0 {
		return false
	}
	for _, ch := range chapters {
		if ch.ID <= 0 || ch.Title == "" || ch.Content == "" {
			return false
		}
		if runeLen(ch.Content) < MinValidLength {
			return false
		}
	}
	return true
}

// Truncate keeps the first limit chapters and marks the last kept title.
// A non-positive limit keeps everything.
func Truncate(chapters []book.Chapter, limit int) []book.Chapter {
	if limit <= 0 || len(chapters) <= limit {
		return chapters
	}
	out := append([]book.Chapter(nil), chapters[:limit]...)
	out[limit-1].Title += " (continued)"
	return out
}

func renumber(chapters []book.Chapter) []book.Chapter {
	for i := range chapters {
		chapters[i].ID = i + 1
	}
	return chapters
}

func averageLength(chapters []book.Chapter) int {
	if len(chapters) == 0 {
		return 0
	}
	total := 0
	for _, ch := range chapters {
		total += runeLen(ch.Content)
	}
	return total / len(chapters)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
