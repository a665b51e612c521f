package splitter

import (
	"regexp"
	"strings"

	"github.com/classic-hero/classichero/internal/book"
)

const (
	// minDetectedLength is the content length a heading match needs to count
	// as a genuine chapter.
	minDetectedLength = 100
	// minDetectedChapters is how many genuine chapters a strategy must yield.
	minDetectedChapters = 2
)

// Detector finds chapter boundaries in cleaned text. ok is false when the
// strategy does not recognize the document's structure.
type Detector interface {
	Name() string
	Detect(text string) (chapters []book.Chapter, ok bool)
}

// HeadingDetector splits text at every match of a single-line heading pattern.
// The first capture group is the chapter title.
type HeadingDetector struct {
	name    string
	pattern *regexp.Regexp
}

// NewHeadingDetector builds a detector from a heading regular expression.
func NewHeadingDetector(name string, pattern *regexp.Regexp) *HeadingDetector {
	return &HeadingDetector{name: name, pattern: pattern}
}

// DefaultDetectors returns the detection cascade in priority order.
func DefaultDetectors() []Detector {
	return []Detector{
		NewHeadingDetector("chapter", regexp.MustCompile(
			`(?i)(?:\A|\n)(CHAPTER[ \t]+(?:[IVXLCDM]+|\d+|[A-Z][a-z]+)\.?[ \t]*[:\-—]?[^\n]*)`)),
		NewHeadingDetector("roman", regexp.MustCompile(
			`(?:\A|\n)([IVXLCDM]+\.[^\n]*)`)),
		NewHeadingDetector("speech", regexp.MustCompile(
			`(?i)(?:\A|\n)(SPEECH[ \t]+(?:[IVXLCDM]+|\d+)[^\n]*)`)),
		NewHeadingDetector("letter", regexp.MustCompile(
			`(?i)(?:\A|\n)(LETTER[ \t]+(?:[IVXLCDM]+|\d+)[^\n]*)`)),
	}
}

// Name identifies the strategy in logs.
func (d *HeadingDetector) Name() string {
	return d.name
}

// Detect implements Detector.
func (d *HeadingDetector) Detect(text string) ([]book.Chapter, bool) {
	matches := d.pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) < minDetectedChapters {
		return nil, false
	}

	var chapters []book.Chapter
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		content := strings.TrimSpace(text[m[1]:end])
		if runeLen(content) < minDetectedLength {
			continue
		}
		chapters = append(chapters, book.Chapter{
			ID:      len(chapters) + 1,
			Title:   strings.TrimSpace(text[m[2]:m[3]]),
			Content: content,
		})
	}
	if len(chapters) < minDetectedChapters {
		return nil, false
	}
	return chapters, true
}

// Detect runs the detectors in order and returns the first success, falling
// back to a single full-text chapter.
func Detect(text string, detectors []Detector) []book.Chapter {
	chapters, _ := detect(text, detectors)
	return chapters
}

func detect(text string, detectors []Detector) ([]book.Chapter, string) {
	for _, d := range detectors {
		if chapters, ok := d.Detect(text); ok {
			return chapters, d.Name()
		}
	}
	return FullText(text), "fallback"
}

// FullText is the universal fallback: the whole trimmed text as chapter 1.
func FullText(text string) []book.Chapter {
	return []book.Chapter{{
		ID:      1,
		Title:   book.FullTextTitle,
		Content: strings.TrimSpace(text),
	}}
}
