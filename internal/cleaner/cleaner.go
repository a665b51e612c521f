// Package cleaner strips Gutenberg-style distribution artifacts from raw book
// text so chapter detection is not confused by boilerplate.
//
// Every function in this package is total: a step whose anchor cannot be
// found leaves the text unchanged.
package cleaner

import (
	"regexp"
	"strings"
)

// Options toggles the optional cleaning steps.
type Options struct {
	RemovePageNumbers bool
}

var (
	startMarker = regexp.MustCompile(`(?is)\*\*\*\s*START OF TH[EI]S? PROJECT GUTENBERG.*?\*\*\*`)
	endMarker   = regexp.MustCompile(`(?is)\*\*\*\s*END OF TH[EI]S? PROJECT GUTENBERG.*?\*\*\*`)

	// frontMatterLabels is ordered: TABLE OF CONTENTS must run before CONTENTS.
	frontMatterLabels = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:\A|\n)[ \t]*TABLE\s+OF\s+CONTENTS`),
		regexp.MustCompile(`(?i)(?:\A|\n)[ \t]*CONTENTS`),
		regexp.MustCompile(`(?i)(?:\A|\n)[ \t]*PREFACE`),
		regexp.MustCompile(`(?i)(?:\A|\n)[ \t]*INTRODUCTION`),
		regexp.MustCompile(`(?i)(?:\A|\n)[ \t]*FOREWORD`),
	}
	firstHeading = regexp.MustCompile(`(?i)(?:\A|\n)[ \t]*(?:CHAPTER|SPEECH|LETTER)\s+(?:I\b|1\b|ONE\b)`)

	excessNewlines = regexp.MustCompile(`\n{3,}`)
	pageNumberLine = regexp.MustCompile(`(?m)^[ \t]*\d+[ \t]*(?:\n|\z)`)
)

// Clean runs the full pipeline: header/footer, front matter, optional page
// numbers, then whitespace normalization.
func Clean(raw string, opts Options) string {
	text := RemoveHeaderFooter(raw)
	text = RemoveFrontMatter(text)
	if opts.RemovePageNumbers {
		text = RemovePageNumbers(text)
	}
	return NormalizeWhitespace(text)
}

// RemoveHeaderFooter drops everything up to and including the start-of-ebook
// marker and everything from the end-of-ebook marker onward.
func RemoveHeaderFooter(text string) string {
	if loc := startMarker.FindStringIndex(text); loc != nil {
		text = text[loc[1]:]
	}
	if loc := endMarker.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}
	return strings.TrimSpace(text)
}

// RemoveFrontMatter removes table-of-contents, preface, introduction and
// foreword spans that precede the first chapter heading.
func RemoveFrontMatter(text string) string {
	for _, label := range frontMatterLabels {
		text = removeSpans(text, label)
	}
	return text
}

// removeSpans deletes every label occurrence up to the next first-chapter
// heading. Once no heading follows a label, later labels cannot have one
// either, so the scan stops.
func removeSpans(text string, label *regexp.Regexp) string {
	labels := label.FindAllStringIndex(text, -1)
	if len(labels) == 0 {
		return text
	}
	anchors := firstHeading.FindAllStringIndex(text, -1)

	var b strings.Builder
	cursor := 0
	for _, l := range labels {
		if l[0] < cursor {
			continue
		}
		anchor := -1
		for _, a := range anchors {
			if a[0] >= l[1] {
				anchor = a[0]
				break
			}
		}
		if anchor < 0 {
			break
		}
		b.WriteString(text[cursor:l[0]])
		cursor = anchor
	}
	if cursor == 0 {
		return text
	}
	b.WriteString(text[cursor:])
	return b.String()
}

// NormalizeWhitespace converts tabs, trims each line, collapses runs of blank
// lines to one, and trims the document.
func NormalizeWhitespace(text string) string {
	text = strings.ReplaceAll(text, "\t", " ")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// RemovePageNumbers deletes lines that hold nothing but a number. The blank
// lines around them are kept so paragraph breaks survive.
func RemovePageNumbers(text string) string {
	return pageNumberLine.ReplaceAllString(text, "")
}
