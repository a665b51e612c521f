package cleaner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleEbook = `
*** START OF THE PROJECT GUTENBERG EBOOK AUTOBIOGRAPHY OF BENJAMIN FRANKLIN ***

Produced by David Widger

CONTENTS

Chapter I
Chapter II
Chapter III

PREFACE

This is a preface that should be removed.

CHAPTER I

	This is the actual content that should remain.
It has multiple paragraphs.   

This is another paragraph.


CHAPTER II

More content here.


*** END OF THE PROJECT GUTENBERG EBOOK AUTOBIOGRAPHY OF BENJAMIN FRANKLIN ***
    `

func TestCleanSampleEbook(t *testing.T) {
	t.Parallel()

	cleaned := Clean(sampleEbook, Options{})

	assert.NotContains(t, cleaned, "*** START OF")
	assert.NotContains(t, cleaned, "*** END OF")
	assert.NotContains(t, cleaned, "PREFACE")
	assert.NotContains(t, cleaned, "CONTENTS")
	assert.NotContains(t, cleaned, "\t")
	assert.NotContains(t, cleaned, "\n\n\n")
	assert.Contains(t, cleaned, "CHAPTER I\n\nThis is the actual content that should remain.\nIt has multiple paragraphs.")
	assert.True(t, strings.HasSuffix(cleaned, "More content here."))
}

func TestCleanIsIdempotent(t *testing.T) {
	t.Parallel()

	once := Clean(sampleEbook, Options{})
	require.Equal(t, once, Clean(once, Options{}))

	withPages := Clean(sampleEbook+"\n\n12\n\nTail text.", Options{RemovePageNumbers: true})
	require.Equal(t, withPages, Clean(withPages, Options{RemovePageNumbers: true}))

	centered := "    PREFACE\n\nA short preface that should be gone.\n\n    CHAPTER I\n\nBody text of the first chapter."
	once = Clean(centered, Options{})
	require.Equal(t, "CHAPTER I\n\nBody text of the first chapter.", once)
	require.Equal(t, once, Clean(once, Options{}))
}

func TestRemoveHeaderFooter(t *testing.T) {
	t.Parallel()

	t.Run("ThisVariantCaseInsensitive", func(t *testing.T) {
		t.Parallel()
		text := "license junk\n*** start of this project gutenberg ebook x ***\nBody\n***END OF THIS PROJECT GUTENBERG EBOOK X***\nfooter"
		require.Equal(t, "Body", RemoveHeaderFooter(text))
	})

	t.Run("NoMarkersIsNoOp", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, "plain text", RemoveHeaderFooter("  plain text \n"))
	})

	t.Run("FooterOnly", func(t *testing.T) {
		t.Parallel()
		text := "Body text\n*** END OF THE PROJECT GUTENBERG EBOOK Y ***\nlicense"
		require.Equal(t, "Body text", RemoveHeaderFooter(text))
	})
}

func TestRemoveFrontMatter(t *testing.T) {
	t.Parallel()

	t.Run("TableOfContentsAndForeword", func(t *testing.T) {
		t.Parallel()
		text := "Title\nTABLE OF CONTENTS\nI. Start\nII. End\nFOREWORD\nSome words.\nCHAPTER ONE\nBody"
		require.Equal(t, "Title\nCHAPTER ONE\nBody", RemoveFrontMatter(text))
	})

	t.Run("LabelAtDocumentStart", func(t *testing.T) {
		t.Parallel()
		text := "INTRODUCTION\nBy the editor.\nLETTER 1\nDear sir"
		require.Equal(t, "\nLETTER 1\nDear sir", RemoveFrontMatter(text))
	})

	t.Run("NoAnchorLeavesFrontMatter", func(t *testing.T) {
		t.Parallel()
		text := "PREFACE\nA preface with no chapter headings after it.\nThe end."
		require.Equal(t, text, RemoveFrontMatter(text))
	})

	t.Run("AnchorRequiresFirstNumeral", func(t *testing.T) {
		t.Parallel()
		text := "PREFACE\nWords.\nCHAPTER II\nBody"
		require.Equal(t, text, RemoveFrontMatter(text))
	})

	t.Run("SpeechAnchor", func(t *testing.T) {
		t.Parallel()
		text := "Collected speeches\nPreface\nNotes on the speeches.\nSPEECH I\nFellow citizens"
		require.Equal(t, "Collected speeches\nSPEECH I\nFellow citizens", RemoveFrontMatter(text))
	})
}

func TestNormalizeWhitespace(t *testing.T) {
	t.Parallel()

	in := "\n\n  a\tb  \n\n\n\n   c\n\n\n"
	require.Equal(t, "a b\n\nc", NormalizeWhitespace(in))
	require.Equal(t, "", NormalizeWhitespace(" \n\t\n"))
}

func TestRemovePageNumbers(t *testing.T) {
	t.Parallel()

	in := "first paragraph\n42\nsecond paragraph\n  7  \nthird 8 stays"
	out := NormalizeWhitespace(RemovePageNumbers(in))
	assert.NotContains(t, out, "42")
	assert.NotContains(t, out, "7")
	assert.Contains(t, out, "third 8 stays")
	assert.Contains(t, out, "second paragraph")
}

func TestRemovePageNumbersKeepsParagraphBreaks(t *testing.T) {
	t.Parallel()

	require.Equal(t, "para1\n\npara2", Clean("para1\n\n12\n\npara2", Options{RemovePageNumbers: true}))
	require.Equal(t, "12 apples\nfell\n", RemovePageNumbers("12 apples\nfell\n 3 "))
}

func TestCleanPageNumbersOffByDefault(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a\n12\nb", Clean("a\n12\nb", Options{}))
}

func TestCleanNeverPanicsOnEmpty(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", Clean("", Options{RemovePageNumbers: true}))
}
