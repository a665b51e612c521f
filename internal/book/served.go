package book

import (
	"fmt"
	"strings"
)

// ServedChapterID builds the public chapter identifier, e.g. "aesop-fables-ch1".
func ServedChapterID(bookID string, number int) string {
	return fmt.Sprintf("%s-ch%d", bookID, number)
}

// WordCount counts whitespace-delimited words.
func WordCount(content string) int {
	return len(strings.Fields(content))
}

// Serve maps a collected chapter onto the served chapter shape.
func Serve(bookID string, ch Chapter) ServedChapter {
	return ServedChapter{
		ID:            ServedChapterID(bookID, ch.ID),
		ChapterNumber: ch.ID,
		Title:         ch.Title,
		Content:       ch.Content,
		WordCount:     WordCount(ch.Content),
		Vocabulary:    ch.Vocabulary,
	}
}
