// Package dataset reads and writes the JSON book collections exchanged between
// the collector, the merge command, and the in-memory catalog.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/classic-hero/classichero/internal/book"
)

// Entry is one book of a served dataset. Fields this module does not model
// are preserved verbatim when the entry is written back.
type Entry struct {
	ID         string
	Genre      string
	Difficulty string
	raw        json.RawMessage
}

// EntryFromBook converts a collected book into a dataset entry.
func EntryFromBook(b book.Book) (Entry, error) {
	raw, err := json.Marshal(b)
	if err != nil {
		return Entry{}, fmt.Errorf("encode book %s: %w", b.ID, err)
	}
	return Entry{ID: b.ID, Genre: b.Genre, Difficulty: string(b.Difficulty), raw: raw}, nil
}

// UnmarshalJSON keeps the raw document alongside the fields used for merging.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var head struct {
		ID         string `json:"id"`
		Genre      string `json:"genre"`
		Difficulty string `json:"difficulty"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	if head.ID == "" {
		return errors.New("dataset entry has no id")
	}
	e.ID, e.Genre, e.Difficulty = head.ID, head.Genre, head.Difficulty
	e.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes the preserved document.
func (e Entry) MarshalJSON() ([]byte, error) {
	if len(e.raw) == 0 {
		return nil, fmt.Errorf("dataset entry %s has no content", e.ID)
	}
	return e.raw, nil
}

// ReadEntries loads a dataset file. A missing file is reported with
// fs.ErrNotExist so callers can decide whether that is an error.
func ReadEntries(path string) ([]Entry, error) {
	var entries []Entry
	if err := readJSON(path, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadBooks loads a dataset file as typed books.
func ReadBooks(path string) ([]book.Book, error) {
	var books []book.Book
	if err := readJSON(path, &books); err != nil {
		return nil, err
	}
	return books, nil
}

// Encode writes v as 2-space indented JSON without HTML escaping.
func Encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// Marshal is Encode into a byte slice.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile encodes v to path, replacing any existing file atomically.
func WriteFile(path string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Exists reports whether path names an existing file.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func readJSON(path string, v any) error {
	// #nosec G304 -- dataset paths come from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("read %s: %w", path, fs.ErrNotExist)
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
