package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/classic-hero/classichero/internal/book"
	"github.com/classic-hero/classichero/internal/progress"
)

// DefaultJournalPrefix is where journals land in the blob store.
const DefaultJournalPrefix = "logs/progress"

// JournalSink keeps the events of each run and writes them on Close as one
// JSON Lines object per run: <prefix>/<run_id>.jsonl.
type JournalSink struct {
	store  book.BlobStore
	prefix string
	logger *zap.Logger

	mu    sync.Mutex
	order []string
	runs  map[string]*bytes.Buffer
}

// NewJournalSink constructs a JournalSink writing under prefix.
func NewJournalSink(store book.BlobStore, prefix string, logger *zap.Logger) *JournalSink {
	if prefix == "" {
		prefix = DefaultJournalPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JournalSink{
		store:  store,
		prefix: prefix,
		logger: logger,
		runs:   make(map[string]*bytes.Buffer),
	}
}

// Consume appends each event to its run's journal.
func (s *JournalSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		buf, ok := s.runs[evt.RunID]
		if !ok {
			buf = &bytes.Buffer{}
			s.runs[evt.RunID] = buf
			s.order = append(s.order, evt.RunID)
		}
		if err := json.NewEncoder(buf).Encode(evt); err != nil {
			return fmt.Errorf("encode progress event: %w", err)
		}
	}
	return nil
}

// Close writes every journal. It keeps going after a failed write and returns
// the first error.
func (s *JournalSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, runID := range s.order {
		path := fmt.Sprintf("%s/%s.jsonl", s.prefix, runID)
		uri, err := s.store.PutObject(ctx, path, "application/x-ndjson", bytes.NewReader(s.runs[runID].Bytes()))
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("write journal %s: %w", path, err)
			}
			continue
		}
		s.logger.Info("progress journal written", zap.String("uri", uri))
	}
	s.order = nil
	s.runs = make(map[string]*bytes.Buffer)
	return firstErr
}
