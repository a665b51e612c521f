package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func TestHubFlushesFullBatch(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 2, MaxBatchWait: time.Minute}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(bookEvent("DOWNLOADING"))
	hub.Emit(bookEvent("CLEANING"))
	require.Eventually(t, func() bool {
		batches := sink.Batches()
		return len(batches) == 1 && len(batches[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestHubFlushesAfterWait(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 10, MaxBatchWait: 20 * time.Millisecond}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(bookEvent("FETCHING_METADATA"))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHubCloseDrainsAndClosesSinks(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{MaxBatchEvents: 100, MaxBatchWait: time.Minute}, sink)

	hub.Emit(Event{RunID: "run-1", TS: time.Now(), Stage: StageRunStarted})
	hub.Emit(bookEvent("COLLECTED"))
	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))

	batches := sink.Batches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
	assert.True(t, sink.closed)

	hub.Emit(bookEvent("FAILED"))
	assert.Len(t, sink.Batches(), 1)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	hub := NewHub(Config{}, sink)

	hub.Emit(Event{RunID: "run-1", TS: time.Now(), Stage: "CLEANING"})
	hub.Emit(Event{TS: time.Now(), Stage: StageRunStarted})
	require.NoError(t, hub.Close(context.Background()))
	assert.Empty(t, sink.Batches())
}

func TestHubEmitDoesNotBlock(t *testing.T) {
	t.Parallel()

	hub := &Hub{events: make(chan Event), logger: zap.NewNop(), dropLog: rate.Sometimes{Interval: time.Second}}
	start := time.Now()
	hub.Emit(bookEvent("SPLITTING"))
	hub.Emit(bookEvent("SPLITTING"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestHubSinkErrorDoesNotStopDelivery(t *testing.T) {
	t.Parallel()

	failing := &stubSink{err: errors.New("boom")}
	healthy := &stubSink{}
	hub := NewHub(Config{MaxBatchEvents: 1}, failing, healthy)

	hub.Emit(bookEvent("GENERATING"))
	require.NoError(t, hub.Close(context.Background()))
	assert.Len(t, healthy.Batches(), 1)
}

func TestNilHubIsSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(bookEvent("PENDING"))
	assert.NoError(t, hub.Close(context.Background()))
}

func TestEventValidate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name    string
		evt     Event
		wantErr bool
	}{
		{"book event", bookEvent("CLEANING"), false},
		{"run event", Event{RunID: "r", TS: now, Stage: StageRunFinished}, false},
		{"missing run", Event{TS: now, Stage: StageRunStarted}, true},
		{"missing ts", Event{RunID: "r", Stage: StageRunStarted}, true},
		{"missing stage", Event{RunID: "r", TS: now}, true},
		{"book without id", Event{RunID: "r", TS: now, Stage: "CLEANING", HeroID: "aesop"}, true},
		{"negative dur", Event{RunID: "r", TS: now, Stage: StageRunStarted, Dur: -time.Second}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.evt.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
	err     error
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]Event(nil), batch...))
	return s.err
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Event(nil), s.batches...)
}

func bookEvent(stage string) Event {
	return Event{RunID: "run-1", TS: time.Now(), Stage: stage, HeroID: "aesop", BookID: 21}
}
