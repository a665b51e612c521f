package progress

import (
	"errors"
	"fmt"
	"time"
)

// Run-level stages. Book events carry the collector stage name instead.
const (
	StageRunStarted  = "RUN_STARTED"
	StageRunFinished = "RUN_FINISHED"
)

// Event records one stage transition of a collection run.
type Event struct {
	// RunID groups the events of one collection run.
	RunID string `json:"run_id"`
	// TS is the UTC time the stage was entered.
	TS time.Time `json:"ts"`
	// Stage is the stage entered.
	Stage string `json:"stage"`
	// HeroID and BookID identify the book; both are empty on run events.
	HeroID string `json:"hero_id,omitempty"`
	BookID int    `json:"book_id,omitempty"`
	// Prev is the stage the book left and Dur the time it spent there.
	Prev string        `json:"prev,omitempty"`
	Dur  time.Duration `json:"dur_ns,omitempty"`
	// Note carries error text for failures and counts for run events.
	Note string `json:"note,omitempty"`
}

// RunLevel reports whether the event describes the run rather than a book.
func (e Event) RunLevel() bool {
	return e.Stage == StageRunStarted || e.Stage == StageRunFinished
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	if e.Stage == "" {
		return errors.New("stage is required")
	}
	if !e.RunLevel() && (e.HeroID == "" || e.BookID <= 0) {
		return fmt.Errorf("stage %s requires hero and book id", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
