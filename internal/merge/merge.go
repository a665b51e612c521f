// Package merge folds a collected book file into the served dataset.
package merge

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"go.uber.org/zap"

	"github.com/classic-hero/classichero/internal/dataset"
)

// Mode selects how collected books combine with the dataset.
type Mode string

const (
	// ModeAppend adds collected books whose id is not yet present.
	ModeAppend Mode = "append"
	// ModeReplace keeps dataset books not in the collected set, then appends
	// every collected book.
	ModeReplace Mode = "replace"
)

// Options locate the files involved in a merge.
type Options struct {
	DatasetPath   string
	CollectedPath string
	BackupPath    string
	Mode          Mode
}

// Result summarizes a merge.
type Result struct {
	Existing     int
	Collected    int
	Added        int
	Kept         int
	Skipped      []string
	Total        int
	Genres       map[string]int
	Difficulties map[string]int
}

// Merge combines entries without touching the filesystem.
func Merge(existing, collected []dataset.Entry, mode Mode) ([]dataset.Entry, Result, error) {
	res := Result{Existing: len(existing), Collected: len(collected)}
	var merged []dataset.Entry

	switch mode {
	case ModeAppend, "":
		seen := make(map[string]struct{}, len(existing))
		for _, e := range existing {
			seen[e.ID] = struct{}{}
		}
		merged = append(merged, existing...)
		res.Kept = len(existing)
		for _, e := range collected {
			if _, dup := seen[e.ID]; dup {
				res.Skipped = append(res.Skipped, e.ID)
				continue
			}
			seen[e.ID] = struct{}{}
			merged = append(merged, e)
			res.Added++
		}
	case ModeReplace:
		incoming := make(map[string]struct{}, len(collected))
		for _, e := range collected {
			incoming[e.ID] = struct{}{}
		}
		for _, e := range existing {
			if _, replaced := incoming[e.ID]; !replaced {
				merged = append(merged, e)
				res.Kept++
			}
		}
		merged = append(merged, collected...)
		res.Added = len(collected)
	default:
		return nil, Result{}, fmt.Errorf("unknown merge mode %q", mode)
	}

	res.Total = len(merged)
	res.Genres = make(map[string]int)
	res.Difficulties = make(map[string]int)
	for _, e := range merged {
		res.Genres[e.Genre]++
		res.Difficulties[e.Difficulty]++
	}
	return merged, res, nil
}

// Run backs up the dataset, merges the collected file into it, and rewrites it.
// A missing dataset is treated as empty; a missing collected file is an error.
func Run(opts Options, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	existing, err := dataset.ReadEntries(opts.DatasetPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("dataset not found, starting empty", zap.String("path", opts.DatasetPath))
		existing = nil
	case err != nil:
		return Result{}, err
	default:
		if opts.BackupPath != "" {
			if err := dataset.WriteFile(opts.BackupPath, existing); err != nil {
				return Result{}, fmt.Errorf("backup dataset: %w", err)
			}
			logger.Info("dataset backed up", zap.String("path", opts.BackupPath), zap.Int("books", len(existing)))
		}
	}

	collected, err := dataset.ReadEntries(opts.CollectedPath)
	if err != nil {
		return Result{}, fmt.Errorf("load collected books: %w", err)
	}

	merged, res, err := Merge(existing, collected, opts.Mode)
	if err != nil {
		return Result{}, err
	}
	if len(res.Skipped) > 0 {
		logger.Warn("duplicate books skipped", zap.Strings("ids", res.Skipped))
	}
	if merged == nil {
		merged = []dataset.Entry{}
	}
	if err := dataset.WriteFile(opts.DatasetPath, merged); err != nil {
		return Result{}, fmt.Errorf("write dataset: %w", err)
	}

	logger.Info("dataset merged",
		zap.String("path", opts.DatasetPath),
		zap.String("mode", string(opts.Mode)),
		zap.Int("existing", res.Existing),
		zap.Int("kept", res.Kept),
		zap.Int("added", res.Added),
		zap.Int("total", res.Total),
		zap.Any("genres", sortedCounts(res.Genres)),
		zap.Any("difficulties", sortedCounts(res.Difficulties)),
	)
	return res, nil
}

type count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

func sortedCounts(m map[string]int) []count {
	out := make([]count, 0, len(m))
	for k, v := range m {
		out = append(out, count{Key: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
