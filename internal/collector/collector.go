// Package collector drives the per-book pipeline: metadata, download, clean,
// split, generate, validate and persist. A failing book is recorded and the
// run moves on to the next one.
package collector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/classic-hero/classichero/internal/book"
	"github.com/classic-hero/classichero/internal/cleaner"
	"github.com/classic-hero/classichero/internal/dataset"
	"github.com/classic-hero/classichero/internal/generator"
	"github.com/classic-hero/classichero/internal/metrics"
	"github.com/classic-hero/classichero/internal/progress"
	"github.com/classic-hero/classichero/internal/splitter"
)

// Stage names a step of the per-book pipeline.
type Stage string

// Pipeline stages in execution order, followed by the terminal states.
const (
	StagePending          Stage = "PENDING"
	StageFetchingMetadata Stage = "FETCHING_METADATA"
	StageDownloading      Stage = "DOWNLOADING"
	StageCleaning         Stage = "CLEANING"
	StageSplitting        Stage = "SPLITTING"
	StageGenerating       Stage = "GENERATING"
	StageValidating       Stage = "VALIDATING"
	StagePersisting       Stage = "PERSISTING"
	StageCollected        Stage = "COLLECTED"
	StageFailed           Stage = "FAILED"
)

// Default artifact paths, relative to the blob store root.
const (
	DefaultOutputPath = "collected_books.json"
	DefaultReportPath = "logs/quality_report.json"
	rawPrefix         = "raw"
	jsonContentType   = "application/json"
	textContentType   = "text/plain; charset=utf-8"
)

// Exit statuses reported by Result.ExitCode.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitPartial     = 2
	ExitInterrupted = 130
)

// ErrInterrupted reports a run stopped by context cancellation.
var ErrInterrupted = errors.New("collection interrupted")

// BookError wraps a per-book failure with the stage it happened in.
type BookError struct {
	Stage Stage
	Err   error
}

func (e *BookError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *BookError) Unwrap() error {
	return e.Err
}

// Source fetches book metadata and text.
type Source interface {
	Metadata(ctx context.Context, id int) (book.Metadata, error)
	DownloadText(ctx context.Context, id int) ([]byte, string, error)
}

// Splitter turns cleaned text into chapters. Implementations never fail.
type Splitter interface {
	Split(text string) []book.Chapter
}

// Generator assembles and validates book records.
type Generator interface {
	Generate(src book.Source, heroID string, index int, meta book.Metadata, chapters []book.Chapter) book.Book
	Validate(b book.Book) error
}

// Config controls Collector behavior. Progress receives a stage event per
// transition and may be nil.
type Config struct {
	Clean       cleaner.Options
	MaxChapters int
	KeepRaw     bool
	OutputPath  string
	ReportPath  string
	Progress    progress.Emitter
}

// Result summarizes a collection run.
type Result struct {
	RunID       string
	Books       []book.Book
	Failed      []book.FailedBook
	Report      book.QualityReport
	Interrupted bool
	OutputURI   string
	ReportURI   string
}

// ExitCode maps the run outcome onto the process exit status.
func (r Result) ExitCode() int {
	switch {
	case r.Interrupted:
		return ExitInterrupted
	case len(r.Books) == 0:
		return ExitFailure
	case len(r.Failed) > 0:
		return ExitPartial
	default:
		return ExitOK
	}
}

// Collector runs the pipeline for every configured book, one at a time.
type Collector struct {
	source    Source
	splitter  Splitter
	generator Generator
	blobStore book.BlobStore
	store     book.Store
	hasher    book.Hasher
	clock     book.Clock
	ids       book.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Collector. store may be nil when books are only written
// to the artifact files.
func New(
	source Source,
	split Splitter,
	gen Generator,
	blobStore book.BlobStore,
	store book.Store,
	hasher book.Hasher,
	clock book.Clock,
	ids book.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Collector {
	if cfg.OutputPath == "" {
		cfg.OutputPath = DefaultOutputPath
	}
	if cfg.ReportPath == "" {
		cfg.ReportPath = DefaultReportPath
	}
	if cfg.Progress == nil {
		cfg.Progress = progress.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		source:    source,
		splitter:  split,
		generator: gen,
		blobStore: blobStore,
		store:     store,
		hasher:    hasher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run collects every book of every hero. The returned error is non-nil only
// for run-level failures: interruption or a failed artifact write.
func (c *Collector) Run(ctx context.Context, heroes []book.Hero) (Result, error) {
	runID, err := c.ids.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}
	res := Result{RunID: runID}
	logger := c.logger.With(zap.String("run_id", runID))
	logger.Info("collection started", zap.Int("heroes", len(heroes)))
	c.cfg.Progress.Emit(progress.Event{RunID: runID, TS: c.clock.Now(), Stage: progress.StageRunStarted})
	defer func() {
		c.cfg.Progress.Emit(progress.Event{
			RunID: runID,
			TS:    c.clock.Now(),
			Stage: progress.StageRunFinished,
			Note:  fmt.Sprintf("collected=%d failed=%d interrupted=%t", len(res.Books), len(res.Failed), res.Interrupted),
		})
	}()

	for _, hero := range heroes {
		logger.Info("collecting hero", zap.String("hero", hero.ID), zap.Int("books", len(hero.Books)))
		for idx, src := range hero.Books {
			if ctx.Err() != nil {
				res.Interrupted = true
				logger.Warn("collection interrupted", zap.Int("collected", len(res.Books)))
				return res, ErrInterrupted
			}

			b, err := c.collectBook(ctx, runID, hero, idx, src)
			if err != nil {
				if ctx.Err() != nil {
					res.Interrupted = true
					logger.Warn("collection interrupted", zap.Int("collected", len(res.Books)))
					return res, ErrInterrupted
				}
				res.Failed = append(res.Failed, failure(hero, src, err))
				metrics.ObserveBook(string(StageFailed), 0)
				continue
			}
			res.Books = append(res.Books, b)
			metrics.ObserveBook(string(StageCollected), len(b.Chapters))
		}
	}

	res.Report = c.report(runID, res)
	if len(res.Books) > 0 {
		if err := c.writeArtifacts(ctx, &res); err != nil {
			return res, err
		}
	}
	c.logSummary(logger, res)
	return res, nil
}

func (c *Collector) collectBook(ctx context.Context, runID string, hero book.Hero, idx int, src book.Source) (book.Book, error) {
	logger := c.logger.With(zap.String("hero", hero.ID), zap.Int("book_id", src.ID))
	var stage Stage
	entered := c.clock.Now()
	emit := func(next Stage, note string) {
		now := c.clock.Now()
		c.cfg.Progress.Emit(progress.Event{
			RunID:  runID,
			TS:     now,
			Stage:  string(next),
			HeroID: hero.ID,
			BookID: src.ID,
			Prev:   string(stage),
			Dur:    max(now.Sub(entered), 0),
			Note:   note,
		})
		entered = now
	}
	fail := func(err error) (book.Book, error) {
		metrics.ObserveStageFailure(string(stage))
		logger.Error("book failed", zap.String("stage", string(stage)), zap.Error(err))
		emit(StageFailed, err.Error())
		return book.Book{}, &BookError{Stage: stage, Err: err}
	}
	enter := func(next Stage) {
		emit(next, "")
		stage = next
		logger.Info("stage", zap.String("stage", string(stage)))
	}

	enter(StagePending)
	enter(StageFetchingMetadata)
	meta, err := c.source.Metadata(ctx, src.ID)
	if err != nil {
		return fail(err)
	}

	enter(StageDownloading)
	raw, text, err := c.source.DownloadText(ctx, src.ID)
	if err != nil {
		return fail(err)
	}
	logger.Info("text downloaded", zap.Int("chars", len([]rune(text))))
	if c.cfg.KeepRaw {
		c.archiveRaw(ctx, logger, hero.ID, src.ID, raw)
	}

	enter(StageCleaning)
	clean := cleaner.Clean(text, c.cfg.Clean)
	if strings.TrimSpace(clean) == "" {
		return fail(errors.New("no text left after cleaning"))
	}

	enter(StageSplitting)
	chapters := c.splitter.Split(clean)
	if c.cfg.MaxChapters > 0 && len(chapters) > c.cfg.MaxChapters {
		logger.Info("truncating chapters", zap.Int("chapters", len(chapters)), zap.Int("limit", c.cfg.MaxChapters))
		chapters = splitter.Truncate(chapters, c.cfg.MaxChapters)
	}

	enter(StageGenerating)
	b := c.generator.Generate(src, hero.ID, idx, meta, chapters)

	enter(StageValidating)
	if err := c.generator.Validate(b); err != nil {
		return fail(err)
	}

	if c.store != nil {
		enter(StagePersisting)
		if err := c.store.UpsertBook(ctx, b); err != nil {
			return fail(fmt.Errorf("upsert book: %w", err))
		}
	}

	emit(StageCollected, "")
	logger.Info("book collected", zap.String("id", b.ID), zap.Int("chapters", len(b.Chapters)))
	return b, nil
}

// archiveRaw stores the untouched download. Failures are logged only.
func (c *Collector) archiveRaw(ctx context.Context, logger *zap.Logger, heroID string, bookID int, raw []byte) {
	sum, err := c.hasher.Hash(raw)
	if err != nil {
		logger.Warn("hash raw text failed", zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s-%d-%s.txt", rawPrefix, heroID, bookID, sum)
	uri, err := c.blobStore.PutObject(ctx, path, textContentType, bytes.NewReader(raw))
	if err != nil {
		logger.Warn("archive raw text failed", zap.String("path", path), zap.Error(err))
		return
	}
	logger.Debug("raw text archived", zap.String("uri", uri))
}

func (c *Collector) report(runID string, res Result) book.QualityReport {
	report := generator.QualityReport(res.Books)
	report.RunID = runID
	report.GeneratedAt = c.clock.Now()
	report.Failed = res.Failed
	return report
}

func (c *Collector) writeArtifacts(ctx context.Context, res *Result) error {
	uri, err := c.putJSON(ctx, c.cfg.OutputPath, res.Books)
	if err != nil {
		return err
	}
	res.OutputURI = uri
	uri, err = c.putJSON(ctx, c.cfg.ReportPath, res.Report)
	if err != nil {
		return err
	}
	res.ReportURI = uri
	return nil
}

func (c *Collector) putJSON(ctx context.Context, path string, v any) (string, error) {
	data, err := dataset.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	uri, err := c.blobStore.PutObject(ctx, path, jsonContentType, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return uri, nil
}

func (c *Collector) logSummary(logger *zap.Logger, res Result) {
	if len(res.Books) == 0 {
		logger.Error("no books collected", zap.Int("failed", len(res.Failed)))
	} else {
		logger.Info("collection finished",
			zap.Int("books", res.Report.TotalBooks),
			zap.Int("chapters", res.Report.TotalChapters),
			zap.Float64("avg_chapters_per_book", res.Report.AvgChaptersPerBook),
			zap.Any("difficulty_distribution", res.Report.DifficultyDistribution),
			zap.Any("genre_distribution", res.Report.GenreDistribution),
			zap.Any("hero_distribution", res.Report.HeroDistribution),
			zap.String("output", res.OutputURI),
		)
	}
	for _, f := range res.Failed {
		logger.Warn("failed book",
			zap.String("hero", f.Hero),
			zap.Int("book_id", f.BookID),
			zap.String("title", f.Title),
			zap.String("stage", f.Stage),
			zap.String("error", f.Error),
		)
	}
}

func failure(hero book.Hero, src book.Source, err error) book.FailedBook {
	name := hero.Name
	if name == "" {
		name = hero.ID
	}
	fb := book.FailedBook{
		Hero:   name,
		BookID: src.ID,
		Title:  src.Title,
		Error:  err.Error(),
	}
	var be *BookError
	if errors.As(err, &be) {
		fb.Stage = string(be.Stage)
		fb.Error = be.Err.Error()
	}
	return fb
}
