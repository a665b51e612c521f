// Package app builds the long-lived services shared by the commands: logger,
// blob store, book store, Gutenberg client, collector and catalog server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/classic-hero/classichero/internal/api"
	"github.com/classic-hero/classichero/internal/book"
	"github.com/classic-hero/classichero/internal/cleaner"
	"github.com/classic-hero/classichero/internal/clock/system"
	"github.com/classic-hero/classichero/internal/collector"
	"github.com/classic-hero/classichero/internal/config"
	"github.com/classic-hero/classichero/internal/dataset"
	collyfetcher "github.com/classic-hero/classichero/internal/fetcher/colly"
	"github.com/classic-hero/classichero/internal/generator"
	"github.com/classic-hero/classichero/internal/gutenberg"
	"github.com/classic-hero/classichero/internal/hash/sha256"
	"github.com/classic-hero/classichero/internal/id/uuid"
	"github.com/classic-hero/classichero/internal/logging"
	"github.com/classic-hero/classichero/internal/merge"
	"github.com/classic-hero/classichero/internal/metrics"
	"github.com/classic-hero/classichero/internal/policy/ratelimit"
	"github.com/classic-hero/classichero/internal/progress"
	"github.com/classic-hero/classichero/internal/progress/sinks"
	pubsubpublisher "github.com/classic-hero/classichero/internal/publisher/pubsub"
	"github.com/classic-hero/classichero/internal/splitter"
	"github.com/classic-hero/classichero/internal/storage"
	gcsstorage "github.com/classic-hero/classichero/internal/storage/gcs"
	localstorage "github.com/classic-hero/classichero/internal/storage/local"
	memorystorage "github.com/classic-hero/classichero/internal/storage/memory"
	pgstore "github.com/classic-hero/classichero/internal/storage/postgres"
)

const (
	shutdownTimeout      = 10 * time.Second
	progressCloseTimeout = 5 * time.Second
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	gcsClient *gcs.Client
	pgStore   *pgstore.BookStore
}

// New creates an App around an existing logger.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, logger: logger}
}

// Build creates the logger and registers metrics.
func Build(cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()
	logger.Debug("application built",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("postgres", cfg.DB.DSN != ""),
		zap.Int("heroes", len(cfg.Heroes)),
	)
	return New(cfg, logger), nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// BlobStore opens the configured artifact backend.
func (a *App) BlobStore(ctx context.Context) (book.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case storage.BackendGCS:
		if a.gcsClient == nil {
			client, err := gcs.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("gcs client init failed: %w", err)
			}
			a.gcsClient = client
		}
		blobStore, err := gcsstorage.New(a.gcsClient, gcsstorage.Config{
			Bucket:   a.cfg.Storage.GCSBucket,
			Prefix:   a.cfg.Storage.Prefix,
			Metadata: map[string]string{"producer": a.cfg.Gutenberg.UserAgent},
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return blobStore, nil
	case storage.BackendMemory:
		a.logger.Warn("using in-memory storage backend, artifacts are discarded on exit")
		return memorystorage.NewBlobStore(), nil
	default:
		dir := filepath.Join(a.cfg.Storage.BaseDir, a.cfg.Storage.Prefix)
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local storage backend", zap.String("path", dir))
		return blobStore, nil
	}
}

// Postgres opens the relational book store once. It returns nil when no DSN
// is configured.
func (a *App) Postgres(ctx context.Context) (*pgstore.BookStore, error) {
	if a.cfg.DB.DSN == "" {
		return nil, nil
	}
	if a.pgStore != nil {
		return a.pgStore, nil
	}
	store, err := pgstore.Open(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
		MinConns: a.cfg.DB.MinConns,
		Migrate:  a.cfg.DB.Migrate,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store init failed: %w", err)
	}
	a.logger.Info("postgres book store opened", zap.Bool("vocabulary", store.Capabilities().Vocabulary))
	a.pgStore = store
	return store, nil
}

// BookStore selects the catalog backend: Postgres when a DSN is configured,
// otherwise the served dataset file loaded into memory. The returned Pinger
// is nil for the in-memory store.
func (a *App) BookStore(ctx context.Context) (book.Store, api.Pinger, error) {
	pg, err := a.Postgres(ctx)
	if err != nil {
		return nil, nil, err
	}
	if pg != nil {
		return pg, pg, nil
	}

	path := a.cfg.Server.DatasetPath
	books, err := dataset.ReadBooks(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		a.logger.Warn("dataset not found, serving an empty catalog", zap.String("path", path))
	case err != nil:
		return nil, nil, fmt.Errorf("load dataset: %w", err)
	default:
		a.logger.Info("dataset loaded", zap.String("path", path), zap.Int("books", len(books)))
	}
	return memorystorage.NewBookStore(books), nil, nil
}

// Gutenberg builds the metadata/text client over the colly fetcher.
func (a *App) Gutenberg() *gutenberg.Client {
	fetch := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Gutenberg.UserAgent,
		RespectRobots: a.cfg.Gutenberg.RespectRobots,
		Timeout:       a.cfg.HTTP.Timeout(),
		MaxBodySize:   a.cfg.HTTP.MaxBodyBytes,
	})
	return gutenberg.NewClient(
		fetch,
		gutenberg.Config{
			MetadataBaseURL: a.cfg.Gutenberg.MetadataBaseURL,
			TextBaseURL:     a.cfg.Gutenberg.TextBaseURL,
			Limiter: ratelimit.New(ratelimit.Config{
				RequestsPerSecond: a.cfg.Gutenberg.RequestsPerSecond,
				Burst:             a.cfg.Gutenberg.Burst,
			}),
		},
		gutenberg.RetryPolicy{
			MaxAttempts: a.cfg.HTTP.MaxRetries,
			BaseDelay:   a.cfg.HTTP.BackoffInitial(),
			MaxDelay:    a.cfg.HTTP.BackoffMax(),
		},
		a.logger.Named("gutenberg"),
	)
}

// Collector wires the collection pipeline. Books are also upserted into
// Postgres when a DSN is configured. emitter may be nil.
func (a *App) Collector(ctx context.Context, emitter progress.Emitter) (*collector.Collector, error) {
	blobStore, err := a.BlobStore(ctx)
	if err != nil {
		return nil, err
	}
	var store book.Store
	pg, err := a.Postgres(ctx)
	if err != nil {
		return nil, err
	}
	if pg != nil {
		store = pg
	}

	split := splitter.New(splitter.Options{
		SplitLong:  a.cfg.Splitter.SplitLong,
		MaxLength:  a.cfg.Splitter.MaxLength,
		MergeShort: a.cfg.Splitter.MergeShort,
		MinLength:  a.cfg.Splitter.MinLength,
	}, a.logger.Named("splitter"))

	return collector.New(
		a.Gutenberg(),
		split,
		generator.New(a.cfg.CoverColors),
		blobStore,
		store,
		sha256.New(),
		system.New(),
		uuid.New(),
		collector.Config{
			Clean:       cleaner.Options{RemovePageNumbers: a.cfg.Splitter.RemovePageNumbers},
			MaxChapters: a.cfg.Splitter.MaxChapters,
			KeepRaw:     a.cfg.Storage.KeepRaw,
			Progress:    emitter,
		},
		a.logger.Named("collector"),
	), nil
}

// Collect runs the collection pipeline for the given heroes. Stage events go
// to the debug log, Prometheus and a journal next to the artifacts.
func (a *App) Collect(ctx context.Context, heroes []book.Hero) (collector.Result, error) {
	hub, err := a.ProgressHub(ctx)
	if err != nil {
		return collector.Result{}, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), progressCloseTimeout)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			a.logger.Warn("close progress hub", zap.Error(err))
		}
	}()

	c, err := a.Collector(ctx, hub)
	if err != nil {
		return collector.Result{}, err
	}
	return c.Run(ctx, heroes)
}

// ProgressHub starts a hub feeding the log, Prometheus and journal sinks, plus
// Pub/Sub notifications when a topic is configured.
func (a *App) ProgressHub(ctx context.Context) (*progress.Hub, error) {
	blobStore, err := a.BlobStore(ctx)
	if err != nil {
		return nil, err
	}
	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, err
	}
	logger := a.logger.Named("progress")
	all := []progress.Sink{
		sinks.NewLogSink(logger),
		promSink,
		sinks.NewJournalSink(blobStore, sinks.DefaultJournalPrefix, logger),
	}
	if a.cfg.Notify.PubSubTopic != "" {
		pub, err := pubsubpublisher.New(ctx, pubsubpublisher.Config{
			ProjectID: a.cfg.Notify.PubSubProject,
			TopicID:   a.cfg.Notify.PubSubTopic,
		})
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		a.logger.Info("publishing run notifications", zap.String("topic", a.cfg.Notify.PubSubTopic))
		all = append(all, sinks.NewNotifySink(pub, []string{
			string(collector.StageCollected),
			string(collector.StageFailed),
			progress.StageRunFinished,
		}, logger))
	}
	return progress.NewHub(progress.Config{Logger: logger}, all...), nil
}

// Merge folds the collected books into the served dataset.
func (a *App) Merge(mode string) (merge.Result, error) {
	return merge.Run(a.MergeOptions(mode), a.logger.Named("merge"))
}

// Search lists Gutenberg books by author.
func (a *App) Search(ctx context.Context, author string, limit int) ([]book.Metadata, error) {
	return a.Gutenberg().SearchByAuthor(ctx, author, limit)
}

// MergeOptions maps the merge section onto merge.Options. A non-empty mode
// overrides the configured one.
func (a *App) MergeOptions(mode string) merge.Options {
	if mode == "" {
		mode = a.cfg.Merge.Mode
	}
	return merge.Options{
		DatasetPath:   a.cfg.Merge.DatasetPath,
		CollectedPath: a.cfg.Merge.CollectedPath,
		BackupPath:    a.cfg.Merge.BackupPath,
		Mode:          merge.Mode(mode),
	}
}

// APIServer builds the catalog server over the selected book store.
func (a *App) APIServer(ctx context.Context) (*api.Server, error) {
	store, pinger, err := a.BookStore(ctx)
	if err != nil {
		return nil, err
	}
	return api.NewServer(
		store,
		pinger,
		uuid.New(),
		api.Config{RequestTimeout: a.cfg.Server.RequestTimeout()},
		a.logger.Named("api"),
	), nil
}

// Serve runs the catalog server and blocks until the context is canceled or
// SIGINT/SIGTERM arrives.
func (a *App) Serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, err := a.APIServer(ctx)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Close releases external clients and flushes the logger.
func (a *App) Close() {
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
