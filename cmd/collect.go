package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/classic-hero/classichero/internal/book"
	"github.com/classic-hero/classichero/internal/collector"
)

func newCollectCmd() *cobra.Command {
	var heroIDs []string

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collects the configured books from Project Gutenberg",
		Long: `Downloads every configured book, cleans and splits it into chapters, and
writes collected_books.json and logs/quality_report.json to the configured
storage backend.

Exit status: 0 when every book was collected, 2 when some failed, 1 when
none were collected, 130 when interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCollect(cmd.Context(), heroIDs)
		},
	}
	cmd.Flags().StringSliceVar(&heroIDs, "hero", nil, "only collect the books of these hero ids")
	return cmd
}

func runCollect(ctx context.Context, heroIDs []string) error {
	appInstance, err := resolveApp(ctx)
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	heroes, err := selectHeroes(cfg.Heroes, heroIDs)
	if err != nil {
		return err
	}
	cfg.Heroes = heroes
	if err := cfg.ValidateCollect(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := appInstance.Collect(ctx, heroes)
	switch {
	case errors.Is(err, collector.ErrInterrupted):
		return &exitError{code: collector.ExitInterrupted, err: err}
	case err != nil:
		return fmt.Errorf("collect: %w", err)
	}

	appInstance.Logger().Info("collect command finished",
		zap.String("run_id", res.RunID),
		zap.Int("collected", len(res.Books)),
		zap.Int("failed", len(res.Failed)),
	)
	switch code := res.ExitCode(); code {
	case collector.ExitOK:
		return nil
	case collector.ExitPartial:
		return &exitError{code: code, err: fmt.Errorf("%d of %d books failed", len(res.Failed), len(res.Failed)+len(res.Books))}
	default:
		return &exitError{code: code, err: errors.New("no books collected")}
	}
}

func selectHeroes(heroes []book.Hero, ids []string) ([]book.Hero, error) {
	if len(ids) == 0 {
		return heroes, nil
	}
	byID := make(map[string]book.Hero, len(heroes))
	for _, h := range heroes {
		byID[h.ID] = h
	}
	out := make([]book.Hero, 0, len(ids))
	for _, id := range ids {
		h, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("unknown hero %q", id)
		}
		out = append(out, h)
	}
	return out, nil
}
