package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tagwatch/internal/feed"
	"github.com/ppiankov/tagwatch/internal/schedule"
)

var watchDirection string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Import on a fixed interval until interrupted",
	Long:  "Run the import job immediately and then every import.interval (default 10m). SIGINT or SIGTERM stops the loop after the current run.",
	RunE:  watchAction,
}

func init() {
	watchCmd.Flags().StringVar(&watchDirection, "direction", "newer", "which end of the feed to fetch: newer, older")
	rootCmd.AddCommand(watchCmd)
}

func watchAction(cmd *cobra.Command, _ []string) error {
	dir, err := feed.ParseDirection(watchDirection)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	imp, err := a.importer()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Watching #%s every %s (Ctrl-C to stop).\n", hashtagOrDefault(ctx, a), a.cfg.Import.Interval.Duration)

	ttl := a.cfg.Import.LockTTL.Duration
	return schedule.Loop(ctx, schedule.Job{
		Name:     schedule.JobName,
		Interval: a.cfg.Import.Interval.Duration,
		Logger:   slog.Default(),
		Run: func(ctx context.Context) error {
			return schedule.WithLock(ctx, a.store, schedule.JobName, ttl, func(ctx context.Context) error {
				_, err := imp.Run(ctx, dir)
				return err
			})
		},
	})
}
