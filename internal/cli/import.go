package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tagwatch/internal/feed"
	"github.com/ppiankov/tagwatch/internal/ingest"
	"github.com/ppiankov/tagwatch/internal/record"
	"github.com/ppiankov/tagwatch/internal/schedule"
	"github.com/ppiankov/tagwatch/internal/store"
)

var (
	importDirection string
	importFormat    string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Run one import of the hashtag feed",
	Long:  "Fetch one page of the tag feed and store every item not imported before. --direction older continues from the oldest stored record's cursor.",
	RunE:  importAction,
}

func init() {
	importCmd.Flags().StringVar(&importDirection, "direction", "newer", "which end of the feed to fetch: newer, older")
	importCmd.Flags().StringVar(&importFormat, "format", "terminal", "output format: terminal, json")
	rootCmd.AddCommand(importCmd)
}

func importAction(cmd *cobra.Command, _ []string) error {
	dir, err := feed.ParseDirection(importDirection)
	if err != nil {
		return err
	}
	if importFormat != "terminal" && importFormat != "json" {
		return fmt.Errorf("unknown format %q (want terminal or json)", importFormat)
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

	ctx := commandContext(cmd)

	var run ingest.Run
	err = schedule.WithLock(ctx, a.store, schedule.JobName, a.cfg.Import.LockTTL.Duration, func(ctx context.Context) error {
		var runErr error
		run, runErr = imp.Run(ctx, dir)
		return runErr
	})
	if errors.Is(err, schedule.ErrLocked) {
		fmt.Println("Another import is running, try again later.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	created, err := loadCreated(ctx, a.store, run.RecordIDs)
	if err != nil {
		return err
	}
	if importFormat == "json" {
		return printRunJSON(os.Stdout, run, created)
	}
	printRun(os.Stdout, run, created)
	return nil
}

func loadCreated(ctx context.Context, st *store.Store, ids []int64) ([]record.Imported, error) {
	out := make([]record.Imported, 0, len(ids))
	for _, id := range ids {
		sr, err := st.GetRecord(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load record %d: %w", id, err)
		}
		out = append(out, record.FromStore(sr))
	}
	return out, nil
}

func printRun(w io.Writer, run ingest.Run, created []record.Imported) {
	switch run.Outcome {
	case ingest.OutcomeDisabled:
		fmt.Fprintln(w, "No access token configured, nothing imported.")
		return
	case ingest.OutcomeFetchFailed:
		fmt.Fprintln(w, "Feed could not be fetched, nothing imported (see log).")
		return
	}

	fmt.Fprintf(w, "%d new posts imported (%s, %s)\n", run.Created, run.Direction, run.Outcome)
	if run.Skipped > 0 {
		fmt.Fprintf(w, "%d malformed items skipped\n", run.Skipped)
	}
	if len(created) > 0 {
		fmt.Fprintln(w)
		printRecords(w, created)
	}
}

type jsonRun struct {
	ID         string       `json:"id"`
	Direction  string       `json:"direction"`
	Outcome    string       `json:"outcome"`
	Created    int          `json:"created"`
	Skipped    int          `json:"skipped"`
	StartedAt  string       `json:"started_at"`
	FinishedAt string       `json:"finished_at"`
	Records    []jsonRecord `json:"records"`
}

func printRunJSON(w io.Writer, run ingest.Run, created []record.Imported) error {
	out := jsonRun{
		ID:         run.ID.String(),
		Direction:  run.Direction.String(),
		Outcome:    string(run.Outcome),
		Created:    run.Created,
		Skipped:    run.Skipped,
		StartedAt:  run.StartedAt.UTC().Format(timeFormatJSON),
		FinishedAt: run.FinishedAt.UTC().Format(timeFormatJSON),
		Records:    toJSONRecords(created),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
