package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tagwatch/internal/record"
	"github.com/ppiankov/tagwatch/internal/store"
)

var statsFormat string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show import statistics",
	RunE:  statsAction,
}

func init() {
	statsCmd.Flags().StringVar(&statsFormat, "format", "terminal", "output format: terminal, json")
	rootCmd.AddCommand(statsCmd)
}

func statsAction(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	stats, err := a.store.Stats(ctx, record.Type)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	switch statsFormat {
	case "json":
		return printStatsJSON(os.Stdout, stats)
	case "terminal", "":
		if stats.Total == 0 {
			fmt.Fprintln(os.Stdout, "No posts imported yet. Run 'tagwatch import' first.")
			return nil
		}
		printStats(os.Stdout, stats, hashtagOrDefault(ctx, a))
		return nil
	default:
		return fmt.Errorf("unknown format %q (want terminal or json)", statsFormat)
	}
}

type jsonStatsOutput struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	Oldest   string         `json:"oldest,omitempty"`
	Newest   string         `json:"newest,omitempty"`
	LastRun  string         `json:"last_import,omitempty"`
}

func printStatsJSON(w io.Writer, stats store.RecordStats) error {
	out := jsonStatsOutput{
		Total:    stats.Total,
		ByStatus: stats.ByStatus,
		Oldest:   formatOptionalTime(stats.Oldest),
		Newest:   formatOptionalTime(stats.Newest),
		LastRun:  formatOptionalTime(stats.LastRun),
	}
	if out.ByStatus == nil {
		out.ByStatus = map[string]int{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printStats(w io.Writer, stats store.RecordStats, hashtag string) {
	fmt.Fprintln(w, paint(headerStyle, fmt.Sprintf("tagwatch stats: #%s, %d posts", hashtag, stats.Total)))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "--- By Status ---")
	fmt.Fprintln(w)
	statuses := make([]string, 0, len(stats.ByStatus))
	for s := range stats.ByStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		n := stats.ByStatus[s]
		fmt.Fprintf(w, "  %-8s %5d  (%.1f%%)\n", s+":", n, pct(n, stats.Total))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "--- Coverage ---")
	fmt.Fprintln(w)
	if !stats.Oldest.IsZero() {
		fmt.Fprintf(w, "  Oldest post:  %s\n", stats.Oldest.Local().Format(timeFormatTerminal))
	}
	if !stats.Newest.IsZero() {
		fmt.Fprintf(w, "  Newest post:  %s\n", stats.Newest.Local().Format(timeFormatTerminal))
	}
	if !stats.LastRun.IsZero() {
		ago := time.Since(stats.LastRun).Round(time.Minute)
		fmt.Fprintf(w, "  Last import:  %s %s\n",
			stats.LastRun.Local().Format(timeFormatTerminal),
			paint(dimStyle, fmt.Sprintf("(%s ago)", ago)))
	}
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func formatOptionalTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormatJSON)
}
