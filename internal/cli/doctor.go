package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tagwatch/internal/config"
	"github.com/ppiankov/tagwatch/internal/feed"
	"github.com/ppiankov/tagwatch/internal/record"
	"github.com/ppiankov/tagwatch/internal/settings"
	"github.com/ppiankov/tagwatch/internal/store"
	"github.com/ppiankov/tagwatch/internal/textnorm"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, database and feed settings",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true
	ctx := commandContext(cmd)

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}
	printCheck(true, "config.yaml (feed %s, every %s)", cfg.Feed.BaseURL, cfg.Import.Interval.Duration)

	// Redaction patterns
	if cfg.Privacy.Redact.Enabled {
		if _, err := textnorm.NewRedactor(cfg.Privacy.Redact.Patterns); err != nil {
			printCheck(false, "privacy.redact: %v", err)
			ok = false
		} else {
			printCheck(true, "privacy.redact (%d patterns)", len(cfg.Privacy.Redact.Patterns))
		}
	}

	// Database
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		printCheck(false, "database: %v", err)
		return fmt.Errorf("some checks failed")
	}
	defer func() { _ = db.Close() }()
	version, err := db.SchemaVersion(ctx)
	if err != nil {
		printCheck(false, "database schema: %v", err)
		ok = false
	} else {
		printCheck(true, "database %s (schema v%d)", cfg.Storage.Path, version)
	}

	chain := settings.Chain{db, cfg.Settings()}

	// Access token
	token, err := settings.AccessToken(ctx, chain)
	switch {
	case err != nil:
		printCheck(false, "access token: %v", err)
		ok = false
	case token == "":
		printCheck(false, "access token not set (export %s or run 'tagwatch settings set access_token ...')", cfg.Feed.AccessTokenEnv)
		ok = false
	default:
		printCheck(true, "access token %s", settings.Mask(token))
	}

	if tag, err := settings.Hashtag(ctx, chain); err == nil {
		printInfo("hashtag #%s", tag)
	}

	// Cursor
	_, found, err := feed.NewResolver(db, chain).NextURL(ctx)
	switch {
	case err != nil:
		printCheck(false, "stored cursor: %v", err)
		ok = false
	case found:
		printInfo("older posts available from stored cursor")
	default:
		printInfo("no stored cursor (import --direction older starts from the newest page)")
	}

	if stats, err := db.Stats(ctx, record.Type); err == nil && stats.Total > 0 {
		printInfo("%d posts stored, last import %s", stats.Total, stats.LastRun.Local().Format(timeFormatTerminal))
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
