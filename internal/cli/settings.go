package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tagwatch/internal/settings"
)

var settingsReveal bool

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change runtime settings",
	Long: "Runtime settings are stored in the database and take precedence over the feed section of config.yaml.\n" +
		"Keys: " + strings.Join(settings.Keys, ", "),
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show effective settings and where each comes from",
	Args:  cobra.NoArgs,
	RunE:  settingsListAction,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the effective value of a setting",
	Args:  cobra.ExactArgs(1),
	RunE:  settingsGetAction,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Store a setting in the database",
	Args:  cobra.ExactArgs(2),
	RunE:  settingsSetAction,
}

var settingsUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a stored setting so the config file value applies",
	Args:  cobra.ExactArgs(1),
	RunE:  settingsUnsetAction,
}

func init() {
	settingsCmd.PersistentFlags().BoolVar(&settingsReveal, "reveal", false, "print the access token unmasked")
	settingsCmd.AddCommand(settingsListCmd, settingsGetCmd, settingsSetCmd, settingsUnsetCmd)
	rootCmd.AddCommand(settingsCmd)
}

func settingsListAction(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	stored, err := a.store.Settings(ctx)
	if err != nil {
		return err
	}
	fromConfig := a.cfg.Settings()

	for _, key := range settings.Keys {
		value, origin := "", "default"
		if v, ok := stored[key]; ok {
			value, origin = v, "store"
		} else if v, ok := fromConfig[key]; ok {
			value, origin = v, "config"
		}
		fmt.Printf("%-13s %-24s %s\n", key, displayValue(key, effectiveValue(ctx, a, key, value)), paint(dimStyle, "("+origin+")"))
	}

	for _, k := range settings.SortedKeys(stored) {
		if settings.IsKnown(k) {
			continue
		}
		fmt.Printf("%-13s %-24s %s\n", k, stored[k], paint(dimStyle, "(store, unused)"))
	}
	return nil
}

func settingsGetAction(cmd *cobra.Command, args []string) error {
	key := args[0]
	if !settings.IsKnown(key) {
		return fmt.Errorf("unknown setting %q (want one of %s)", key, strings.Join(settings.Keys, ", "))
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := commandContext(cmd)
	v, _, err := a.settings.Setting(ctx, key)
	if err != nil {
		return err
	}
	fmt.Println(displayValue(key, effectiveValue(ctx, a, key, v)))
	return nil
}

func settingsSetAction(cmd *cobra.Command, args []string) error {
	key, value := args[0], strings.TrimSpace(args[1])
	if err := validateSetting(key, value); err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.SetSetting(commandContext(cmd), key, value); err != nil {
		return err
	}
	fmt.Printf("Set %s = %s\n", key, displayValue(key, value))
	return nil
}

func settingsUnsetAction(cmd *cobra.Command, args []string) error {
	key := args[0]

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.store.DeleteSetting(commandContext(cmd), key)
	if err != nil {
		return err
	}
	if !removed {
		fmt.Printf("%s was not set in the database.\n", key)
		return nil
	}
	fmt.Printf("Removed %s.\n", key)
	return nil
}

func validateSetting(key, value string) error {
	switch key {
	case settings.KeyAccessToken, settings.KeyHashtag:
		return nil
	case settings.KeyBatchSize:
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return fmt.Errorf("batch_size: %q is not a positive integer", value)
		}
		return nil
	case settings.KeyAutoPublish:
		switch strings.ToLower(value) {
		case "1", "0", "true", "false", "yes", "no", "on", "off":
			return nil
		}
		return fmt.Errorf("auto_publish: %q is not a boolean", value)
	default:
		return fmt.Errorf("unknown setting %q (want one of %s)", key, strings.Join(settings.Keys, ", "))
	}
}

// effectiveValue applies the same defaults the importer uses.
func effectiveValue(ctx context.Context, a *app, key, raw string) string {
	switch key {
	case settings.KeyHashtag:
		tag, err := settings.Hashtag(ctx, a.settings)
		if err == nil {
			return tag
		}
	case settings.KeyBatchSize:
		n, err := settings.BatchSize(ctx, a.settings)
		if err == nil {
			return strconv.Itoa(n)
		}
	case settings.KeyAutoPublish:
		on, err := settings.AutoPublish(ctx, a.settings)
		if err == nil {
			return strconv.FormatBool(on)
		}
	}
	return raw
}

func displayValue(key, value string) string {
	if key == settings.KeyAccessToken {
		if value == "" {
			return "(not set)"
		}
		if !settingsReveal {
			return settings.Mask(value)
		}
	}
	return value
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
