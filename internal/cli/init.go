package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tagwatch/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with example files",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	created := 0

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig), 0o644)
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	envPath := filepath.Join(configDir, config.DefaultEnvFile)
	wrote, err = writeIfNotExists(envPath, []byte(exampleEnv), 0o600)
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	if created == 0 {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s with %d config files.\n", configDir, created)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# tagwatch configuration

feed:
  base_url: https://api.instagram.com
  # The token itself is read from this env var (or from .env next to this file).
  access_token_env: INSTAGRAM_ACCESS_TOKEN
  hashtag: northofnyc
  batch_size: 20
  auto_publish: false
  timeout: 30s
  user_agent: tagwatch/1.0

storage:
  # Defaults to $XDG_DATA_HOME/tagwatch/tagwatch.db when empty.
  path: ""

import:
  interval: 10m
  throttle: 62.5ms
  lock_ttl: 15m

privacy:
  redact:
    enabled: false
    patterns: []
    # - "(?i)\\b[\\w.+-]+@[\\w-]+\\.[\\w.]+\\b"

log:
  level: info
  format: text
`

const exampleEnv = `# Instagram API access token. Values already set in the environment win.
# INSTAGRAM_ACCESS_TOKEN=
`
