package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fluxbase-eu/fluxbuild/internal/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage build configuration",
	Long:  `Create and inspect fluxbuild.yaml.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the defaults",
	Long: `Create fluxbuild.yaml (or the path given by --config) containing the
default build: ./src/index.js bundled to ./dist/index.cjs as CommonJS with the
clean plugin.

Examples:
  fluxbuild config init
  fluxbuild config init --force
  fluxbuild --config build/fluxbuild.yaml config init`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Display the effective configuration",
	Long: `Show the configuration after defaults, file, .env and FLUXBUILD_* variables
have been applied.

Examples:
  fluxbuild config view
  fluxbuild config view --output json`,
	Args:    cobra.NoArgs,
	PreRunE: requireConfig,
	RunE:    runConfigView,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Long: `Print one value of the effective configuration. Keys use the YAML names
joined by dots.

Examples:
  fluxbuild config get build.outfile
  fluxbuild config get build.plugins`,
	Args:    cobra.ExactArgs(1),
	PreRunE: requireConfig,
	RunE:    runConfigGet,
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configGetCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigPath()

	if err := config.Default().Save(configPath, configInitForce); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		return err
	}

	formatter.PrintSuccess(fmt.Sprintf("Configuration file created at: %s", configPath))
	return nil
}

func runConfigView(cmd *cobra.Command, args []string) error {
	tree, err := configTree(cfg)
	if err != nil {
		return err
	}
	return formatter.Print(tree)
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	value, err := lookupKey(cfg, args[0])
	if err != nil {
		return err
	}

	if s, ok := value.(string); ok && !formatter.Structured() {
		formatter.PrintSuccess(s)
		return nil
	}
	return formatter.Print(value)
}

// configTree converts c into maps keyed by the YAML names, so JSON output
// uses the same keys as the file
func configTree(c *config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}

	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return tree, nil
}

// lookupKey walks the configuration along a dotted key
func lookupKey(c *config.Config, key string) (any, error) {
	tree, err := configTree(c)
	if err != nil {
		return nil, err
	}

	var current any = tree
	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unknown config key: %s", key)
		}
		current, ok = m[part]
		if !ok {
			return nil, fmt.Errorf("unknown config key: %s", key)
		}
	}
	return current, nil
}
