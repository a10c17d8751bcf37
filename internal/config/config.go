// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/capkit/capkit/internal/issue"
	"github.com/capkit/capkit/pkg/cueutil"
	"github.com/capkit/capkit/pkg/platform"
)

const (
	// AppName is the application name.
	AppName = "capkit"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes environment overrides (CAPKIT_LOG_LEVEL).
	EnvPrefix = "CAPKIT"
)

//go:embed config_schema.cue
var configSchema []byte

// ConfigDir returns the capkit configuration directory using platform-specific
// conventions: Windows uses %APPDATA%, macOS uses ~/Library/Application Support,
// and Linux/others use $XDG_CONFIG_HOME (defaulting to ~/.config).
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	configDir, err := platform.ConfigBase(platform.Current(), platform.Env{Getenv: os.Getenv, Home: os.UserHomeDir})
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(configDir, AppName), nil
}

// Load reads the configuration with default lookup rules.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	return loadWithOptions(ctx, opts)
}

func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultConfig()
	v.SetDefault("root_boundary", defaults.RootBoundary)
	v.SetDefault("manifest_file", defaults.ManifestFile)
	v.SetDefault("descriptor_file", defaults.DescriptorFile)
	v.SetDefault("modules_dir", defaults.ModulesDir)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.timestamp", defaults.Log.Timestamp)
	v.SetDefault("selectors", defaults.Selectors)
	v.SetDefault("watch.patterns", defaults.Watch.Patterns)
	v.SetDefault("watch.ignore", defaults.Watch.Ignore)
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)

	resolvedPath, err := lookupConfigFile(opts)
	if err != nil {
		return nil, "", err
	}
	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Run 'capkit config show' to see the effective configuration").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if valid, errs := cfg.IsValid(); !valid {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(errs[0]).
			BuildError()
	}
	return &cfg, resolvedPath, nil
}

// lookupConfigFile returns the file to load, or "" to run on defaults. An
// explicit file must exist.
func lookupConfigFile(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Run 'capkit config init' to create a default configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	cfgDir := opts.ConfigDirPath
	if cfgDir == "" {
		dir, err := ConfigDir()
		if err != nil {
			return "", err
		}
		cfgDir = dir
	}
	name := ConfigFileName + "." + ConfigFileExt
	if p := filepath.Join(cfgDir, name); fileExists(p) {
		return p, nil
	}
	local := name
	if opts.BaseDir != "" {
		local = filepath.Join(opts.BaseDir, name)
	}
	if fileExists(local) {
		return local, nil
	}
	return "", nil
}

// loadCUEIntoViper validates a CUE file against #Config and merges its
// contents over the viper defaults.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Config fields are optional, so the unified value is not required to be
	// concrete.
	result, err := cueutil.ParseAndDecode[map[string]any](configSchema, data, "#Config",
		cueutil.WithFilename(path),
		cueutil.WithConcrete(false),
	)
	if err != nil {
		return err
	}
	if err := v.MergeConfigMap(*result.Value); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes a default config file into the config directory
// unless one exists, and returns its path.
func CreateDefaultConfig() (string, error) {
	cfgDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	cfgPath := filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt)
	if _, err := os.Stat(cfgPath); err == nil {
		return cfgPath, nil
	}
	if err := os.WriteFile(cfgPath, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}
	return cfgPath, nil
}

// GenerateCUE renders cfg as a config file.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// capkit configuration file\n\n")

	if cfg.RootBoundary != "" {
		fmt.Fprintf(&sb, "root_boundary: %q\n", cfg.RootBoundary)
	}
	fmt.Fprintf(&sb, "manifest_file:   %q\n", cfg.ManifestFile)
	fmt.Fprintf(&sb, "descriptor_file: %q\n", cfg.DescriptorFile)
	fmt.Fprintf(&sb, "modules_dir:     %q\n", cfg.ModulesDir)

	sb.WriteString("\nlog: {\n")
	fmt.Fprintf(&sb, "\tlevel:     %q\n", cfg.Log.Level)
	fmt.Fprintf(&sb, "\ttimestamp: %v\n", cfg.Log.Timestamp)
	sb.WriteString("}\n")

	if len(cfg.Selectors) > 0 {
		sb.WriteString("\nselectors: {\n")
		for _, s := range cfg.DefaultSelectors() {
			fmt.Fprintf(&sb, "\t%q: %q\n", s.Key(), cfg.Selectors[s.Key()])
		}
		sb.WriteString("}\n")
	}

	sb.WriteString("\nwatch: {\n")
	writeList(&sb, "patterns", cfg.Watch.Patterns)
	writeList(&sb, "ignore", cfg.Watch.Ignore)
	fmt.Fprintf(&sb, "\tdebounce: %q\n", cfg.Watch.Debounce.String())
	sb.WriteString("}\n")

	return sb.String()
}

func writeList(sb *strings.Builder, field string, items []string) {
	if len(items) == 0 {
		fmt.Fprintf(sb, "\t%s: []\n", field)
		return
	}
	fmt.Fprintf(sb, "\t%s: [\n", field)
	for _, item := range items {
		fmt.Fprintf(sb, "\t\t%q,\n", item)
	}
	sb.WriteString("\t]\n")
}
