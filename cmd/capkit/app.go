// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/capkit/capkit/internal/config"
	"github.com/capkit/capkit/internal/logging"
	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/dispatch"
	"github.com/capkit/capkit/pkg/provider"
	"github.com/capkit/capkit/pkg/registry"
)

type (
	// App wires CLI services and shared dependencies. It is the composition
	// root for the CLI layer: every cobra handler receives an App and opens a
	// session through it.
	App struct {
		Config    ConfigProvider
		Providers *provider.Set
		stdout    io.Writer
		stderr    io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config    ConfigProvider
		Providers *provider.Set
		Stdout    io.Writer
		Stderr    io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// session is the per-invocation runtime: configuration, logger, registry
	// and a dispatch context sharing them.
	session struct {
		cfg      *config.Config
		logger   *log.Logger
		registry *registry.Registry
		factory  *dispatch.Factory
		dispatch *dispatch.Context
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) (*App, error) {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.Providers == nil {
		deps.Providers = provider.Default()
	}

	return &App{
		Config:    deps.Config,
		Providers: deps.Providers,
		stdout:    deps.Stdout,
		stderr:    deps.Stderr,
	}, nil
}

// openSession loads configuration and builds the registry and dispatch
// factory for one command invocation.
func (a *App) openSession(ctx context.Context, flags *rootFlagValues) (*session, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: flags.configPath})
	if err != nil {
		return nil, err
	}

	logger := logging.New(a.stderr, cfg.Log)
	if flags.verbose {
		logging.Verbose(logger)
	}

	boundary := flags.boundary
	if boundary == "" {
		boundary = cfg.RootBoundary
	}
	opts := []registry.Option{
		registry.WithManifestFile(cfg.ManifestFile),
		registry.WithDescriptorFile(cfg.DescriptorFile),
		registry.WithModulesDir(cfg.ModulesDir),
		registry.WithLogger(logger),
		registry.WithProviders(a.Providers),
	}
	if boundary != "" {
		opts = append(opts, registry.WithBoundary(boundary))
	}
	reg, err := registry.New(opts...)
	if err != nil {
		return nil, err
	}
	logger.Debug("registry ready", "boundary", reg.Boundary())

	factory, err := dispatch.NewFactory(ctx, dispatch.Options{
		Selectors: cfg.DefaultSelectors(),
		Registry:  reg,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		factory:  factory,
		dispatch: factory.New(),
	}, nil
}

// site turns a --path value into a call site. Empty means the working
// directory.
func (s *session) site(path string) (capability.CallSite, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return capability.CallSite(abs), nil
}
