// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for capkit.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/capkit/capkit/internal/issue"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// rootFlagValues holds the persistent flags shared by every subcommand.
type rootFlagValues struct {
	configPath string
	verbose    bool
	boundary   string
}

// NewRootCommand builds the capkit command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd, _ := newRootCommand(app)
	return rootCmd
}

func newRootCommand(app *App) (*cobra.Command, *rootFlagValues) {
	flags := &rootFlagValues{}

	rootCmd := &cobra.Command{
		Use:   "capkit",
		Short: "Discover and dispatch package capabilities",
		Long: TitleStyle.Render("capkit") + SubtitleStyle.Render(" - Discover and dispatch package capabilities") + `

capkit walks a package tree, reads the capability descriptors declared by
every package and its installed dependencies, and resolves namespaces the
way the runtime does from a given location.

` + SubtitleStyle.Render("Examples:") + `
  capkit list                       List every capability visible from here
  capkit list --path ./src store    Show the candidates for 'store'
  capkit resolve store -s env=prod  Pick the best 'store' for env=prod
  capkit call config/defaults       Initialize a capability and print its result
  capkit watch                      Reset caches when descriptors change`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default is $HOME/.config/capkit/config.cue)")
	rootCmd.PersistentFlags().StringVar(&flags.boundary, "boundary", "", "top directory of package root lookups (default is the working directory)")

	rootCmd.AddCommand(
		newListCommand(app, flags),
		newResolveCommand(app, flags),
		newCallCommand(app, flags),
		newDuplicatesCommand(app, flags),
		newDiagnosticsCommand(app, flags),
		newWatchCommand(app, flags),
		newConfigCommand(app, flags),
	)
	return rootCmd, flags
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	app, err := NewApp(Dependencies{})
	if err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
	rootCmd, flags := newRootCommand(app)

	// fang overrides rootCmd.Version, so the version goes through WithVersion.
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			renderError(w, err, flags.verbose)
		}),
	); err != nil {
		os.Exit(int(exitCodeFor(err)))
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// renderError prints err and, in verbose mode, the markdown guide linked to
// it.
func renderError(w io.Writer, err error, verboseMode bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}
	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verboseMode))

	var ae *issue.ActionableError
	if !verboseMode || !errors.As(err, &ae) {
		return
	}
	if guide := ae.Guide(); guide != nil {
		if rendered, renderErr := guide.Render("dark"); renderErr == nil {
			fmt.Fprint(w, rendered)
		}
	}
}
