// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/capkit/capkit/internal/issue"
	"github.com/capkit/capkit/internal/watch"
	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/dispatch"
	"github.com/capkit/capkit/pkg/registry"
)

type watchFlagValues struct {
	path string
}

// newWatchCommand creates the `capkit watch` command.
func newWatchCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &watchFlagValues{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reset discovery caches when manifests or descriptors change",
		Long: `Watch the package tree and run runtime/reset whenever a manifest or
descriptor is edited, installed or removed, then report what is visible.

Patterns, ignores and the debounce window come from the 'watch' section of
the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), app, rootFlags, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.path, "path", "p", "", "directory to watch and resolve from (default is the working directory)")
	return cmd
}

func runWatch(ctx context.Context, app *App, rootFlags *rootFlagValues, flags *watchFlagValues) error {
	s, err := app.openSession(ctx, rootFlags)
	if err != nil {
		return err
	}
	site, err := s.site(flags.path)
	if err != nil {
		return err
	}

	s.factory.OnExtension(dispatch.TopicReset, func(context.Context, ...any) error {
		s.logger.Debug("discovery caches reset")
		return nil
	})

	report := func(ctx context.Context) {
		out, err := s.dispatch.ProxyAction(ctx, site, dispatch.Resolve, dispatch.OpAll, registry.Wildcard, string(site))
		if err != nil {
			fmt.Fprintf(app.stderr, "%s %v\n", WarningStyle.Render("!"), err)
			return
		}
		found, _ := out.([]*capability.Capability)
		fmt.Fprintf(app.stdout, "%s %d capabilities visible from %s\n",
			VerboseHighlightStyle.Render("→"), len(found), s.registry.ModuleRoot(string(site)))
	}

	w, err := watch.New(watch.Config{
		Patterns: s.cfg.Watch.Patterns,
		Ignore:   s.cfg.Watch.Ignore,
		Debounce: s.cfg.Watch.Debounce,
		BaseDir:  string(site),
		Logger:   s.logger,
		OnChange: func(ctx context.Context, changed []string) error {
			fmt.Fprintf(app.stdout, "%s Detected %d change(s): %s\n",
				VerboseHighlightStyle.Render("→"), len(changed), strings.Join(changed, ", "))
			if _, err := s.dispatch.ProxyAction(ctx, site, dispatch.Reset); err != nil {
				return err
			}
			report(ctx)
			return nil
		},
	})
	if err != nil {
		return watchError(err)
	}

	report(ctx)
	fmt.Fprintf(app.stdout, "\n%s Watching %s for changes (Ctrl+C to stop)...\n\n",
		VerboseHighlightStyle.Render("→"), w.BaseDir())
	if err := w.Run(ctx); err != nil {
		return watchError(err)
	}
	return nil
}

func watchError(err error) error {
	return issue.NewErrorContext().
		WithOperation("watch package tree").
		WithIssue(issue.WatchFailedId).
		Wrap(err).
		BuildError()
}
