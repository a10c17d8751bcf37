// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/capkit/capkit/internal/issue"
	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/dispatch"
)

type resolveFlagValues struct {
	path      string
	selectors []string
}

// newResolveCommand creates the `capkit resolve` command.
func newResolveCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &resolveFlagValues{}
	cmd := &cobra.Command{
		Use:   "resolve <namespace>",
		Short: "Show which capability a namespace resolves to",
		Long: `Show which capability a namespace resolves to from a directory.

Selectors narrow the candidates by attribute. A key prefixed with '~' is a
fallback selector: when nothing matches, fallback selectors are dropped one
at a time, last first, until a candidate matches. Configured default
selectors apply first; --select replaces same-key defaults.`,
		Example: `  capkit resolve store
  capkit resolve store -s env=prod -s '~region=eu'
  capkit resolve logger -s 'level~=^(debug|trace)$'
  capkit resolve store -s 'version>=2.0.0'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(cmd.Context(), app, rootFlags, flags, args[0])
		},
	}
	cmd.Flags().StringVarP(&flags.path, "path", "p", "", "directory to resolve from (default is the working directory)")
	cmd.Flags().StringArrayVarP(&flags.selectors, "select", "s", nil, "selector as key=value, key~=regexp, key>=version or key^=version (repeatable)")
	return cmd
}

func runResolve(ctx context.Context, app *App, rootFlags *rootFlagValues, flags *resolveFlagValues, namespace string) error {
	sels, err := parseSelectors(flags.selectors)
	if err != nil {
		return err
	}
	s, err := app.openSession(ctx, rootFlags)
	if err != nil {
		return err
	}
	site, err := s.site(flags.path)
	if err != nil {
		return err
	}

	req := capability.Request{
		Namespace: namespace,
		Selectors: s.cfg.DefaultSelectors().Merge(sels),
	}
	found, ok := s.registry.Resolve(req, site)
	if !ok {
		return issue.NewErrorContext().
			WithOperation("resolve capability").
			WithResource(namespace).
			WithIssue(issue.CapabilityNotFoundId).
			WithSuggestion(fmt.Sprintf("Run 'capkit list --path %s' to see what is visible", site)).
			WithSuggestion("Relax the selectors or mark them optional with a '~' prefix").
			Wrap(&dispatch.NotFoundError{Namespace: namespace, CallSite: site}).
			BuildError()
	}
	if len(req.Selectors) > 0 {
		s.logger.Debug("resolved with selectors", "namespace", namespace, "selectors", req.Selectors.String())
	}
	renderCapability(app.stdout, found, true)
	return nil
}
