// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/dispatch"
	"github.com/capkit/capkit/pkg/registry"
)

type listFlagValues struct {
	path      string
	unique    bool
	locations bool
}

// newListCommand creates the `capkit list` command.
func newListCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &listFlagValues{}
	cmd := &cobra.Command{
		Use:   "list [namespace]",
		Short: "List capabilities visible from a directory",
		Long: `List the capabilities visible from a directory, in resolution order.

Without a namespace every namespace is listed. Candidates of the enclosing
package come first, then its dependencies in declaration order, then the
ancestor packages.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace := registry.Wildcard
			if len(args) == 1 {
				namespace = args[0]
			}
			return runList(cmd.Context(), app, rootFlags, flags, namespace)
		},
	}
	cmd.Flags().StringVarP(&flags.path, "path", "p", "", "directory to resolve from (default is the working directory)")
	cmd.Flags().BoolVarP(&flags.unique, "unique", "u", false, "list a capability reached through several roots only once")
	cmd.Flags().BoolVarP(&flags.locations, "locations", "l", false, "resolve and show entry-point locations")
	return cmd
}

func runList(ctx context.Context, app *App, rootFlags *rootFlagValues, flags *listFlagValues, namespace string) error {
	s, err := app.openSession(ctx, rootFlags)
	if err != nil {
		return err
	}
	site, err := s.site(flags.path)
	if err != nil {
		return err
	}

	op := dispatch.OpAll
	if flags.unique {
		op = dispatch.OpUnique
	}
	out, err := s.dispatch.ProxyAction(ctx, site, dispatch.Resolve, op, namespace, string(site))
	if err != nil {
		return err
	}
	found, _ := out.([]*capability.Capability)

	root := s.registry.ModuleRoot(string(site))
	fmt.Fprintln(app.stdout, TitleStyle.Render("Capabilities")+" "+SubtitleStyle.Render("from "+root))
	if len(found) == 0 {
		fmt.Fprintf(app.stdout, "  %s\n", SubtitleStyle.Render("(none visible)"))
		if namespace != registry.Wildcard {
			return &ExitError{Code: ExitNotFound}
		}
		return nil
	}
	for _, c := range found {
		renderCapability(app.stdout, c, flags.locations)
	}
	fmt.Fprintf(app.stdout, "\n%s\n", VerboseStyle.Render(fmt.Sprintf("%d capabilities", len(found))))
	return nil
}
