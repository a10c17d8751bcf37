// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/capkit/capkit/internal/issue"
	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/diag"
	"github.com/capkit/capkit/pkg/dispatch"
	"github.com/capkit/capkit/pkg/registry"
)

type inspectFlagValues struct {
	path   string
	strict bool
}

// newDuplicatesCommand creates the `capkit duplicates` command.
func newDuplicatesCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &inspectFlagValues{}
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Show capabilities discovered at more than one location",
		Long: `Show capabilities discovered at more than one location while resolving
from a directory. The first binding found wins; the others are listed here.
With --strict the command fails when any duplicate exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDuplicates(cmd.Context(), app, rootFlags, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.path, "path", "p", "", "directory to resolve from (default is the working directory)")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "exit non-zero when duplicates exist")
	return cmd
}

// newDiagnosticsCommand creates the `capkit diagnostics` command.
func newDiagnosticsCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &inspectFlagValues{}
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Show non-fatal discovery problems",
		Long: `Show malformed manifests and descriptors, invalid entries and missing
dependencies found while resolving from a directory. With --strict the
command fails when any error-level diagnostic exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDiagnostics(cmd.Context(), app, rootFlags, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.path, "path", "p", "", "directory to resolve from (default is the working directory)")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "exit non-zero on error diagnostics")
	return cmd
}

// inspect resolves every namespace from the requested directory so the
// registry records its duplicates and diagnostics, then runs the
// runtime/action command.
func inspect(ctx context.Context, app *App, rootFlags *rootFlagValues, path, command string) (any, error) {
	s, err := app.openSession(ctx, rootFlags)
	if err != nil {
		return nil, err
	}
	site, err := s.site(path)
	if err != nil {
		return nil, err
	}
	if _, err := s.dispatch.ProxyAction(ctx, site, dispatch.Action, "resolveAll", registry.Wildcard, string(site)); err != nil {
		return nil, err
	}
	return s.dispatch.ProxyAction(ctx, site, dispatch.Action, command)
}

func runDuplicates(ctx context.Context, app *App, rootFlags *rootFlagValues, flags *inspectFlagValues) error {
	out, err := inspect(ctx, app, rootFlags, flags.path, "duplicates")
	if err != nil {
		return err
	}
	dups, _ := out.(map[string][]*capability.Capability)

	fmt.Fprintln(app.stdout, TitleStyle.Render("Duplicate capabilities"))
	if len(dups) == 0 {
		fmt.Fprintf(app.stdout, "  %s\n", SubtitleStyle.Render("(none)"))
		return nil
	}
	for _, ns := range sortedNames(dups) {
		fmt.Fprintf(app.stdout, "\n%s %s\n", WarningStyle.Render("!"), namespaceStyle.Render(ns))
		for _, c := range dups[ns] {
			fmt.Fprintf(app.stdout, "    %s %s\n", moduleStyle.Render(moduleLabel(c)), VerboseStyle.Render(c.Key))
		}
	}
	if flags.strict {
		return issue.NewErrorContext().
			WithOperation("check duplicates").
			WithIssue(issue.DuplicateCapabilityId).
			Wrap(fmt.Errorf("%d namespaces have duplicates", len(dups))).
			BuildError()
	}
	return nil
}

func runDiagnostics(ctx context.Context, app *App, rootFlags *rootFlagValues, flags *inspectFlagValues) error {
	out, err := inspect(ctx, app, rootFlags, flags.path, "diagnostics")
	if err != nil {
		return err
	}
	diags, _ := out.([]diag.Diagnostic)

	fmt.Fprintln(app.stdout, TitleStyle.Render("Discovery diagnostics"))
	if len(diags) == 0 {
		fmt.Fprintf(app.stdout, "  %s\n", SuccessStyle.Render("✓ no problems found"))
		return nil
	}

	var worst *diag.Diagnostic
	for i, d := range diags {
		marker := WarningStyle.Render("!")
		if d.Severity == diag.SeverityError {
			marker = ErrorStyle.Render("✗")
			if worst == nil {
				worst = &diags[i]
			}
		}
		fmt.Fprintf(app.stdout, "  %s %s\n", marker, d.Message)
		fmt.Fprintf(app.stdout, "      %s %s\n", CmdStyle.Render(string(d.Code)), VerboseStyle.Render(d.Path))
		if rootFlags.verbose && d.Cause != nil {
			fmt.Fprintf(app.stdout, "      %s\n", VerboseStyle.Render(d.Cause.Error()))
		}
	}
	if flags.strict && worst != nil {
		return issue.NewErrorContext().
			WithOperation("discover capabilities").
			WithResource(worst.Path).
			WithIssue(issueFor(worst.Code)).
			Wrap(worst.Cause).
			BuildError()
	}
	return nil
}

// issueFor maps a diagnostic code to its guide.
func issueFor(code diag.Code) issue.Id {
	switch code {
	case diag.CodeManifestMalformed:
		return issue.ManifestMalformedId
	case diag.CodeDependencyMissing:
		return issue.DependencyMissingId
	default:
		return issue.DescriptorMalformedId
	}
}
