// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/capkit/capkit/internal/issue"
	"github.com/capkit/capkit/pkg/capability"
	"github.com/capkit/capkit/pkg/dispatch"
)

const (
	outputJSON = "json"
	outputTOML = "toml"
	outputText = "text"
)

type callFlagValues struct {
	path      string
	selectors []string
	output    string
}

// newCallCommand creates the `capkit call` command.
func newCallCommand(app *App, rootFlags *rootFlagValues) *cobra.Command {
	flags := &callFlagValues{}
	cmd := &cobra.Command{
		Use:   "call <namespace> [args...]",
		Short: "Initialize a capability and print the result of one call",
		Long: `Initialize a capability as seen from a directory, invoke it once with the
given arguments and print the result.

Arguments that parse as JSON are passed as JSON values; anything else is
passed as a string. Data capabilities (.json, .cue and .toml entry points)
ignore their arguments and return the decoded document.`,
		Example: `  capkit call config/defaults
  capkit call store -s env=prod get '"user:1"'
  capkit call runtime/action diagnostics -o text`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd.Context(), app, rootFlags, flags, args[0], args[1:])
		},
	}
	cmd.Flags().StringVarP(&flags.path, "path", "p", "", "directory to call from (default is the working directory)")
	cmd.Flags().StringArrayVarP(&flags.selectors, "select", "s", nil, "selector as key=value, key~=regexp, key>=version or key^=version (repeatable)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", outputJSON, "output format: json, toml or text")
	return cmd
}

func runCall(ctx context.Context, app *App, rootFlags *rootFlagValues, flags *callFlagValues, namespace string, rawArgs []string) error {
	switch flags.output {
	case outputJSON, outputTOML, outputText:
	default:
		return &ExitError{Code: ExitUsage, Err: fmt.Errorf("unknown output format %q", flags.output)}
	}
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

	args := make([]any, len(rawArgs))
	for i, raw := range rawArgs {
		args[i] = parseValue(raw)
	}
	result, err := s.dispatch.ProxyAction(ctx, site, dispatch.Request{Name: namespace, Selectors: sels}, args...)
	if err != nil {
		return callError(namespace, err)
	}
	return writeResult(app.stdout, result, flags.output)
}

// callError attaches the matching guide to a dispatch failure.
func callError(namespace string, err error) error {
	ec := issue.NewErrorContext().
		WithOperation("call capability").
		WithResource(namespace).
		Wrap(err)

	var locErr *capability.LocationError
	switch {
	case errors.Is(err, dispatch.ErrNotFound):
		ec.WithIssue(issue.CapabilityNotFoundId).
			WithSuggestion("Run 'capkit list' to see what is visible from here")
	case errors.As(err, &locErr):
		ec.WithIssue(issue.LocationUnresolvedId).
			WithSuggestion(fmt.Sprintf("Check the entry point %q", locErr.Location))
	case errors.Is(err, dispatch.ErrInit):
		ec.WithIssue(issue.CapabilityInitFailedId)
	}
	return ec.BuildError()
}

func writeResult(w io.Writer, result any, format string) error {
	switch format {
	case outputTOML:
		if doc, ok := result.(map[string]any); ok {
			data, err := toml.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode result as TOML: %w", err)
			}
			_, err = w.Write(data)
			return err
		}
	case outputJSON:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result as JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprintln(w, result)
	return err
}
