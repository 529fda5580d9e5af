package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"hubadapters/internal/entry"
	"hubadapters/internal/flow"

	"github.com/spf13/cobra"
)

var flowSource string

var flowCmd = &cobra.Command{
	Use:   "flow <domain> [key=value ...]",
	Short: "Run a config flow once with the given input",
	Long: `Starts a config flow and submits the key=value pairs to its first form.
With --source import the pairs are passed as import data instead.

  hubadapters flow stookalert province=Utrecht
  hubadapters flow fritz host=192.168.178.1 username=admin password=secret`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := parseInput(args[1:])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		rt, err := newRuntime(ctx, false)
		if err != nil {
			return err
		}
		defer rt.close()
		defer rt.hub.Stop(ctx)

		if err := rt.hub.Entries().Load(ctx); err != nil {
			return err
		}

		source := entry.Source(flowSource)
		var result flow.Result
		if source == entry.SourceImport {
			result, err = rt.hub.Flows().Init(ctx, args[0], flow.Context{Source: source}, input)
		} else {
			result, err = rt.hub.Flows().Init(ctx, args[0], flow.Context{Source: source}, nil)
			if err == nil && result.Type == flow.ResultForm {
				result, err = rt.hub.Flows().Configure(ctx, result.FlowID, input)
			}
		}
		if err != nil {
			return err
		}

		return printResult(cmd.OutOrStdout(), result)
	},
}

func init() {
	flowCmd.Flags().StringVar(&flowSource, "source", string(entry.SourceUser), "flow source (user or import)")
	rootCmd.AddCommand(flowCmd)
}

// parseInput turns key=value arguments into flow input. Values stay strings;
// steps coerce numeric fields themselves.
func parseInput(args []string) (flow.Input, error) {
	input := flow.Input{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q, expected key=value", arg)
		}
		input[key] = value
	}
	return input, nil
}

func printResult(w io.Writer, result flow.Result) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	switch result.Type {
	case flow.ResultCreateEntry:
		fmt.Fprintf(w, "Created %s entry %q (%s)\n", result.Handler, result.Title, result.Entry.EntryID)
	case flow.ResultAbort:
		fmt.Fprintf(w, "Aborted: %s\n", result.Reason)
	case flow.ResultForm:
		fmt.Fprintf(w, "Step %s needs more input\n", result.StepID)
		keys := make([]string, 0, len(result.Errors))
		for k := range result.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "  %s: %s\n", k, result.Errors[k])
		}
		for _, f := range result.Schema {
			fmt.Fprintf(w, "  field %s (%s)\n", f.Name, f.Type)
		}
	}
	return nil
}
