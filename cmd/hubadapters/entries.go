package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var entriesDomain string

var entriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Inspect and remove config entries",
}

var entriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List config entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx, false)
		if err != nil {
			return err
		}
		defer rt.close()

		if err := rt.hub.Entries().Load(ctx); err != nil {
			return err
		}
		entries := rt.hub.Entries().Entries(entriesDomain)

		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDOMAIN\tTITLE\tSOURCE\tUNIQUE ID")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.EntryID, e.Domain, e.Title, e.Source, e.UniqueID)
		}
		return w.Flush()
	},
}

var entriesRemoveCmd = &cobra.Command{
	Use:   "remove <entry id>",
	Short: "Remove a config entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, err := newRuntime(ctx, false)
		if err != nil {
			return err
		}
		defer rt.close()

		if err := rt.hub.Entries().Load(ctx); err != nil {
			return err
		}
		if err := rt.hub.Entries().Remove(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

func init() {
	entriesListCmd.Flags().StringVar(&entriesDomain, "domain", "", "only entries of this integration")
	entriesCmd.AddCommand(entriesListCmd, entriesRemoveCmd)
	rootCmd.AddCommand(entriesCmd)
}
