package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

type historyOptions struct {
	limit      int
	jsonOutput bool
}

func newHistoryCmd(rootFlags *rootFlags) *cobra.Command {
	opts := &historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent remote calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, rootFlags, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func runHistory(cmd *cobra.Command, rootFlags *rootFlags, opts *historyOptions) error {
	cfg, _, err := loadConfig(cmd.Context(), rootFlags, cmd.ErrOrStderr())
	if err != nil {
		return newCommandError("show history", "loading configuration", err, "Run 'jumpgate validate' to check the configuration file.")
	}

	repo, err := openHistory(cfg)
	if err != nil {
		return newCommandError("show history", "opening history database", err, "Check history.path and its permissions.")
	}
	if repo == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "History is disabled.")
		fmt.Fprintln(cmd.OutOrStdout(), "\nSet history.enabled to true in the configuration file to record remote calls.")
		return nil
	}
	defer repo.Close()

	entries, err := repo.Recent(cmd.Context(), opts.limit)
	if err != nil {
		return newCommandError("show history", "querying history", err, "The history database may be corrupt; remove it to start fresh.")
	}

	if opts.jsonOutput {
		if entries == nil {
			entries = []ports.HistoryEntry{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No remote calls recorded yet.")
		return nil
	}

	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "STARTED\tTARGET\tOS\tMODE\tSTATUS\tCODE\tDURATION")
	for _, e := range entries {
		fmt.Fprintf(writer, "%s\t%s@%s:%d\t%s\t%s\t%s\t%s\t%s\n",
			e.StartedAt.Local().Format(time.DateTime),
			e.Username, e.IP, e.Port,
			e.OSType,
			valueOrFallback(e.Mode, "-"),
			e.Status,
			valueOrFallback(e.ErrorCode, "-"),
			(time.Duration(e.DurationMS) * time.Millisecond).String(),
		)
	}
	return writer.Flush()
}

func valueOrFallback(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
