package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <external-id>...",
	Short: "Ingest court decisions by external id",
	Long: `Fetches full texts for the given external ids, extracts sections,
and embeds the reasoning and decision sections. Already complete
documents are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		comps, err := build(cfg, true)
		if err != nil {
			return err
		}
		defer comps.Close()

		report := comps.worker.IngestBatch(ctx, args)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if report.Errors > 0 {
			return fmt.Errorf("%d of %d documents failed", report.Errors, len(args))
		}
		return nil
	},
}
