package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pravnyk/internal/legislation"
)

var legislationCmd = &cobra.Command{
	Use:   "legislation <act-id>...",
	Short: "Pre-load legislation acts",
	Long: `Fetches the given acts from the register, stores their articles,
and embeds them for semantic retrieval. Act ids are register numbers
like 1618-15, or code aliases like ЦПК.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		comps, err := build(cfg, true)
		if err != nil {
			return err
		}
		defer comps.Close()

		var failed int
		for _, arg := range args {
			actID := arg
			if ref := legislation.ParseReference("ст. 1 " + arg); ref != nil {
				actID = ref.ActID
			}
			if err := comps.legislation.EnsureExists(ctx, actID); err != nil {
				logger.Error("act load failed", zap.String("act", arg), zap.Error(err))
				failed++
				continue
			}
			fmt.Printf("loaded %s\n", actID)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d acts failed", failed, len(args))
		}
		return nil
	},
}
