package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pravnyk/internal/adapters"
)

var (
	scrapeText     string
	scrapeDateFrom string
	scrapeDateTo   string
	scrapeCourt    string
	scrapePageSize int
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Bulk-collect decisions matching a search",
	Long: `Pages through the court search API and ingests every match:
full text, sections, embeddings. Progress prints once a second; SIGINT
cancels the job cooperatively after the current page.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if scrapeText == "" {
			return fmt.Errorf("--text is required")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		comps, err := build(cfg, true)
		if err != nil {
			return err
		}
		defer comps.Close()

		params := adapters.SearchParams{
			Text:     scrapeText,
			DateFrom: scrapeDateFrom,
			DateTo:   scrapeDateTo,
			Limit:    scrapePageSize,
		}
		if scrapeCourt != "" {
			params.Where = append(params.Where, adapters.WherePredicate{
				Field: "court_name", Op: "=", Value: scrapeCourt,
			})
		}

		job, err := comps.scraper.Start(ctx, params)
		if err != nil {
			return err
		}
		logger.Info("scrape started", zap.String("job", job.ID))

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				comps.scraper.Cancel(job.ID)
				waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				_ = comps.scraper.Wait(waitCtx, job.ID)
				return fmt.Errorf("scrape cancelled")
			case <-ticker.C:
				snap := comps.scraper.Get(job.ID)
				fmt.Printf("\r%s: %d/%d (%.1f%%), %d errors",
					snap.State, snap.Progress.Processed, snap.Progress.Total,
					snap.Progress.ProgressPct, snap.Progress.Errors)
				if snap.State == "completed" || snap.State == "failed" {
					fmt.Println()
					if snap.State == "failed" {
						return fmt.Errorf("scrape failed: %s", snap.Error)
					}
					return nil
				}
			}
		}
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeText, "text", "", "full-text search term")
	scrapeCmd.Flags().StringVar(&scrapeDateFrom, "date-from", "", "lower date bound, YYYY-MM-DD")
	scrapeCmd.Flags().StringVar(&scrapeDateTo, "date-to", "", "upper date bound, YYYY-MM-DD")
	scrapeCmd.Flags().StringVar(&scrapeCourt, "court", "", "court name filter")
	scrapeCmd.Flags().IntVar(&scrapePageSize, "page-size", 50, "search page size")
}
