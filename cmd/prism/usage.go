package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"text/tabwriter"

	"github.com/nulzo/prism-go/internal/analytics"
	"github.com/nulzo/prism-go/internal/cli"
	"github.com/nulzo/prism-go/internal/store/sqlite"
)

func (a *app) usage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("usage", flag.ContinueOnError)
	var (
		days   = fs.Int("days", 7, "Days of daily totals to show")
		limit  = fs.Int("limit", 10, "Number of recent calls to show")
		asJSON = fs.Bool("json", false, "Print as JSON")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if a.cfg.Usage.DSN == "" {
		return errors.New("no usage ledger configured, set usage.dsn or PRISM_USAGE_DSN")
	}

	repo, err := sqlite.NewSQLiteStorage(a.cfg.Usage.DSN, a.log)
	if err != nil {
		return err
	}
	defer func() {
		_ = repo.Close()
	}()

	svc := analytics.NewService(repo)

	stats, err := svc.GetUsageOverview(ctx, *days)
	if err != nil {
		return fmt.Errorf("failed to load daily stats: %w", err)
	}
	recent, err := svc.GetRecent(ctx, *limit)
	if err != nil {
		return fmt.Errorf("failed to load recent calls: %w", err)
	}

	if *asJSON {
		fmt.Fprintln(a.out, cli.PrettyFormat(map[string]interface{}{
			"daily":  stats,
			"recent": recent,
		}))
		return nil
	}

	fmt.Fprintln(a.out, cli.Bold(fmt.Sprintf("Last %d days", *days)))
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tCALLS\tFAILED\tTOKENS\tREASONING\tCOST\tAVG LATENCY")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.4f\t%.0fms\n",
			s.Date, s.TotalRequests, s.FailedRequests, s.TotalTokens, s.ReasoningTokens,
			float64(s.TotalCostMicros)/1e6, s.AverageLatency)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, cli.Bold("Recent calls"))
	tw = tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tMODEL\tSTATUS\tTOKENS\tLATENCY\tREQUEST ID")
	for _, r := range recent {
		status := cli.CheckMark()
		if r.StatusCode != 200 {
			status = fmt.Sprintf("%s %d %s", cli.CrossMark(), r.StatusCode, r.ErrorType)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%dms\t%s\n",
			r.CreatedAt.Local().Format("01-02 15:04:05"), r.Model, status, r.TotalTokens(), r.LatencyMS, r.RequestID)
	}
	return tw.Flush()
}
