package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"mathsgpt/internal/agent"
	"mathsgpt/internal/config"
	"mathsgpt/internal/domain"
	"mathsgpt/internal/runlog"
)

func historyCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the run log of past questions",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunLog(g, func(ctx context.Context, store *runlog.SQLiteStore) error {
				runs, err := store.ListRuns(ctx, limit)
				if err != nil {
					return err
				}
				printRuns(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show [run-id]",
		Short: "Show one run with its full reasoning trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunLog(g, func(ctx context.Context, store *runlog.SQLiteStore) error {
				rec, err := store.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("run %q not found", args[0])
				}
				return printRun(cmd.OutOrStdout(), rec)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count runs by outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunLog(g, func(ctx context.Context, store *runlog.SQLiteStore) error {
				counts, err := store.OutcomeCounts(ctx)
				if err != nil {
					return err
				}
				printStats(cmd.OutOrStdout(), counts)
				return nil
			})
		},
	})

	var days int
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete runs older than --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			return withRunLog(g, func(ctx context.Context, store *runlog.SQLiteStore) error {
				n, err := store.Purge(ctx, time.Duration(days)*24*time.Hour)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d run(s).\n", n)
				return nil
			})
		},
	}
	purge.Flags().IntVar(&days, "days", 30, "keep runs newer than this many days")
	cmd.AddCommand(purge)

	return cmd
}

// withRunLog opens the configured run log for the duration of fn.
func withRunLog(g *globalFlags, fn func(ctx context.Context, store *runlog.SQLiteStore) error) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	if !cfg.RunLog.Enabled {
		return fmt.Errorf("the run log is disabled (runLog.enabled = false)")
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	store, err := runlog.NewSQLiteStore(config.ExpandPath(cfg.RunLog.DBPath), logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(context.Background(), store)
}

func printRuns(w io.Writer, runs []domain.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return
	}
	for _, r := range runs {
		status := passStyle.Render(string(r.Outcome))
		if r.Outcome != domain.OutcomeSuccess {
			status = errorStyle.Render(string(r.Outcome))
		}
		fmt.Fprintf(w, "%s  %s  %-18s %s\n",
			r.ID[:min(8, len(r.ID))],
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			status,
			truncate(r.Question, 60))
	}
}

func printRun(w io.Writer, rec *domain.RunRecord) error {
	fmt.Fprintf(w, "%s %s\n", headingStyle.Render("Run:"), rec.ID)
	fmt.Fprintf(w, "%s %s\n", headingStyle.Render("When:"), rec.CreatedAt.Local().Format(time.RFC1123))
	if rec.Model != "" {
		fmt.Fprintf(w, "%s %s\n", headingStyle.Render("Model:"), rec.Model)
	}
	fmt.Fprintf(w, "%s %s (%d iterations, %dms)\n", headingStyle.Render("Outcome:"), rec.Outcome, rec.Iterations, rec.LatencyMs)
	fmt.Fprintf(w, "%s %s\n\n", headingStyle.Render("Question:"), rec.Question)

	var entries []agent.ScratchpadEntry
	if err := json.Unmarshal([]byte(rec.Scratchpad), &entries); err != nil {
		return fmt.Errorf("decode scratchpad: %w", err)
	}
	for _, e := range entries {
		fmt.Fprintln(w, formatEntry(e))
	}
	fmt.Fprintln(w)
	if rec.Error != "" {
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render("Error:"), rec.Error)
	}
	if rec.Answer != "" {
		fmt.Fprintf(w, "%s %s\n", headingStyle.Render("Answer:"), rec.Answer)
	}
	return nil
}

func printStats(w io.Writer, counts map[domain.RunOutcome]int) {
	outcomes := make([]string, 0, len(counts))
	total := 0
	for o, n := range counts {
		outcomes = append(outcomes, string(o))
		total += n
	}
	sort.Strings(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(w, "%-20s %d\n", o, counts[domain.RunOutcome(o)])
	}
	fmt.Fprintf(w, "%-20s %d\n", headingStyle.Render("total"), total)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
