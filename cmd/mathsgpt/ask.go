package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mathsgpt/internal/agent"
	"mathsgpt/internal/metrics"
)

// askResult is the --json shape of a finished run.
type askResult struct {
	RunID      string                  `json:"run_id"`
	Question   string                  `json:"question"`
	Answer     string                  `json:"answer,omitempty"`
	Error      string                  `json:"error,omitempty"`
	Iterations int                     `json:"iterations"`
	Scratchpad []agent.ScratchpadEntry `json:"scratchpad"`
}

func askCmd(g *globalFlags) *cobra.Command {
	var (
		plain       bool
		jsonOut     bool
		showMetrics bool
	)
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a single question",
		Example: `  mathsgpt ask "What is 15% of 240?"
  mathsgpt ask -v "How many moons does Jupiter have, squared?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			logger, closeLog, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := appOptions{Model: g.modelFor(cfg)}
			if g.verbose && !jsonOut {
				opts.OnEntry = func(e agent.ScratchpadEntry) {
					fmt.Fprintln(cmd.ErrOrStderr(), formatEntry(e))
				}
			}
			a, err := newApp(ctx, cfg, logger, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			question := strings.Join(args, " ")
			res, runErr := a.agent.Run(ctx, question)

			if showMetrics {
				defer metrics.Collector.WriteText(cmd.ErrOrStderr())
			}

			if jsonOut {
				out := askResult{
					RunID:      res.RunID,
					Question:   question,
					Answer:     res.Answer,
					Iterations: res.State.Iterations,
					Scratchpad: res.State.Scratchpad,
				}
				if runErr != nil {
					out.Error = friendlyError(runErr)
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(out); err != nil {
					return err
				}
				return runErr
			}

			if runErr != nil {
				return runErr
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAnswer(res.Answer, plain))
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print the answer without markdown rendering")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the run as JSON")
	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "print run metrics in Prometheus text format to stderr")
	return cmd
}
