package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mathsgpt/internal/agent"
)

type batchResult struct {
	Question   string `json:"question"`
	Answer     string `json:"answer,omitempty"`
	Error      string `json:"error,omitempty"`
	Iterations int    `json:"iterations"`
	RunID      string `json:"run_id"`
}

func batchCmd(g *globalFlags) *cobra.Command {
	var (
		concurrency int
		jsonOut     bool
	)
	cmd := &cobra.Command{
		Use:   "batch [file]",
		Short: "Answer one question per line from a file (or stdin)",
		Long: `Reads questions one per line, skipping blank lines and lines starting with #,
and answers them concurrently. Results are printed in input order. A failed
question does not stop the others.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			questions, err := readQuestions(in)
			if err != nil {
				return err
			}
			if len(questions) == 0 {
				return fmt.Errorf("no questions to answer")
			}

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

			a, err := newApp(ctx, cfg, logger, appOptions{Model: g.modelFor(cfg)})
			if err != nil {
				return err
			}
			defer a.Close()

			results := runBatch(ctx, a.agent, questions, concurrency)
			return writeBatch(cmd.OutOrStdout(), results, jsonOut)
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 4, "questions answered in parallel")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print one JSON object per line")
	return cmd
}

func readQuestions(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

// runBatch answers every question with at most concurrency runs in flight.
// Results keep the input order.
func runBatch(ctx context.Context, ag *agent.Agent, questions []string, concurrency int) []batchResult {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]batchResult, len(questions))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for i, q := range questions {
		eg.Go(func() error {
			res, err := ag.Run(egCtx, q)
			r := batchResult{Question: q}
			if res != nil {
				r.Answer = res.Answer
				r.Iterations = res.State.Iterations
				r.RunID = res.RunID
			}
			if err != nil {
				r.Error = friendlyError(err)
			}
			results[i] = r
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// writeBatch prints the results and reports an error when any question
// failed, so the exit status reflects failures in both output modes.
func writeBatch(w io.Writer, results []batchResult, jsonOut bool) error {
	failed := 0
	enc := json.NewEncoder(w)
	for i, r := range results {
		if r.Error != "" {
			failed++
		}
		if jsonOut {
			if err := enc.Encode(r); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(w, "%s %s\n", headingStyle.Render(fmt.Sprintf("Q%d:", i+1)), r.Question)
		if r.Error != "" {
			fmt.Fprintf(w, "%s\n\n", errorStyle.Render(r.Error))
			continue
		}
		fmt.Fprintf(w, "A: %s\n\n", r.Answer)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d questions failed", failed, len(results))
	}
	return nil
}
