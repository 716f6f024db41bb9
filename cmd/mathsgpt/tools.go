package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mathsgpt/internal/domain"
)

func toolsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the agent can use",
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

			// Listing never calls the oracle, so none is wired.
			reg, err := buildRegistry(cfg, nil, nil, logger)
			if err != nil {
				return err
			}
			printCatalog(cmd.OutOrStdout(), reg.Catalog())
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run [tool] [input]",
		Short: "Invoke one tool directly, bypassing the agent",
		Example: `  mathsgpt tools run Calculator "3 apples times 7"
  mathsgpt tools run Wikipedia "Jupiter moons"`,
		Args: cobra.MinimumNArgs(2),
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

			a, err := newApp(ctx, cfg, logger, appOptions{Model: g.modelFor(cfg)})
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.tools.Invoke(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	})
	return cmd
}

func printCatalog(w io.Writer, specs []domain.ToolSpec) {
	if len(specs) == 0 {
		fmt.Fprintln(w, warnStyle.Render("No tools enabled."))
		return
	}
	for _, s := range specs {
		fmt.Fprintf(w, "%s  %s\n", headingStyle.Render(s.Name), s.Description)
	}
}
