package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mathsgpt/internal/config"
)

func initCmd(g *globalFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Long: `Writes the built-in defaults to the config path (JSON, or YAML when the path
ends in .yaml or .yml). The Groq API key is read from $GROQ_API_KEY at run time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(g.resolveConfigPath())
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cfgPath)
			if os.Getenv("GROQ_API_KEY") == "" {
				fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render("GROQ_API_KEY is not set; export it before asking questions."))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
