package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"mathsgpt/internal/config"
)

var version = "0.1.0"

// globalFlags are the persistent flags shared by every subcommand.
type globalFlags struct {
	configPath    string
	provider      string
	model         string
	maxIterations int
	verbose       bool
	logLevel      string
}

func main() {
	g := &globalFlags{}
	root := newRootCmd(g)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(friendlyError(err)))
		os.Exit(1)
	}
}

func newRootCmd(g *globalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:           "mathsgpt",
		Short:         "MathsGPT: a tool-using maths assistant",
		Long:          "MathsGPT answers maths and general-knowledge questions by reasoning step by step with a calculator, Wikipedia and a reasoning helper.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "path to config file, .json or .yaml (default: ~/.mathsgpt/config.json)")
	pf.StringVar(&g.provider, "provider", "", "override general.defaultProvider")
	pf.StringVar(&g.model, "model", "", "override the provider's default model")
	pf.IntVar(&g.maxIterations, "max-iterations", 0, "override agent.maxIterations")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "print every Thought/Action/Observation as it happens")
	pf.StringVar(&g.logLevel, "log-level", "", "override general.logLevel (debug, info, warn, error)")

	root.AddCommand(initCmd(g))
	root.AddCommand(askCmd(g))
	root.AddCommand(chatCmd(g))
	root.AddCommand(batchCmd(g))
	root.AddCommand(toolsCmd(g))
	root.AddCommand(historyCmd(g))
	root.AddCommand(configCmd(g))
	root.AddCommand(doctorCmd(g))
	return root
}

// resolveConfigPath returns the config path from --config or the default.
func (g *globalFlags) resolveConfigPath() string {
	if g.configPath != "" {
		return g.configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file and applies flag overrides. An explicit
// --config must exist; the default path falls back to built-in defaults.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	path := g.resolveConfigPath()
	var (
		cfg *config.Config
		err error
	)
	if g.configPath != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return nil, err
	}

	if g.provider != "" {
		cfg.General.DefaultProvider = g.provider
	}
	if g.maxIterations > 0 {
		cfg.Agent.MaxIterations = g.maxIterations
	}
	if g.logLevel != "" {
		cfg.General.LogLevel = g.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// modelFor returns the model label for run records and the oracle override.
func (g *globalFlags) modelFor(cfg *config.Config) string {
	if g.model != "" {
		return g.model
	}
	return cfg.Providers[cfg.General.DefaultProvider].DefaultModel
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// newLogger builds the process logger. Logs go to stderr, or to
// general.logFile when set, so they never mix with answers on stdout.
func newLogger(cfg *config.Config) (*slog.Logger, func() error, error) {
	level := parseLevel(cfg.General.LogLevel)
	var (
		w       io.Writer = os.Stderr
		closeFn           = func() error { return nil }
		color             = isatty.IsTerminal(os.Stderr.Fd())
	)
	if cfg.General.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closeFn, color = f, f.Close, false
	}

	var h slog.Handler
	if cfg.General.LogFormat == "json" {
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    !color,
		})
	}
	return slog.New(h), closeFn, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
