package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"mathsgpt/internal/config"
	"mathsgpt/internal/netutil"
	"mathsgpt/internal/provider"
	"mathsgpt/internal/tool"
)

const doctorTimeout = 5 * time.Second

// doctorReport tallies check results as they are printed.
type doctorReport struct {
	w                      io.Writer
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	r.passed++
	fmt.Fprintf(r.w, "  %s %-22s %s\n", passStyle.Render("[PASS]"), check, detail)
}

func (r *doctorReport) warn(check, detail string) {
	r.warned++
	fmt.Fprintf(r.w, "  %s %-22s %s\n", warnStyle.Render("[WARN]"), check, detail)
}

func (r *doctorReport) fail(check, detail string) {
	r.failed++
	fmt.Fprintf(r.w, "  %s %-22s %s\n", errorStyle.Render("[FAIL]"), check, detail)
}

func doctorCmd(g *globalFlags) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your MathsGPT setup",
		Long: `Verifies that the configuration, language model providers, run log and
Wikipedia access are correctly set up. Reports pass/warn/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headingStyle.Render("MathsGPT Doctor v"+version))
			fmt.Fprintln(out)

			r := &doctorReport{w: out}
			cfg := checkConfig(r, g)
			if cfg != nil {
				ctx := cmd.Context()
				if ctx == nil {
					ctx = context.Background()
				}
				checkProviders(ctx, r, cfg, offline)
				if cfg.RunLog.Enabled {
					if err := checkDatabase(cfg.RunLog.DBPath); err != nil {
						r.fail("Run log", err.Error())
					} else {
						r.pass("Run log", cfg.RunLog.DBPath)
					}
				} else {
					r.warn("Run log", "disabled")
				}
				if cfg.Tools.Wikipedia.Enabled && !offline {
					checkWikipedia(ctx, r, cfg)
				}
				if cfg.General.LogFile != "" {
					if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
						r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					} else {
						r.pass("Log file", cfg.General.LogFile)
					}
				}
			}

			fmt.Fprintln(out)
			fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
			if r.failed > 0 {
				return fmt.Errorf("%d check(s) failed", r.failed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip checks that need the network")
	return cmd
}

func checkConfig(r *doctorReport, g *globalFlags) *config.Config {
	cfgPath := config.ExpandPath(g.resolveConfigPath())
	if _, err := os.Stat(cfgPath); err != nil {
		r.warn("Config file", fmt.Sprintf("not found at %s, using defaults (run 'mathsgpt init')", cfgPath))
	} else {
		r.pass("Config file", cfgPath)
	}
	cfg, err := g.loadConfig()
	if err != nil {
		r.fail("Config validation", err.Error())
		return nil
	}
	r.pass("Config validation", "valid")
	return cfg
}

func checkProviders(ctx context.Context, r *doctorReport, cfg *config.Config, offline bool) {
	names := make([]string, 0, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if pc.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	client := netutil.SharedHTTPClient(doctorTimeout)
	factory := provider.NewFactory(cfg, client, discardLogger())
	for _, name := range names {
		check := "Provider: " + name
		pc := cfg.Providers[name]
		if pc.APIKey != "" && pc.ResolvedAPIKey() == "" {
			r.fail(check, fmt.Sprintf("API key %s is not set", pc.APIKey))
			continue
		}
		p, err := factory.Get(name)
		if err != nil {
			r.fail(check, err.Error())
			continue
		}
		if offline {
			r.pass(check, "configured")
			continue
		}
		hctx, cancel := context.WithTimeout(ctx, doctorTimeout)
		err = p.Healthy(hctx)
		cancel()
		if err != nil {
			r.fail(check, fmt.Sprintf("unreachable: %v", err))
			continue
		}
		r.pass(check, "reachable")
	}
}

func checkWikipedia(ctx context.Context, r *doctorReport, cfg *config.Config) {
	wiki := tool.NewWikipedia(tool.WikipediaConfig{
		APIBase:  cfg.Tools.Wikipedia.APIBase,
		Language: cfg.Tools.Wikipedia.Language,
		TopK:     1,
		MaxChars: 200,
		Client:   netutil.SharedHTTPClient(doctorTimeout),
		Retry:    netutil.NoRetry,
		Logger:   discardLogger(),
	})
	wctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()
	if _, err := wiki.Invoke(wctx, "Mathematics"); err != nil {
		r.warn("Wikipedia", err.Error())
		return
	}
	r.pass("Wikipedia", "reachable")
}

func checkDatabase(dbPath string) error {
	dbPath = config.ExpandPath(dbPath)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), doctorTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	_, _ = db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")
	return nil
}
