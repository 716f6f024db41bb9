package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"mathsgpt/internal/agent"
	"mathsgpt/internal/config"
	"mathsgpt/internal/domain"
)

func chatCmd(g *globalFlags) *cobra.Command {
	var (
		plain    bool
		noReload bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Starts a read-eval-print loop. Every question is answered by a fresh agent
run; earlier turns are shown again with /history but never fed back to the model.
Commands: /history, /tools, /clear, /quit.`,
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

			s := &chatSession{
				g:      g,
				logger: logger,
				out:    cmd.OutOrStdout(),
				errOut: cmd.ErrOrStderr(),
				plain:  plain,
			}
			if err := s.rebuild(ctx, cfg); err != nil {
				return err
			}
			defer s.close()

			path := config.ExpandPath(g.resolveConfigPath())
			if !noReload {
				if _, err := os.Stat(path); err == nil {
					w, err := watchConfig(ctx, path, logger, func() {
						cfg, err := g.loadConfig()
						if err != nil {
							logger.Warn("config reload rejected", "error", err)
							return
						}
						if err := s.rebuild(ctx, cfg); err != nil {
							logger.Warn("config reload failed", "error", err)
							return
						}
						fmt.Fprintln(s.errOut, warnStyle.Render("(configuration reloaded)"))
					})
					if err != nil {
						logger.Warn("config watch unavailable", "error", err)
					} else {
						defer w.Stop()
					}
				}
			}

			return s.loop(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print answers without markdown rendering")
	cmd.Flags().BoolVar(&noReload, "no-reload", false, "do not reload the config file when it changes")
	return cmd
}

// chatSession owns the REPL state. The app is swapped on config reload.
type chatSession struct {
	g      *globalFlags
	logger *slog.Logger
	out    io.Writer
	errOut io.Writer
	plain  bool

	mu      sync.Mutex
	app     *app
	history []domain.ConversationMessage
}

func (s *chatSession) rebuild(ctx context.Context, cfg *config.Config) error {
	opts := appOptions{Model: s.g.modelFor(cfg)}
	if s.g.verbose {
		opts.OnEntry = func(e agent.ScratchpadEntry) {
			fmt.Fprintln(s.errOut, formatEntry(e))
		}
	}
	a, err := newApp(ctx, cfg, s.logger, opts)
	if err != nil {
		return err
	}
	s.mu.Lock()
	old := s.app
	s.app = a
	s.mu.Unlock()
	if old != nil {
		// A run that started before the swap still records into the old store.
		old.closeWhenIdle()
	}
	return nil
}

// acquire returns the current app and marks a run in flight on it. The
// caller must call release when the run is done.
func (s *chatSession) acquire() (a *app, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.app.inFlight.Add(1)
	return s.app, s.app.inFlight.Done
}

func (s *chatSession) current() *app {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.app
}

func (s *chatSession) close() {
	if a := s.current(); a != nil {
		a.closeWhenIdle()
	}
}

func (s *chatSession) say(role domain.Role, text string) {
	s.history = append(s.history, domain.ConversationMessage{Role: role, Content: text})
}

func (s *chatSession) loop(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(s.out, headingStyle.Render(greeting))
	s.say(domain.RoleAssistant, greeting)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(s.out, "> ")
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(s.out)
				return nil
			}
			line = strings.TrimSpace(l)
		}
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "/quit", "/exit":
			return nil
		case "/history":
			s.printHistory()
			continue
		case "/tools":
			printCatalog(s.out, s.current().agent.Catalog())
			continue
		case "/clear":
			s.history = s.history[:0]
			continue
		}

		s.say(domain.RoleUser, line)
		a, release := s.acquire()
		res, err := a.agent.Run(ctx, line)
		release()
		if err != nil {
			msg := friendlyError(err)
			fmt.Fprintln(s.errOut, errorStyle.Render(msg))
			s.say(domain.RoleAssistant, msg)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		fmt.Fprintln(s.out, renderAnswer(res.Answer, s.plain))
		s.say(domain.RoleAssistant, res.Answer)
	}
}

func (s *chatSession) printHistory() {
	for _, m := range s.history {
		who := "you"
		if m.Role == domain.RoleAssistant {
			who = "mathsgpt"
		}
		fmt.Fprintf(s.out, "%s: %s\n", headingStyle.Render(who), m.Content)
	}
}
