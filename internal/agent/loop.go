package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"mathsgpt/internal/domain"
	"mathsgpt/internal/metrics"
	"mathsgpt/internal/tool"
)

const (
	defaultMaxIterations = 15
	defaultMaxTokens     = 1024

	// observationStop keeps the oracle from writing the tool result itself.
	observationStop = "\nObservation:"
)

// Agent runs the Thought / Action / Observation loop for one question at a
// time. It holds only immutable configuration, so Run may be called from
// several goroutines at once; each call owns its State.
type Agent struct {
	oracle        domain.Oracle
	tools         *tool.Registry
	catalog       []domain.ToolSpec
	prompt        *PromptBuilder
	logger        *slog.Logger
	metrics       *metrics.MetricsCollector
	recorder      domain.RunStore
	onEntry       func(ScratchpadEntry)
	model         string
	maxIterations int
	maxTokens     int
	temperature   float64
}

// Config holds the dependencies and tuning parameters of an Agent.
type Config struct {
	Oracle        domain.Oracle
	Tools         *tool.Registry
	Prompt        *PromptBuilder // nil uses DefaultPrefix
	Logger        *slog.Logger
	MaxIterations int
	MaxTokens     int
	Temperature   float64

	// OnEntry, if set, is called synchronously with every entry appended to
	// the scratchpad.
	OnEntry func(ScratchpadEntry)
	// Recorder, if set, receives a RunRecord when a run terminates.
	Recorder domain.RunStore
	// Model is only used to label run records.
	Model   string
	Metrics *metrics.MetricsCollector // nil uses metrics.Collector
}

// Result is what Run returns. On failure it still carries the run ID and the
// partial scratchpad.
type Result struct {
	RunID  string
	Answer string
	State  State
}

// NewAgent creates an agent and freezes its tool registry.
func NewAgent(cfg Config) *Agent {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Prompt == nil {
		cfg.Prompt = NewPromptBuilder("")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.Collector
	}
	if cfg.Tools == nil {
		cfg.Tools = tool.NewRegistry(cfg.Logger)
	}
	cfg.Tools.Freeze()

	return &Agent{
		oracle:        cfg.Oracle,
		tools:         cfg.Tools,
		catalog:       cfg.Tools.Catalog(),
		prompt:        cfg.Prompt,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		recorder:      cfg.Recorder,
		onEntry:       cfg.OnEntry,
		model:         cfg.Model,
		maxIterations: cfg.MaxIterations,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
	}
}

// Catalog returns the tools the agent advertises to the oracle.
func (a *Agent) Catalog() []domain.ToolSpec {
	out := make([]domain.ToolSpec, len(a.catalog))
	copy(out, a.catalog)
	return out
}

// Run answers question. On failure the error is always an *AgentError and
// the returned Result still carries the final state for inspection.
func (a *Agent) Run(ctx context.Context, question string) (*Result, error) {
	start := time.Now()
	res := &Result{
		RunID: uuid.NewString(),
		State: State{Question: strings.TrimSpace(question)},
	}
	logger := a.logger.With("run", res.RunID)
	logger.Info("agent run started", "question_len", len(res.State.Question), "max_iterations", a.maxIterations)

	inFlight := a.metrics.RunsInFlight()
	inFlight.Inc()
	defer inFlight.Dec()

	answer, err := a.loop(ctx, &res.State, logger)
	res.Answer = answer

	outcome := outcomeOf(err)
	a.metrics.RunFinished(string(outcome), res.State.Iterations)
	a.record(ctx, res, outcome, err, time.Since(start), logger)

	if err != nil {
		logger.Warn("agent run failed", "error", err, "iterations", res.State.Iterations)
		return res, err
	}
	logger.Info("agent run finished",
		"iterations", res.State.Iterations,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (a *Agent) loop(ctx context.Context, state *State, logger *slog.Logger) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", &AgentError{Kind: KindCancelled, Iterations: state.Iterations, Err: err}
		}
		if state.Iterations >= a.maxIterations {
			return "", &AgentError{Kind: KindIterationLimitExceeded, Iterations: state.Iterations, Err: ErrIterationLimitExceeded}
		}

		prompt := a.prompt.Build(state.Question, state.Scratchpad, a.catalog)
		logger.Debug("agent iteration", "iteration", state.Iterations+1, "prompt_len", len(prompt))

		output, err := a.complete(ctx, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return "", &AgentError{Kind: KindCancelled, Iterations: state.Iterations, Err: ctx.Err()}
			}
			return "", &AgentError{Kind: KindOracleUnavailable, Iterations: state.Iterations, Err: err}
		}

		instr, err := Parse(output)
		if err != nil {
			var malformed *MalformedOutputError
			if !errors.As(err, &malformed) {
				return "", &AgentError{Kind: KindOracleUnavailable, Iterations: state.Iterations, Err: err}
			}
			a.metrics.ParseFailure()
			logger.Warn("oracle output did not follow the format", "reason", malformed.Reason, "iteration", state.Iterations+1)
			a.append(state, Observation(correction(malformed.Reason)))
			state.Iterations++
			continue
		}

		if instr.Kind == InstructionFinalAnswer {
			if instr.Thought != "" {
				a.append(state, Thought(instr.Thought))
			}
			return instr.Answer, nil
		}

		a.dispatch(ctx, state, instr, logger)
		state.Iterations++
	}
}

func (a *Agent) complete(ctx context.Context, prompt string) (string, error) {
	started := time.Now()
	out, err := a.oracle.Complete(ctx, prompt, domain.CompletionOptions{
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
		Stop:        []string{observationStop},
	})
	a.metrics.OracleCall(time.Since(started), err)
	return out, err
}

// dispatch records the action, runs the tool and records what came back.
// Tool failures become observations; they never end the run.
func (a *Agent) dispatch(ctx context.Context, state *State, instr Instruction, logger *slog.Logger) {
	if instr.Thought != "" {
		a.append(state, Thought(instr.Thought))
	}
	a.append(state, Action(instr.Tool, instr.Input))

	started := time.Now()
	result, err := a.tools.Invoke(ctx, instr.Tool, instr.Input)
	elapsed := time.Since(started)

	var (
		unknown *tool.UnknownToolError
		toolErr *tool.ToolError
	)
	switch {
	case err == nil:
		a.metrics.ToolInvoked(instr.Tool, "ok", elapsed)
		logger.Info("tool completed", "tool", instr.Tool, "result_len", len(result), "duration_ms", elapsed.Milliseconds())
	case errors.As(err, &unknown):
		a.metrics.ToolInvoked("unknown", "unknown_tool", elapsed)
		logger.Warn("oracle asked for an unknown tool", "tool", instr.Tool)
		result = fmt.Sprintf("%s is not a valid tool, try one of [%s].", unknown.Name, strings.Join(unknown.Available, ", "))
	case errors.As(err, &toolErr):
		a.metrics.ToolInvoked(toolErr.Tool, string(toolErr.Kind), elapsed)
		logger.Warn("tool failed", "tool", instr.Tool, "kind", toolErr.Kind, "error", toolErr)
		result = "Error: " + toolErr.Error()
	default:
		a.metrics.ToolInvoked(instr.Tool, string(tool.KindInternal), elapsed)
		logger.Error("tool returned an unexpected error", "tool", instr.Tool, "error", err)
		result = "Error: " + err.Error()
	}
	a.append(state, Observation(result))
}

func (a *Agent) append(state *State, e ScratchpadEntry) {
	state.Scratchpad = append(state.Scratchpad, e)
	if a.onEntry != nil {
		a.onEntry(e)
	}
}

func correction(reason string) string {
	return fmt.Sprintf("Invalid format: %s. Use the exact \"Action:\"/\"Action Input:\" markers or \"Final Answer:\".", reason)
}

func outcomeOf(err error) domain.RunOutcome {
	var ae *AgentError
	if err == nil || !errors.As(err, &ae) {
		return domain.OutcomeSuccess
	}
	switch ae.Kind {
	case KindIterationLimitExceeded:
		return domain.OutcomeIterationLimit
	case KindCancelled:
		return domain.OutcomeCancelled
	default:
		return domain.OutcomeOracleUnavailable
	}
}

// record hands the finished run to the recorder. Failures are logged, never
// returned: the audit trail must not change the run's result.
func (a *Agent) record(ctx context.Context, res *Result, outcome domain.RunOutcome, runErr error, elapsed time.Duration, logger *slog.Logger) {
	if a.recorder == nil {
		return
	}
	pad, err := json.Marshal(res.State.Scratchpad)
	if err != nil {
		logger.Warn("failed to encode scratchpad", "error", err)
		pad = []byte("[]")
	}
	rec := domain.RunRecord{
		ID:         res.RunID,
		Question:   res.State.Question,
		Answer:     res.Answer,
		Outcome:    outcome,
		Iterations: res.State.Iterations,
		Scratchpad: string(pad),
		Model:      a.model,
		LatencyMs:  elapsed.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := a.recorder.SaveRun(saveCtx, rec); err != nil {
		logger.Warn("failed to record run", "error", err)
	}
}
