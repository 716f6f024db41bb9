package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathsgpt/internal/domain"
	"mathsgpt/internal/metrics"
	"mathsgpt/internal/netutil"
	"mathsgpt/internal/oracletest"
	"mathsgpt/internal/tool"
)

// echoTool returns its input, prefixed so observations are recognisable.
type echoTool struct{}

func (echoTool) Name() string        { return "Echo" }
func (echoTool) Description() string { return "Repeats the input." }
func (echoTool) Invoke(ctx context.Context, input string) (string, error) {
	return "echo: " + input, nil
}

// memoryRecorder is an in-memory domain.RunStore.
type memoryRecorder struct {
	mu   sync.Mutex
	runs []domain.RunRecord
}

func (m *memoryRecorder) SaveRun(ctx context.Context, rec domain.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, rec)
	return nil
}
func (m *memoryRecorder) GetRun(ctx context.Context, id string) (*domain.RunRecord, error) {
	return nil, errors.New("not implemented")
}
func (m *memoryRecorder) ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	return nil, errors.New("not implemented")
}
func (m *memoryRecorder) Close() error { return nil }

func newTestAgent(t *testing.T, oracle domain.Oracle, maxIterations int, tools ...domain.Tool) *Agent {
	t.Helper()
	reg := tool.NewRegistry(testLogger())
	for _, tl := range tools {
		require.NoError(t, reg.Register(tl))
	}
	return NewAgent(Config{
		Oracle:        oracle,
		Tools:         reg,
		Logger:        testLogger(),
		MaxIterations: maxIterations,
		Metrics:       metrics.NewMetricsCollector(),
	})
}

func TestRun_PassesMatchActions(t *testing.T) {
	for _, actions := range []int{0, 1, 3} {
		t.Run(fmt.Sprintf("%d actions", actions), func(t *testing.T) {
			var script []string
			for i := 0; i < actions; i++ {
				script = append(script, fmt.Sprintf("Step %d.\nAction: Echo\nAction Input: %d", i, i))
			}
			script = append(script, "I now know the final answer\nFinal Answer: The answer is 42.")
			oracle := oracletest.Texts(script...)

			res, err := newTestAgent(t, oracle, 10, echoTool{}).Run(context.Background(), "What is the answer?")
			require.NoError(t, err)

			assert.Equal(t, "The answer is 42.", res.Answer)
			assert.Equal(t, actions, res.State.Iterations)
			assert.Len(t, oracle.Calls(), actions+1)
			assert.Equal(t, actions, res.State.Count(EntryAction))
			assert.Equal(t, actions, res.State.Count(EntryObservation))
			assert.NotEmpty(t, res.RunID)
		})
	}
}

func TestRun_ObservationFeedsNextPrompt(t *testing.T) {
	oracle := oracletest.Texts(
		"Let me echo.\nAction: Echo\nAction Input: hello",
		"Final Answer: done",
	)
	_, err := newTestAgent(t, oracle, 5, echoTool{}).Run(context.Background(), "q")
	require.NoError(t, err)

	prompts := oracle.Prompts()
	require.Len(t, prompts, 2)
	assert.True(t, strings.HasSuffix(prompts[1],
		"Question: q\nThought: Let me echo.\nAction: Echo\nAction Input: hello\nObservation: echo: hello\nThought:"),
		"second prompt:\n%s", prompts[1])
}

func TestRun_SendsStopSequence(t *testing.T) {
	oracle := oracletest.Texts("Final Answer: ok")
	ag := NewAgent(Config{
		Oracle:      oracle,
		Logger:      testLogger(),
		MaxTokens:   321,
		Temperature: 0.3,
		Metrics:     metrics.NewMetricsCollector(),
	})
	_, err := ag.Run(context.Background(), "q")
	require.NoError(t, err)

	want := domain.CompletionOptions{MaxTokens: 321, Temperature: 0.3, Stop: []string{"\nObservation:"}}
	if diff := cmp.Diff(want, oracle.Calls()[0].Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_MalformedOutputIsCorrectedOnce(t *testing.T) {
	oracle := oracletest.Texts(
		"I think the answer is 4.",
		"Final Answer: 4",
	)
	res, err := newTestAgent(t, oracle, 5, echoTool{}).Run(context.Background(), "What is 2+2?")
	require.NoError(t, err)
	assert.Equal(t, "4", res.Answer)
	assert.Equal(t, 1, res.State.Iterations)

	want := []ScratchpadEntry{
		Observation(`Invalid format: no "Action:" or "Final Answer:" marker was found. Use the exact "Action:"/"Action Input:" markers or "Final Answer:".`),
	}
	if diff := cmp.Diff(want, res.State.Scratchpad); diff != "" {
		t.Fatalf("scratchpad mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, oracle.Prompts()[1], "Observation: Invalid format:")
}

func TestRun_UnknownToolBecomesObservation(t *testing.T) {
	oracle := oracletest.Texts(
		"Action: Search\nAction Input: Euler",
		"Final Answer: unknown",
	)
	res, err := newTestAgent(t, oracle, 5, echoTool{}).Run(context.Background(), "Who was Euler?")
	require.NoError(t, err)

	want := []ScratchpadEntry{
		Action("Search", "Euler"),
		Observation("Search is not a valid tool, try one of [Echo]."),
	}
	if diff := cmp.Diff(want, res.State.Scratchpad); diff != "" {
		t.Fatalf("scratchpad mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, res.State.Iterations)
}

func TestRun_IterationLimit(t *testing.T) {
	oracle := oracletest.Texts("Action: Echo\nAction Input: again")
	oracle.Repeat = true

	res, err := newTestAgent(t, oracle, 5, echoTool{}).Run(context.Background(), "loop forever")
	require.Error(t, err)

	var agentErr *AgentError
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, KindIterationLimitExceeded, agentErr.Kind)
	assert.True(t, errors.Is(err, ErrIterationLimitExceeded))
	assert.Equal(t, 5, agentErr.Iterations)
	assert.Empty(t, res.Answer)
	assert.Len(t, oracle.Calls(), 5)
}

func TestRun_MalformedPassesCountAgainstCap(t *testing.T) {
	oracle := oracletest.Texts("no idea")
	oracle.Repeat = true

	_, err := newTestAgent(t, oracle, 3).Run(context.Background(), "q")
	assert.True(t, errors.Is(err, ErrIterationLimitExceeded), "got %v", err)
	assert.Len(t, oracle.Calls(), 3)
}

func TestRun_NoResultsObservationIsVerbatimInNextPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"batchcomplete":true,"query":{"search":[]}}`))
	}))
	defer srv.Close()

	wiki := tool.NewWikipedia(tool.WikipediaConfig{
		APIBase: srv.URL,
		Client:  srv.Client(),
		Retry:   netutil.NoRetry,
		Logger:  testLogger(),
	})
	oracle := oracletest.Texts(
		"Action: Wikipedia\nAction Input: qwzxv",
		"Final Answer: I could not find anything.",
	)
	res, err := newTestAgent(t, oracle, 5, wiki).Run(context.Background(), "What is qwzxv?")
	require.NoError(t, err)

	obs := res.State.Scratchpad[len(res.State.Scratchpad)-1]
	require.Equal(t, EntryObservation, obs.Kind)
	assert.True(t, strings.HasPrefix(obs.Text, "Error: "))
	assert.Contains(t, obs.Text, string(tool.KindNoResults))
	assert.Contains(t, oracle.Prompts()[1], "Observation: "+obs.Text+"\nThought:")
}

func TestRun_CalculatorEndToEnd(t *testing.T) {
	// One scripted oracle serves both the agent and the calculator's
	// translation step, in call order.
	oracle := oracletest.Texts(
		"I should use the calculator.\nAction: Calculator\nAction Input: two plus two",
		"2+2",
		"I now know the final answer\nFinal Answer: 4",
	)
	calc := tool.NewCalculator(tool.CalculatorConfig{Oracle: oracle, Logger: testLogger()})

	res, err := newTestAgent(t, oracle, 5, calc).Run(context.Background(), "What is two plus two?")
	require.NoError(t, err)
	assert.Equal(t, "4", res.Answer)
	assert.Contains(t, res.State.Scratchpad, Observation("4"))
}

func TestRun_ToolErrorKeepsLoopGoing(t *testing.T) {
	calc := tool.NewCalculator(tool.CalculatorConfig{Oracle: oracletest.Texts("1/0"), Logger: testLogger()})
	oracle := oracletest.Texts(
		"Action: Calculator\nAction Input: one divided by zero",
		"Final Answer: undefined",
	)
	res, err := newTestAgent(t, oracle, 5, calc).Run(context.Background(), "1/0?")
	require.NoError(t, err)
	assert.Equal(t, "undefined", res.Answer)
	last := res.State.Scratchpad[len(res.State.Scratchpad)-1]
	assert.Contains(t, last.Text, "Error: Calculator InvalidExpression")
}

func TestRun_HallucinatedObservationIgnored(t *testing.T) {
	oracle := oracletest.Texts(
		"Action: Echo\nAction Input: hi\nObservation: made up\nFinal Answer: made up",
		"Final Answer: real",
	)
	res, err := newTestAgent(t, oracle, 5, echoTool{}).Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "real", res.Answer)
	assert.Contains(t, res.State.Scratchpad, Observation("echo: hi"))
}

func TestRun_OracleFailureIsFatal(t *testing.T) {
	cause := errors.New("503 service unavailable")
	oracle := oracletest.New(oracletest.Response{Err: cause})

	res, err := newTestAgent(t, oracle, 5).Run(context.Background(), "q")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOracleUnavailable))
	assert.True(t, errors.Is(err, cause), "cause must be reachable")
	assert.False(t, errors.Is(err, ErrIterationLimitExceeded))
	assert.Empty(t, res.Answer)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	oracle := oracletest.Texts("Final Answer: never")
	_, err := newTestAgent(t, oracle, 5).Run(ctx, "q")

	var agentErr *AgentError
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, KindCancelled, agentErr.Kind)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, oracle.Calls())
}

func TestRun_CancelledDuringOracleCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	oracle := domain.OracleFunc(func(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	})
	_, err := newTestAgent(t, oracle, 5).Run(ctx, "q")
	assert.True(t, errors.Is(err, ErrCancelled), "got %v", err)
}

func TestRun_CancelledDuringToolCall(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	wiki := tool.NewWikipedia(tool.WikipediaConfig{APIBase: srv.URL, Client: srv.Client(), Retry: netutil.NoRetry, Logger: testLogger()})
	oracle := oracletest.Texts("Action: Wikipedia\nAction Input: slow")
	oracle.Repeat = true

	_, err := newTestAgent(t, oracle, 5, wiki).Run(ctx, "q")
	assert.True(t, errors.Is(err, ErrCancelled), "got %v", err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRun_OnEntryAndRecorder(t *testing.T) {
	var seen []ScratchpadEntry
	rec := &memoryRecorder{}
	reg := tool.NewRegistry(testLogger())
	reg.MustRegister(echoTool{})

	ag := NewAgent(Config{
		Oracle: oracletest.Texts(
			"Try echo.\nAction: Echo\nAction Input: x",
			"Done now.\nFinal Answer: x",
		),
		Tools:    reg,
		Logger:   testLogger(),
		OnEntry:  func(e ScratchpadEntry) { seen = append(seen, e) },
		Recorder: rec,
		Model:    "test-model",
		Metrics:  metrics.NewMetricsCollector(),
	})
	res, err := ag.Run(context.Background(), "  echo x  ")
	require.NoError(t, err)

	want := []ScratchpadEntry{Thought("Try echo."), Action("Echo", "x"), Observation("echo: x"), Thought("Done now.")}
	if diff := cmp.Diff(want, seen); diff != "" {
		t.Fatalf("OnEntry mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, rec.runs, 1)
	got := rec.runs[0]
	assert.Equal(t, res.RunID, got.ID)
	assert.Equal(t, "echo x", got.Question)
	assert.Equal(t, "x", got.Answer)
	assert.Equal(t, domain.OutcomeSuccess, got.Outcome)
	assert.Equal(t, 1, got.Iterations)
	assert.Equal(t, "test-model", got.Model)
	assert.Contains(t, got.Scratchpad, `"kind":"action"`)
}

func TestRun_RecordsFailureOutcome(t *testing.T) {
	rec := &memoryRecorder{}
	oracle := oracletest.Texts("Action: Echo\nAction Input: x")
	oracle.Repeat = true

	reg := tool.NewRegistry(testLogger())
	reg.MustRegister(echoTool{})
	ag := NewAgent(Config{Oracle: oracle, Tools: reg, Logger: testLogger(), MaxIterations: 2, Recorder: rec, Metrics: metrics.NewMetricsCollector()})

	_, err := ag.Run(context.Background(), "q")
	require.Error(t, err)
	require.Len(t, rec.runs, 1)
	assert.Equal(t, domain.OutcomeIterationLimit, rec.runs[0].Outcome)
	assert.NotEmpty(t, rec.runs[0].Error)
}

func TestRun_RecordsMetrics(t *testing.T) {
	collector := metrics.NewMetricsCollector()
	reg := tool.NewRegistry(testLogger())
	reg.MustRegister(echoTool{})
	ag := NewAgent(Config{
		Oracle:  oracletest.Texts("garbage", "Action: Echo\nAction Input: x", "Final Answer: x"),
		Tools:   reg,
		Logger:  testLogger(),
		Metrics: collector,
	})
	_, err := ag.Run(context.Background(), "q")
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, collector.WriteText(&sb))
	out := sb.String()
	assert.Contains(t, out, `mathsgpt_runs_total{outcome="success"} 1`)
	assert.Contains(t, out, `mathsgpt_oracle_requests_total{result="ok"} 3`)
	assert.Contains(t, out, `mathsgpt_tool_invocations_total{tool="Echo",result="ok"} 1`)
	assert.Contains(t, out, "mathsgpt_parse_failures_total 1")
	assert.Contains(t, out, "mathsgpt_iterations_total 2")
}

func TestNewAgent_FreezesRegistry(t *testing.T) {
	reg := tool.NewRegistry(testLogger())
	reg.MustRegister(echoTool{})
	ag := NewAgent(Config{Oracle: oracletest.Texts(), Tools: reg, Logger: testLogger()})

	err := reg.Register(&namedTool{name: "Late"})
	assert.True(t, errors.Is(err, tool.ErrRegistryFrozen))
	assert.Len(t, ag.Catalog(), 1)
}

type namedTool struct{ name string }

func (n *namedTool) Name() string        { return n.name }
func (n *namedTool) Description() string { return n.name }
func (n *namedTool) Invoke(ctx context.Context, input string) (string, error) {
	return n.name, nil
}

func TestRun_ConcurrentRunsAreIndependent(t *testing.T) {
	// The oracle answers with the question it sees, so crossed state between
	// runs would surface as a wrong answer.
	oracle := domain.OracleFunc(func(ctx context.Context, prompt string, opts domain.CompletionOptions) (string, error) {
		rest := prompt[strings.LastIndex(prompt, "Question: ")+len("Question: "):]
		q, _, _ := strings.Cut(rest, "\n")
		if !strings.Contains(rest, "Observation: echo:") {
			return "Action: Echo\nAction Input: " + q, nil
		}
		return "Final Answer: " + q, nil
	})
	ag := newTestAgent(t, oracle, 5, echoTool{})

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := fmt.Sprintf("question %d", i)
			res, err := ag.Run(context.Background(), q)
			if err != nil {
				errs <- err
				return
			}
			if res.Answer != q {
				errs <- fmt.Errorf("run %d answered %q", i, res.Answer)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestNewAgent_WithoutLogger(t *testing.T) {
	ag := NewAgent(Config{
		Oracle:  oracletest.Texts("Final Answer: 1"),
		Metrics: metrics.NewMetricsCollector(),
	})
	res, err := ag.Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "1", res.Answer)
}

func TestRun_NonASCIIBeforeMidLineFinalAnswer(t *testing.T) {
	prefix := strings.Repeat("Ⱥ", 20)
	oracle := oracletest.Texts(prefix + " Final Answer: 7")

	res, err := newTestAgent(t, oracle, 3).Run(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "7", res.Answer)
	require.NotEmpty(t, res.State.Scratchpad)
	assert.Equal(t, prefix, res.State.Scratchpad[0].Text)
}
