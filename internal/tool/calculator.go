package tool

import (
	"context"
	"log/slog"
	"strings"

	"mathsgpt/internal/domain"
)

const calculatorTemplate = `Translate a math problem into a single arithmetic expression.
Use only numbers, + - * / % ^, parentheses, pi, e and the functions sqrt, abs, floor, ceil, round, exp, ln, log, sin, cos, tan.
Only return the expression, no text.
Question: {question}
Expression:`

// Calculator answers math phrases in two stages: the oracle translates the
// phrase into an arithmetic expression, then Evaluate computes it.
type Calculator struct {
	oracle  domain.Oracle
	options domain.CompletionOptions
	logger  *slog.Logger
}

type CalculatorConfig struct {
	Oracle domain.Oracle
	Logger *slog.Logger
	// MaxTokens for the translation call. Expressions are short.
	MaxTokens int
}

func NewCalculator(cfg CalculatorConfig) *Calculator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Calculator{
		oracle: cfg.Oracle,
		// Translation must be deterministic.
		options: domain.CompletionOptions{MaxTokens: cfg.MaxTokens, Temperature: 0},
		logger:  cfg.Logger,
	}
}

func (c *Calculator) Name() string { return "Calculator" }
func (c *Calculator) Description() string {
	return "Useful for answering math questions. Input must be a clear mathematical expression or math word phrase."
}

func (c *Calculator) Invoke(ctx context.Context, input string) (string, error) {
	question := strings.TrimSpace(input)
	if question == "" {
		return "", NewToolError(KindInvalidExpression, "empty input")
	}

	prompt := strings.Replace(calculatorTemplate, "{question}", question, 1)
	reply, err := c.oracle.Complete(ctx, prompt, c.options)
	if err != nil {
		return "", &ToolError{Kind: KindUnavailable, Message: "expression translation failed", Err: err}
	}

	expr := extractExpression(reply)
	c.logger.Debug("calculator translated expression", "input", question, "expression", expr)

	v, err := Evaluate(expr)
	if err != nil {
		return "", err
	}
	return FormatNumber(v), nil
}

// extractExpression pulls the expression out of a model reply, tolerating
// code fences, an "Expression:" label and a trailing "= ..." result.
func extractExpression(reply string) string {
	s := strings.TrimSpace(reply)

	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		var body []string
		for _, line := range lines[1:] {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				break
			}
			body = append(body, line)
		}
		s = strings.TrimSpace(strings.Join(body, "\n"))
	}

	// Keep the first non-empty line only.
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			s = line
			break
		}
	}

	for _, label := range []string{"Expression:", "expression:", "Answer:"} {
		if idx := strings.Index(s, label); idx >= 0 {
			s = strings.TrimSpace(s[idx+len(label):])
		}
	}
	if idx := strings.Index(s, "="); idx > 0 {
		s = strings.TrimSpace(s[:idx])
	}
	return strings.Trim(s, "`\"' ")
}
