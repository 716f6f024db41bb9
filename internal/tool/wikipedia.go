package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"mathsgpt/internal/netutil"
)

const (
	wikiTimeout         = 15 * time.Second
	wikiDefaultTopK     = 3
	wikiDefaultMaxChars = 4000
	wikiMaxBodyBytes    = 1 << 20
	userAgentString     = "MathsGPT/0.1 (reasoning agent)"
)

// Wikipedia searches Wikipedia through the MediaWiki action API and returns
// the lead section of the best matching pages.
type Wikipedia struct {
	apiBase  string
	topK     int
	maxChars int
	client   *http.Client
	retry    netutil.RetryPolicy
	logger   *slog.Logger
}

type WikipediaConfig struct {
	// APIBase overrides the endpoint (tests). Defaults to https://<lang>.wikipedia.org/w/api.php.
	APIBase  string
	Language string
	TopK     int
	MaxChars int
	Client   *http.Client
	Retry    netutil.RetryPolicy
	Logger   *slog.Logger
}

func NewWikipedia(cfg WikipediaConfig) *Wikipedia {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.APIBase == "" {
		cfg.APIBase = fmt.Sprintf("https://%s.wikipedia.org/w/api.php", cfg.Language)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = wikiDefaultTopK
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = wikiDefaultMaxChars
	}
	if cfg.Client == nil {
		cfg.Client = netutil.SharedHTTPClient(wikiTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Wikipedia{
		apiBase:  cfg.APIBase,
		topK:     cfg.TopK,
		maxChars: cfg.MaxChars,
		client:   cfg.Client,
		retry:    cfg.Retry,
		logger:   cfg.Logger,
	}
}

func (w *Wikipedia) Name() string { return "Wikipedia" }
func (w *Wikipedia) Description() string {
	return "Useful for answering questions about current events or general facts. Input should be a search query."
}

func (w *Wikipedia) Invoke(ctx context.Context, input string) (string, error) {
	query := strings.TrimSpace(input)
	if query == "" {
		return "", NewToolError(KindNoResults, "empty search query")
	}

	hits, err := w.search(ctx, query)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", NewToolError(KindNoResults, "no good Wikipedia search result was found for %q", query)
	}

	titles := make([]string, len(hits))
	for i, h := range hits {
		titles[i] = h.Title
	}
	extracts, err := w.extracts(ctx, titles)
	if err != nil {
		return "", err
	}

	var pages []string
	for _, h := range hits {
		summary := strings.TrimSpace(extracts[h.Title])
		if summary == "" {
			summary = htmlToText(h.Snippet)
		}
		if summary == "" {
			continue
		}
		pages = append(pages, fmt.Sprintf("Page: %s\nSummary: %s", h.Title, summary))
	}
	if len(pages) == 0 {
		return "", NewToolError(KindNoResults, "no good Wikipedia search result was found for %q", query)
	}

	return truncateRunes(strings.Join(pages, "\n\n"), w.maxChars), nil
}

type wikiSearchHit struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type wikiResponse struct {
	Query struct {
		Search []wikiSearchHit `json:"search"`
		Pages  []wikiPage      `json:"pages"`
	} `json:"query"`
	Error *struct {
		Code string `json:"code"`
		Info string `json:"info"`
	} `json:"error"`
}

type wikiPage struct {
	Title   string `json:"title"`
	Extract string `json:"extract"`
	Missing bool   `json:"missing"`
}

func (w *Wikipedia) search(ctx context.Context, query string) ([]wikiSearchHit, error) {
	params := url.Values{
		"action":        {"query"},
		"list":          {"search"},
		"srsearch":      {query},
		"srlimit":       {fmt.Sprint(w.topK)},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	var resp wikiResponse
	if err := w.get(ctx, params, &resp); err != nil {
		return nil, err
	}
	return resp.Query.Search, nil
}

// extracts fetches plain-text lead sections keyed by page title.
func (w *Wikipedia) extracts(ctx context.Context, titles []string) (map[string]string, error) {
	params := url.Values{
		"action":        {"query"},
		"prop":          {"extracts"},
		"exintro":       {"1"},
		"explaintext":   {"1"},
		"redirects":     {"1"},
		"titles":        {strings.Join(titles, "|")},
		"format":        {"json"},
		"formatversion": {"2"},
	}
	var resp wikiResponse
	if err := w.get(ctx, params, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(resp.Query.Pages))
	for _, p := range resp.Query.Pages {
		if !p.Missing {
			out[p.Title] = p.Extract
		}
	}
	return out, nil
}

func (w *Wikipedia) get(ctx context.Context, params url.Values, out *wikiResponse) error {
	endpoint := w.apiBase + "?" + params.Encode()
	resp, err := netutil.DoWithRetry(ctx, w.client, w.retry, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgentString)
		return req, nil
	}, w.logger)
	if err != nil {
		return unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return NewToolError(KindUnavailable, "wikipedia returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, wikiMaxBodyBytes)).Decode(out); err != nil {
		return &ToolError{Kind: KindUnavailable, Message: "cannot decode wikipedia response", Err: err}
	}
	if out.Error != nil {
		return NewToolError(KindUnavailable, "wikipedia API error %s: %s", out.Error.Code, out.Error.Info)
	}
	return nil
}

func unavailable(err error) error {
	msg := "wikipedia request failed"
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		msg = "wikipedia request cancelled"
	}
	return &ToolError{Kind: KindUnavailable, Message: msg, Err: err}
}

// htmlToText flattens an HTML fragment (search snippets carry
// <span class="searchmatch"> markup) into plain text.
func htmlToText(fragment string) string {
	if fragment == "" {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(fragment))
	var sb strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " ")
		case html.TextToken:
			sb.Write(z.Text())
		}
	}
}

// truncateRunes cuts s to at most max runes without splitting a character.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
