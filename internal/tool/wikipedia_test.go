package tool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mathsgpt/internal/netutil"
)

// fakeWiki serves the two MediaWiki queries the tool issues.
func fakeWiki(t *testing.T, hits []wikiSearchHit, pages []wikiPage) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var resp wikiResponse
		switch {
		case q.Get("list") == "search":
			resp.Query.Search = hits
		case q.Get("prop") == "extracts":
			resp.Query.Pages = pages
		default:
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestWikipedia(apiBase string, maxChars int) *Wikipedia {
	return NewWikipedia(WikipediaConfig{
		APIBase:  apiBase,
		MaxChars: maxChars,
		Client:   &http.Client{Timeout: 5 * time.Second},
		Retry:    netutil.NoRetry,
		Logger:   testLogger(),
	})
}

func TestWikipedia_ReturnsPageSummaries(t *testing.T) {
	srv := fakeWiki(t,
		[]wikiSearchHit{{Title: "Pythagorean theorem"}, {Title: "Pythagoras"}},
		[]wikiPage{
			{Title: "Pythagoras", Extract: "Pythagoras of Samos was an Ionian Greek philosopher."},
			{Title: "Pythagorean theorem", Extract: "In mathematics, the Pythagorean theorem is a fundamental relation."},
		},
	)
	defer srv.Close()

	got, err := newTestWikipedia(srv.URL, 0).Invoke(context.Background(), "pythagoras")
	require.NoError(t, err)
	assert.Equal(t,
		"Page: Pythagorean theorem\nSummary: In mathematics, the Pythagorean theorem is a fundamental relation.\n\n"+
			"Page: Pythagoras\nSummary: Pythagoras of Samos was an Ionian Greek philosopher.",
		got)
}

func TestWikipedia_FallsBackToSnippet(t *testing.T) {
	srv := fakeWiki(t,
		[]wikiSearchHit{{Title: "Euler", Snippet: `<span class="searchmatch">Euler</span> was a Swiss &amp; prolific mathematician`}},
		nil,
	)
	defer srv.Close()

	got, err := newTestWikipedia(srv.URL, 0).Invoke(context.Background(), "euler")
	require.NoError(t, err)
	assert.Equal(t, "Page: Euler\nSummary: Euler was a Swiss & prolific mathematician", got)
}

func TestWikipedia_TruncatesOnRuneBoundary(t *testing.T) {
	srv := fakeWiki(t,
		[]wikiSearchHit{{Title: "Ω"}},
		[]wikiPage{{Title: "Ω", Extract: strings.Repeat("é", 100)}},
	)
	defer srv.Close()

	got, err := newTestWikipedia(srv.URL, 20).Invoke(context.Background(), "omega")
	require.NoError(t, err)
	assert.Equal(t, 20, len([]rune(got)))
	assert.True(t, strings.HasPrefix(got, "Page: Ω\nSummary: é"))
}

func TestWikipedia_NoResults(t *testing.T) {
	srv := fakeWiki(t, nil, nil)
	defer srv.Close()

	_, err := newTestWikipedia(srv.URL, 0).Invoke(context.Background(), "qwzxv")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNoResults), "got %v", err)
}

func TestWikipedia_EmptyQuery(t *testing.T) {
	_, err := newTestWikipedia("http://127.0.0.1:0", 0).Invoke(context.Background(), "  ")
	assert.True(t, IsKind(err, KindNoResults), "got %v", err)
}

func TestWikipedia_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestWikipedia(srv.URL, 0).Invoke(context.Background(), "anything")
	assert.True(t, IsKind(err, KindUnavailable), "got %v", err)
}

func TestWikipedia_NotFoundStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := newTestWikipedia(srv.URL, 0).Invoke(context.Background(), "anything")
	assert.True(t, IsKind(err, KindUnavailable), "got %v", err)
}

func TestWikipedia_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	_, err := newTestWikipedia(srv.URL, 0).Invoke(context.Background(), "anything")
	assert.True(t, IsKind(err, KindUnavailable), "got %v", err)
}

func TestWikipedia_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":{"code":"badvalue","info":"Unrecognized value"}}`))
	}))
	defer srv.Close()

	_, err := newTestWikipedia(srv.URL, 0).Invoke(context.Background(), "anything")
	require.True(t, IsKind(err, KindUnavailable), "got %v", err)
	assert.Contains(t, err.Error(), "badvalue")
}

func TestWikipedia_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestWikipedia(url, 0).Invoke(context.Background(), "anything")
	assert.True(t, IsKind(err, KindUnavailable), "got %v", err)
}

func TestHTMLToText(t *testing.T) {
	assert.Equal(t, "", htmlToText(""))
	assert.Equal(t, "a < b", htmlToText("a &lt; <b>b</b>"))
	assert.Equal(t, "one two", htmlToText("one\n\n  <i>two</i>"))
}

func TestWikipedia_RetriesWithoutLogger(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	wiki := NewWikipedia(WikipediaConfig{
		APIBase: srv.URL,
		Client:  srv.Client(),
		Retry:   netutil.RetryPolicy{MaxRetries: 1, BaseBackoff: time.Millisecond},
	})
	_, err := wiki.Invoke(context.Background(), "anything")
	assert.True(t, IsKind(err, KindUnavailable), "got %v", err)
	assert.Equal(t, 2, calls)
}
