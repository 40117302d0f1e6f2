package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easelhq/easel/internal/session"
)

const articlePage = `<!DOCTYPE html>
<html>
<head>
<title>Understanding Streams</title>
<meta name="description" content="A primer on event streams.">
</head>
<body>
<article>
<h1>Understanding Streams</h1>
<p>Event streams deliver incremental updates to clients as they happen,
instead of making the client poll for the complete result. Each event
carries a name and a payload, and the client reacts to events one at a
time as they arrive over the wire.</p>
<p>Server-sent events are the simplest form of this pattern on the web.
The server keeps the response open and writes framed events into it,
while the browser surfaces them through a small, well-understood API
that reconnects on its own when the connection drops.</p>
<p>The main cost is per-connection state on the server. Every open
stream holds a file descriptor and a goroutine or thread, so servers
cap conversation length with timeouts and shed idle connections.</p>
</article>
</body>
</html>`

const tinyPage = `<html>
<head><title>Tiny</title><meta name="description" content="Small page."></head>
<body><p>hi</p></body>
</html>`

// pageServer serves fixture pages and counts hits per path.
type pageServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newPageServer(t *testing.T) *pageServer {
	t.Helper()
	ps := &pageServer{hits: make(map[string]int)}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ps.mu.Lock()
		ps.hits[r.URL.Path]++
		ps.mu.Unlock()

		switch r.URL.Path {
		case "/article":
			w.Write([]byte(articlePage))
		case "/tiny":
			w.Write([]byte(tinyPage))
		case "/broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ps.Close)
	return ps
}

func (ps *pageServer) hitCount(path string) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.hits[path]
}

func testEnricher(enabled bool) *Enricher {
	return New(Config{
		Enabled:     enabled,
		Parallelism: 2,
		Delay:       time.Millisecond,
	})
}

func TestEnrich_FillsTitleAndSnippet(t *testing.T) {
	t.Parallel()
	ps := newPageServer(t)
	e := testEnricher(true)

	results := []session.SearchResult{
		{URL: ps.URL + "/article"},
		{URL: ps.URL + "/tiny"},
	}
	e.Enrich(context.Background(), results)

	assert.Equal(t, "Understanding Streams", results[0].Title)
	assert.Equal(t, "A primer on event streams.", results[0].Snippet)
	assert.Equal(t, ps.URL+"/article", results[0].URL)

	assert.Equal(t, "Tiny", results[1].Title)
	assert.Equal(t, "Small page.", results[1].Snippet)
}

func TestEnrich_FetchFailureLeavesEntryAlone(t *testing.T) {
	t.Parallel()
	ps := newPageServer(t)
	e := testEnricher(true)

	results := []session.SearchResult{
		{URL: ps.URL + "/broken"},
		{URL: ps.URL + "/tiny"},
	}
	e.Enrich(context.Background(), results)

	assert.Empty(t, results[0].Title)
	assert.Empty(t, results[0].Snippet)
	assert.Equal(t, ps.URL+"/broken", results[0].URL)

	// A bad neighbor does not block the rest of the batch.
	assert.Equal(t, "Tiny", results[1].Title)
}

func TestEnrich_SkipsEntriesWithTitles(t *testing.T) {
	t.Parallel()
	ps := newPageServer(t)
	e := testEnricher(true)

	results := []session.SearchResult{
		{URL: ps.URL + "/article", Title: "Already titled", Snippet: "kept"},
	}
	e.Enrich(context.Background(), results)

	assert.Equal(t, "Already titled", results[0].Title)
	assert.Equal(t, "kept", results[0].Snippet)
	assert.Equal(t, 0, ps.hitCount("/article"), "titled entries must not be fetched")
}

func TestEnrich_Disabled(t *testing.T) {
	t.Parallel()
	ps := newPageServer(t)
	e := testEnricher(false)

	results := []session.SearchResult{{URL: ps.URL + "/tiny"}}
	e.Enrich(context.Background(), results)

	assert.Empty(t, results[0].Title)
	assert.Equal(t, 0, ps.hitCount("/tiny"))
}

func TestEnrich_CanceledContextSkipsFetches(t *testing.T) {
	t.Parallel()
	ps := newPageServer(t)
	e := testEnricher(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := []session.SearchResult{{URL: ps.URL + "/tiny"}}
	e.Enrich(ctx, results)

	assert.Empty(t, results[0].Title)
	assert.Equal(t, 0, ps.hitCount("/tiny"))
}

func TestLookup_ReturnsOneResultPerURL(t *testing.T) {
	t.Parallel()
	ps := newPageServer(t)
	e := testEnricher(true)

	urls := []string{ps.URL + "/tiny", ps.URL + "/missing"}
	results := e.Lookup(context.Background(), urls)

	require.Len(t, results, 2)
	assert.Equal(t, urls[0], results[0].URL)
	assert.Equal(t, "Tiny", results[0].Title)
	assert.Equal(t, urls[1], results[1].URL)
	assert.Empty(t, results[1].Title)
}

func TestClip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"short", "a few words", "a few words"},
		{"collapses whitespace", "a\n\t b   c", "a b c"},
		{
			name: "long text is cut with ellipsis",
			in:   strings.Repeat("word ", 100),
			want: strings.TrimSpace(strings.Repeat("word ", 48)) + "…",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, clip(tt.in))
		})
	}
}
