package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cyber-digest/pkg/classifier"
	"cyber-digest/pkg/content"
	"cyber-digest/pkg/dedup"
	"cyber-digest/pkg/domain"
	"cyber-digest/pkg/httpclient"
	"cyber-digest/pkg/urls"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCategories = []domain.Category{
	{Name: "Breach", Keywords: []string{"breach", "data breach"}},
	{Name: "Vulnerability", Keywords: []string{"vulnerability", "exploit"}},
	{Name: "Compliance", Keywords: []string{"compliance", "regulation"}},
	{Name: "Startup", Keywords: []string{"startup", "funding"}},
	{Name: "AI", Keywords: []string{"AI", "artificial intelligence"}},
}

var testWindow = domain.DateWindow{
	Start: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 6, 3, 23, 59, 59, 0, time.UTC),
}

const indexPage = `<html><body>
<a href="/2024/06/retail-breach">Retail breach exposes cards</a>
<a href="/2024/05/old-exploit">Old exploit resurfaces</a>
<a href="/author/jane">Jane on breach response</a>
<a href="/2024/06/weekly">Weekly roundup</a>
<a href="/2024/06/retail-breach#comments">Retail breach exposes cards</a>
<a href="https://other.example.com/ai">AI elsewhere</a>
<a href="/2024/06/ai-phishing">AI phishing kits go mainstream</a>
<a href="/2024/06/untitled"></a>
</body></html>`

var articlePages = map[string]string{
	"/2024/06/retail-breach": `<article><time datetime="2024-06-03T08:00:00Z">June 3</time>
<p>Card data from thousands of shoppers was exposed after attackers breached the checkout.</p></article>`,
	"/2024/05/old-exploit": `<article><time datetime="2024-05-01T08:00:00Z">May 1</time>
<p>An exploit first seen years ago is circulating again on criminal forums this spring.</p></article>`,
	"/2024/06/ai-phishing": `<article><p>Phishing kits now bundle generative models that write convincing lures for anyone.</p></article>`,
	"/2024/06/weekly": `<article><time datetime="2024-06-03T09:00:00Z">June 3</time>
<p>This week a critical vulnerability in a popular VPN appliance topped the headlines.</p></article>`,
}

// newsSite serves pages by path, answers HEAD with 200 for known paths and
// remembers every path requested
type newsSite struct {
	*httptest.Server
	mu        sync.Mutex
	pages     map[string]string
	requested map[string]int
	delay     time.Duration
}

func newNewsSite(t *testing.T, index string, pages map[string]string) *newsSite {
	t.Helper()
	s := &newsSite{pages: map[string]string{"/": index}, requested: map[string]int{}}
	for path, body := range pages {
		s.pages[path] = body
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *newsSite) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requested[r.URL.Path]++
	body, ok := s.pages[r.URL.Path]
	s.mu.Unlock()

	if s.delay > 0 && r.Method == http.MethodGet && r.URL.Path == "/" {
		time.Sleep(s.delay)
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if r.Method == http.MethodHead {
		return
	}
	w.Write([]byte(body))
}

func (s *newsSite) hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requested[path]
}

func (s *newsSite) source(name string) domain.Source {
	return domain.Source{Name: name, BaseURL: s.URL + "/"}
}

// memoryStore is a RecordStore keyed by URL
type memoryStore struct {
	mu   sync.Mutex
	rows map[string]domain.Record
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: map[string]domain.Record{}}
}

func (m *memoryStore) Contains(ctx context.Context, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[url]
	return ok, nil
}

func (m *memoryStore) Record(ctx context.Context, rec domain.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[rec.URL]; ok {
		return false, nil
	}
	m.rows[rec.URL] = rec
	return true, nil
}

// racingStore never reports a URL as known but loses every insert, as if
// another run wrote each row first
type racingStore struct{}

func (racingStore) Contains(ctx context.Context, url string) (bool, error) { return false, nil }
func (racingStore) Record(ctx context.Context, rec domain.Record) (bool, error) {
	return false, nil
}

// failingStore rejects every write
type failingStore struct{}

func (failingStore) Contains(ctx context.Context, url string) (bool, error) { return false, nil }
func (failingStore) Record(ctx context.Context, rec domain.Record) (bool, error) {
	return false, errors.New("disk full")
}

func testClients(src domain.Source) SourceClient {
	return httpclient.NewClient(httpclient.BrowserClient, httpclient.Options{
		Timeout:        2 * time.Second,
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	})
}

func newTestPipeline(t *testing.T, cfg Config, store dedup.RecordStore) *Pipeline {
	t.Helper()
	c, err := classifier.New(testCategories, classifier.MatchWord)
	require.NoError(t, err)

	if cfg.Window.Start.IsZero() {
		cfg.Window = testWindow
	}
	cfg.RecordDate = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

	p, err := New(cfg, Deps{
		Clients:    testClients,
		Classifier: c,
		Dedup:      dedup.New(store, nil),
	})
	require.NoError(t, err)
	return p
}

func titles(articles []domain.Article) []string {
	out := make([]string, len(articles))
	for i, a := range articles {
		out[i] = a.Title
	}
	return out
}

func TestRun_AcceptsClassifiedArticlesInWindow(t *testing.T) {
	site := newNewsSite(t, indexPage, articlePages)
	store := newMemoryStore()
	p := newTestPipeline(t, Config{Sources: []domain.Source{site.source("Local News")}}, store)

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, []string{"Retail breach exposes cards", "AI phishing kits go mainstream"}, titles(result.Articles))

	breach := result.Articles[0]
	assert.Equal(t, site.URL+"/2024/06/retail-breach", breach.URL)
	assert.Equal(t, "Breach", breach.Category)
	assert.Equal(t, "Local News", breach.Source)
	assert.True(t, breach.PublishedAt.Equal(time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)))
	assert.Contains(t, breach.Summary, "Card data")

	phishing := result.Articles[1]
	assert.Equal(t, "AI", phishing.Category)
	assert.False(t, phishing.HasPublishedAt())

	assert.Equal(t, 8, result.Report.Candidates)
	assert.Equal(t, 2, result.Report.Accepted)
	assert.Equal(t, 2, result.Report.Recorded)
	assert.True(t, result.Report.Healthy())

	// unclassified titles are never followed, duplicates are followed once
	assert.Zero(t, site.hits("/2024/06/weekly"))
	assert.Zero(t, site.hits("/author/jane"))
	assert.Equal(t, 1, site.hits("/2024/06/retail-breach"))

	require.Len(t, store.rows, 2)
	assert.Equal(t, domain.Record{
		Date:     "2024-06-03",
		Category: "Breach",
		Title:    "Retail breach exposes cards",
		URL:      site.URL + "/2024/06/retail-breach",
	}, store.rows[site.URL+"/2024/06/retail-breach"])
}

func TestRun_PartialSourceFailure(t *testing.T) {
	unavailable := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unavailable.Close()

	missing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer missing.Close()

	brokenIndex := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer brokenIndex.Close()

	good := newNewsSite(t, indexPage, articlePages)

	sources := []domain.Source{
		{Name: "Unavailable", BaseURL: unavailable.URL + "/"},
		{Name: "Missing", BaseURL: missing.URL + "/"},
		{Name: "Broken Index", BaseURL: brokenIndex.URL + "/"},
		good.source("Good"),
	}
	p := newTestPipeline(t, Config{Sources: sources, Concurrency: 4}, newMemoryStore())

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, result.Report.Sources)
	require.Len(t, result.Report.Failed, 3)
	assert.False(t, result.Report.Healthy())

	want := []struct{ source, stage string }{
		{"Unavailable", StageProbe},
		{"Missing", StageProbe},
		{"Broken Index", StageIndex},
	}
	for i, w := range want {
		assert.Equal(t, w.source, result.Report.Failed[i].Source)
		assert.Equal(t, w.stage, result.Report.Failed[i].Stage)

		var f *httpclient.Failure
		require.True(t, errors.As(result.Report.Failed[i], &f))
		assert.Equal(t, httpclient.FailureStatus, f.Kind)
	}

	assert.Len(t, result.Articles, 2)
	for _, a := range result.Articles {
		assert.Equal(t, "Good", a.Source)
	}
}

func TestRun_SkipsArticlesRecordedEarlier(t *testing.T) {
	site := newNewsSite(t, indexPage, articlePages)
	store := newMemoryStore()
	store.rows[site.URL+"/2024/06/retail-breach"] = domain.Record{URL: site.URL + "/2024/06/retail-breach"}

	first := newTestPipeline(t, Config{Sources: []domain.Source{site.source("Local News")}}, store)
	result, err := first.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AI phishing kits go mainstream"}, titles(result.Articles))
	assert.Zero(t, site.hits("/2024/06/retail-breach"))

	// a later run with the same store finds nothing new
	second := newTestPipeline(t, Config{Sources: []domain.Source{site.source("Local News")}}, store)
	result, err = second.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Articles)
	assert.Equal(t, 1, site.hits("/2024/06/ai-phishing"))
}

func TestRun_DropsArticlesLostAtRecordTime(t *testing.T) {
	site := newNewsSite(t, indexPage, articlePages)
	p := newTestPipeline(t, Config{Sources: []domain.Source{site.source("Local News")}}, racingStore{})

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, result.Articles)
	assert.Equal(t, 2, result.Report.Accepted)
	assert.Equal(t, 2, result.Report.Duplicates)
	assert.Zero(t, result.Report.Recorded)
}

func TestRun_KeepsArticlesWhenStoreWriteFails(t *testing.T) {
	site := newNewsSite(t, indexPage, articlePages)
	p := newTestPipeline(t, Config{Sources: []domain.Source{site.source("Local News")}}, failingStore{})

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Articles, 2)
	assert.Zero(t, result.Report.Recorded)
	assert.Zero(t, result.Report.Duplicates)
}

func TestRun_SameURLAcrossSourcesIncludedOnce(t *testing.T) {
	site := newNewsSite(t, indexPage, articlePages)
	mirror := site.source("Mirror")

	p := newTestPipeline(t, Config{
		Sources:     []domain.Source{site.source("Local News"), mirror},
		Concurrency: 2,
	}, newMemoryStore())

	result, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Articles, 2)
	seen := map[string]bool{}
	for _, a := range result.Articles {
		assert.False(t, seen[a.URL], "duplicate %s", a.URL)
		seen[a.URL] = true
	}
}

func TestRun_SourceOrderIsStable(t *testing.T) {
	slow := newNewsSite(t, `<a href="/2024/06/retail-breach">Retail breach exposes cards</a>`, articlePages)
	slow.delay = 100 * time.Millisecond
	fast := newNewsSite(t, `<a href="/2024/06/ai-phishing">AI phishing kits go mainstream</a>`, articlePages)

	p := newTestPipeline(t, Config{
		Sources:     []domain.Source{slow.source("Slow"), fast.source("Fast")},
		Concurrency: 2,
	}, newMemoryStore())

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Retail breach exposes cards", "AI phishing kits go mainstream"}, titles(result.Articles))
}

func TestRun_MatchSummary(t *testing.T) {
	site := newNewsSite(t, `<a href="/2024/06/weekly">Weekly roundup</a>`, articlePages)
	p := newTestPipeline(t, Config{
		Sources:      []domain.Source{site.source("Local News")},
		MatchSummary: true,
	}, newMemoryStore())

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Articles, 1)
	assert.Equal(t, "Vulnerability", result.Articles[0].Category)
}

func TestRun_MatchSummaryIgnoresPlaceholder(t *testing.T) {
	// the placeholder text contains "ai" as a substring
	c, err := classifier.New(testCategories, classifier.MatchContains)
	require.NoError(t, err)

	site := newNewsSite(t, `<a href="/2024/06/gone">Weekly roundup</a>`, nil)
	p, err := New(Config{
		Sources:      []domain.Source{site.source("Local News")},
		MatchSummary: true,
		Window:       testWindow,
	}, Deps{Clients: testClients, Classifier: c, Dedup: dedup.New(newMemoryStore(), nil)})
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Articles)
}

func TestRun_EnrichmentFailureKeepsArticle(t *testing.T) {
	site := newNewsSite(t, `<a href="/2024/06/gone">Breach at a regional bank</a>`, nil)
	p := newTestPipeline(t, Config{Sources: []domain.Source{site.source("Local News")}}, newMemoryStore())

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Articles, 1)
	assert.Equal(t, content.NotAvailable, result.Articles[0].Summary)
	assert.False(t, result.Articles[0].HasPublishedAt())
}

func TestRun_FeedLinksMerged(t *testing.T) {
	site := newNewsSite(t, `<a href="/2024/06/retail-breach">Retail breach exposes cards</a>`, articlePages)
	site.mu.Lock()
	site.pages["/feed"] = `<?xml version="1.0"?><rss version="2.0"><channel><title>x</title>
<item><title>AI phishing kits go mainstream</title><link>` + site.URL + `/2024/06/ai-phishing</link></item>
<item><title>Retail breach exposes cards</title><link>` + site.URL + `/2024/06/retail-breach</link></item>
</channel></rss>`
	site.mu.Unlock()

	src := site.source("Local News")
	src.FeedURL = site.URL + "/feed"
	p := newTestPipeline(t, Config{Sources: []domain.Source{src}}, newMemoryStore())

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Retail breach exposes cards", "AI phishing kits go mainstream"}, titles(result.Articles))
	assert.Equal(t, 3, result.Report.Candidates)
}

func TestRun_MissingFeedFallsBackToPage(t *testing.T) {
	site := newNewsSite(t, `<a href="/2024/06/retail-breach">Retail breach exposes cards</a>`, articlePages)
	src := site.source("Local News")
	src.FeedURL = site.URL + "/no-feed"

	p := newTestPipeline(t, Config{Sources: []domain.Source{src}}, newMemoryStore())
	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Articles, 1)
	assert.True(t, result.Report.Healthy())
}

func TestRun_RecoversSourcePanic(t *testing.T) {
	site := newNewsSite(t, indexPage, articlePages)
	c, err := classifier.New(testCategories, classifier.MatchWord)
	require.NoError(t, err)

	p, err := New(Config{
		Sources: []domain.Source{{Name: "Boom", BaseURL: "https://boom.example.com/"}, site.source("Local News")},
		Window:  testWindow,
	}, Deps{
		Clients: func(src domain.Source) SourceClient {
			if src.Name == "Boom" {
				panic("bad profile")
			}
			return testClients(src)
		},
		Classifier: c,
		Dedup:      dedup.New(newMemoryStore(), nil),
	})
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Report.Failed, 1)
	assert.Equal(t, StagePanic, result.Report.Failed[0].Stage)
	assert.Len(t, result.Articles, 2)
}

type panickingProcessor struct{}

func (panickingProcessor) Process(ctx context.Context, url string) (Enrichment, error) {
	panic("extractor bug")
}

func TestRun_RecoversEnrichmentPanic(t *testing.T) {
	site := newNewsSite(t, indexPage, articlePages)
	c, err := classifier.New(testCategories, classifier.MatchWord)
	require.NoError(t, err)

	p, err := New(Config{Sources: []domain.Source{site.source("Local News")}, Window: testWindow}, Deps{
		Clients:    testClients,
		Classifier: c,
		Dedup:      dedup.New(newMemoryStore(), nil),
		Processor:  func(urls.Getter) ArticleProcessor { return panickingProcessor{} },
	})
	require.NoError(t, err)

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Articles)
	assert.True(t, result.Report.Healthy())
}

func TestRun_Cancelled(t *testing.T) {
	site := newNewsSite(t, indexPage, articlePages)
	p := newTestPipeline(t, Config{Sources: []domain.Source{site.source("Local News")}}, newMemoryStore())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)

	c, err := classifier.New(testCategories, classifier.MatchWord)
	require.NoError(t, err)
	p, err := New(Config{}, Deps{Clients: testClients, Classifier: c, Dedup: dedup.New(nil, nil)})
	require.NoError(t, err)
	assert.Equal(t, DefaultConcurrency, p.cfg.Concurrency)
	assert.Equal(t, DefaultArticleWorkers, p.cfg.ArticleWorkers)
}

func TestPacedClient_SpacesRequests(t *testing.T) {
	site := newNewsSite(t, "<p>index</p>", nil)
	client := newPacedClient(testClients(domain.Source{}), 30*time.Millisecond)

	start := time.Now()
	for range 3 {
		_, err := client.Fetch(context.Background(), site.URL+"/")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRun_ClockTimeIsNotAPublicationDate(t *testing.T) {
	site := newNewsSite(t, `<a href="/2024/06/zero-day">Zero-day exploit hits VPN gateways</a>`, map[string]string{
		"/2024/06/zero-day": `<article><span class="time">12:30</span>
<p>A zero-day exploit in a popular VPN gateway is being used against hospitals.</p></article>`,
	})
	p := newTestPipeline(t, Config{Sources: []domain.Source{site.source("Local News")}}, newMemoryStore())

	result, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Articles, 1)
	assert.Equal(t, "Vulnerability", result.Articles[0].Category)
	assert.False(t, result.Articles[0].HasPublishedAt())
}
