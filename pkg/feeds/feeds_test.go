package feeds

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cyber-digest/pkg/digest"
	"cyber-digest/pkg/domain"
	"cyber-digest/pkg/httpclient"
	"cyber-digest/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var window = domain.DateWindow{
	Start: time.Date(2024, 6, 2, 7, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 6, 3, 7, 0, 0, 0, time.UTC),
}

func testClient() *httpclient.HTTPClient {
	return httpclient.NewClient(httpclient.APIClient, httpclient.Options{
		Timeout:        2 * time.Second,
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})
}

func TestNVD_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("apiKey"))
		assert.Equal(t, "2024-06-02T07:00:00.000", r.URL.Query().Get("pubStartDate"))
		assert.Equal(t, "10", r.URL.Query().Get("resultsPerPage"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"vulnerabilities":[
			{"cve":{"id":"CVE-2024-1111","descriptions":[{"lang":"es","value":"desbordamiento"},{"lang":"en","value":"Heap overflow in parser"}]}},
			{"cve":{"id":""}}
		]}`)
	}))
	defer server.Close()

	entries, err := NewNVD(testClient(), "secret").WithEndpoint(server.URL).Fetch(context.Background(), window)
	require.NoError(t, err)
	assert.Equal(t, []digest.Entry{{
		Title:   "CVE-2024-1111",
		URL:     "https://nvd.nist.gov/vuln/detail/CVE-2024-1111",
		Summary: "Heap overflow in parser",
	}}, entries)
}

func TestNewsAPI_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "cybersecurity", r.URL.Query().Get("q"))
		fmt.Fprint(w, `{"status":"ok","articles":[
			{"title":"Ransomware hits city","url":"https://news.example/1","description":"Services down.","source":{"name":"Example"}},
			{"title":"[Removed]","url":"https://removed.example"}
		]}`)
	}))
	defer server.Close()

	entries, err := NewNewsAPI(testClient(), "key", "").WithEndpoint(server.URL).Fetch(context.Background(), window)
	require.NoError(t, err)
	assert.Equal(t, []digest.Entry{{
		Title:   "Ransomware hits city (Example)",
		URL:     "https://news.example/1",
		Summary: "Services down.",
	}}, entries)
}

func TestNewsAPI_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"error","code":"rateLimited","message":"too many requests"}`)
	}))
	defer server.Close()

	_, err := NewNewsAPI(testClient(), "key", "").WithEndpoint(server.URL).Fetch(context.Background(), window)
	assert.ErrorContains(t, err, "rateLimited")
}

func TestMissingKey(t *testing.T) {
	_, err := NewNVD(testClient(), "").Fetch(context.Background(), window)
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewNewsAPI(testClient(), "", "").Fetch(context.Background(), window)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

type stubProvider struct {
	name    string
	entries []digest.Entry
	err     error
}

func (s stubProvider) Name() string { return s.name }

func (s stubProvider) Fetch(ctx context.Context, window domain.DateWindow) ([]digest.Entry, error) {
	return s.entries, s.err
}

func TestCollect(t *testing.T) {
	many := make([]digest.Entry, 15)
	for i := range many {
		many[i] = digest.Entry{Title: fmt.Sprintf("CVE-%d", i)}
	}

	got := Collect(context.Background(), []Provider{
		stubProvider{name: "Vulnerability Database", entries: many},
		stubProvider{name: "Top News", err: errors.New("boom")},
	}, window, logger.NewNop())

	require.Len(t, got, 2)
	assert.Equal(t, "Vulnerability Database", got[0].Name)
	assert.Len(t, got[0].Entries, MaxEntries)
	assert.False(t, got[0].Failed)
	assert.True(t, got[1].Failed)
	assert.Equal(t, "Failed to fetch Top News.", got[1].Placeholder())
}
