package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calbrowse/internal/browse"
	"calbrowse/internal/config"
	"calbrowse/internal/fetch"
	appLog "calbrowse/internal/log"
	"calbrowse/internal/popular"
)

func TestMain(m *testing.M) {
	appLog.SetOutput(io.Discard)
	os.Exit(m.Run())
}

var dataFiles = map[string]string{
	"/conferences.json": `[
		{"id":"vision-sciences-society-vss-2026","title":"VSS 2026","dates":"May 15-20, 2026","frequency":"Annual","location":"St. Pete Beach","venue":"TradeWinds"},
		{"id":"some-workshop-2026","title":"Color Workshop","dates":"2026-03-01"}
	]`,
	"/jobs.json":    `[{"title":"Postdoc in Vision","institution":"Uni Berlin","deadline":"TBD"}]`,
	"/funding.json": `<!DOCTYPE html><html><body>not found</body></html>`,
}

type testEnv struct {
	srv    *Server
	api    *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	data := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := dataFiles[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(data.Close)

	cfg := config.DefaultConfig()
	cfg.DataBase = data.URL
	cfg.Categories = []config.CategoryConfig{
		{Tag: "conferences", Label: "Conferences", File: "conferences.json"},
		{Tag: "jobs", Label: "Jobs", File: "jobs.json"},
		{Tag: "funding", Label: "Funding", File: "funding.json"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	gw, err := fetch.NewGateway(cfg.DataBase, 2*time.Second)
	require.NoError(t, err)
	entries, err := popular.Compile(cfg.Popular)
	require.NoError(t, err)

	srv := NewServer(cfg, gw, popular.NewMatcher(entries))
	api := httptest.NewServer(srv.Handler())
	t.Cleanup(api.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testEnv{srv: srv, api: api, client: &http.Client{Jar: jar, Timeout: 5 * time.Second}}
}

func (e *testEnv) do(t *testing.T, method, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.api.URL+path, nil)
	require.NoError(t, err)
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) state(t *testing.T, method, path string) stateResponse {
	t.Helper()
	resp := e.do(t, method, path)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st stateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	return st
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	resp := env.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "OK", string(body))
}

func TestInitialState(t *testing.T) {
	env := newTestEnv(t, nil)
	st := env.state(t, http.MethodGet, "/api/state")
	assert.Equal(t, browse.StatusNoSelection, st.Status)
	assert.Equal(t, 0, st.Count)
	assert.NotNil(t, st.Records)
}

func TestSelectAndSubMode(t *testing.T) {
	env := newTestEnv(t, nil)

	st := env.state(t, http.MethodPost, "/api/select?tag=conferences&wait=1")
	require.Equal(t, browse.StatusReady, st.Status)
	require.Equal(t, 2, st.Count)
	assert.Equal(t, "VSS 2026", st.Records[0].Title)
	assert.Equal(t, "vision-sciences-society-vss-2026", st.Records[0].ID)
	require.Len(t, st.Records[0].Extra, 2)
	assert.Equal(t, "id", st.Records[0].Extra[0].Key)
	assert.Equal(t, "Venue", st.Records[0].Extra[1].Label)

	st = env.state(t, http.MethodPost, "/api/submode?mode=popular")
	assert.Equal(t, "popular", string(st.SubMode))
	require.Equal(t, 1, st.Count)
	assert.Equal(t, "VSS 2026", st.Records[0].Title)
	assert.Contains(t, st.StatusMessage, "(Popular Conferences)")

	// The session cookie carries state across requests.
	st = env.state(t, http.MethodGet, "/api/state")
	assert.Equal(t, "conferences", st.ActiveTag)
	assert.Equal(t, 1, st.Count)
}

func TestSortByDate(t *testing.T) {
	env := newTestEnv(t, nil)
	env.state(t, http.MethodPost, "/api/select?tag=conferences&wait=1")

	st := env.state(t, http.MethodGet, "/api/state?sort=date")
	require.Equal(t, 2, st.Count)
	assert.Equal(t, "Color Workshop", st.Records[0].Title)

	st = env.state(t, http.MethodGet, "/api/state")
	assert.Equal(t, "VSS 2026", st.Records[0].Title)
}

func TestFailedCategory(t *testing.T) {
	env := newTestEnv(t, nil)

	st := env.state(t, http.MethodPost, "/api/select?tag=funding&wait=1")
	assert.Equal(t, browse.StatusFailed, st.Status)
	assert.Empty(t, st.Records)
	require.NotNil(t, st.Error)
	assert.Equal(t, fetch.KindUnexpectedContentType, st.Error.Kind)
	assert.Equal(t, "funding", st.Error.Category)
	assert.Len(t, st.Error.Hints, 3)
}

func TestSearchAcrossCategories(t *testing.T) {
	env := newTestEnv(t, nil)

	st := env.state(t, http.MethodPost, "/api/search?q=berlin&wait=1")
	assert.Equal(t, browse.StatusReady, st.Status)
	require.Equal(t, 1, st.Count)
	assert.Equal(t, "Postdoc in Vision", st.Records[0].Title)
	assert.Equal(t, "jobs", st.Records[0].Category)

	resp := env.do(t, http.MethodGet, "/api/categories")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cats struct {
		Categories []categoryDTO `json:"categories"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cats))
	require.Len(t, cats.Categories, 3)
	assert.Equal(t, "loaded", cats.Categories[0].State)
	assert.Equal(t, "loaded", cats.Categories[1].State)
	assert.Equal(t, "failed", cats.Categories[2].State)
}

func TestBadRequests(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/select?tag=nope").StatusCode)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/submode?mode=weird").StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, env.do(t, http.MethodGet, "/api/select?tag=jobs").StatusCode)
}

func TestPopularLinks(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/popular-links")
	var before struct {
		Links []popular.QuickLink `json:"links"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&before))
	assert.Empty(t, before.Links)

	env.state(t, http.MethodPost, "/api/select?tag=conferences&wait=1")
	resp = env.do(t, http.MethodGet, "/api/popular-links")
	var after struct {
		Links []popular.QuickLink `json:"links"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&after))
	require.Len(t, after.Links, 1)
	assert.Equal(t, "VSS", after.Links[0].Label)
	assert.Equal(t, "vision-sciences-society-vss-2026", after.Links[0].Anchor)
}

func TestExportICS(t *testing.T) {
	env := newTestEnv(t, nil)
	env.state(t, http.MethodPost, "/api/select?tag=conferences&wait=1")

	resp := env.do(t, http.MethodGet, "/api/export.ics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/calendar"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(body), "BEGIN:VEVENT"))
	assert.Contains(t, string(body), "FREQ=YEARLY")
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.BasicAuth = &config.BasicAuthConfig{Username: "op", Password: "secret"}
	})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health").StatusCode)

	resp := env.do(t, http.MethodGet, "/api/state")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	req, err := http.NewRequest(http.MethodGet, env.api.URL+"/api/state", nil)
	require.NoError(t, err)
	req.SetBasicAuth("op", "secret")
	resp, err = env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSweepIdle(t *testing.T) {
	env := newTestEnv(t, nil)
	now := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	env.srv.now = func() time.Time { return now }

	env.state(t, http.MethodPost, "/api/select?tag=jobs&wait=1")
	require.Equal(t, 1, env.srv.SessionCount())

	now = now.Add(30 * time.Minute)
	assert.Equal(t, 0, env.srv.SweepIdle(time.Hour))

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, env.srv.SweepIdle(time.Hour))
	assert.Equal(t, 0, env.srv.SessionCount())

	// The stale cookie starts a fresh session with an empty cache.
	st := env.state(t, http.MethodGet, "/api/state")
	assert.Equal(t, browse.StatusNoSelection, st.Status)
	assert.Equal(t, 1, env.srv.SessionCount())
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, secureCompare("abc", "abc"))
	assert.False(t, secureCompare("abc", "abd"))
	assert.False(t, secureCompare("abc", "ab"))
}
