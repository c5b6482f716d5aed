package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/stockclass/internal/classapi"
	"github.com/dgallion1/stockclass/internal/config"
	"github.com/dgallion1/stockclass/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const dropdownPayload = `{
  "macro_economic_sectors": [{"mes_code":"M1","macro_economic_sector":"Tech"},{"mes_code":"M2","macro_economic_sector":"Energy"}],
  "sectors": [{"sect_code":"S1","sector_name":"Software","mes_code":"M1"},{"sect_code":"S2","sector_name":"Oil","mes_code":"M2"}],
  "industries": [{"ind_code":"I1","industry_name":"Apps","sect_code":"S1"},{"ind_code":"I2","industry_name":"Refining","sect_code":"S2"}],
  "basic_industries": [
    {"basic_ind_code":"B1","basic_industry_name":"Games","ind_code":"I1"},
    {"basic_ind_code":"B2","basic_industry_name":"Tools","ind_code":"I1"},
    {"basic_ind_code":"B3","basic_industry_name":"Refineries","ind_code":"I2"}
  ]
}`

// fakeAPI serves the classification endpoints from memory.
type fakeAPI struct {
	mu           sync.Mutex
	failDropdown bool
	stocks       map[string][]map[string]any
	puts         int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{stocks: map[string][]map[string]any{
		"B1": {
			{"company_id": 1, "company_name": "Acme Games", "market_cap_category": "LARGECAP", "basic_ind_code": "B1", "basic_industry_name": "Games"},
			{"company_id": 2, "company_name": "Pixel Works", "market_cap_category": "MIDCAP", "basic_ind_code": "B1", "basic_industry_name": "Games"},
		},
	}}
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/classification/dropdown-data", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		fail := f.failDropdown
		f.mu.Unlock()
		if fail {
			http.Error(w, `{"detail":"database offline"}`, http.StatusInternalServerError)
			return
		}
		io.WriteString(w, dropdownPayload)
	})
	mux.HandleFunc("GET /api/classification/basic-industries", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[{"basic_ind_code":"B1","basic_industry_name":"Games"},{"basic_ind_code":"B2","basic_industry_name":"Tools"},{"basic_ind_code":"B3","basic_industry_name":"Refineries"}]`)
	})
	mux.HandleFunc("GET /api/classification/stocks", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		rows := f.stocks[r.URL.Query().Get("basic_ind_code")]
		if rows == nil {
			rows = []map[string]any{}
		}
		json.NewEncoder(w).Encode(map[string]any{"data": rows, "count": len(rows) + 10})
	})
	mux.HandleFunc("PUT /api/classification/stocks/{id}", func(w http.ResponseWriter, r *http.Request) {
		var req classapi.UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"detail":"bad body"}`, http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		f.puts++
		for code, rows := range f.stocks {
			for i, row := range rows {
				if r.PathValue("id") != jsonString(row["company_id"]) {
					continue
				}
				row["company_name"] = req.CompanyName
				row["market_cap_category"] = req.MarketCapCategory
				row["basic_ind_code"] = req.BasicIndCode
				delete(row, "basic_industry_name")
				f.stocks[code] = append(rows[:i:i], rows[i+1:]...)
				f.stocks[req.BasicIndCode] = append(f.stocks[req.BasicIndCode], row)
				json.NewEncoder(w).Encode(map[string]any{"data": row})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"detail":"Company not found"}`)
	})
	return mux
}

func (f *fakeAPI) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func jsonString(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

type testEnv struct {
	api    *fakeAPI
	server *Server
	url    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := newFakeAPI()
	upstream := httptest.NewServer(fake.handler())
	t.Cleanup(upstream.Close)

	cfg := config.Config{
		APIBaseURL:    upstream.URL + "/api",
		HTTPTimeout:   5 * time.Second,
		SessionSecret: strings.Repeat("k", 32),
		SessionTTL:    time.Hour,
	}
	client := classapi.NewClient(cfg.APIBaseURL, cfg.HTTPTimeout)
	t.Cleanup(client.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewServer(client, log, cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return &testEnv{api: fake, server: s, url: srv.URL}
}

// browser returns a client that keeps cookies and follows redirects.
func (e *testEnv) browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar, Timeout: 10 * time.Second}
}

func getPage(t *testing.T, c *http.Client, u string) *html.Node {
	t.Helper()
	resp, err := c.Get(u)
	require.NoError(t, err)
	return parsePage(t, resp)
}

func postPage(t *testing.T, c *http.Client, u string, form url.Values) *html.Node {
	t.Helper()
	resp, err := c.PostForm(u, form)
	require.NoError(t, err)
	return parsePage(t, resp)
}

func parsePage(t *testing.T, resp *http.Response) *html.Node {
	t.Helper()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "/", resp.Request.URL.Path)
	doc, err := html.Parse(resp.Body)
	require.NoError(t, err)
	return doc
}

func byID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		if v, ok := attr(n, "id"); ok && v == id {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := byID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

// elements returns every descendant element named tag, in document order.
func elements(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

// options returns the non-placeholder option labels of the select with id.
func options(t *testing.T, doc *html.Node, id string) []string {
	t.Helper()
	sel := byID(doc, id)
	require.NotNil(t, sel, "select #%s not found", id)
	out := []string{}
	for _, o := range elements(sel, "option") {
		if v, _ := attr(o, "value"); v != "" {
			out = append(out, textOf(o))
		}
	}
	return out
}

func disabled(t *testing.T, doc *html.Node, id string) bool {
	t.Helper()
	n := byID(doc, id)
	require.NotNil(t, n, "#%s not found", id)
	_, ok := attr(n, "disabled")
	return ok
}

func drillDown(t *testing.T, e *testEnv, c *http.Client) *html.Node {
	t.Helper()
	getPage(t, c, e.url+"/")
	postPage(t, c, e.url+"/select/macro", url.Values{"value": {"Tech"}})
	postPage(t, c, e.url+"/select/sector", url.Values{"value": {"Software"}})
	postPage(t, c, e.url+"/select/industry", url.Values{"value": {"Apps"}})
	postPage(t, c, e.url+"/select/basic", url.Values{"value": {"B1"}})
	return postPage(t, c, e.url+"/search", nil)
}

func TestServer_Health(t *testing.T) {
	e := newTestEnv(t)
	resp, err := http.Get(e.url + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestServer_FirstViewLoadsClassifications(t *testing.T) {
	e := newTestEnv(t)
	doc := getPage(t, e.browser(t), e.url+"/")

	assert.Equal(t, []string{"Energy", "Tech"}, options(t, doc, "macro"))
	assert.False(t, disabled(t, doc, "macro"))
	assert.True(t, disabled(t, doc, "sector"))
	assert.True(t, disabled(t, doc, "industry"))
	assert.True(t, disabled(t, doc, "basic"))
	assert.True(t, disabled(t, doc, "search"))
	assert.Nil(t, byID(doc, "load-error"))

	intro := byID(doc, "intro")
	require.NotNil(t, intro)
	assert.Len(t, elements(intro, "h1"), 1)
	assert.Len(t, elements(intro, "strong"), 2)
}

func TestServer_LoadFailureDisablesFilters(t *testing.T) {
	e := newTestEnv(t)
	e.api.failDropdown = true
	c := e.browser(t)

	doc := getPage(t, c, e.url+"/")
	errNode := byID(doc, "load-error")
	require.NotNil(t, errNode)
	assert.Equal(t, workflow.MsgLoadFailed, textOf(errNode))
	assert.True(t, disabled(t, doc, "macro"))

	e.api.mu.Lock()
	e.api.failDropdown = false
	e.api.mu.Unlock()

	// no automatic retry on the next view
	doc = getPage(t, c, e.url+"/")
	assert.NotNil(t, byID(doc, "load-error"))

	doc = postPage(t, c, e.url+"/load", nil)
	assert.Nil(t, byID(doc, "load-error"))
	assert.Equal(t, []string{"Energy", "Tech"}, options(t, doc, "macro"))
}

func TestServer_CascadeAndSearch(t *testing.T) {
	e := newTestEnv(t)
	c := e.browser(t)

	getPage(t, c, e.url+"/")
	doc := postPage(t, c, e.url+"/select/macro", url.Values{"value": {"Tech"}})
	assert.Equal(t, []string{"Software"}, options(t, doc, "sector"))
	assert.False(t, disabled(t, doc, "sector"))

	doc = drillDown(t, e, c)
	assert.Equal(t, []string{"Games", "Tools"}, options(t, doc, "basic"))
	assert.Equal(t, "12 stocks in Games", textOf(byID(doc, "count")))
	assert.Len(t, elements(byID(doc, "results"), "tr"), 3) // header + 2 rows

	sel := byID(doc, "selection")
	require.NotNil(t, sel)
	assert.JSONEq(t, `{"macro_economic_sector":"Tech","sector_name":"Software","industry_name":"Apps","basic_industry_name":"Games"}`, textOf(sel))

	// changing the macro drops the results and downstream options
	doc = postPage(t, c, e.url+"/select/macro", url.Values{"value": {"Energy"}})
	assert.Nil(t, byID(doc, "results"))
	assert.Empty(t, options(t, doc, "industry"))
	assert.True(t, disabled(t, doc, "basic"))
}

func TestServer_SelectErrors(t *testing.T) {
	e := newTestEnv(t)
	c := e.browser(t)
	getPage(t, c, e.url+"/")

	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := c.PostForm(e.url+"/select/planet", url.Values{"value": {"Mars"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = c.PostForm(e.url+"/select/industry", url.Values{"value": {"Apps"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = c.PostForm(e.url+"/select/macro", url.Values{"value": {"Tech"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// B3 exists, but under Energy.
	for _, step := range [][2]string{{"sector", "Software"}, {"industry", "Apps"}} {
		resp, err = c.PostForm(e.url+"/select/"+step[0], url.Values{"value": {step[1]}})
		require.NoError(t, err)
		resp.Body.Close()
	}
	resp, err = c.PostForm(e.url+"/select/basic", url.Values{"value": {"B3"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = c.Get(e.url + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	var st workflow.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Empty(t, st.Selection.BasicCode)
	assert.False(t, st.SearchEnabled)
}

func TestServer_EditMovesRowOutOfResults(t *testing.T) {
	e := newTestEnv(t)
	c := e.browser(t)
	drillDown(t, e, c)

	doc := postPage(t, c, e.url+"/edit/open/1", nil)
	require.NotNil(t, byID(doc, "edit"))
	assert.Equal(t, []string{"Games", "Refineries", "Tools"}, options(t, doc, "basic_ind_code"))
	name, _ := attr(byID(doc, "company_name"), "value")
	assert.Equal(t, "Pixel Works", name)

	doc = postPage(t, c, e.url+"/edit/submit", url.Values{
		"company_name":        {"Pixel Works"},
		"market_cap_category": {"MIDCAP"},
		"basic_ind_code":      {"B2"},
	})
	assert.Nil(t, byID(doc, "edit"))
	assert.Equal(t, "11 stocks in Games", textOf(byID(doc, "count")))
	assert.Len(t, elements(byID(doc, "results"), "tr"), 2)
	assert.Equal(t, 1, e.api.putCount())
}

func TestServer_EditValidationSkipsRequest(t *testing.T) {
	e := newTestEnv(t)
	c := e.browser(t)
	drillDown(t, e, c)
	postPage(t, c, e.url+"/edit/open/0", nil)

	doc := postPage(t, c, e.url+"/edit/submit", url.Values{"company_name": {"  "}})

	errNode := byID(doc, "edit-error")
	require.NotNil(t, errNode)
	assert.Equal(t, "Company name is required.", textOf(errNode))
	field, _ := attr(errNode, "data-field")
	assert.Equal(t, "company_name", field)
	assert.Zero(t, e.api.putCount())

	doc = postPage(t, c, e.url+"/edit/cancel", nil)
	assert.Nil(t, byID(doc, "edit"))
}

func TestServer_EditWithoutDraft(t *testing.T) {
	e := newTestEnv(t)
	c := e.browser(t)
	drillDown(t, e, c)

	resp, err := c.PostForm(e.url+"/edit/submit", url.Values{"company_name": {"x"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = c.PostForm(e.url+"/edit/open/9", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_SessionsAreIsolated(t *testing.T) {
	e := newTestEnv(t)
	first, second := e.browser(t), e.browser(t)

	drillDown(t, e, first)
	doc := getPage(t, second, e.url+"/")

	assert.Nil(t, byID(doc, "results"))
	assert.True(t, disabled(t, doc, "sector"))
	assert.Equal(t, 2, e.server.Sessions().Len())
}

func TestServer_StateJSON(t *testing.T) {
	e := newTestEnv(t)
	c := e.browser(t)
	drillDown(t, e, c)

	resp, err := c.Get(e.url + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var st workflow.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "B1", st.Selection.BasicCode)
	assert.Equal(t, workflow.StatusSuccess, st.SearchStatus)
	assert.Equal(t, 12, st.Count)
	assert.Len(t, st.Rows, 2)
}

func TestServer_UpstreamStats(t *testing.T) {
	e := newTestEnv(t)
	drillDown(t, e, e.browser(t))

	resp, err := http.Get(e.url + "/api/stats/upstream")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Sessions int                    `json:"sessions"`
		Stats    classapi.StatsSnapshot `json:"stats"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Sessions)
	assert.Equal(t, 1, body.Stats.ByOp["dropdown data"])
	assert.Equal(t, 1, body.Stats.ByOp["stocks"])
	assert.Zero(t, body.Stats.Errors)
}

func TestServer_UpstreamStatsUnavailable(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewServer(nopClient{}, log, config.Config{
		SessionSecret: strings.Repeat("k", 32),
		SessionTTL:    time.Hour,
	})
	require.NoError(t, err)
	defer s.Close()

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats/upstream", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
