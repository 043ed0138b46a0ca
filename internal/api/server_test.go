package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/cache"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/errors"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/catalog"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/host"
)

var samplePath = filepath.Join("..", "..", "core", "intrinsics", "testdata", "sample.xml")

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

type fixture struct {
	srv   *Server
	store *catalog.Store
	path  string
	ts    *httptest.Server
}

// newFixture serves a copy of the sample database. The host supports only
// the MMX and SSE flags the sample uses.
func newFixture(t *testing.T, cfg Config, load bool) *fixture {
	t.Helper()
	data, err := os.ReadFile(samplePath)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "data.xml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	store := catalog.New(catalog.Options{Memory: cache.NewDefaultSnapshotCache()})
	if load {
		if _, err := store.Load(context.Background(), path); err != nil {
			t.Fatal(err)
		}
	}
	cfg.DataPath = path
	srv := New(cfg, store, host.New("MMX", "SSE", "SSSE3"))

	ctx, cancel := context.WithCancel(context.Background())
	go srv.hub.Run(ctx)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return &fixture{srv: srv, store: store, path: path, ts: ts}
}

func (f *fixture) do(t *testing.T, method, path string) (*http.Response, envelope) {
	t.Helper()
	req, err := http.NewRequest(method, f.ts.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("%s %s: body is not an envelope: %q", method, path, body)
	}
	return resp, env
}

func decodeData(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decoding data %s: %v", env.Data, err)
	}
}

func TestRoot(t *testing.T) {
	f := newFixture(t, DefaultConfig(), true)

	resp, env := f.do(t, http.MethodGet, "/")
	if resp.StatusCode != http.StatusOK || !env.Success {
		t.Fatalf("GET / = %d %+v", resp.StatusCode, env)
	}

	resp, env = f.do(t, http.MethodGet, "/nope")
	if resp.StatusCode != http.StatusNotFound || env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("GET /nope = %d %+v", resp.StatusCode, env.Error)
	}
}

func TestHealth(t *testing.T) {
	empty := newFixture(t, DefaultConfig(), false)
	_, env := empty.do(t, http.MethodGet, "/health")
	var h HealthInfo
	decodeData(t, env, &h)
	if h.Status != "empty" || h.Intrinsics != 0 {
		t.Errorf("empty health = %+v", h)
	}

	f := newFixture(t, DefaultConfig(), true)
	_, env = f.do(t, http.MethodGet, "/health")
	decodeData(t, env, &h)
	if h.Status != "healthy" || h.Intrinsics != 11 || h.LoadID == "" {
		t.Errorf("health = %+v", h)
	}

	resp, _ := f.do(t, http.MethodPost, "/health")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /health = %d", resp.StatusCode)
	}
}

func TestMeta(t *testing.T) {
	empty := newFixture(t, DefaultConfig(), false)
	resp, env := empty.do(t, http.MethodGet, "/meta")
	if resp.StatusCode != http.StatusServiceUnavailable || env.Error.Code != "NOT_LOADED" {
		t.Errorf("meta before load = %d %+v", resp.StatusCode, env.Error)
	}

	f := newFixture(t, DefaultConfig(), true)
	_, env = f.do(t, http.MethodGet, "/meta")
	var m MetaInfo
	decodeData(t, env, &m)
	if m.Version != "3.6.9" || m.Date != "07/12/2024" || m.Intrinsics != 11 {
		t.Errorf("meta = %+v", m)
	}
	if m.Technologies != 10 || m.Categories != 7 || m.ReturnTypes != 8 {
		t.Errorf("meta counts = %d/%d/%d", m.Technologies, m.Categories, m.ReturnTypes)
	}
	if m.LoadID == "" || m.Source != catalog.SourceXML {
		t.Errorf("meta load = %q %q", m.LoadID, m.Source)
	}
}

func TestListIntrinsics(t *testing.T) {
	f := newFixture(t, DefaultConfig(), true)

	tests := []struct {
		name      string
		query     string
		wantTotal int
		wantNames []string
	}{
		{"everything", "", 11, nil},
		{"search", "?q=ADD", 5, nil},
		{"query facet", "?q=" + url.QueryEscape(`tech:"AVX Family"`), 2,
			[]string{"_mm256_add_epi32", "_mm256_fmadd_ps"}},
		{"facet parameter", "?tech=" + url.QueryEscape("AVX Family"), 2,
			[]string{"_mm256_add_epi32", "_mm256_fmadd_ps"}},
		{"vendor cpuid spelling", "?cpuid=avx512vl", 1, []string{"_mm256_mask_add_epi16"}},
		{"repeated values OR", "?category=Swizzle&category=Mask", 2,
			[]string{"_mm_shuffle_epi8", "_mm512_kmovlhb"}},
		{"facets AND", "?q=add&ret=__m256i", 2,
			[]string{"_mm256_add_epi32", "_mm256_mask_add_epi16"}},
		{"host filter", "?host=1", 4,
			[]string{"_mm_empty", "_mm_add_ps", "_mm_shuffle_epi8", "_mm_sin_ps"}},
		{"no match", "?q=nothing_here", 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := f.do(t, http.MethodGet, "/intrinsics"+tt.query)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d %+v", resp.StatusCode, env.Error)
			}
			var views []IntrinsicView
			decodeData(t, env, &views)
			if env.Meta.Total != tt.wantTotal || len(views) != tt.wantTotal {
				t.Errorf("total = %d, len = %d, want %d", env.Meta.Total, len(views), tt.wantTotal)
			}
			if tt.wantNames == nil {
				return
			}
			for i, v := range views {
				if i < len(tt.wantNames) && v.Name != tt.wantNames[i] {
					t.Errorf("views[%d] = %s, want %s", i, v.Name, tt.wantNames[i])
				}
			}
		})
	}
}

func TestListIntrinsicsFields(t *testing.T) {
	f := newFixture(t, DefaultConfig(), true)
	_, env := f.do(t, http.MethodGet, "/intrinsics?q=_mm_add_ps")
	var views []IntrinsicView
	decodeData(t, env, &views)
	if len(views) != 1 {
		t.Fatalf("got %d views", len(views))
	}
	v := views[0]
	if v.ID != "_mm_add_ps (addps)" || v.Tech != "SSE Family" || !v.Supported {
		t.Errorf("view = %+v", v)
	}
	if !strings.HasPrefix(v.Color, "#") {
		t.Errorf("color = %q", v.Color)
	}
}

func TestListPaging(t *testing.T) {
	f := newFixture(t, Config{MaxPageSize: 3}, true)

	_, env := f.do(t, http.MethodGet, "/intrinsics?offset=1&limit=2")
	var views []IntrinsicView
	decodeData(t, env, &views)
	if len(views) != 2 || env.Meta.Total != 11 || env.Meta.Offset != 1 || env.Meta.Limit != 2 {
		t.Errorf("page = %d views, meta %+v", len(views), env.Meta)
	}
	if views[0].Name != "_mm_add_ps" {
		t.Errorf("first of page = %s", views[0].Name)
	}

	_, env = f.do(t, http.MethodGet, "/intrinsics?limit=50")
	if env.Meta.Limit != 3 {
		t.Errorf("limit not clamped: %d", env.Meta.Limit)
	}

	_, env = f.do(t, http.MethodGet, "/intrinsics?offset=100")
	decodeData(t, env, &views)
	if len(views) != 0 || env.Meta.Total != 11 {
		t.Errorf("past the end: %d views, total %d", len(views), env.Meta.Total)
	}

	for _, q := range []string{"?limit=0", "?limit=x", "?offset=-1", "?q=" + url.QueryEscape(`"open`), "?tech="} {
		resp, env := f.do(t, http.MethodGet, "/intrinsics"+q)
		if resp.StatusCode != http.StatusBadRequest || env.Error.Code != "INVALID_REQUEST" {
			t.Errorf("%s = %d %+v", q, resp.StatusCode, env.Error)
		}
	}
}

func TestIntrinsicByID(t *testing.T) {
	f := newFixture(t, DefaultConfig(), true)

	for _, id := range []string{"_mm256_fmadd_ps", "_mm256_fmadd_ps (vfmadd132ps,..)"} {
		resp, env := f.do(t, http.MethodGet, "/intrinsics/"+url.PathEscape(id))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %q = %d %+v", id, resp.StatusCode, env.Error)
		}
		var d IntrinsicDetail
		decodeData(t, env, &d)
		if d.Name != "_mm256_fmadd_ps" || d.Supported {
			t.Errorf("detail = %+v", d.IntrinsicView)
		}
		if !strings.HasPrefix(d.Signature, "__m256 _mm256_fmadd_ps(") {
			t.Errorf("signature = %q", d.Signature)
		}
		if !strings.Contains(d.Detail, "Synopsis") || len(d.Mnemonics) != 3 {
			t.Errorf("detail text = %q, mnemonics %v", d.Detail, d.Mnemonics)
		}
	}

	resp, env := f.do(t, http.MethodGet, "/intrinsics/_mm_missing")
	if resp.StatusCode != http.StatusNotFound || env.Error.Code != "NOT_FOUND" {
		t.Errorf("missing = %d %+v", resp.StatusCode, env.Error)
	}
	resp, _ = f.do(t, http.MethodGet, "/intrinsics/")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty id = %d", resp.StatusCode)
	}
}

func TestFacetListings(t *testing.T) {
	f := newFixture(t, DefaultConfig(), true)

	resp, env := f.do(t, http.MethodGet, "/technologies")
	if resp.Header.Get("X-Cache") != "MISS" {
		t.Errorf("first /technologies X-Cache = %q", resp.Header.Get("X-Cache"))
	}
	var techs []TechnologyView
	decodeData(t, env, &techs)
	if len(techs) != 10 || techs[0].Family != "MMX Family" {
		t.Fatalf("technologies = %+v", techs)
	}
	counts := map[string]int{}
	for _, tv := range techs {
		counts[tv.Family] = tv.Count
	}
	if counts["AVX Family"] != 2 || counts["SSE Family"] != 3 || counts["AVX-512 Family"] != 2 {
		t.Errorf("technology counts = %v", counts)
	}

	resp, _ = f.do(t, http.MethodGet, "/technologies")
	if resp.Header.Get("X-Cache") != "HIT" {
		t.Errorf("second /technologies X-Cache = %q", resp.Header.Get("X-Cache"))
	}

	_, env = f.do(t, http.MethodGet, "/categories")
	var cats []FacetValue
	decodeData(t, env, &cats)
	if len(cats) != 7 || env.Meta.Total != 7 {
		t.Errorf("categories = %+v", cats)
	}
	for _, c := range cats {
		if c.Name == "Arithmetic" && c.Count != 5 {
			t.Errorf("Arithmetic count = %d", c.Count)
		}
	}

	_, env = f.do(t, http.MethodGet, "/return-types")
	var rets []FacetValue
	decodeData(t, env, &rets)
	if len(rets) != 8 {
		t.Errorf("return types = %+v", rets)
	}

	if _, err := f.store.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	resp, _ = f.do(t, http.MethodGet, "/technologies")
	if resp.Header.Get("X-Cache") != "MISS" {
		t.Error("reload should invalidate cached listings")
	}
}

func TestReload(t *testing.T) {
	f := newFixture(t, DefaultConfig(), false)

	resp, env := f.do(t, http.MethodPost, "/reload")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first reload = %d %+v", resp.StatusCode, env.Error)
	}
	var info catalog.Info
	decodeData(t, env, &info)
	if info.Intrinsics != 11 {
		t.Errorf("reload info = %+v", info)
	}

	resp, _ = f.do(t, http.MethodGet, "/reload")
	if resp.StatusCode != http.StatusMethodNotAllowed || resp.Header.Get("Allow") != http.MethodPost {
		t.Errorf("GET /reload = %d", resp.StatusCode)
	}

	tests := []struct {
		name string
		body string
		code string
	}{
		{"format error", `<?xml version="1.0"?><intrinsics_list></intrinsics_list>`, "FORMAT_ERROR"},
		{"open error", "not xml at all", "OPEN_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := os.WriteFile(f.path, []byte(tt.body), 0o644); err != nil {
				t.Fatal(err)
			}
			resp, env := f.do(t, http.MethodPost, "/reload")
			if resp.StatusCode != http.StatusConflict || env.Error.Code != tt.code {
				t.Errorf("reload = %d %+v", resp.StatusCode, env.Error)
			}
			if f.store.Current().Len() != 11 {
				t.Error("failed reload dropped the snapshot")
			}
		})
	}
}

func TestRespondErr(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{errors.NewOpen("x", os.ErrNotExist), http.StatusConflict, "OPEN_ERROR"},
		{errors.NewFormat("x", "date"), http.StatusConflict, "FORMAT_ERROR"},
		{errors.NewNotFound("intrinsic", "x"), http.StatusNotFound, "NOT_FOUND"},
		{errors.NewValidation("limit", "bad"), http.StatusBadRequest, "INVALID_REQUEST"},
		{errors.Wrap(context.Canceled, "loading"), http.StatusServiceUnavailable, "UNAVAILABLE"},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		respondErr(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
		var env envelope
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatal(err)
		}
		if rec.Code != tt.status || env.Error.Code != tt.code || env.Success {
			t.Errorf("%v: %d %+v, want %d %s", tt.err, rec.Code, env.Error, tt.status, tt.code)
		}
	}
}
