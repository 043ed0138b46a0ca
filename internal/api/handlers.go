package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FocuswithJustin/IntrinsicsGuide/core/errors"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/filter"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/intrinsics"
	"github.com/FocuswithJustin/IntrinsicsGuide/core/query"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/catalog"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/logging"
	"github.com/FocuswithJustin/IntrinsicsGuide/internal/render"
)

// Version is reported by / and /health.
var Version = "dev"

// APIResponse is the standard API response wrapper.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *APIMeta    `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// APIMeta contains response metadata.
type APIMeta struct {
	Total     int    `json:"total,omitempty"`
	Offset    int    `json:"offset,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HealthInfo is the health check response.
type HealthInfo struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	Intrinsics int    `json:"intrinsics"`
	LoadID     string `json:"load_id,omitempty"`
	Clients    int    `json:"websocket_clients"`
}

// MetaInfo describes the loaded database.
type MetaInfo struct {
	catalog.Info
	Technologies int    `json:"technologies"`
	CPUIDs       int    `json:"cpuids"`
	Categories   int    `json:"categories"`
	ReturnTypes  int    `json:"return_types"`
	HostBrand    string `json:"host_brand,omitempty"`
	CacheHits    int64  `json:"cache_hits"`
	CacheMisses  int64  `json:"cache_misses"`
}

// IntrinsicView is an intrinsic as listed by the API.
type IntrinsicView struct {
	ID string `json:"id"`
	*intrinsics.Intrinsic
	Color     string `json:"color,omitempty"`
	Supported bool   `json:"supported"`
}

// IntrinsicDetail adds the rendered documentation to a view.
type IntrinsicDetail struct {
	IntrinsicView
	Signature string   `json:"signature"`
	Mnemonics []string `json:"mnemonics"`
	Detail    string   `json:"detail"`
}

// TechnologyView is one entry of the technology hierarchy.
type TechnologyView struct {
	Family string   `json:"family"`
	Techs  []string `json:"techs"`
	Color  string   `json:"color,omitempty"`
	Count  int      `json:"count"`
}

// FacetValue is a facet value and how many intrinsics carry it.
type FacetValue struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

var startTime = time.Now()

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found")
		return
	}

	respond(w, http.StatusOK, map[string]interface{}{
		"name":    "Intrinsics Guide API",
		"version": Version,
		"endpoints": []string{
			"GET /health",
			"GET /meta",
			"GET /intrinsics?q=&tech=&cpuid=&category=&ret=&host=&limit=&offset=",
			"GET /intrinsics/:id",
			"GET /technologies",
			"GET /categories",
			"GET /return-types",
			"POST /reload",
			"WS /ws",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	health := HealthInfo{
		Status:  "empty",
		Version: Version,
		Uptime:  time.Since(startTime).Round(time.Second).String(),
		Clients: s.hub.ClientCount(),
	}
	if info, ok := s.store.Info(); ok {
		health.Status = "healthy"
		health.Intrinsics = info.Intrinsics
		health.LoadID = info.LoadID
	}
	respond(w, http.StatusOK, health)
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	res, ok := s.snapshot(w)
	if !ok {
		return
	}
	info, _ := s.store.Info()
	stats := s.store.Stats()

	respond(w, http.StatusOK, MetaInfo{
		Info:         info,
		Technologies: len(res.Technologies),
		CPUIDs:       len(res.CPUIDs()),
		Categories:   len(res.Categories),
		ReturnTypes:  len(res.ReturnTypes),
		HostBrand:    s.host.Brand,
		CacheHits:    stats.Hits,
		CacheMisses:  stats.Misses,
	})
}

func (s *Server) handleIntrinsics(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	res, ok := s.snapshot(w)
	if !ok {
		return
	}

	params := r.URL.Query()
	sel, err := selectionFromQuery(params)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	offset, limit, err := s.page(params)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	list := filter.Apply(res, sel)
	if truthy(params.Get("host")) {
		list = s.host.Filter(list)
	}

	total := len(list)
	start := min(offset, total)
	end := min(start+limit, total)
	palette := render.PaletteFor(res)
	views := make([]IntrinsicView, 0, end-start)
	for _, in := range list[start:end] {
		views = append(views, s.view(palette, in))
	}

	respondPage(w, views, total, offset, limit)
}

func (s *Server) handleIntrinsicByID(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/intrinsics/")
	if id == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", "Intrinsic ID required")
		return
	}
	res, ok := s.snapshot(w)
	if !ok {
		return
	}
	in, found := res.Lookup(id)
	if !found {
		respondErr(w, r, errors.NewNotFound("intrinsic", id))
		return
	}

	style := render.Plain()
	respond(w, http.StatusOK, IntrinsicDetail{
		IntrinsicView: s.view(render.PaletteFor(res), in),
		Signature:     in.Signature(),
		Mnemonics:     render.Instructions(in),
		Detail:        style.Detail(in),
	})
}

func (s *Server) handleTechnologies(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	s.respondCached(w, r, func(res *intrinsics.ParseResult) (interface{}, int) {
		palette := render.PaletteFor(res)
		out := make([]TechnologyView, 0, len(res.Technologies))
		for _, t := range res.Technologies {
			out = append(out, TechnologyView{
				Family: t.Family,
				Techs:  t.Techs,
				Color:  palette.Color(t.Family),
				Count:  len(filter.Apply(res, filter.Selection{Techs: []string{t.Family}})),
			})
		}
		return out, len(out)
	})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	s.respondCached(w, r, func(res *intrinsics.ParseResult) (interface{}, int) {
		counts := filter.CountSelection(res, filter.Selection{})
		return facetValues(res.Categories, counts.Categories), len(res.Categories)
	})
}

func (s *Server) handleReturnTypes(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	s.respondCached(w, r, func(res *intrinsics.ParseResult) (interface{}, int) {
		counts := filter.CountSelection(res, filter.Selection{})
		return facetValues(res.ReturnTypes, counts.ReturnTypes), len(res.ReturnTypes)
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var (
		info catalog.Info
		err  error
	)
	if _, loaded := s.store.Info(); loaded {
		info, err = s.store.Reload(r.Context())
	} else {
		info, err = s.store.Load(r.Context(), s.cfg.DataPath)
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}
	logging.InfoContext(r.Context(), "catalog_reload_requested", "load_id", info.LoadID)
	respond(w, http.StatusOK, info)
}

// snapshot returns the current snapshot or answers 503.
func (s *Server) snapshot(w http.ResponseWriter) (*intrinsics.ParseResult, bool) {
	res := s.store.Current()
	if res == nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_LOADED", "No intrinsics database is loaded")
		return nil, false
	}
	return res, true
}

func (s *Server) view(palette render.Palette, in *intrinsics.Intrinsic) IntrinsicView {
	return IntrinsicView{
		ID:        in.ID(),
		Intrinsic: in,
		Color:     palette.Color(in.Tech),
		Supported: s.host.SupportsAll(in),
	}
}

// page reads offset and limit, applying the default and maximum page size.
func (s *Server) page(params url.Values) (offset, limit int, err error) {
	limit = defaultPageSize
	if v := params.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return 0, 0, errors.NewValidation("limit", "must be a positive integer")
		}
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	if v := params.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, errors.NewValidation("offset", "must be a non-negative integer")
		}
	}
	return offset, limit, nil
}

// selectionFromQuery combines the q query-language parameter with the
// per-facet parameters. Facet parameters may repeat.
func selectionFromQuery(params url.Values) (filter.Selection, error) {
	sel, err := query.Parse(params.Get("q"))
	if err != nil {
		return filter.Selection{}, err
	}
	for param, key := range map[string]string{
		"tech":     "tech",
		"family":   "family",
		"cpuid":    "cpuid",
		"category": "category",
		"ret":      "ret",
	} {
		for _, v := range params[param] {
			if err := query.AddFacet(&sel, key, v); err != nil {
				return filter.Selection{}, err
			}
		}
	}
	return sel, nil
}

func facetValues(names []string, counts map[string]int) []FacetValue {
	out := make([]FacetValue, 0, len(names))
	for _, n := range names {
		out = append(out, FacetValue{Name: n, Count: counts[n]})
	}
	return out
}

func truthy(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only "+method+" is allowed")
	return false
}

// respondCached serves a facet listing from the response cache, building
// and storing it on a miss. Entries are dropped on every reload.
func (s *Server) respondCached(w http.ResponseWriter, r *http.Request, build func(*intrinsics.ParseResult) (interface{}, int)) {
	key := r.URL.Path
	if body, ok := s.responses.Get(key); ok {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, body)
		return
	}
	res, ok := s.snapshot(w)
	if !ok {
		return
	}
	data, total := build(res)
	body, err := json.Marshal(APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Total: total, Timestamp: timestamp()},
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	body = append(body, '\n')
	s.responses.Put(key, body)
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, body)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	encode(w, status, APIResponse{
		Success: true,
		Data:    data,
		Meta:    &APIMeta{Timestamp: timestamp()},
	})
}

func respondPage(w http.ResponseWriter, data interface{}, total, offset, limit int) {
	encode(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta: &APIMeta{
			Total:     total,
			Offset:    offset,
			Limit:     limit,
			Timestamp: timestamp(),
		},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	encode(w, status, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
		Meta: &APIMeta{Timestamp: timestamp()},
	})
}

func encode(w http.ResponseWriter, status int, resp APIResponse) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(resp); err != nil {
		logging.Error("api_encode_failed", "error", err)
		http.Error(w, `{"success":false}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, buf.Bytes())
}

// respondErr maps domain errors onto HTTP statuses.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errors.ErrOpen):
		respondError(w, http.StatusConflict, "OPEN_ERROR", err.Error())
	case errors.Is(err, errors.ErrFormat):
		respondError(w, http.StatusConflict, "FORMAT_ERROR", err.Error())
	case errors.Is(err, errors.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, errors.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Request canceled")
	default:
		logging.ErrorContext(r.Context(), "api_internal_error", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error")
	}
}
