package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/samber/lo"

	"calbrowse/internal/browse"
	"calbrowse/internal/cache"
	"calbrowse/internal/config"
	appLog "calbrowse/internal/log"
	"calbrowse/internal/model"
	"calbrowse/internal/popular"
	"calbrowse/internal/present"
)

// SessionCookie carries the browse session id.
const SessionCookie = "calbrowse_session"

// Server provides the HTTP API. Each client gets its own browse session,
// keyed by a cookie; a new session starts with an empty cache.
type Server struct {
	cfg        *config.Config
	categories *model.Categories
	fetcher    cache.Fetcher
	matcher    *popular.Matcher
	mux        *http.ServeMux
	now        func() time.Time

	sessionsMu sync.Mutex
	sessions   map[string]*sessionEntry
}

type sessionEntry struct {
	sess     *browse.Session
	lastSeen time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, fetcher cache.Fetcher, matcher *popular.Matcher) *Server {
	s := &Server{
		cfg:        cfg,
		categories: model.NewCategories(cfg.CategoryModels()),
		fetcher:    fetcher,
		matcher:    matcher,
		mux:        http.NewServeMux(),
		now:        time.Now,
		sessions:   make(map[string]*sessionEntry),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calbrowse", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves on cfg.Listen and sweeps idle sessions until ctx is canceled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	sweeper, err := s.startSweeper()
	if err != nil {
		return err
	}
	defer func() { <-sweeper.Stop().Done() }()

	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

// startSweeper schedules SweepIdle on cfg.SessionSweep.
func (s *Server) startSweeper() (*cron.Cron, error) {
	c := cron.New()
	idle := time.Duration(s.cfg.SessionIdleMinutes) * time.Minute
	if _, err := c.AddFunc(s.cfg.SessionSweep, func() { s.SweepIdle(idle) }); err != nil {
		appLog.Error("invalid session sweep schedule", err, "spec", s.cfg.SessionSweep)
		return nil, err
	}
	c.Start()
	appLog.Info("session sweeper started", "spec", s.cfg.SessionSweep, "idle", idle.String())
	return c, nil
}

// SweepIdle drops sessions not seen for longer than maxIdle and returns how
// many were removed. A dropped session's cache goes with it.
func (s *Server) SweepIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		appLog.Info("idle sessions swept", "removed", removed, "remaining", len(s.sessions))
	}
	return removed
}

// SessionCount reports the number of live sessions.
func (s *Server) SessionCount() int {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	return len(s.sessions)
}

// session returns the caller's session, creating one (and setting the
// cookie) when the cookie is missing or refers to a swept session.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *browse.Session {
	now := s.now()

	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()

	if c, err := r.Cookie(SessionCookie); err == nil {
		if e, ok := s.sessions[c.Value]; ok {
			e.lastSeen = now
			return e.sess
		}
	}

	id := uuid.NewString()
	sess := browse.NewSession(s.categories, s.fetcher, s.matcher, browse.WithObserver(func(v browse.View) {
		appLog.Debug("view rendered", "session", id, "status", string(v.Status), "records", len(v.Records))
	}))
	s.sessions[id] = &sessionEntry{sess: sess, lastSeen: now}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	appLog.Debug("session created", "session", id)
	return sess
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/categories", s.handleCategories)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("POST /api/select", s.handleSelect)
	s.mux.HandleFunc("POST /api/submode", s.handleSubMode)
	s.mux.HandleFunc("POST /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/popular-links", s.handlePopularLinks)
	s.mux.HandleFunc("GET /api/export.ics", s.handleExport)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// categoryDTO is one navigation entry with its load state in this session.
type categoryDTO struct {
	Tag   string `json:"tag"`
	Label string `json:"label"`
	State string `json:"state"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	c := sess.Cache()
	active := sess.Selection().ActiveTag

	type categoriesResponse struct {
		Active     string        `json:"active"`
		Categories []categoryDTO `json:"categories"`
	}
	writeJSON(w, http.StatusOK, categoriesResponse{
		Active: active,
		Categories: lo.Map(s.categories.All(), func(cat model.Category, _ int) categoryDTO {
			return categoryDTO{Tag: cat.Tag, Label: cat.Label, State: c.State(cat.Tag).String()}
		}),
	})
}

// recordDTO is a JSON-friendly view of a normalized record.
type recordDTO struct {
	Category      string          `json:"category"`
	CategoryLabel string          `json:"category_label"`
	ID            string          `json:"id,omitempty"`
	Title         string          `json:"title"`
	Website       string          `json:"website,omitempty"`
	Location      string          `json:"location,omitempty"`
	Dates         string          `json:"dates,omitempty"`
	Frequency     string          `json:"frequency,omitempty"`
	Deadlines     string          `json:"deadlines,omitempty"`
	Organization  string          `json:"organization,omitempty"`
	Description   string          `json:"description,omitempty"`
	Extra         []present.Field `json:"extra,omitempty"`
}

// stateResponse is the JSON shape of the visible state.
type stateResponse struct {
	ActiveTag     string            `json:"active_tag"`
	SubMode       model.SubMode     `json:"sub_mode"`
	Query         string            `json:"query"`
	Status        browse.Status     `json:"status"`
	StatusMessage string            `json:"status_message"`
	Count         int               `json:"count"`
	Records       []recordDTO       `json:"records"`
	Error         *browse.ErrorInfo `json:"error,omitempty"`
}

func toRecordDTO(rec model.Record, _ int) recordDTO {
	return recordDTO{
		Category:      rec.CategoryTag,
		CategoryLabel: rec.CategoryLabel,
		ID:            rec.SourceID,
		Title:         rec.Title,
		Website:       rec.Website,
		Location:      rec.Location,
		Dates:         rec.Dates,
		Frequency:     rec.Frequency,
		Deadlines:     rec.Deadlines,
		Organization:  rec.Organization,
		Description:   rec.Description,
		Extra:         present.ExtraFields(rec.Raw),
	}
}

// visibleRecords returns the view's records, date-ordered for ?sort=date.
func visibleRecords(r *http.Request, v browse.View) []model.Record {
	if r.URL.Query().Get("sort") == "date" {
		return present.SortByStart(v.Records)
	}
	return v.Records
}

func (s *Server) writeState(w http.ResponseWriter, r *http.Request, sess *browse.Session) {
	v := sess.VisibleState()
	recs := visibleRecords(r, v)
	writeJSON(w, http.StatusOK, stateResponse{
		ActiveTag:     v.Selection.ActiveTag,
		SubMode:       v.Selection.SubMode,
		Query:         v.Selection.Query,
		Status:        v.Status,
		StatusMessage: v.StatusMessage,
		Count:         len(recs),
		Records:       lo.Map(recs, toRecordDTO),
		Error:         v.Error,
	})
}

// handleState returns the current visible state.
//
// GET /api/state?sort=date
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeState(w, r, s.session(w, r))
}

// handleSelect switches the active category.
//
// POST /api/select?tag=conferences&wait=1
//   - tag:  category tag; empty clears the selection
//   - wait: 1 blocks until the category load finishes
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	tag := r.URL.Query().Get("tag")
	if tag != "" {
		if _, ok := s.categories.Lookup(tag); !ok {
			writeError(w, http.StatusNotFound, "unknown category: "+tag)
			return
		}
	}
	s.apply(w, r, sess, browse.Select{Tag: tag})
}

// handleSubMode switches the conferences sub-view.
//
// POST /api/submode?mode=popular
func (s *Server) handleSubMode(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	mode := model.SubMode(r.URL.Query().Get("mode"))
	if !mode.Valid() {
		writeError(w, http.StatusBadRequest, "mode must be all or popular")
		return
	}
	s.apply(w, r, sess, browse.SetSubMode{Mode: mode})
}

// handleSearch sets the global search query.
//
// POST /api/search?q=vision&wait=1
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	s.apply(w, r, sess, browse.Search{Query: r.URL.Query().Get("q")})
}

// apply dispatches a and responds with the resulting state. With wait=1 the
// response is held until the triggered loads finish or the client leaves.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, sess *browse.Session, a browse.Action) {
	ctx := r.Context()
	done := sess.Handle(ctx, a)

	if parseIntDefault(r.URL.Query().Get("wait"), 0) == 1 {
		select {
		case <-done:
		case <-ctx.Done():
			appLog.Debug("api: wait abandoned", "path", r.URL.Path)
			return
		}
	}
	s.writeState(w, r, sess)
}

func (s *Server) handlePopularLinks(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	links := sess.PopularLinks()
	if links == nil {
		links = []popular.QuickLink{}
	}

	type linksResponse struct {
		Links []popular.QuickLink `json:"links"`
	}
	writeJSON(w, http.StatusOK, linksResponse{Links: links})
}

// handleExport returns the visible records as an iCalendar document.
//
// GET /api/export.ics?sort=date
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	recs := visibleRecords(r, sess.VisibleState())

	body := present.ExportICS(recs, s.now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="calbrowse.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
