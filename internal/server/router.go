// Package server exposes the HTTP control surface the CLI client mode talks
// to. Start requests never carry credentials; a sudo profile can only be
// started from the process that owns the terminal prompt.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/allenguarnes/givetray/internal/history"
	"github.com/allenguarnes/givetray/internal/logring"
	"github.com/allenguarnes/givetray/internal/manager"
	"github.com/allenguarnes/givetray/internal/metrics"
	"github.com/allenguarnes/givetray/internal/supervisor"
)

// OptionsResolver produces the start options for a profile, typically by
// loading its config file. It must never attach a password.
type OptionsResolver func(profile string) (supervisor.StartOptions, error)

// Router provides embeddable HTTP handlers for managing profiles.
// Endpoints:
//
//	POST   {basePath}/start    query: profile=...
//	POST   {basePath}/stop     query: profile=...
//	GET    {basePath}/status   query: profile=... (omit for all profiles)
//	GET    {basePath}/logs     query: profile=...
//	DELETE {basePath}/logs     query: profile=...
//	GET    {basePath}/history  query: profile=...&limit=N
//	GET    {basePath}/metrics
type Router struct {
	mgr      *manager.Manager
	resolve  OptionsResolver
	store    history.Store
	basePath string
}

// NewRouter constructs a Router. store may be nil, which disables /history.
func NewRouter(mgr *manager.Manager, resolve OptionsResolver, store history.Store, basePath string) *Router {
	return &Router{mgr: mgr, resolve: resolve, store: store, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server or mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.GET("/status", r.handleStatus)
	group.GET("/logs", r.handleLogs)
	group.DELETE("/logs", r.handleClearLogs)
	group.GET("/history", r.handleHistory)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, mgr *manager.Manager, resolve OptionsResolver, store history.Store) *http.Server {
	r := NewRouter(mgr, resolve, store, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

// profileParam validates the profile query parameter. Returns "" after
// writing the error response when validation fails.
func (r *Router) profileParam(c *gin.Context) string {
	profile := c.Query("profile")
	if profile == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "profile query param required"})
		return ""
	}
	if !isSafeProfile(profile) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid profile: allowed [A-Za-z0-9_-]"})
		return ""
	}
	return profile
}

func (r *Router) handleStart(c *gin.Context) {
	profile := r.profileParam(c)
	if profile == "" {
		return
	}
	opts, err := r.resolve(profile)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	if opts.SudoPassword != nil {
		// Belt and braces: the resolver contract forbids this.
		opts.SudoPassword.Destroy()
		writeJSON(c, http.StatusForbidden, errorResp{Error: "password-bearing starts are not allowed over HTTP"})
		return
	}
	if err := r.mgr.Start(profile, opts); err != nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	profile := r.profileParam(c)
	if profile == "" {
		return
	}
	if err := r.mgr.Stop(profile); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	profile := c.Query("profile")
	if profile == "" {
		writeJSON(c, http.StatusOK, r.mgr.StatusAll())
		return
	}
	if !isSafeProfile(profile) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid profile: allowed [A-Za-z0-9_-]"})
		return
	}
	writeJSON(c, http.StatusOK, r.mgr.Status(profile))
}

func (r *Router) handleLogs(c *gin.Context) {
	profile := r.profileParam(c)
	if profile == "" {
		return
	}
	lines := r.mgr.Logs(profile)
	if lines == nil {
		lines = []logring.Line{}
	}
	writeJSON(c, http.StatusOK, lines)
}

func (r *Router) handleClearLogs(c *gin.Context) {
	profile := r.profileParam(c)
	if profile == "" {
		return
	}
	r.mgr.ClearLogs(profile)
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleHistory(c *gin.Context) {
	profile := r.profileParam(c)
	if profile == "" {
		return
	}
	if r.store == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "run history is not enabled"})
		return
	}
	limit := 50
	if s := c.Query("limit"); s != "" {
		if n, err := parsePositiveInt(s); err == nil {
			limit = n
		}
	}
	recs, err := r.store.Recent(c.Request.Context(), profile, limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(c, http.StatusOK, recs)
}
