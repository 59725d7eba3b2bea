package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nullspacelabs/stackup/internal/metrics"
	"github.com/nullspacelabs/stackup/internal/supervise"
)

// Router exposes a small local control surface while the stack is up:
//
//	GET  /healthz          liveness of the supervisor itself
//	GET  /api/status       per-service {name, pid, running}
//	GET  /metrics          Prometheus exposition
//	POST /api/shutdown     trigger the same coordinated shutdown as SIGTERM
type Router struct {
	statuses func() []supervise.Status
	shutdown func()
}

// NewRouter builds a Router over a status snapshot source and a shutdown
// trigger. shutdown must be idempotent; it is invoked at most once per
// request, possibly concurrently with a signal.
func NewRouter(statuses func() []supervise.Status, shutdown func()) *Router {
	return &Router{statuses: statuses, shutdown: shutdown}
}

// Handler returns the gin-powered http.Handler.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/healthz", r.handleHealth)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	api := g.Group("/api")
	api.GET("/status", r.handleStatus)
	api.POST("/shutdown", r.handleShutdown)
	return g
}

// NewServer starts a standalone HTTP server on addr for this router. The
// caller shuts it down via the returned *http.Server.
func NewServer(addr string, statuses func() []supervise.Status, shutdown func()) *http.Server {
	r := NewRouter(statuses, shutdown)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

func (r *Router) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *Router) handleStatus(c *gin.Context) {
	sts := r.statuses()
	if sts == nil {
		sts = []supervise.Status{}
	}
	c.JSON(http.StatusOK, gin.H{"services": sts})
}

func (r *Router) handleShutdown(c *gin.Context) {
	r.shutdown()
	c.JSON(http.StatusAccepted, gin.H{"status": "stopping"})
}
