package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/dozer/internal/auth"
	"github.com/loykin/dozer/internal/manager"
	"github.com/loykin/dozer/internal/metrics"
	"github.com/loykin/dozer/internal/process"
)

// Router provides the admin HTTP handlers.
// Endpoints:
//
//	GET  {basePath}/status          server snapshot and last status
//	POST {basePath}/wake            start a sleeping server
//	POST {basePath}/stop?force=1    put the server to sleep (force kills when set)
//	POST {basePath}/login           exchange basic credentials for a token (auth only)
//	GET  /metrics                   when metrics are mounted
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	ms           *manager.ManagedServer
	basePath     string
	mountMetrics bool
	auth         *auth.Service
}

// NewRouter constructs a Router. Example basePath "/api" results in
// /api/status, /api/wake and /api/stop. A nil authSvc leaves the API open.
func NewRouter(ms *manager.ManagedServer, basePath string, mountMetrics bool, authSvc *auth.Service) *Router {
	return &Router{ms: ms, basePath: sanitizeBase(basePath), mountMetrics: mountMetrics, auth: authSvc}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	if r.auth != nil {
		g.POST(r.basePath+"/login", auth.LoginHandler(r.auth))
	}
	group := g.Group(r.basePath, auth.GinAuth(r.auth))
	group.GET("/status", r.handleStatus)
	group.POST("/wake", r.handleWake)
	group.POST("/stop", r.handleStop)
	if r.mountMetrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer returns an HTTP server for the router; it is not started.
func NewServer(addr, basePath string, ms *manager.ManagedServer, mountMetrics bool, authSvc *auth.Service) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(ms, basePath, mountMetrics, authSvc).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Serve runs srv until ctx is done. It serves HTTPS when srv.TLSConfig is set.
func Serve(ctx context.Context, srv *http.Server) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	var err error
	if srv.TLSConfig != nil {
		err = srv.ListenAndServeTLS("", "")
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK    bool   `json:"ok"`
	State string `json:"state"`
}

type statusResp struct {
	manager.Snapshot
	Capabilities process.Capabilities `json:"capabilities"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, statusResp{Snapshot: r.ms.Snapshot(), Capabilities: r.ms.Capabilities()})
}

func (r *Router) handleWake(c *gin.Context) {
	woke, err := r.ms.Wake(c.Request.Context())
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if !woke {
		writeJSON(c, http.StatusConflict, errorResp{Error: "server is " + r.ms.State().String()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true, State: r.ms.State().String()})
}

func (r *Router) handleStop(c *gin.Context) {
	if force := c.Query("force"); force == "1" || force == "true" {
		if !r.ms.ForceKill() {
			writeJSON(c, http.StatusInternalServerError, errorResp{Error: "failed to kill server process"})
			return
		}
		writeJSON(c, http.StatusOK, okResp{OK: true, State: r.ms.State().String()})
		return
	}
	if r.ms.State() != manager.StateStarted {
		writeJSON(c, http.StatusConflict, errorResp{Error: "server is " + r.ms.State().String()})
		return
	}
	if !r.ms.Stop(c.Request.Context()) {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: "failed to stop server"})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true, State: r.ms.State().String()})
}
