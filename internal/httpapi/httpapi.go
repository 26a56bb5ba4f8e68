// Package httpapi exposes a thin HTTP surface over the collector, query
// and status packages (read-only query and status endpoints plus a
// synchronous POST /v1/collect that writes through the collector), built on the teacher's own ada router and
// middleware stack. Every handler does request decoding, a single facade
// call, and response encoding — no business logic lives here.
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/rakunlabs/ada"
	mcors "github.com/rakunlabs/ada/middleware/cors"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	mserver "github.com/rakunlabs/ada/middleware/server"

	"github.com/sonecdev/sonec/internal/collector"
	"github.com/sonecdev/sonec/internal/config"
	"github.com/sonecdev/sonec/internal/errs"
	"github.com/sonecdev/sonec/internal/query"
	"github.com/sonecdev/sonec/internal/status"
	"github.com/sonecdev/sonec/internal/store"
)

// Server is the HTTP surface's runtime: one ada mux wired to the facade's
// collector, store, and service name.
type Server struct {
	cfg config.Server

	server *ada.Server

	collector *collector.Collector
	store     store.Store
}

// New builds a Server bound to addr (cfg.Host:cfg.Port) but does not start
// listening; call Start for that.
func New(cfg config.Server, coll *collector.Collector, st store.Store) *Server {
	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mserver.Middleware(config.Service),
		mcors.Middleware(),
		mrequestid.Middleware(),
		mlog.Middleware(),
	)

	s := &Server{cfg: cfg, server: mux, collector: coll, store: st}

	api := mux.Group("/v1")
	api.GET("/query/posts", s.handleQueryPosts)
	api.GET("/status", s.handleStatus)
	api.POST("/collect", s.handleCollect)

	return s
}

// Start blocks, serving until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	return s.server.StartWithContext(ctx, net.JoinHostPort(s.cfg.Host, s.cfg.Port))
}

func (s *Server) handleQueryPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	params := query.Params{
		Entity:   "posts",
		Provider: q.Get("provider"),
		SinceUTC: q.Get("since_utc"),
		UntilUTC: q.Get("until_utc"),
		Author:   q.Get("author"),
		Contains: q.Get("contains"),
		AfterKey: q.Get("after_key"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, errs.InvalidArgument("limit must be an integer"))
			return
		}
		params.Limit = n
	}
	if v := q.Get("project"); v != "" {
		params.Project = strings.Split(v, ",")
	}

	page, err := query.Run(r.Context(), s.store, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	params := status.Params{
		Provider: q.Get("provider"),
		Source:   q.Get("source"),
	}
	if v := q.Get("limit_jobs"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, errs.InvalidArgument("limit_jobs must be an integer"))
			return
		}
		params.LimitJobs = n
	}

	snap, err := status.Run(r.Context(), s.store, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type collectRequest struct {
	Provider  string `json:"provider"`
	Source    string `json:"source"`
	Q         string `json:"q"`
	SinceUTC  string `json:"since_utc"`
	UntilUTC  string `json:"until_utc"`
	Window    string `json:"window"`
	PageLimit int    `json:"page_limit"`
	Limit     *int   `json:"limit"`
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	var req collectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errs.InvalidArgument("invalid request body: %v", err))
		return
	}

	report, err := s.collector.Collect(r.Context(), collector.Params{
		Provider:  req.Provider,
		Source:    req.Source,
		Q:         req.Q,
		SinceUTC:  req.SinceUTC,
		UntilUTC:  req.UntilUTC,
		Window:    req.Window,
		PageLimit: req.PageLimit,
		Limit:     req.Limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusCodeFor(err), errorBody{Error: err.Error()})
}

func statusCodeFor(err error) int {
	switch {
	case errs.As(err, errs.CodeInvalidArgument), errs.As(err, errs.CodeInvalidQuery), errs.As(err, errs.CodeInvalidToken):
		return http.StatusBadRequest
	case errs.As(err, errs.CodeNotConfigured):
		return http.StatusServiceUnavailable
	case errs.As(err, errs.CodeNotRegistered):
		return http.StatusNotFound
	case errs.As(err, errs.CodeAuthError):
		return http.StatusUnauthorized
	case errs.As(err, errs.CodeRateLimited):
		return http.StatusTooManyRequests
	case errs.As(err, errs.CodeUniqueConflict), errs.As(err, errs.CodeAlreadyRegistered):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
