// Package server is the HTTP surface of the proxy: the login endpoint, the
// token-protected Trac read endpoints and the operational endpoints.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/csfam/pawprint/internal/common/httpx"
	"github.com/csfam/pawprint/internal/common/middleware"
	"github.com/csfam/pawprint/internal/pawprint/trac"
)

// Options configures the HTTP surface.
type Options struct {
	HandleCORS     bool
	RequestTimeout time.Duration
}

// ProxyServer holds the router and the services it serves.
type ProxyServer struct {
	Router *chi.Mux
	svc    *Services
	opts   Options
}

// CreateNewServer creates a new ProxyServer instance.
func CreateNewServer(svc *Services, opts Options) (*ProxyServer, error) {
	if svc == nil || svc.Auth == nil || svc.Dispatcher == nil {
		return nil, fmt.Errorf("server needs an authenticator and a dispatcher")
	}
	return &ProxyServer{
		Router: chi.NewRouter(),
		svc:    svc,
		opts:   opts,
	}, nil
}

// MountHandlers sets up all HTTP routes and middleware for the server.
func (s *ProxyServer) MountHandlers() {
	s.Router.Use(middleware.RequestLogger)
	s.Router.Use(middleware.PanicHandler)
	if s.opts.RequestTimeout > 0 {
		s.Router.Use(middleware.SetTimeout(s.opts.RequestTimeout))
	}
	if s.opts.HandleCORS {
		s.Router.Use(s.HandleCORS)
	}
	s.mountResourceHandlers(s.Router)
	if zerolog.GlobalLevel() <= zerolog.TraceLevel {
		walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			log.Trace().Str("method", method).Str("route", route).Msg("route")
			return nil
		}
		if err := chi.Walk(s.Router, walkFunc); err != nil {
			log.Error().Err(err).Msg("error walking router")
		}
	}
}

// ResponseHandlerParam describes one route.
type ResponseHandlerParam struct {
	Methods []string
	Path    string
	Handler httpx.RequestHandler
}

func (s *ProxyServer) routes() []ResponseHandlerParam {
	d := s.svc.Dispatcher
	params := []ResponseHandlerParam{
		{
			Methods: []string{http.MethodPost},
			Path:    "/login",
			Handler: d.Login(s.svc.Auth),
		},
	}
	for _, ep := range trac.Endpoints() {
		params = append(params, ResponseHandlerParam{
			Methods: []string{http.MethodGet, http.MethodPost},
			Path:    "/" + ep.Name,
			Handler: d.Protected(ep),
		})
	}
	return params
}

func (s *ProxyServer) mountResourceHandlers(r chi.Router) {
	for _, route := range s.routes() {
		for _, method := range route.Methods {
			r.Method(method, route.Path, httpx.WrapHttpRsp(route.Handler))
		}
	}
	r.Get("/version", s.getVersion)
	r.Get("/ready", s.getReadiness)
	if s.svc.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.svc.Metrics.Handler())
	}
}

// GetVersionRsp represents the response for version information.
type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"`
	ApiVersion    string `json:"apiVersion"`
}

func (s *ProxyServer) getVersion(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("GetVersion")
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, httpx.DataEnvelope(&GetVersionRsp{
		ServerVersion: "pawprint " + Version,
		ApiVersion:    APIVersion,
	}))
}

func (s *ProxyServer) getReadiness(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready != nil {
		if err := s.svc.Ready(r.Context()); err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("readiness check failed")
			(&httpx.Error{
				StatusCode:  http.StatusServiceUnavailable,
				Code:        httpx.UnknownCode,
				Description: "session store unavailable",
			}).Send(w)
			return
		}
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, httpx.DataEnvelope(map[string]string{
		"status": "ready",
	}))
}

// HandleCORS provides CORS middleware for browser clients.
func (s *ProxyServer) HandleCORS(next http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding"},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})(next)
}
