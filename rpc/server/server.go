// Package server answers batched rpc requests over HTTP and WebSocket. It
// backs the development server of rpcgen and the transport tests.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/ngAnzar/rpc/rpc"
	"github.com/rs/zerolog"
)

// MethodFunc handles one call.
type MethodFunc func(ctx context.Context, params any) (any, error)

// Server dispatches requests to registered methods.
type Server struct {
	mu      sync.RWMutex
	methods map[string]MethodFunc

	logger   zerolog.Logger
	metrics  *rpc.Metrics
	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics exposes m on /metrics.
func WithMetrics(m *rpc.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a server without methods.
func New(opts ...Option) *Server {
	s := &Server{
		methods: make(map[string]MethodFunc),
		logger:  zerolog.Nop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle registers fn under the dotted method name.
func (s *Server) Handle(method string, fn MethodFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods[method] = fn
}

// Methods returns the registered method names, sorted.
func (s *Server) Methods() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.methods))
	for n := range s.methods {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Router returns the HTTP routes: POST /rpc, GET /ws and /metrics when
// metrics are configured.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Post("/rpc", s.serveHTTP)
	r.Get("/ws", s.serveWS)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	return r
}

// Dispatch answers a batch, one response per request in request order.
func (s *Server) Dispatch(ctx context.Context, reqs []rpc.Request) []rpc.Response {
	out := make([]rpc.Response, len(reqs))
	for i, req := range reqs {
		id := req.ID
		out[i].ID = &id

		s.mu.RLock()
		fn, ok := s.methods[req.Method]
		s.mu.RUnlock()
		if !ok {
			out[i].Error = rpc.NewError(rpc.MethodNotFound, "method not found: %s", req.Method)
			continue
		}

		result, err := fn(ctx, req.Params)
		if err != nil {
			out[i].Error = toError(err)
			continue
		}
		out[i].Result = result
	}
	return out
}

func toError(err error) *rpc.Error {
	var rerr *rpc.Error
	if errors.As(err, &rerr) {
		return rerr
	}
	return &rpc.Error{
		Code:    rpc.ApplicationError,
		Message: err.Error(),
		Data:    map[string]any{"type": "ApplicationError"},
	}
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reqs, err := rpc.DecodeRequests(body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	data, err := rpc.EncodeResponses(s.Dispatch(r.Context(), reqs))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	data, _ := rpc.EncodeResponses([]rpc.Response{{Error: toError(err)}})
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug().Err(err).Msg("websocket read")
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		var resps []rpc.Response
		if reqs, err := rpc.DecodeRequests(msg); err != nil {
			resps = []rpc.Response{{Error: toError(err)}}
		} else {
			resps = s.Dispatch(r.Context(), reqs)
		}
		data, err := rpc.EncodeResponses(resps)
		if err != nil {
			s.logger.Error().Err(err).Msg("encode responses")
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug().Err(err).Msg("websocket write")
			return
		}
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/ws") {
			return
		}
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
