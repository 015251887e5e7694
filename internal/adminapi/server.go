// Package adminapi defines the JSON-over-HTTP contract between ztpiped and
// ztpipectl: a plain status/inspection surface for the running adapter,
// layered on top of the daemon's endpoint/pipe operations without a
// protobuf schema or RPC framework.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/ztpipe/ztpipe/internal/addrbook"
	"github.com/ztpipe/ztpipe/internal/overlay"
	"github.com/ztpipe/ztpipe/internal/ztproto"
	"github.com/ztpipe/ztpipe/internal/zturl"
)

// Version is the build-reported adapter version, overridden at link time.
var Version = "dev"

// ErrPanicRecovered indicates a handler panicked and was recovered.
var ErrPanicRecovered = errors.New("panic recovered in admin handler")

// dialTimeout bounds how long POST /v1/dial waits for the connect-request
// retry loop (13 attempts at 5s = 65s worst case) to complete.
const dialTimeout = 65 * time.Second

// Server implements the admin HTTP surface over a single overlay.Host.
type Server struct {
	host      *overlay.Host
	logger    *slog.Logger
	startedAt time.Time
}

// New constructs a Server and returns the path prefix and handler to mount,
// mirroring server.New's (path, http.Handler) shape in the BFD daemon.
func New(host *overlay.Host, logger *slog.Logger) (string, http.Handler) {
	s := &Server{
		host:      host,
		logger:    logger.With(slog.String("component", "adminapi")),
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/endpoints", s.handleEndpoints)
	mux.HandleFunc("GET /v1/pipes", s.handlePipes)
	mux.HandleFunc("POST /v1/dial", s.handleDial)
	mux.HandleFunc("POST /v1/listen", s.handleListen)

	return "/v1/", recoveryMiddleware(s.logger, loggingMiddleware(s.logger, mux))
}

// loggingMiddleware logs every request with its method, path, status, and
// duration, mirroring server.LoggingInterceptor's per-call accounting.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		duration := time.Since(start)

		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.status),
			slog.Duration("duration", duration),
		}
		level := slog.LevelInfo
		if sw.status >= 400 {
			level = slog.LevelWarn
		}
		logger.LogAttrs(r.Context(), level, "admin request completed", attrs...)
	})
}

// recoveryMiddleware recovers from panics in handlers, logs the stack, and
// responds with a 500, mirroring server.RecoveryInterceptor.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				logger.ErrorContext(r.Context(), "panic recovered in admin handler",
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
					slog.String("stack", string(buf[:n])),
				)
				writeError(w, http.StatusInternalServerError, fmt.Errorf("%s: %w", r.URL.Path, ErrPanicRecovered))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	endpoints, pipes := s.host.Snapshot()

	writeJSON(w, http.StatusOK, StatusResponse{
		Version:     Version,
		NodeAddress: strconv.FormatUint(uint64(s.host.NodeAddress()), 16),
		UptimeSec:   int64(time.Since(s.startedAt).Seconds()),
		Endpoints:   len(endpoints),
		Pipes:       len(pipes),
	})
}

func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	endpoints, _ := s.host.Snapshot()

	views := make([]EndpointView, 0, len(endpoints))
	for _, ep := range endpoints {
		views = append(views, EndpointView{
			LocalAddr: ep.LocalAddr.String(),
			NWID:      strconv.FormatUint(ep.NWID, 16),
			Mode:      ep.Mode.String(),
			State:     ep.State.String(),
			Protocol:  ep.Protocol,
		})
	}
	writeJSON(w, http.StatusOK, EndpointsResponse{Endpoints: views})
}

func (s *Server) handlePipes(w http.ResponseWriter, r *http.Request) {
	_, pipes := s.host.Snapshot()

	views := make([]PipeView, 0, len(pipes))
	for _, p := range pipes {
		views = append(views, PipeView{
			LocalAddr:    p.LocalAddr.String(),
			RemoteAddr:   p.RemoteAddr.String(),
			NWID:         strconv.FormatUint(p.NWID, 16),
			State:        p.State.String(),
			PeerProtocol: p.PeerProtocol,
		})
	}
	writeJSON(w, http.StatusOK, PipesResponse{Pipes: views})
}

func (s *Server) handleListen(w http.ResponseWriter, r *http.Request) {
	var req ListenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode listen request: %w", err))
		return
	}

	target, err := zturl.Parse(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ep, err := s.host.Bind(ztproto.ModeListen, target.NWID, target.Node, target.Port, req.Protocol, req.RecvMaxSize)
	if err != nil {
		writeError(w, mapErrorStatus(err), fmt.Errorf("listen: bind endpoint: %w", err))
		return
	}

	if err := s.host.Accept(ep, func(p *ztproto.Pipe, err error) {
		if err != nil {
			s.logger.WarnContext(r.Context(), "accept failed", slog.String("url", req.URL), slog.Any("error", err))
			return
		}
		s.logger.InfoContext(r.Context(), "accepted pipe",
			slog.String("url", req.URL), slog.String("remote", p.RemoteAddr().String()))
	}); err != nil {
		writeError(w, mapErrorStatus(err), fmt.Errorf("listen: %w", err))
		return
	}

	s.logger.InfoContext(r.Context(), "listen registered", slog.String("url", req.URL))

	writeJSON(w, http.StatusOK, ListenResponse{Endpoint: EndpointView{
		LocalAddr: ep.LocalAddr().String(),
		NWID:      strconv.FormatUint(target.NWID, 16),
		Mode:      ztproto.ModeListen.String(),
		State:     ep.State().String(),
		Protocol:  req.Protocol,
	}})
}

func (s *Server) handleDial(w http.ResponseWriter, r *http.Request) {
	var req DialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode dial request: %w", err))
		return
	}

	target, err := zturl.Parse(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if target.Node == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("dial: %w: remote node required", zturl.ErrBadNode))
		return
	}

	ep, err := s.host.Bind(ztproto.ModeDial, target.NWID, 0, 0, req.Protocol, req.RecvMaxSize)
	if err != nil {
		writeError(w, mapErrorStatus(err), fmt.Errorf("dial: bind local endpoint: %w", err))
		return
	}

	remote := addrbook.NewAddr(target.Node, target.Port)

	ctx, cancel := context.WithTimeout(r.Context(), dialTimeout)
	defer cancel()

	done := make(chan struct {
		pipe *ztproto.Pipe
		err  error
	}, 1)

	if err := s.host.Connect(ep, remote, func(p *ztproto.Pipe, err error) {
		done <- struct {
			pipe *ztproto.Pipe
			err  error
		}{p, err}
	}); err != nil {
		s.host.CloseEndpoint(ep)
		writeError(w, mapErrorStatus(err), fmt.Errorf("dial: %w", err))
		return
	}

	select {
	case <-ctx.Done():
		s.host.CloseEndpoint(ep)
		writeError(w, http.StatusGatewayTimeout, fmt.Errorf("dial: %w", ctx.Err()))
	case result := <-done:
		if result.err != nil {
			writeError(w, mapErrorStatus(result.err), fmt.Errorf("dial: %w", result.err))
			return
		}
		s.logger.InfoContext(r.Context(), "dial completed", slog.String("url", req.URL))
		writeJSON(w, http.StatusOK, DialResponse{Pipe: PipeView{
			LocalAddr:    result.pipe.LocalAddr().String(),
			RemoteAddr:   result.pipe.RemoteAddr().String(),
			NWID:         strconv.FormatUint(target.NWID, 16),
			State:        result.pipe.State().String(),
			PeerProtocol: result.pipe.PeerProtocol(),
		}})
	}
}


// mapErrorStatus translates a ztproto.Kind into an HTTP status code,
// mirroring server.mapManagerError's Kind-to-ConnectRPC-code switch.
func mapErrorStatus(err error) int {
	switch ztproto.KindOf(err) {
	case ztproto.KindAddressInUse:
		return http.StatusConflict
	case ztproto.KindAddressInvalid, ztproto.KindInvalid:
		return http.StatusBadRequest
	case ztproto.KindClosed:
		return http.StatusGone
	case ztproto.KindTimedOut:
		return http.StatusGatewayTimeout
	case ztproto.KindConnectionRefused:
		return http.StatusBadGateway
	case ztproto.KindMessageTooLarge:
		return http.StatusRequestEntityTooLarge
	case ztproto.KindUnsupported:
		return http.StatusNotImplemented
	case ztproto.KindPermission:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
