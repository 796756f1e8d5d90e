package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"klubstake/core"
	"klubstake/core/events"
	"klubstake/crypto"
	"klubstake/journal"
	"klubstake/observability"
	"klubstake/observability/logging"
)

const (
	moduleName        = "klub"
	requestIDHeader   = "X-Request-ID"
	readHeaderTimeout = 10 * time.Second
)

type ctxKey string

const requestIDContextKey ctxKey = "rpc.request_id"

// JournalReader exposes journal entries to the klub_journal method.
type JournalReader interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
	ByHeight(ctx context.Context, height uint64) (*journal.Entry, error)
}

// ServerConfig tunes the JSON-RPC server.
type ServerConfig struct {
	JWT             JWTConfig
	RateLimit       RateLimit
	MaxRequestBytes int64
	ServiceName     string
	// TrustedProxies lists peers (addresses or CIDR ranges) whose
	// X-Real-IP and X-Forwarded-For headers identify the client.
	TrustedProxies []string
}

type call struct {
	ctx           context.Context
	req           *RPCRequest
	caller        crypto.Address
	authenticated bool
}

type method struct {
	write   bool
	handler func(s *Server, c *call) (interface{}, *RPCError)
}

// Server is the JSON-RPC front end of the ledger.
type Server struct {
	app     *core.App
	hub     *events.Hub
	journal JournalReader
	cfg     ServerConfig
	auth    *authenticator
	limiter *rateLimiter
	proxies []*net.IPNet
	logger  *slog.Logger
	methods map[string]method

	serverMu   sync.Mutex
	httpServer *http.Server
}

// NewServer wires the ledger, event hub and optional journal into a server.
func NewServer(app *core.App, hub *events.Hub, jr JournalReader, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if app == nil {
		return nil, errors.New("rpc: app must not be nil")
	}
	auth, err := newAuthenticator(cfg.JWT)
	if err != nil {
		return nil, err
	}
	proxies, err := ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	if cfg.MaxRequestBytes <= 0 {
		cfg.MaxRequestBytes = defaultMaxRequestBytes
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "klubd-rpc"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		app:     app,
		hub:     hub,
		journal: jr,
		cfg:     cfg,
		auth:    auth,
		limiter: newRateLimiter(cfg.RateLimit),
		proxies: proxies,
		logger:  logger.With(slog.String("component", "rpc")),
		methods: methodTable(),
	}, nil
}

// Handler returns the instrumented HTTP handler serving JSON-RPC, the event
// stream, metrics and health checks.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Post("/", s.handle)
	r.Get("/ws/events", s.handleEventsWS)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return otelhttp.NewHandler(r, s.cfg.ServiceName)
}

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: readHeaderTimeout}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	caller, authenticated, err := s.auth.callerFrom(r)
	if err != nil {
		s.finish(req.Method, started, codeUnauthorized)
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "invalid token", err.Error())
		return
	}
	visitor := clientIP(r, s.proxies)
	if authenticated {
		visitor = caller.String()
	}
	if !s.limiter.allow(visitor) {
		observability.ModuleMetrics().RecordThrottle(moduleName, "rate_limit")
		s.finish(req.Method, started, codeRateLimited)
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	m, ok := s.methods[req.Method]
	if !ok {
		s.finish(req.Method, started, codeMethodNotFound)
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
		return
	}

	c := &call{ctx: r.Context(), req: req, caller: caller, authenticated: authenticated}
	result, rpcErr := m.handler(s, c)
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
	}
	s.finish(req.Method, started, code)
	if m.write {
		outcome := "committed"
		if rpcErr != nil {
			outcome = "rejected"
		}
		s.logger.Info("rpc action",
			slog.String("method", req.Method),
			slog.String("caller", c.caller.String()),
			slog.String("requestId", requestIDFrom(r.Context())),
			slog.String("outcome", outcome),
			logging.MaskField("remote", visitor))
	}
	if rpcErr != nil {
		writeRPCError(w, req.ID, rpcErr)
		return
	}
	writeResult(w, req.ID, result)
}

func (s *Server) finish(method string, started time.Time, code int) {
	observability.ModuleMetrics().Observe(moduleName, method, code, time.Since(started))
}

func decodeParams(req *RPCRequest, dst interface{}) *RPCError {
	if len(req.Params) == 0 {
		return nil
	}
	if len(req.Params) != 1 {
		return newRPCError(http.StatusBadRequest, codeInvalidParams, "expected a single params object", nil)
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return newRPCError(http.StatusBadRequest, codeInvalidParams, "invalid params", err.Error())
	}
	return nil
}

// resolveSender decides which identity a write acts as. With JWT enabled the
// token subject is authoritative; otherwise the params must name the sender.
func (s *Server) resolveSender(c *call, claimed string) (crypto.Address, *RPCError) {
	claimed = strings.TrimSpace(claimed)
	if c.authenticated {
		if claimed != "" && claimed != c.caller.String() {
			return crypto.Address{}, newRPCError(http.StatusForbidden, codeUnauthorized, "sender does not match token subject", nil)
		}
		return c.caller, nil
	}
	if s.auth.cfg.Enable {
		return crypto.Address{}, newRPCError(http.StatusUnauthorized, codeUnauthorized, "bearer token required", nil)
	}
	if claimed == "" {
		return crypto.Address{}, newRPCError(http.StatusBadRequest, codeInvalidParams, "sender required", nil)
	}
	addr, err := crypto.ParseAddress(crypto.KlubPrefix, claimed)
	if err != nil {
		return crypto.Address{}, newRPCError(http.StatusBadRequest, codeInvalidParams, "invalid sender", err.Error())
	}
	return addr, nil
}
