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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"vsachain/core"
	"vsachain/integrations/archive"
	"vsachain/integrations/exports"
	"vsachain/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	defaultReadHeaderTimeout = 10 * time.Second
)

// Config controls the HTTP surface of the node.
type Config struct {
	JWTSecret          string
	JWTIssuer          string
	RateLimitPerSecond float64
	RateLimitBurst     int
	// TrustedProxies lists IPs or CIDRs whose X-Forwarded-For header is
	// honoured when identifying clients.
	TrustedProxies []string
	// AllowedOrigins are host patterns accepted for cross-origin websocket
	// connections. Empty restricts the event stream to same-origin clients.
	AllowedOrigins    []string
	ReadHeaderTimeout time.Duration
}

// Server exposes the node over JSON-RPC, a websocket event stream, health and
// metrics endpoints.
type Server struct {
	node     *core.Node
	cfg      Config
	logger   *slog.Logger
	auth     *adminAuth
	limiter  *clientLimiter
	trusted  []*net.IPNet
	archive  *archive.Store
	exporter *exports.Exporter
	handlers map[string]handlerSpec

	httpServer *http.Server
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithArchive enables auction_listEvents.
func WithArchive(store *archive.Store) Option {
	return func(s *Server) { s.archive = store }
}

// WithExporter enables auction_export.
func WithExporter(exporter *exports.Exporter) Option {
	return func(s *Server) { s.exporter = exporter }
}

// NewServer validates cfg and builds the method table.
func NewServer(node *core.Node, cfg Config, opts ...Option) (*Server, error) {
	if node == nil {
		return nil, errors.New("rpc: node required")
	}
	trusted, err := parseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	s := &Server{
		node:    node,
		cfg:     cfg,
		logger:  slog.Default(),
		auth:    newAdminAuth(cfg.JWTSecret, cfg.JWTIssuer),
		limiter: newClientLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		trusted: trusted,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handlers = s.methodTable()
	return s, nil
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(limited chi.Router) {
		limited.Use(s.rateLimit)
		limited.Post("/", s.handle)
		limited.Get("/ws/events", s.handleEventsWS)
	})
	return otelhttp.NewHandler(r, "vsad.rpc")
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	timeout := s.cfg.ReadHeaderTimeout
	if timeout <= 0 {
		timeout = defaultReadHeaderTimeout
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: timeout,
	}
	s.logger.Info("json-rpc server listening", slog.String("addr", ln.Addr().String()))
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// codeRecorder remembers the JSON-RPC error code written for metrics.
type codeRecorder struct {
	http.ResponseWriter
	code int
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if rec, ok := w.(*codeRecorder); ok {
		rec.code = code
	}
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

type handlerSpec struct {
	fn    handlerFunc
	admin bool
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
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
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
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

	spec, ok := s.handlers[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method), nil)
		return
	}

	rec := &codeRecorder{ResponseWriter: w}
	start := time.Now()
	defer func() {
		observability.ModuleMetrics().Observe(moduleOf(req.Method), req.Method, rec.code, time.Since(start))
	}()

	if spec.admin {
		if authErr := s.auth.authorize(r); authErr != nil {
			writeError(rec, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
	}
	spec.fn(rec, r, req)
}

func moduleOf(method string) string {
	if idx := strings.IndexByte(method, '_'); idx > 0 {
		return method[:idx]
	}
	return method
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "ok",
		"nativeToken": s.node.NativeToken(),
		"time":        s.node.Now(),
		"subscribers": s.node.Feed().Subscribers(),
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.allow(s.clientSource(r)) {
			observability.ModuleMetrics().RecordThrottle("rpc", "rate_limit")
			w.Header().Set("Content-Type", "application/json")
			writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func parseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	var out []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("rpc: invalid trusted proxy %q", entry)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("rpc: invalid trusted proxy %q: %w", entry, err)
		}
		out = append(out, network)
	}
	return out, nil
}

// clientSource identifies the caller for rate limiting. X-Forwarded-For is
// only honoured when the direct peer is a trusted proxy.
func (s *Server) clientSource(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" && s.isTrusted(host) {
		parts := strings.Split(forwarded, ",")
		if candidate := strings.TrimSpace(parts[0]); candidate != "" {
			return candidate
		}
	}
	return host
}

func (s *Server) isTrusted(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, network := range s.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
