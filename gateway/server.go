// Package gateway exposes a contract VM over HTTP with JSON bodies.
//
//	POST /contracts                  instantiate, body is the instantiate message
//	POST /contracts/{addr}/execute   execute, caller in the X-Sender header
//	POST /contracts/{addr}/query     query
//	GET  /metrics                    Prometheus metrics
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/govm-net/counter/api"
	"github.com/govm-net/counter/core"
)

// SenderHeader carries the caller's address, hex or a name.
const SenderHeader = "X-Sender"

// Config configures the gateway.
type Config struct {
	Listen       string  `yaml:"listen"`
	Code         string  `yaml:"code"`           // code instantiated by POST /contracts
	RateLimit    float64 `yaml:"rate_limit"`     // requests per second per sender, 0 disables
	RateBurst    int     `yaml:"rate_burst"`     // bucket size
	MaxBodyBytes int64   `yaml:"max_body_bytes"` // request body limit
}

func DefaultConfig() Config {
	return Config{
		Listen:       "127.0.0.1:8080",
		Code:         "counter",
		RateLimit:    30,
		RateBurst:    60,
		MaxBodyBytes: 64 * 1024,
	}
}

// Server is the HTTP front end of a VM.
type Server struct {
	vm      api.VM
	config  Config
	limiter *MapLimiter
	metrics *Metrics
	mux     *http.ServeMux
	now     func() time.Time
}

// APIResponse is the envelope of every JSON reply.
type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// InstantiateResult is the data of a successful POST /contracts.
type InstantiateResult struct {
	Address    core.Address     `json:"address"`
	Attributes []core.Attribute `json:"attributes"`
}

func NewServer(vm api.VM, config Config) *Server {
	s := &Server{
		vm:      vm,
		config:  config,
		limiter: NewMapLimiter(config.RateLimit, config.RateBurst, 0),
		metrics: NewMetrics(),
		mux:     http.NewServeMux(),
		now:     time.Now,
	}
	s.handle("POST /contracts", "instantiate", s.handleInstantiate)
	s.handle("POST /contracts/{addr}/execute", "execute", s.handleExecute)
	s.handle("POST /contracts/{addr}/query", "query", s.handleQuery)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
	return s
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", s.config.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("gateway shutdown: %w", err)
		}
		return nil
	}
}

// statusRecorder keeps the status code for metrics and logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) handle(pattern, route string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		elapsed := s.now().Sub(start)
		s.metrics.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())
		slog.Debug("request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", elapsed)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := APIResponse{
		Status:  http.StatusText(status),
		Message: message,
		Data:    data,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// statusOf maps VM errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrInvalidMessage), errors.Is(err, core.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrContractNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func resultOf(err error) string {
	switch statusOf(err) {
	case http.StatusForbidden:
		return "unauthorized"
	case http.StatusBadRequest:
		return "invalid"
	case http.StatusNotFound:
		return "not_found"
	default:
		return "error"
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error("contract call failed", "error", err)
	}
	s.writeJSON(w, status, err.Error(), nil)
}

// readBody reads the message and checks the request is still wanted.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		s.writeJSON(w, http.StatusRequestEntityTooLarge, err.Error(), nil)
		return nil, false
	}
	if err := r.Context().Err(); err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, err.Error(), nil)
		return nil, false
	}
	return body, true
}

func (s *Server) sender(w http.ResponseWriter, r *http.Request) (core.Address, bool) {
	raw := strings.TrimSpace(r.Header.Get(SenderHeader))
	if raw == "" {
		s.writeJSON(w, http.StatusBadRequest, "missing "+SenderHeader+" header", nil)
		return core.ZeroAddress, false
	}
	addr := core.ResolveAddress(raw)
	if !s.limiter.Allow("sender:"+addr.String(), s.now()) {
		s.metrics.rateLimited.Inc()
		s.writeJSON(w, http.StatusTooManyRequests, "Too many requests", nil)
		return core.ZeroAddress, false
	}
	return addr, true
}

func (s *Server) contract(w http.ResponseWriter, r *http.Request) (core.Address, bool) {
	addr, err := core.ParseAddress(r.PathValue("addr"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, err.Error(), nil)
		return core.ZeroAddress, false
	}
	return addr, true
}

func (s *Server) handleInstantiate(w http.ResponseWriter, r *http.Request) {
	sender, ok := s.sender(w, r)
	if !ok {
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	addr, resp, err := s.vm.Instantiate(s.config.Code, sender, body)
	if err != nil {
		s.metrics.executions.WithLabelValues("instantiate", resultOf(err)).Inc()
		s.writeError(w, err)
		return
	}
	s.metrics.executions.WithLabelValues("instantiate", "ok").Inc()
	s.writeJSON(w, http.StatusCreated, "", InstantiateResult{Address: addr, Attributes: resp.Attributes})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	contract, ok := s.contract(w, r)
	if !ok {
		return
	}
	sender, ok := s.sender(w, r)
	if !ok {
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	resp, err := s.vm.Execute(contract, sender, body)
	if err != nil {
		s.metrics.executions.WithLabelValues("unknown", resultOf(err)).Inc()
		s.writeError(w, err)
		return
	}
	action, _ := resp.Attribute("action")
	s.metrics.executions.WithLabelValues(action, "ok").Inc()
	s.writeJSON(w, http.StatusOK, "", resp)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	contract, ok := s.contract(w, r)
	if !ok {
		return
	}
	if !s.limiter.Allow(remoteKey(r), s.now()) {
		s.metrics.rateLimited.Inc()
		s.writeJSON(w, http.StatusTooManyRequests, "Too many requests", nil)
		return
	}
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	out, err := s.vm.Query(contract, body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, "", json.RawMessage(out))
}

// remoteKey identifies anonymous callers by IP.
func remoteKey(r *http.Request) string {
	remote := strings.TrimSpace(r.RemoteAddr)
	if remote == "" {
		return "ip:unknown"
	}
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return "ip:" + remote
	}
	return "ip:" + host
}
