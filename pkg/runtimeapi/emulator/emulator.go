// Package emulator provides an in-memory runtime API for running the
// bootstrap outside of a real execution environment.
package emulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/3s-rg-codes/faas-runtime/pkg/runtimeapi"
)

const invocationPrefix = "/" + runtimeapi.APIVersion + "/runtime/invocation/"

type Config struct {
	// FunctionARN is sent with every invocation.
	FunctionARN string
	// FunctionTimeout is added to the time an event is handed out to compute its deadline.
	FunctionTimeout time.Duration
	// QueueSize bounds the number of events waiting to be fetched. Enqueue blocks when it is full.
	QueueSize int
}

func (c *Config) applyDefaults() {
	if c.FunctionARN == "" {
		c.FunctionARN = "arn:aws:lambda:local:000000000000:function:emulated"
	}
	if c.FunctionTimeout <= 0 {
		c.FunctionTimeout = 3 * time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
}

type pendingEvent struct {
	requestID string
	payload   []byte
}

// Server hands out queued events on next and records what the runtime posts back.
type Server struct {
	config  Config
	logger  *slog.Logger
	pending chan pendingEvent

	lock      sync.RWMutex
	inflight  map[string]struct{}
	responses map[string][]byte
	errors    map[string]runtimeapi.ErrorReport
}

func New(config Config, logger *slog.Logger) *Server {
	config.applyDefaults()
	return &Server{
		config:    config,
		logger:    logger,
		pending:   make(chan pendingEvent, config.QueueSize),
		inflight:  make(map[string]struct{}),
		responses: make(map[string][]byte),
		errors:    make(map[string]runtimeapi.ErrorReport),
	}
}

// Enqueue queues payload for the next fetch and returns the request id it will be served with.
func (s *Server) Enqueue(payload []byte) string {
	id := uuid.New().String()
	s.pending <- pendingEvent{requestID: id, payload: payload}
	s.logger.Debug("Queued event", "request_id", id, "size", len(payload))
	return id
}

// Response returns the body posted for id.
func (s *Server) Response(id string) ([]byte, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	b, ok := s.responses[id]
	return b, ok
}

// ErrorReport returns the error posted for id.
func (s *Server) ErrorReport(id string) (runtimeapi.ErrorReport, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	r, ok := s.errors[id]
	return r, ok
}

// Pending returns the number of queued events not yet fetched.
func (s *Server) Pending() int {
	return len(s.pending)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+invocationPrefix+"next", s.handleNext)
	mux.HandleFunc("POST "+invocationPrefix+"{id}/response", s.handleResponse)
	mux.HandleFunc("POST "+invocationPrefix+"{id}/error", s.handleError)
	return mux
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	server := http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Runtime API emulator starting", "address", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Gracefully shutting down runtime API emulator")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("emulator forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	var ev pendingEvent
	select {
	case ev = <-s.pending:
	case <-r.Context().Done():
		return
	}

	s.lock.Lock()
	s.inflight[ev.requestID] = struct{}{}
	s.lock.Unlock()

	deadline := time.Now().Add(s.config.FunctionTimeout)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(runtimeapi.RequestIDHeader, ev.requestID)
	w.Header().Set(runtimeapi.DeadlineHeader, strconv.FormatInt(deadline.UnixMilli(), 10))
	w.Header().Set(runtimeapi.FunctionARNHeader, s.config.FunctionARN)
	w.Header().Set(runtimeapi.TraceIDHeader, "Root="+uuid.NewString())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(ev.payload); err != nil {
		s.logger.Error("Error writing event", "request_id", ev.requestID, "error", err)
	}
	s.logger.Debug("Handed out event", "request_id", ev.requestID)
}

func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, ok := s.readBody(w, r)
	if !ok {
		return
	}

	s.lock.Lock()
	status := s.complete(id)
	if status == http.StatusAccepted {
		s.responses[id] = b
	}
	s.lock.Unlock()

	s.reply(w, id, status)
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	b, ok := s.readBody(w, r)
	if !ok {
		return
	}

	var report runtimeapi.ErrorReport
	if err := json.Unmarshal(b, &report); err != nil {
		writeJSON(w, http.StatusBadRequest, runtimeapi.ErrorReport{ErrorMessage: "error report is not valid JSON", ErrorType: "InvalidErrorShape"})
		return
	}
	if report.ErrorType == "" {
		report.ErrorType = r.Header.Get(runtimeapi.ErrorTypeHeader)
	}

	s.lock.Lock()
	status := s.complete(id)
	if status == http.StatusAccepted {
		s.errors[id] = report
	}
	s.lock.Unlock()

	s.reply(w, id, status)
}

// complete moves id out of the inflight set. The caller must hold the lock.
func (s *Server) complete(id string) int {
	if _, ok := s.inflight[id]; ok {
		delete(s.inflight, id)
		return http.StatusAccepted
	}
	_, answered := s.responses[id]
	_, failed := s.errors[id]
	if answered || failed {
		return http.StatusConflict
	}
	return http.StatusNotFound
}

func (s *Server) reply(w http.ResponseWriter, id string, status int) {
	switch status {
	case http.StatusAccepted:
		s.logger.Debug("Invocation completed", "request_id", id)
		writeJSON(w, status, map[string]string{"status": "OK"})
	case http.StatusConflict:
		s.logger.Warn("Invocation already completed", "request_id", id)
		writeJSON(w, status, runtimeapi.ErrorReport{ErrorMessage: "invocation already completed: " + id, ErrorType: "InvalidStateTransition"})
	default:
		s.logger.Warn("Unknown request id", "request_id", id)
		writeJSON(w, status, runtimeapi.ErrorReport{ErrorMessage: "unknown request id: " + id, ErrorType: "InvalidRequestID"})
	}
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			s.logger.Error("Error closing the request body", "error", err)
		}
	}(r.Body)

	b, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return nil, false
	}
	return b, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to marshal response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
