package pool

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"
)

// Server exposes a Local pool over HTTP for Remote clients.
type Server[T, R any] struct {
	local  *Local[T, R]
	host   string
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewServer wraps local. The hostname is reported by the health endpoint.
func NewServer[T, R any](local *Local[T, R], loggerHandler slog.Handler) *Server[T, R] {
	if loggerHandler == nil {
		loggerHandler = slog.DiscardHandler
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	s := &Server[T, R]{
		local:  local,
		host:   host,
		logger: slog.New(loggerHandler).With(slog.String("component", "pool.server")),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET "+healthPath, s.handleHealth)
	s.mux.HandleFunc("POST "+tasksPath, s.handleTask)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server[T, R]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server[T, R]) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Health{Capacity: s.local.Capacity(), Host: s.host})
}

func (s *Server[T, R]) handleTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest[T]
	if err := msgpack.NewDecoder(r.Body).Decode(&req); err != nil {
		s.logger.Warn("Rejecting undecodable task", slog.String("remote", r.RemoteAddr), slog.String("error", err.Error()))
		http.Error(w, "invalid task body: "+err.Error(), http.StatusBadRequest)
		return
	}

	start := time.Now()
	workerID, result, err := s.local.Run(r.Context(), req.Task)
	resp := taskResponse[R]{WorkerID: workerID, Result: result}
	if err != nil {
		if errors.Is(err, ErrPoolClosed) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		resp.Error = err.Error()
	}
	s.logger.Debug("Task served",
		slog.String("worker", workerID),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("failed", err != nil))

	w.Header().Set("Content-Type", contentTypeMsgpack)
	if encErr := msgpack.NewEncoder(w).Encode(&resp); encErr != nil {
		s.logger.Error("Failed to write task response", slog.String("error", encErr.Error()))
	}
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, loggerHandler slog.Handler) error {
	if loggerHandler == nil {
		loggerHandler = slog.DiscardHandler
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "pool.server"))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Worker server listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		logger.Info("Worker server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
