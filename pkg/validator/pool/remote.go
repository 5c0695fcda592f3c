package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/semaphore"
)

const (
	tasksPath  = "/v1/tasks"
	healthPath = "/v1/health"

	contentTypeMsgpack = "application/msgpack"
)

// --- Wire types ---

type taskRequest[T any] struct {
	Task T `msgpack:"task"`
}

type taskResponse[R any] struct {
	WorkerID string `msgpack:"workerId"`
	Result   R      `msgpack:"result"`
	Error    string `msgpack:"error,omitempty"`
}

// Health is the body of GET /v1/health.
type Health struct {
	Capacity int    `json:"capacity"`
	Host     string `json:"host"`
}

// --- Remote ---

// Remote submits tasks to a worker server over HTTP. Task and result values
// travel as msgpack, so T and R must be msgpack-serializable.
type Remote[T, R any] struct {
	baseURL  string
	client   *http.Client
	capacity int
	sem      *semaphore.Weighted
	logger   *slog.Logger
	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// RemoteOptions configures a Remote pool.
type RemoteOptions struct {
	// Capacity caps in-flight requests. Zero uses the capacity the server
	// reports, which is also the upper bound.
	Capacity int
	Client   *http.Client
	Logger   slog.Handler
}

// NewRemote connects to the worker server at addr ("host:port" or a URL)
// and checks that it is healthy. A server that cannot be reached yields
// ErrPoolUnavailable.
func NewRemote[T, R any](ctx context.Context, addr string, opts RemoteOptions) (*Remote[T, R], error) {
	handler := opts.Logger
	if handler == nil {
		handler = slog.DiscardHandler
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	p := &Remote[T, R]{
		baseURL: normalizeAddr(addr),
		client:  client,
		logger:  slog.New(handler).With(slog.String("component", "pool.remote"), slog.String("addr", addr)),
	}

	health, err := p.health(ctx)
	if err != nil {
		return nil, err
	}
	capacity := health.Capacity
	if opts.Capacity > 0 && opts.Capacity < capacity {
		capacity = opts.Capacity
	}
	if capacity < 1 {
		return nil, fmt.Errorf("%w: %s reports capacity %d", ErrPoolUnavailable, addr, health.Capacity)
	}
	p.capacity = capacity
	p.sem = semaphore.NewWeighted(int64(capacity))
	p.logger.Info("Connected to worker server", slog.String("host", health.Host), slog.Int("capacity", capacity))
	return p, nil
}

func normalizeAddr(addr string) string {
	addr = strings.TrimRight(addr, "/")
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

func (p *Remote[T, R]) health(ctx context.Context) (Health, error) {
	var h Health
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+healthPath, nil)
	if err != nil {
		return h, fmt.Errorf("%w: %w", ErrPoolUnavailable, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return h, fmt.Errorf("%w: %w", ErrPoolUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return h, fmt.Errorf("%w: health check returned %s", ErrPoolUnavailable, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return h, fmt.Errorf("%w: decoding health response: %w", ErrPoolUnavailable, err)
	}
	return h, nil
}

// Capacity implements Pool.
func (p *Remote[T, R]) Capacity() int { return p.capacity }

// Submit implements Pool.
func (p *Remote[T, R]) Submit(ctx context.Context, task T) (*Future[R], error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.inflight.Add(1)
	p.mu.Unlock()

	body, err := msgpack.Marshal(&taskRequest[T]{Task: task})
	if err != nil {
		p.inflight.Done()
		return nil, fmt.Errorf("encoding task: %w", err)
	}

	f := newFuture[R]()
	go func() {
		defer p.inflight.Done()
		var zero R
		if err := p.sem.Acquire(ctx, 1); err != nil {
			f.complete("", zero, err)
			return
		}
		defer p.sem.Release(1)
		workerID, result, err := p.post(ctx, body)
		f.complete(workerID, result, err)
	}()
	return f, nil
}

func (p *Remote[T, R]) post(ctx context.Context, body []byte) (string, R, error) {
	var zero R
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+tasksPath, bytes.NewReader(body))
	if err != nil {
		return "", zero, err
	}
	req.Header.Set("Content-Type", contentTypeMsgpack)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", zero, ctx.Err()
		}
		return "", zero, fmt.Errorf("%w: %w", ErrPoolUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", zero, fmt.Errorf("%w: server returned %s: %s", ErrPoolUnavailable, resp.Status, strings.TrimSpace(string(msg)))
	}

	var out taskResponse[R]
	if err := msgpack.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", zero, fmt.Errorf("decoding task response: %w", err)
	}
	if out.Error != "" {
		p.logger.Debug("Remote task reported an error", slog.String("worker", out.WorkerID), slog.String("error", out.Error))
		return out.WorkerID, out.Result, fmt.Errorf("%w: %s", ErrTaskFailed, out.Error)
	}
	return out.WorkerID, out.Result, nil
}

// Close stops accepting tasks and waits for in-flight requests.
func (p *Remote[T, R]) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.inflight.Wait()
	p.client.CloseIdleConnections()
	return nil
}
