// Package shutdown runs registered cleanup steps when the process is asked
// to stop.
package shutdown

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"teamart/internal/pkg/logger"
)

// DefaultTimeout bounds the whole cleanup sequence.
const DefaultTimeout = 30 * time.Second

type step struct {
	name string
	fn   func(ctx context.Context) error
}

// Manager runs cleanup steps last registered first. Its Context is the base
// context for in-flight work and is canceled once cleanup ends, so requests
// still running when the timeout hits are aborted.
type Manager struct {
	log     *logger.Logger
	timeout time.Duration

	mu    sync.Mutex
	steps []step

	once   sync.Once
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (m *Manager) Register(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	m.steps = append(m.steps, step{name: name, fn: fn})
	m.mu.Unlock()
}

// Wait blocks until SIGINT, SIGTERM or SIGHUP, then runs Shutdown.
func (m *Manager) Wait() {
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	<-sigCtx.Done()
	stop()
	m.log.Info("shutdown signal received")
	m.Shutdown()
}

// Shutdown runs the steps one at a time within the timeout. Only the first
// call does anything; later calls return immediately.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		defer close(m.done)
		defer m.cancel()

		m.mu.Lock()
		steps := append([]step(nil), m.steps...)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.log.Info("starting graceful shutdown", "steps", len(steps), "timeout", m.timeout.String())

		finished := make(chan struct{})
		go func() {
			defer close(finished)
			for i := len(steps) - 1; i >= 0 && ctx.Err() == nil; i-- {
				m.run(ctx, steps[i])
			}
		}()

		select {
		case <-finished:
			m.log.Info("graceful shutdown completed")
		case <-ctx.Done():
			m.log.Warn("shutdown timeout exceeded, forcing exit")
		}
	})
}

func (m *Manager) run(ctx context.Context, s step) {
	start := time.Now()
	err := s.fn(ctx)
	ms := time.Since(start).Milliseconds()
	if err != nil {
		m.log.Error("shutdown step failed", "step", s.name, "error", err.Error(), "duration_ms", ms)
		return
	}
	m.log.Debug("shutdown step completed", "step", s.name, "duration_ms", ms)
}

// Done is closed when Shutdown has finished.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Context is canceled when Shutdown has finished or timed out.
func (m *Manager) Context() context.Context { return m.ctx }
