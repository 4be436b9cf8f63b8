package lifecycle

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// CloseFunc releases one resource held by a command.
type CloseFunc func(ctx context.Context) error

type hook struct {
	name string
	fn   CloseFunc
}

// Manager releases the resources of a command run and turns an interrupt
// into a cancelled context.
type Manager struct {
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	hooks []hook
}

func New(timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a close hook. Hooks run in reverse order of registration.
func (m *Manager) Register(name string, fn CloseFunc) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// RegisterCloser registers c.Close as a hook.
func (m *Manager) RegisterCloser(name string, c io.Closer) {
	if c == nil {
		return
	}
	m.Register(name, func(context.Context) error {
		return c.Close()
	})
}

// Shutdown runs every hook once within the configured timeout and joins their errors.
func (m *Manager) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	m.mu.Lock()
	hooks := m.hooks
	m.hooks = nil
	m.mu.Unlock()

	var result error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if err := h.fn(ctx); err != nil {
			m.logger.Error("close hook failed", zap.String("component", h.name), zap.Error(err))
			result = errors.Join(result, err)
			continue
		}
		m.logger.Debug("component closed", zap.String("component", h.name))
	}
	return result
}

// Listen cancels the returned context on SIGINT or SIGTERM. Calling the
// returned cancel releases the signal handler.
func (m *Manager) Listen(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			m.logger.Info("interrupted", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
