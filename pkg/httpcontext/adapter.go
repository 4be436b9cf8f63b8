package httpcontext

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	appLogger "github.com/fastygo/magiclink/pkg/logger"
)

// HeaderRequestID is the header used to correlate client and server logs.
const HeaderRequestID = "X-Request-ID"

// Adapter derives per-action contexts with deadlines and a request ID.
type Adapter struct {
	timeout time.Duration
}

// NewAdapter constructs a new Adapter using the provided timeout.
func NewAdapter(timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Adapter{
		timeout: timeout,
	}
}

// Attach creates a context with the adapter timeout and makes sure it carries a request ID.
func (a *Adapter) Attach(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}

	stdCtx, cancel := context.WithTimeout(parent, a.timeout)
	return EnsureRequestID(stdCtx), cancel
}

// EnsureRequestID returns ctx unchanged when it already has a request ID,
// otherwise a child context with a fresh one.
func EnsureRequestID(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(appLogger.RequestIDFromContext(ctx)) != "" {
		return ctx
	}
	return appLogger.ContextWithRequestID(ctx, uuid.NewString())
}
