package testutil

import (
	"encoding/json"
	"net"
	"os"
	"sync"
	"testing"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/fastygo/magiclink/internal/middleware"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

// Call is one request observed by FakeAPI.
type Call struct {
	Method        string
	Path          string
	Query         map[string][]string
	Authorization string
	ContentType   string
	RequestID     string
	Body          []byte
}

// FakeAPI serves a router over an in-memory listener so clients can be
// exercised without opening sockets.
type FakeAPI struct {
	Router *router.Router

	ln     *fasthttputil.InmemoryListener
	server *fasthttp.Server

	mu    sync.Mutex
	calls []Call
}

// NewFakeAPI starts a fake API that is shut down when the test ends.
func NewFakeAPI(t testing.TB) *FakeAPI {
	t.Helper()

	f := &FakeAPI{
		Router: router.New(),
		ln:     fasthttputil.NewInmemoryListener(),
	}
	f.server = &fasthttp.Server{Handler: f.handle}

	go func() {
		_ = f.server.Serve(f.ln)
	}()
	t.Cleanup(func() {
		_ = f.server.Shutdown()
		_ = f.ln.Close()
	})
	return f
}

// BaseURL is the address clients should resolve paths against.
func (f *FakeAPI) BaseURL() string {
	return "http://api.test"
}

// HTTPClient returns a fasthttp client dialing the in-memory listener.
func (f *FakeAPI) HTTPClient() *fasthttp.Client {
	return &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) {
			return f.ln.Dial()
		},
	}
}

// Calls returns a copy of the requests received so far.
func (f *FakeAPI) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the requests received for path.
func (f *FakeAPI) CallsTo(path string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeAPI) handle(ctx *fasthttp.RequestCtx) {
	call := Call{
		Method:        string(ctx.Method()),
		Path:          string(ctx.Path()),
		Query:         map[string][]string{},
		Authorization: string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization)),
		ContentType:   string(ctx.Request.Header.ContentType()),
		RequestID:     string(ctx.Request.Header.Peek("X-Request-ID")),
		Body:          append([]byte(nil), ctx.PostBody()...),
	}
	ctx.QueryArgs().VisitAll(func(key, value []byte) {
		k := string(key)
		call.Query[k] = append(call.Query[k], string(value))
	})

	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	f.Router.Handler(ctx)
}

// JSON responds with status and the JSON encoding of body.
func JSON(status int, body any) fasthttp.RequestHandler {
	payload, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetContentType("application/json")
		ctx.SetStatusCode(status)
		ctx.SetBody(payload)
	}
}

// Status responds with status and a custom status text when message is set.
func Status(status int, message string) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(status)
		if message != "" {
			ctx.Response.Header.SetStatusMessage([]byte(message))
		}
	}
}

// Protected wraps next so it answers 401 unless the request carries a bearer
// token accepted by validate.
func Protected(next fasthttp.RequestHandler, validate middleware.TokenValidator) fasthttp.RequestHandler {
	return middleware.BearerAuth(validate, nil)(next)
}

// Redirect answers status with a Location header pointing at location.
func Redirect(status int, location string) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.Response.Header.Set(fasthttp.HeaderLocation, location)
		ctx.SetStatusCode(status)
	}
}
