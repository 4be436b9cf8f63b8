// Package client is the authenticated JSON transport used by every call to
// the users API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/magiclink/domain"
	"github.com/fastygo/magiclink/pkg/httpcontext"
	appLogger "github.com/fastygo/magiclink/pkg/logger"
)

const contentTypeJSON = "application/json"

// Doer is the subset of *fasthttp.Client used to send requests.
type Doer interface {
	Do(req *fasthttp.Request, resp *fasthttp.Response) error
	DoDeadline(req *fasthttp.Request, resp *fasthttp.Response, deadline time.Time) error
}

// Params holds query parameters. A key with several values is emitted once
// per value, in slice order. A nil Params reads as empty, but like any map it
// must be created with Params{} or make before Set or Add.
type Params map[string][]string

// Set stores a single value for key, replacing previous values.
func (p Params) Set(key, value string) {
	p[key] = []string{value}
}

// Add appends values for key.
func (p Params) Add(key string, values ...string) {
	p[key] = append(p[key], values...)
}

// Request describes one API call.
type Request struct {
	Path   string
	Method string
	Params Params
	Body   string
	Token  string
}

// FetchFunc performs a request and returns the decoded JSON body.
type FetchFunc func(ctx context.Context, path, method string, params Params, body string) (any, error)

// Client sends JSON requests relative to a fixed base API address.
type Client struct {
	base      *url.URL
	doer      Doer
	logger    *zap.Logger
	timeout   time.Duration
	userAgent string
}

// Option customises a Client.
type Option func(*Client)

// WithDoer replaces the fasthttp transport.
func WithDoer(doer Doer) Option {
	return func(c *Client) {
		if doer != nil {
			c.doer = doer
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout bounds requests whose context carries no deadline. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New builds a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInvalid, "invalid base url", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "base url must be absolute: "+baseURL)
	}

	c := &Client{
		base:      base,
		logger:    zap.NewNop(),
		userAgent: "magiclink-client",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.doer == nil {
		c.doer = &fasthttp.Client{
			Name:                c.userAgent,
			MaxIdleConnDuration: 30 * time.Second,
		}
	}
	return c, nil
}

// BaseURL returns the API address requests are resolved against.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// FetchJSON returns a fetch function bound to token. An empty token sends
// no Authorization header.
func (c *Client) FetchJSON(token string) FetchFunc {
	return func(ctx context.Context, path, method string, params Params, body string) (any, error) {
		var out any
		err := c.Do(ctx, Request{
			Path:   path,
			Method: method,
			Params: params,
			Body:   body,
			Token:  token,
		}, &out)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
}

// Do sends r and decodes a successful JSON body into out. Non-2xx responses
// become *domain.Error values; transport and decoding errors are returned as is.
// An empty success body leaves out untouched.
func (c *Client) Do(ctx context.Context, r Request, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := c.BuildURL(r.Path, r.Params)
	if err != nil {
		return err
	}

	ctx = httpcontext.EnsureRequestID(ctx)
	method := strings.ToUpper(r.Method)
	if method == "" {
		method = fasthttp.MethodGet
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(target)
	req.Header.SetMethod(method)
	req.Header.SetContentType(contentTypeJSON)
	req.Header.Set(fasthttp.HeaderAccept, contentTypeJSON)
	req.Header.SetUserAgent(c.userAgent)
	req.Header.Set(httpcontext.HeaderRequestID, appLogger.RequestIDFromContext(ctx))
	if r.Token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+r.Token)
	}
	if r.Body != "" {
		req.SetBodyString(r.Body)
	}

	log := appLogger.WithRequestID(ctx, c.logger).With(
		zap.String("method", method),
		zap.String("url", target),
	)

	start := time.Now()
	if err := c.send(ctx, req, resp); err != nil {
		log.Debug("request failed", zap.Error(err))
		return err
	}

	status := resp.StatusCode()
	log.Debug("request completed",
		zap.Int("status", status),
		zap.Duration("elapsed", time.Since(start)),
	)

	if status < fasthttp.StatusOK || status >= fasthttp.StatusMultipleChoices {
		return domain.NewHTTPError(status, statusText(resp))
	}

	body := resp.Body()
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

// BuildURL percent-decodes path, resolves it against the base address and
// appends params in key order.
func (c *Client) BuildURL(path string, params Params) (string, error) {
	decoded, err := url.PathUnescape(path)
	if err != nil {
		return "", domain.WrapError(domain.ErrCodeInvalid, "invalid path", err)
	}
	ref, err := url.Parse(escapeStrayPercent(decoded))
	if err != nil {
		return "", domain.WrapError(domain.ErrCodeInvalid, "invalid path", err)
	}

	u := c.base.ResolveReference(ref)
	if len(params) == 0 {
		return u.String(), nil
	}

	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Parse(u.RawQuery)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		for _, v := range params[k] {
			args.Add(k, v)
		}
	}
	u.RawQuery = args.String()
	return u.String(), nil
}

// escapeStrayPercent rewrites each '%' that does not start a valid escape
// as "%25", so a decoded path such as "/users/100%" still parses.
func escapeStrayPercent(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && (i+2 >= len(s) || !isHex(s[i+1]) || !isHex(s[i+2])) {
			b.WriteString("%25")
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

// maxRedirects bounds how many 3xx hops a single request may follow.
const maxRedirects = 16

// send performs req and follows redirects like a browser fetch: 303, and a
// 301 or 302 answering a POST, continue as a body-less GET; other hops keep
// method and body. Authorization is dropped when a hop leaves the host.
func (c *Client) send(ctx context.Context, req *fasthttp.Request, resp *fasthttp.Response) error {
	deadline, ok := ctx.Deadline()
	if c.timeout > 0 {
		if limit := time.Now().Add(c.timeout); !ok || limit.Before(deadline) {
			deadline, ok = limit, true
		}
	}

	for hops := 0; ; hops++ {
		var err error
		if ok {
			err = c.doer.DoDeadline(req, resp, deadline)
		} else {
			err = c.doer.Do(req, resp)
		}
		if errors.Is(err, fasthttp.ErrTimeout) && ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}

		status := resp.StatusCode()
		location := resp.Header.Peek(fasthttp.HeaderLocation)
		if !fasthttp.StatusCodeIsRedirect(status) || len(location) == 0 {
			return nil
		}
		if hops >= maxRedirects {
			return fasthttp.ErrTooManyRedirects
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		c.logger.Debug("following redirect", zap.Int("status", status), zap.ByteString("location", location))
		redirect(req, status, location)
		resp.Reset()
	}
}

func redirect(req *fasthttp.Request, status int, location []byte) {
	host := string(req.URI().Host())
	req.URI().UpdateBytes(location)
	if string(req.URI().Host()) != host {
		req.Header.Del(fasthttp.HeaderAuthorization)
	}

	method := string(req.Header.Method())
	switch {
	case status == fasthttp.StatusSeeOther && method != fasthttp.MethodHead,
		(status == fasthttp.StatusMovedPermanently || status == fasthttp.StatusFound) && method == fasthttp.MethodPost:
		req.Header.SetMethod(fasthttp.MethodGet)
		req.ResetBody()
	}
}

func statusText(resp *fasthttp.Response) string {
	if msg := resp.Header.StatusMessage(); len(msg) > 0 {
		return string(msg)
	}
	return fasthttp.StatusMessage(resp.StatusCode())
}
