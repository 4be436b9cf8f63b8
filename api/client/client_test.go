package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"reflect"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap/zaptest"

	"github.com/fastygo/magiclink/domain"
	"github.com/fastygo/magiclink/internal/testutil"
	appLogger "github.com/fastygo/magiclink/pkg/logger"
)

func newTestClient(t *testing.T) (*Client, *testutil.FakeAPI) {
	t.Helper()
	api := testutil.NewFakeAPI(t)
	c, err := New(api.BaseURL(),
		WithDoer(api.HTTPClient()),
		WithLogger(zaptest.NewLogger(t)),
		WithTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, api
}

func TestNewRejectsRelativeBase(t *testing.T) {
	if _, err := New("/users"); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
		t.Fatalf("expected invalid error, got %v", err)
	}
}

func TestBuildURLRepeatsArrayParams(t *testing.T) {
	c, err := New("http://api.test/base/")
	if err != nil {
		t.Fatal(err)
	}

	params := Params{}
	params.Add("tag", "zeta", "alpha", "mid")
	params.Set("page", "2")

	got, err := c.BuildURL("/users/v1/", params)
	if err != nil {
		t.Fatalf("BuildURL: %v", err)
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse %q: %v", got, err)
	}
	if u.Path != "/users/v1/" {
		t.Fatalf("path = %q", u.Path)
	}
	q := u.Query()
	if want := []string{"zeta", "alpha", "mid"}; !reflect.DeepEqual(q["tag"], want) {
		t.Fatalf("tag = %v, want %v", q["tag"], want)
	}
	if want := []string{"2"}; !reflect.DeepEqual(q["page"], want) {
		t.Fatalf("page = %v, want %v", q["page"], want)
	}
}

func TestBuildURLScalarSetReplaces(t *testing.T) {
	c, _ := New("http://api.test")
	params := Params{}
	params.Add("limit", "1", "2")
	params.Set("limit", "50")

	got, err := c.BuildURL("/users/v1/", params)
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://api.test/users/v1/?limit=50" {
		t.Fatalf("url = %q", got)
	}
}

func TestBuildURLDecodesPathAndKeepsQuery(t *testing.T) {
	c, _ := New("http://api.test/api/")

	got, err := c.BuildURL("%2Fusers%2Fv1%2Fme%3Fexpand%3Dtrue", Params{"x": {"1"}})
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(got)
	if u.Path != "/users/v1/me" {
		t.Fatalf("path = %q", u.Path)
	}
	if u.Query().Get("expand") != "true" || u.Query().Get("x") != "1" {
		t.Fatalf("query = %q", u.RawQuery)
	}

	rel, err := c.BuildURL("users", nil)
	if err != nil {
		t.Fatal(err)
	}
	if rel != "http://api.test/api/users" {
		t.Fatalf("relative url = %q", rel)
	}
}

func TestBuildURLKeepsLiteralPercent(t *testing.T) {
	c, _ := New("http://api.test")

	got, err := c.BuildURL("/users/v1/100%25", Params{"tag": {"x", "y"}})
	if err != nil {
		t.Fatalf("BuildURL: %v", err)
	}
	if want := "http://api.test/users/v1/100%25?tag=x&tag=y"; got != want {
		t.Fatalf("url = %q, want %q", got, want)
	}

	got, err = c.BuildURL("/users/v1/a%2525b", nil)
	if err != nil {
		t.Fatal(err)
	}
	if want := "http://api.test/users/v1/a%25b"; got != want {
		t.Fatalf("url = %q, want %q", got, want)
	}

	if _, err := c.BuildURL("/users/v1/%zz", nil); !domain.IsDomainError(err, domain.ErrCodeInvalid) {
		t.Fatalf("malformed escape: %v", err)
	}
}

func TestFetchJSONSendsLiteralPercentPath(t *testing.T) {
	c, api := newTestClient(t)
	api.Router.GET("/users/v1/{id}", testutil.JSON(200, map[string]string{"id": "100%"}))

	if _, err := c.FetchJSON("")(context.Background(), "/users/v1/100%25", "GET", nil, ""); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls := api.Calls(); len(calls) != 1 || calls[0].Path != "/users/v1/100%" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestParamsNilMap(t *testing.T) {
	c, _ := New("http://api.test")
	var params Params
	got, err := c.BuildURL("/users/v1/", params)
	if err != nil || got != "http://api.test/users/v1/" {
		t.Fatalf("got %q, %v", got, err)
	}

	defer func() {
		if recover() == nil {
			t.Fatal("Set on a nil Params should panic like any nil map")
		}
	}()
	params.Set("page", "1")
}

func TestFetchJSONSendsArrayParamsInOrder(t *testing.T) {
	c, api := newTestClient(t)
	api.Router.GET("/users/v1/", testutil.JSON(200, map[string]any{"data": []any{}}))

	params := Params{"id": {"3", "1", "2"}}
	if _, err := c.FetchJSON("")(context.Background(), "/users/v1/", "GET", params, ""); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	calls := api.CallsTo("/users/v1/")
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	if want := []string{"3", "1", "2"}; !reflect.DeepEqual(calls[0].Query["id"], want) {
		t.Fatalf("id = %v, want %v", calls[0].Query["id"], want)
	}
}

func TestFetchJSONHeaders(t *testing.T) {
	c, api := newTestClient(t)
	api.Router.GET("/users/v1/me", testutil.JSON(200, map[string]string{"email": "a@b.c"}))

	ctx := context.Background()
	if _, err := c.FetchJSON("")(ctx, "/users/v1/me", "GET", nil, ""); err != nil {
		t.Fatal(err)
	}
	reqCtx := appLogger.ContextWithRequestID(ctx, "req-42")
	if _, err := c.FetchJSON("tkn")(reqCtx, "/users/v1/me", "get", nil, ""); err != nil {
		t.Fatal(err)
	}

	calls := api.CallsTo("/users/v1/me")
	if len(calls) != 2 {
		t.Fatalf("calls = %d", len(calls))
	}
	if calls[0].Authorization != "" {
		t.Fatalf("anonymous call sent Authorization %q", calls[0].Authorization)
	}
	if calls[0].RequestID == "" {
		t.Fatal("expected generated request id")
	}
	if calls[1].Authorization != "Bearer tkn" {
		t.Fatalf("Authorization = %q", calls[1].Authorization)
	}
	if calls[1].RequestID != "req-42" {
		t.Fatalf("request id = %q", calls[1].RequestID)
	}
	for _, call := range calls {
		if call.ContentType != "application/json" {
			t.Fatalf("Content-Type = %q", call.ContentType)
		}
		if call.Method != "GET" {
			t.Fatalf("method = %q", call.Method)
		}
	}
}

func TestFetchJSONForwardsBody(t *testing.T) {
	c, api := newTestClient(t)
	api.Router.POST("/users/v1/dispatch/request-user-access-token", testutil.JSON(200, map[string]string{}))

	body := `{"email":"a@b.c"}`
	if _, err := c.FetchJSON("")(context.Background(), "/users/v1/dispatch/request-user-access-token", "POST", nil, body); err != nil {
		t.Fatal(err)
	}

	calls := api.Calls()
	if len(calls) != 1 || string(calls[0].Body) != body || calls[0].Method != "POST" {
		t.Fatalf("unexpected calls %+v", calls)
	}
}

func TestFetchJSONClassifiesStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		text   string
		code   domain.ErrorCode
	}{
		{"unauthorized", 401, "Token Expired", domain.ErrCodeUnauthorized},
		{"access denied", 403, "Forbidden For You", domain.ErrCodeAccessDenied},
		{"not found", 404, "No Such User", domain.ErrCodeNotFound},
		{"teapot", 418, "Short And Stout", domain.ErrCodeHTTP},
		{"server error", 500, "Boom", domain.ErrCodeHTTP},
		{"bad request", 400, "Bad Email", domain.ErrCodeHTTP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, api := newTestClient(t)
			api.Router.GET("/x", testutil.Status(tt.status, tt.text))

			out, err := c.FetchJSON("")(context.Background(), "/x", "GET", nil, "")
			if out != nil {
				t.Fatalf("expected nil body, got %v", out)
			}

			var dErr *domain.Error
			if !errors.As(err, &dErr) {
				t.Fatalf("expected *domain.Error, got %T %v", err, err)
			}
			if dErr.Code != tt.code {
				t.Fatalf("code = %s, want %s", dErr.Code, tt.code)
			}
			if dErr.Message != tt.text {
				t.Fatalf("message = %q, want %q", dErr.Message, tt.text)
			}
			if dErr.Status != tt.status {
				t.Fatalf("status = %d", dErr.Status)
			}
		})
	}
}

func TestFetchJSONDefaultStatusText(t *testing.T) {
	c, api := newTestClient(t)
	api.Router.GET("/x", testutil.Status(404, ""))

	_, err := c.FetchJSON("")(context.Background(), "/x", "GET", nil, "")
	if !domain.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err.Error() != fasthttp.StatusMessage(404) {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestFetchJSONRoundTripsBody(t *testing.T) {
	payload := map[string]any{
		"access_token": "abc",
		"expires_in":   3600,
		"scopes":       []string{"user", "admin"},
		"nested":       map[string]any{"ok": true, "none": nil},
	}
	c, api := newTestClient(t)
	api.Router.GET("/x", testutil.JSON(200, payload))

	got, err := c.FetchJSON("")(context.Background(), "/x", "GET", nil, "")
	if err != nil {
		t.Fatal(err)
	}

	raw, _ := json.Marshal(payload)
	var want any
	_ = json.Unmarshal(raw, &want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestFetchJSONParseFailureIsUnclassified(t *testing.T) {
	c, api := newTestClient(t)
	api.Router.GET("/x", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(200)
		ctx.SetBodyString("<html>")
	})

	_, err := c.FetchJSON("")(context.Background(), "/x", "GET", nil, "")
	if err == nil {
		t.Fatal("expected parse error")
	}
	var dErr *domain.Error
	if errors.As(err, &dErr) {
		t.Fatalf("parse error must not be classified, got %v", dErr)
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected *json.SyntaxError, got %T", err)
	}
}

func TestFetchJSONEmptySuccessBody(t *testing.T) {
	c, api := newTestClient(t)
	api.Router.POST("/x", testutil.Status(204, ""))

	got, err := c.FetchJSON("")(context.Background(), "/x", "POST", nil, "")
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestDoDecodesIntoStruct(t *testing.T) {
	c, api := newTestClient(t)
	api.Router.GET("/users/v1/me", testutil.JSON(200, map[string]string{"id": "u1", "email": "a@b.c"}))

	var user domain.User
	if err := c.Do(context.Background(), Request{Path: "/users/v1/me", Token: "t"}, &user); err != nil {
		t.Fatal(err)
	}
	if user.ID != "u1" || user.Email != "a@b.c" {
		t.Fatalf("user = %+v", user)
	}
}

func TestDoCancelledContext(t *testing.T) {
	c, api := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Do(ctx, Request{Path: "/x"}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(api.Calls()) != 0 {
		t.Fatal("cancelled request must not reach the server")
	}
}

func TestDoFollowsRedirectAsGet(t *testing.T) {
	c, api := newTestClient(t)
	api.Router.POST("/old", testutil.Redirect(fasthttp.StatusFound, "/users/v1/me"))
	api.Router.GET("/users/v1/me", testutil.JSON(200, map[string]string{"email": "a@b.c"}))

	var user domain.User
	if err := c.Do(context.Background(), Request{Path: "/old", Method: "POST", Body: `{"x":1}`, Token: "t"}, &user); err != nil {
		t.Fatal(err)
	}
	if user.Email != "a@b.c" {
		t.Fatalf("user = %+v", user)
	}

	calls := api.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d", len(calls))
	}
	if calls[1].Method != "GET" || len(calls[1].Body) != 0 || calls[1].Authorization != "Bearer t" {
		t.Fatalf("redirected call = %+v", calls[1])
	}
}

func TestDoTemporaryRedirectKeepsMethodAndBody(t *testing.T) {
	c, api := newTestClient(t)
	api.Router.POST("/old", testutil.Redirect(fasthttp.StatusTemporaryRedirect, "/new"))
	api.Router.POST("/new", testutil.JSON(200, map[string]bool{"ok": true}))

	if err := c.Do(context.Background(), Request{Path: "/old", Method: "POST", Body: `{"x":1}`}, nil); err != nil {
		t.Fatal(err)
	}
	calls := api.CallsTo("/new")
	if len(calls) != 1 || calls[0].Method != "POST" || string(calls[0].Body) != `{"x":1}` {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestDoRedirectToOtherHostDropsAuthorization(t *testing.T) {
	c, api := newTestClient(t)
	api.Router.GET("/away", testutil.Redirect(fasthttp.StatusFound, "http://elsewhere.test/landing"))
	api.Router.GET("/landing", testutil.Status(204, ""))

	if err := c.Do(context.Background(), Request{Path: "/away", Token: "secret"}, nil); err != nil {
		t.Fatal(err)
	}
	calls := api.CallsTo("/landing")
	if len(calls) != 1 || calls[0].Authorization != "" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestDoRedirectLoop(t *testing.T) {
	c, api := newTestClient(t)
	api.Router.GET("/loop", testutil.Redirect(fasthttp.StatusFound, "/loop"))

	err := c.Do(context.Background(), Request{Path: "/loop"}, nil)
	if !errors.Is(err, fasthttp.ErrTooManyRedirects) {
		t.Fatalf("got %v", err)
	}
	if n := len(api.Calls()); n != maxRedirects+1 {
		t.Fatalf("calls = %d", n)
	}
}
