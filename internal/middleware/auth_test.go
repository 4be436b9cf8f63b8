package middleware

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap/zaptest"
)

func signed(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func serve(t *testing.T, validate TokenValidator, authorization string) (*fasthttp.RequestCtx, bool) {
	t.Helper()
	called := false
	handler := BearerAuth(validate, zaptest.NewLogger(t))(func(ctx *fasthttp.RequestCtx) {
		called = true
		ctx.SetStatusCode(fasthttp.StatusOK)
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI("/users/v1/me")
	if authorization != "" {
		ctx.Request.Header.Set(fasthttp.HeaderAuthorization, authorization)
	}
	handler(ctx)
	return ctx, called
}

func TestBearerAuthRejectsMissingToken(t *testing.T) {
	for _, header := range []string{"", "Basic abc", "Bearer "} {
		ctx, called := serve(t, nil, header)
		if called || ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
			t.Fatalf("header %q: called=%v status=%d", header, called, ctx.Response.StatusCode())
		}
	}
}

func TestBearerAuthAcceptsAnyTokenWithoutValidator(t *testing.T) {
	ctx, called := serve(t, nil, "Bearer opaque")
	if !called || ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("called=%v status=%d", called, ctx.Response.StatusCode())
	}
}

func TestJWTValidator(t *testing.T) {
	validate := JWTValidator("secret")

	good := signed(t, "secret", jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	ctx, called := serve(t, validate, "Bearer "+good)
	if !called {
		t.Fatalf("valid token rejected: %d", ctx.Response.StatusCode())
	}
	if got := string(ctx.Request.Header.Peek(HeaderUserID)); got != "user-1" {
		t.Fatalf("%s = %q", HeaderUserID, got)
	}

	cases := map[string]string{
		"wrong secret": signed(t, "other", jwt.RegisteredClaims{Subject: "user-1"}),
		"expired": signed(t, "secret", jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}),
		"garbage": "not-a-jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			ctx, called := serve(t, validate, "Bearer "+token)
			if called || ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
				t.Fatalf("called=%v status=%d", called, ctx.Response.StatusCode())
			}
		})
	}
}
