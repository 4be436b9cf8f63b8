package middleware

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

// TokenValidator rejects a bearer token by returning an error.
type TokenValidator func(token string) error

// HeaderUserID carries the subject of a validated JWT to the next handler.
const HeaderUserID = "X-User-ID"

var errMissingBearer = errors.New("missing bearer token")

// BearerAuth answers 401 Unauthorized unless the request carries a bearer
// token accepted by validate. A nil validate accepts any non-empty token.
func BearerAuth(validate TokenValidator, logger *zap.Logger) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			token := extractToken(ctx)
			err := errMissingBearer
			if token != "" {
				err = nil
				if validate != nil {
					err = validate(token)
				}
			}
			if err != nil {
				logger.Warn("rejected bearer token", zap.ByteString("path", ctx.Path()), zap.Error(err))
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				return
			}
			if subject := subjectOf(token); subject != "" {
				ctx.Request.Header.Set(HeaderUserID, subject)
			}
			next(ctx)
		}
	}
}

// JWTValidator accepts HMAC signed tokens that are valid for secret.
func JWTValidator(secret string) TokenValidator {
	return func(token string) error {
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method " + t.Method.Alg())
			}
			return []byte(secret), nil
		})
		if err != nil {
			return err
		}
		if !parsed.Valid {
			return errors.New("invalid token")
		}
		return nil
	}
}

func subjectOf(token string) string {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return ""
	}
	return claims.Subject
}

func extractToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek(fasthttp.HeaderAuthorization))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
