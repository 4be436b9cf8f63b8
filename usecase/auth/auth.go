package auth

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/magiclink/api/client"
	"github.com/fastygo/magiclink/api/transport"
	"github.com/fastygo/magiclink/domain"
	appLogger "github.com/fastygo/magiclink/pkg/logger"
)

// Dispatch commands understood by the users service.
const (
	CommandRequestAccessToken = "request-user-access-token"
	CommandRegisterWithEmail  = "register-user-with-email"
	CommandChangeEmail        = "change-user-email-address"
)

const dispatchPath = "/users/v1/dispatch/"

// Fetcher sends a request to the API and decodes the JSON response.
type Fetcher interface {
	Do(ctx context.Context, r client.Request, out any) error
}

type UseCase struct {
	api    Fetcher
	logger *zap.Logger
}

func New(api Fetcher, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		api:    api,
		logger: logger,
	}
}

// Dispatch posts payload to the named dispatch command and decodes the reply into out.
func (uc *UseCase) Dispatch(ctx context.Context, token, command string, payload any, out any) error {
	if strings.TrimSpace(command) == "" {
		return domain.NewError(domain.ErrCodeInvalid, "dispatch command is required")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.WrapError(domain.ErrCodeInvalid, "encode payload", err)
	}
	return uc.api.Do(ctx, client.Request{
		Path:   dispatchPath + command,
		Method: "POST",
		Body:   string(body),
		Token:  token,
	}, out)
}

// RequestAccessToken asks the API to email a magic link to an existing user.
func (uc *UseCase) RequestAccessToken(ctx context.Context, email string) (*domain.AccessToken, error) {
	return uc.dispatchEmail(ctx, CommandRequestAccessToken, email)
}

// RegisterWithEmail creates an account for email; the API then emails a magic link.
func (uc *UseCase) RegisterWithEmail(ctx context.Context, email string) (*domain.AccessToken, error) {
	return uc.dispatchEmail(ctx, CommandRegisterWithEmail, email)
}

// Login requests a magic link and registers the email when the API reports
// the user as not found. Every other failure, including one from the
// registration call, is returned to the caller.
func (uc *UseCase) Login(ctx context.Context, email string) (*domain.AccessToken, error) {
	log := appLogger.WithRequestID(ctx, uc.logger).With(zap.String("email", email))

	token, err := uc.RequestAccessToken(ctx, email)
	if err == nil {
		log.Info("magic link requested")
		return token, nil
	}
	if !domain.IsNotFound(err) {
		log.Warn("magic link request failed", zap.Error(err))
		return nil, err
	}

	log.Info("user not found, registering")
	token, err = uc.RegisterWithEmail(ctx, email)
	if err != nil {
		log.Warn("registration failed", zap.Error(err))
		return nil, err
	}
	log.Info("user registered, magic link requested")
	return token, nil
}

// ChangeEmail changes the address of the authenticated user.
func (uc *UseCase) ChangeEmail(ctx context.Context, token, email string) error {
	if token == "" {
		return domain.NewError(domain.ErrCodeUnauthorized, "login required")
	}
	if strings.TrimSpace(email) == "" {
		return domain.ErrEmptyEmail
	}
	return uc.Dispatch(ctx, token, CommandChangeEmail, transport.EmailRequest{Email: email}, nil)
}

func (uc *UseCase) dispatchEmail(ctx context.Context, command, email string) (*domain.AccessToken, error) {
	if strings.TrimSpace(email) == "" {
		return nil, domain.ErrEmptyEmail
	}
	var token domain.AccessToken
	if err := uc.Dispatch(ctx, "", command, transport.EmailRequest{Email: email}, &token); err != nil {
		return nil, err
	}
	return &token, nil
}
