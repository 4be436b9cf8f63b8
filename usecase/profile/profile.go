package profile

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fastygo/magiclink/api/client"
	"github.com/fastygo/magiclink/domain"
	"github.com/fastygo/magiclink/usecase/auth"
)

const (
	mePath    = "/users/v1/me"
	usersPath = "/users/v1/"
)

type UseCase struct {
	api    auth.Fetcher
	logger *zap.Logger
}

func New(api auth.Fetcher, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		api:    api,
		logger: logger,
	}
}

// Me returns the user the token belongs to.
func (uc *UseCase) Me(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.NewError(domain.ErrCodeUnauthorized, "login required")
	}
	var user domain.User
	if err := uc.api.Do(ctx, client.Request{Path: mePath, Method: "GET", Token: token}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Get returns the user with the given id.
func (uc *UseCase) Get(ctx context.Context, token, id string) (*domain.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "user id is required")
	}
	var user domain.User
	if err := uc.api.Do(ctx, client.Request{Path: usersPath + url.PathEscape(id), Method: "GET", Token: token}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers returns one page of users. Non-positive page or limit are left to the API defaults.
func (uc *UseCase) ListUsers(ctx context.Context, token string, page, limit int) (*domain.UserList, error) {
	params := client.Params{}
	if page > 0 {
		params.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var list domain.UserList
	if err := uc.api.Do(ctx, client.Request{Path: usersPath, Method: "GET", Params: params, Token: token}, &list); err != nil {
		return nil, err
	}
	return &list, nil
}
