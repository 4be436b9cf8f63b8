package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"

	"github.com/fastygo/magiclink/domain"
	"github.com/fastygo/magiclink/repository"
)

// Manager owns the token and user of one client profile.
type Manager struct {
	repo    repository.SessionRepository
	profile string
	logger  *zap.Logger
	now     func() time.Time
}

func New(repo repository.SessionRepository, profile string, logger *zap.Logger) *Manager {
	if profile == "" {
		profile = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		repo:    repo,
		profile: profile,
		logger:  logger,
		now:     time.Now,
	}
}

func (m *Manager) Profile() string {
	return m.profile
}

// Current returns the stored session. An expired session is removed and
// reported as domain.ErrSessionNotFound.
func (m *Manager) Current(ctx context.Context) (*domain.Session, error) {
	session, err := m.repo.Get(ctx, m.profile)
	if err != nil {
		return nil, err
	}
	if session.IsExpired(m.now()) {
		m.logger.Info("stored token expired", zap.String("profile", m.profile), zap.Time("expires_at", session.ExpiresAt))
		_ = m.repo.Delete(ctx, m.profile)
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Token returns the stored token, or "" when there is none.
func (m *Manager) Token(ctx context.Context) (string, error) {
	session, err := m.current(ctx)
	if err != nil || session == nil {
		return "", err
	}
	return session.Token, nil
}

// SetToken stores token and drops any previously known user. The expiry
// is taken from the JWT exp claim when the token is a JWT.
func (m *Manager) SetToken(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, domain.NewError(domain.ErrCodeInvalid, "token is required")
	}
	session := &domain.Session{
		Profile:   m.profile,
		Token:     token,
		CreatedAt: m.now(),
		ExpiresAt: tokenExpiry(token),
	}
	if session.IsExpired(m.now()) {
		return nil, domain.NewError(domain.ErrCodeUnauthorized, "token expired")
	}
	if err := m.repo.Save(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// User returns the logged in user, or nil when there is none.
func (m *Manager) User(ctx context.Context) (*domain.User, error) {
	session, err := m.current(ctx)
	if err != nil || session == nil {
		return nil, err
	}
	return session.User, nil
}

// SetUser stores user next to the token. A nil user clears it.
func (m *Manager) SetUser(ctx context.Context, user *domain.User) error {
	session, err := m.current(ctx)
	if err != nil {
		return err
	}
	if session == nil {
		if user == nil {
			return nil
		}
		session = &domain.Session{Profile: m.profile, CreatedAt: m.now()}
	}
	session.User = user
	return m.repo.Save(ctx, session)
}

// Logout forgets the token and the user. No call is made to the API.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.repo.Delete(ctx, m.profile); err != nil {
		return err
	}
	m.logger.Debug("session cleared", zap.String("profile", m.profile))
	return nil
}

func (m *Manager) current(ctx context.Context) (*domain.Session, error) {
	session, err := m.Current(ctx)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	return session, err
}

func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
