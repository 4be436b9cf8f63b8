package repository

import (
	"context"

	"github.com/fastygo/magiclink/domain"
)

// SessionRepository stores one session per client profile.
type SessionRepository interface {
	Get(ctx context.Context, profile string) (*domain.Session, error)
	Save(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, profile string) error
	// Profiles lists the profiles that currently hold a session, sorted.
	Profiles(ctx context.Context) ([]string, error)
}
