package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/fastygo/magiclink/domain"
	"github.com/fastygo/magiclink/repository"
)

// SessionRepository keeps sessions in process memory. Used by tests and
// the memory session driver.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{sessions: make(map[string]domain.Session)}
}

func (r *SessionRepository) Get(ctx context.Context, profile string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[profile]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return clone(session), nil
}

func (r *SessionRepository) Save(ctx context.Context, session *domain.Session) error {
	if session == nil || session.Profile == "" {
		return domain.ErrInvalidPayload
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.Profile] = *clone(*session)
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, profile string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, profile)
	return nil
}

func (r *SessionRepository) Profiles(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	profiles := make([]string, 0, len(r.sessions))
	for p := range r.sessions {
		profiles = append(profiles, p)
	}
	r.mu.RUnlock()
	sort.Strings(profiles)
	return profiles, nil
}

func clone(s domain.Session) *domain.Session {
	if s.User != nil {
		user := *s.User
		s.User = &user
	}
	return &s
}

var _ repository.SessionRepository = (*SessionRepository)(nil)
