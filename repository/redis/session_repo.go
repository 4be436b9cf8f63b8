package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/magiclink/domain"
	"github.com/fastygo/magiclink/repository"
)

type sessionRepository struct {
	client *redislib.Client
	prefix string
}

// NewSessionRepository creates a Redis-backed session repository. Keys
// expire together with the token when the session carries an expiry.
func NewSessionRepository(client *redislib.Client, prefix string) repository.SessionRepository {
	if prefix == "" {
		prefix = "magiclink:session:"
	}
	return &sessionRepository{
		client: client,
		prefix: prefix,
	}
}

func (r *sessionRepository) Get(ctx context.Context, profile string) (*domain.Session, error) {
	result, err := r.client.Get(ctx, r.key(profile)).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(result), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) Save(ctx context.Context, session *domain.Session) error {
	if session == nil || session.Profile == "" {
		return domain.ErrInvalidPayload
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if !session.ExpiresAt.IsZero() {
		ttl = time.Until(session.ExpiresAt)
		if ttl <= 0 {
			return r.Delete(ctx, session.Profile)
		}
	}

	return r.client.Set(ctx, r.key(session.Profile), payload, ttl).Err()
}

func (r *sessionRepository) Delete(ctx context.Context, profile string) error {
	return r.client.Del(ctx, r.key(profile)).Err()
}

// Profiles scans the key space under the repository prefix.
func (r *sessionRepository) Profiles(ctx context.Context) ([]string, error) {
	var profiles []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		profiles = append(profiles, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(profiles)
	return profiles, nil
}

func (r *sessionRepository) key(profile string) string {
	return fmt.Sprintf("%s%s", r.prefix, profile)
}
