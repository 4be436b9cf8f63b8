package boltdb

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/fastygo/magiclink/domain"
	"github.com/fastygo/magiclink/repository"
)

const defaultBucket = "sessions"

// SessionRepository keeps sessions in a local BoltDB file, one key per profile.
type SessionRepository struct {
	db     *bolt.DB
	bucket []byte
}

// Open initializes the BoltDB file and ensures the bucket exists.
func Open(path string) (*SessionRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	bucket := []byte(defaultBucket)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &SessionRepository{
		db:     db,
		bucket: bucket,
	}, nil
}

func (r *SessionRepository) Get(ctx context.Context, profile string) (*domain.Session, error) {
	if r == nil || r.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}

	var payload []byte
	err := r.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(r.bucket).Get([]byte(profile)); v != nil {
			payload = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, domain.ErrSessionNotFound
	}

	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) Save(ctx context.Context, session *domain.Session) error {
	if r == nil || r.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
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
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(r.bucket).Put([]byte(session.Profile), payload)
	})
}

func (r *SessionRepository) Delete(ctx context.Context, profile string) error {
	if r == nil || r.db == nil {
		return bolt.ErrDatabaseNotOpen
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(r.bucket).Delete([]byte(profile))
	})
}

// Profiles lists the stored profile names in key order.
func (r *SessionRepository) Profiles(ctx context.Context) ([]string, error) {
	if r == nil || r.db == nil {
		return nil, bolt.ErrDatabaseNotOpen
	}
	var profiles []string
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(r.bucket).ForEach(func(k, _ []byte) error {
			profiles = append(profiles, string(k))
			return nil
		})
	})
	return profiles, err
}

// Close closes the Bolt database.
func (r *SessionRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

var _ repository.SessionRepository = (*SessionRepository)(nil)
