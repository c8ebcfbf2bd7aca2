package token

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	authBucket  = []byte("auth")
	prefsBucket = []byte("prefs")

	tokenKey     = []byte("bearer_token")
	swipeHintKey = []byte("swipe_hint_shown")
)

// BoltStore keeps the token in a bolt database so the background interceptor
// can read it without touching the foreground file store.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the bolt database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(authBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(prefsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init bolt buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close releases the database file lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Token reads the persisted token. ErrNoToken when absent.
func (s *BoltStore) Token() (string, error) {
	var token string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(authBucket).Get(tokenKey); v != nil {
			token = string(v)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("read bolt token: %w", err)
	}
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// SetToken persists the token.
func (s *BoltStore) SetToken(token string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(authBucket).Put(tokenKey, []byte(token))
	})
	if err != nil {
		return fmt.Errorf("write bolt token: %w", err)
	}
	return nil
}

// Clear deletes the token.
func (s *BoltStore) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(authBucket).Delete(tokenKey)
	})
	if err != nil {
		return fmt.Errorf("clear bolt token: %w", err)
	}
	return nil
}

// SwipeHintShown reports whether the first-run swipe hint was already shown.
func (s *BoltStore) SwipeHintShown() (bool, error) {
	var shown bool
	err := s.db.View(func(tx *bolt.Tx) error {
		shown = tx.Bucket(prefsBucket).Get(swipeHintKey) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("read swipe hint flag: %w", err)
	}
	return shown, nil
}

// MarkSwipeHintShown records that the hint was displayed once.
func (s *BoltStore) MarkSwipeHintShown() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(prefsBucket).Put(swipeHintKey, []byte("1"))
	})
	if err != nil {
		return fmt.Errorf("write swipe hint flag: %w", err)
	}
	return nil
}
