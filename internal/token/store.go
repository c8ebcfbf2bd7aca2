// Package token persists the backend bearer token in two durable stores: a
// plain JSON file read by the foreground client, and a bolt database read by
// the background request interceptor, which has no access to the file store's
// process state. Login writes both; logout and any 401 clear both. The
// duplication is deliberate, forced by the isolation between the two contexts.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrNoToken is returned when no bearer token is persisted.
var ErrNoToken = errors.New("no auth token stored")

// Store is one durable home for the bearer token.
type Store interface {
	Token() (string, error)
	SetToken(token string) error
	Clear() error
}

// FileStore keeps the token in a small JSON file, written atomically.
type FileStore struct {
	path string
}

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	SavedAt     time.Time `json:"saved_at"`
}

// NewFileStore creates a file-backed token store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Token reads the persisted token. ErrNoToken when absent or empty.
func (s *FileStore) Token() (string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}
	if len(data) == 0 {
		return "", ErrNoToken
	}

	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return "", fmt.Errorf("decode token file: %w", err)
	}
	if tf.AccessToken == "" {
		return "", ErrNoToken
	}
	return tf.AccessToken, nil
}

// SetToken writes the token atomically via a temp file rename.
func (s *FileStore) SetToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	data, err := json.MarshalIndent(tokenFile{AccessToken: token, SavedAt: time.Now()}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write tmp token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename token file: %w", err)
	}
	return nil
}

// Clear removes the token file. Clearing an already-empty store is not an error.
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

// ExpiresAt inspects a JWT bearer token's exp claim without verifying the
// signature; only the backend can verify it. Opaque (non-JWT) tokens return
// ok=false and remain usable.
func ExpiresAt(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	// JSON numbers decode as float64; any other exp shape means no usable expiry.
	exp, ok := claims["exp"].(float64)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(exp), 0), true
}
