package token

import (
	"errors"

	"go.uber.org/zap"
)

// DualStore fans writes out to both token homes and clears both on logout.
// Reads prefer the file store and fall back to the bolt store, so a token
// written by either context is still honored.
type DualStore struct {
	file   Store
	bolt   Store
	logger *zap.Logger
}

// NewDualStore combines the foreground and interceptor stores.
func NewDualStore(file, bolt Store, logger *zap.Logger) *DualStore {
	return &DualStore{file: file, bolt: bolt, logger: logger}
}

// Token returns the persisted token from whichever store has one.
func (s *DualStore) Token() (string, error) {
	tok, err := s.file.Token()
	if err == nil {
		return tok, nil
	}
	if !errors.Is(err, ErrNoToken) {
		s.logger.Warn("file token store unreadable, trying bolt", zap.Error(err))
	}
	return s.bolt.Token()
}

// SetToken writes the token to both stores. Both writes must succeed: a token
// present in only one context would make video streaming fail silently.
func (s *DualStore) SetToken(token string) error {
	if err := s.file.SetToken(token); err != nil {
		return err
	}
	if err := s.bolt.SetToken(token); err != nil {
		// Roll the file write back so the stores never diverge.
		if clearErr := s.file.Clear(); clearErr != nil {
			s.logger.Error("failed to roll back file token after bolt write failure",
				zap.Error(clearErr))
		}
		return err
	}
	return nil
}

// Clear empties both stores. Both are attempted even if the first fails.
func (s *DualStore) Clear() error {
	fileErr := s.file.Clear()
	boltErr := s.bolt.Clear()
	return errors.Join(fileErr, boltErr)
}
