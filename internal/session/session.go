// Package session holds the operator's access credential for the lifetime of the process.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/qrpay-labs/merchant-console/internal/storage"
)

// Persister mirrors the credential to durable storage.
type Persister interface {
	LoadCredential(ctx context.Context) (string, error)
	SaveCredential(ctx context.Context, credential string) error
	DeleteCredential(ctx context.Context) error
}

// Store is the single owner of the current credential. Every request-issuing component
// reads through it; only login and logout write.
type Store struct {
	mu         sync.RWMutex
	credential string
	persist    Persister
}

// Open restores the credential from p. A nil p gives an in-memory store.
func Open(ctx context.Context, p Persister) (*Store, error) {
	s := &Store{persist: p}
	if p == nil {
		return s, nil
	}
	credential, err := p.LoadCredential(ctx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("restore session: %w", err)
	default:
		s.credential = credential
	}
	return s, nil
}

// Credential returns the current credential and whether one is present.
func (s *Store) Credential() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.credential, s.credential != ""
}

// Authenticated reports whether a credential is present.
func (s *Store) Authenticated() bool {
	_, ok := s.Credential()
	return ok
}

// SetCredential replaces the credential and persists it. The value is kept verbatim; a
// blank one is rejected.
func (s *Store) SetCredential(ctx context.Context, credential string) error {
	if strings.TrimSpace(credential) == "" {
		return errors.New("credential must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persist != nil {
		if err := s.persist.SaveCredential(ctx, credential); err != nil {
			return fmt.Errorf("persist credential: %w", err)
		}
	}
	s.credential = credential
	return nil
}

// Clear drops the credential. The in-memory value is cleared even when persistence fails.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credential = ""
	if s.persist != nil {
		if err := s.persist.DeleteCredential(ctx); err != nil {
			return fmt.Errorf("clear persisted credential: %w", err)
		}
	}
	return nil
}
