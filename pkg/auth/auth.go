package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/teliax/ringer-docs/pkg/config"
)

// ErrInvalidKey is returned when a token matches no configured API key.
var ErrInvalidKey = errors.New("invalid api key")

// Principal identifies the API key a request authenticated with.
type Principal struct {
	Name string `json:"name"`
}

// Service defines the interface for API key authentication.
type Service interface {
	// Authenticate returns the principal of the key matching token.
	Authenticate(token string) (*Principal, error)

	// Enabled reports whether any keys are configured.
	Enabled() bool
}

// service implements Service.
type service struct {
	log  logrus.FieldLogger
	keys []config.APIKey

	// Verified tokens, keyed by SHA-256, so bcrypt runs once per token.
	mu       sync.RWMutex
	verified map[string]string
}

// Ensure service implements Service.
var _ Service = (*service)(nil)

// NewService creates a new auth service from the configured API keys.
func NewService(log logrus.FieldLogger, keys []config.APIKey) Service {
	return &service{
		log:      log.WithField("component", "auth"),
		keys:     keys,
		verified: make(map[string]string),
	}
}

// Enabled reports whether any keys are configured.
func (s *service) Enabled() bool {
	return len(s.keys) > 0
}

// Authenticate compares token against every configured key hash.
func (s *service) Authenticate(token string) (*Principal, error) {
	if token == "" {
		return nil, ErrInvalidKey
	}

	digest := hashToken(token)

	s.mu.RLock()
	name, ok := s.verified[digest]
	s.mu.RUnlock()

	if ok {
		return &Principal{Name: name}, nil
	}

	for _, key := range s.keys {
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(token)) != nil {
			continue
		}

		s.mu.Lock()
		s.verified[digest] = key.Name
		s.mu.Unlock()

		s.log.WithField("key", key.Name).Debug("API key verified")

		return &Principal{Name: key.Name}, nil
	}

	return nil, ErrInvalidKey
}

// HashKey returns the bcrypt hash stored in auth.api_keys[].key_hash.
func HashKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("key must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing key: %w", err)
	}

	return string(hash), nil
}

// GenerateKey creates a random API key.
func GenerateKey() (string, error) {
	b := make([]byte, 32)

	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// hashToken creates a SHA-256 hash of a token.
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))

	return hex.EncodeToString(h[:])
}
