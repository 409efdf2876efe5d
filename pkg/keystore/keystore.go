// Package keystore keeps adapter keys in the operating system keyring, one
// entry per endpoint URL.
package keystore

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// ServiceName is the keyring service every entry is filed under.
const ServiceName = "sheetlog"

// ErrNotFound is returned when no key is stored for an endpoint.
var ErrNotFound = errors.New("no key stored for endpoint")

// Backend is the keyring the store writes to.
type Backend interface {
	Get(service, user string) (string, error)
	Set(service, user, secret string) error
	Delete(service, user string) error
}

// OSBackend uses the platform keyring.
type OSBackend struct{}

func (OSBackend) Get(service, user string) (string, error) {
	secret, err := keyring.Get(service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read OS keyring: %w", err)
	}
	return secret, nil
}

func (OSBackend) Set(service, user, secret string) error {
	return keyring.Set(service, user, secret)
}

func (OSBackend) Delete(service, user string) error {
	err := keyring.Delete(service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// MemoryBackend keeps entries in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]string)}
}

func (m *MemoryBackend) Get(service, user string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	secret, ok := m.entries[service+"\x00"+user]
	if !ok {
		return "", ErrNotFound
	}
	return secret, nil
}

func (m *MemoryBackend) Set(service, user, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[service+"\x00"+user] = secret
	return nil
}

func (m *MemoryBackend) Delete(service, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, service+"\x00"+user)
	return nil
}

var (
	_ Backend = OSBackend{}
	_ Backend = (*MemoryBackend)(nil)
)

// Store maps endpoint URLs to keys.
type Store struct {
	backend Backend
}

// New returns a store over backend; nil means the OS keyring.
func New(backend Backend) *Store {
	if backend == nil {
		backend = OSBackend{}
	}
	return &Store{backend: backend}
}

// endpointID normalises an endpoint so trailing slashes and case in the
// scheme and host do not create separate entries.
func endpointID(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	scheme, rest, ok := strings.Cut(endpoint, "://")
	if !ok {
		return endpoint
	}
	host, path, _ := strings.Cut(rest, "/")
	id := strings.ToLower(scheme) + "://" + strings.ToLower(host)
	if path != "" {
		id += "/" + path
	}
	return id
}

// Key returns the key stored for endpoint.
func (s *Store) Key(endpoint string) (string, error) {
	if endpoint == "" {
		return "", errors.New("endpoint is required")
	}
	return s.backend.Get(ServiceName, endpointID(endpoint))
}

// Save stores key for endpoint, replacing any previous one.
func (s *Store) Save(endpoint, key string) error {
	if endpoint == "" {
		return errors.New("endpoint is required")
	}
	if key == "" {
		return errors.New("key is required")
	}
	if err := s.backend.Set(ServiceName, endpointID(endpoint), key); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}
	return nil
}

// Forget removes the key for endpoint. Forgetting an unknown endpoint is not
// an error.
func (s *Store) Forget(endpoint string) error {
	if err := s.backend.Delete(ServiceName, endpointID(endpoint)); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}
