// Package secrets provides the persisted key/value secret store used for
// OAuth client credentials and token state. Values are encrypted at rest
// with a machine-bound key.
package secrets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is an opaque key->string secret store that survives restarts.
type Store interface {
	Put(key, value string) error
	Get(key string) (string, bool)
	Delete(key string) error
}

// FileStore persists secrets as a single AES-GCM encrypted JSON blob.
type FileStore struct {
	mu        sync.Mutex
	filePath  string
	encryptor *Encryptor
	values    map[string]string
}

// NewFileStore opens (or creates) the encrypted store under dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create secrets directory: %w", err)
	}

	encryptor, err := NewEncryptor(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secret encryption: %w", err)
	}

	s := &FileStore{
		filePath:  filepath.Join(dir, "secrets.enc"),
		encryptor: encryptor,
		values:    make(map[string]string),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read secrets file: %w", err)
	}

	plaintext, err := s.encryptor.Decrypt(string(data))
	if err != nil {
		return fmt.Errorf("failed to decrypt secrets file: %w", err)
	}

	if err := json.Unmarshal(plaintext, &s.values); err != nil {
		return fmt.Errorf("failed to unmarshal secrets: %w", err)
	}

	return nil
}

func (s *FileStore) flush() error {
	data, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	encrypted, err := s.encryptor.Encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt secrets: %w", err)
	}

	if err := os.WriteFile(s.filePath, []byte(encrypted), 0600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}

	return nil
}

func (s *FileStore) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return s.flush()
}

func (s *FileStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	return v, ok
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return s.flush()
}

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Put(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *MemoryStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
