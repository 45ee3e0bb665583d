package client

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// TokenPair is the stored credential pair for one session.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// TokenStorage persists the token pair between client instances. A storage
// implementation only sees opaque token strings, never passwords.
type TokenStorage interface {
	// Load returns the stored pair and whether one exists.
	Load() (TokenPair, bool, error)
	Save(pair TokenPair) error
	Clear() error
}

// MemoryStorage keeps the pair in process memory. It is the default.
type MemoryStorage struct {
	mu   sync.Mutex
	pair TokenPair
	ok   bool
}

func NewMemoryStorage() *MemoryStorage { return &MemoryStorage{} }

func (s *MemoryStorage) Load() (TokenPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pair, s.ok, nil
}

func (s *MemoryStorage) Save(pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = pair
	s.ok = true
	return nil
}

func (s *MemoryStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = TokenPair{}
	s.ok = false
	return nil
}

// FileStorage persists the pair as a mode-0600 JSON file so a CLI session
// survives process restarts.
type FileStorage struct {
	mu   sync.Mutex
	path string
}

func NewFileStorage(path string) (*FileStorage, error) {
	if path == "" {
		return nil, errors.New("client: empty token file path")
	}
	return &FileStorage{path: path}, nil
}

func (s *FileStorage) Load() (TokenPair, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TokenPair{}, false, nil
		}
		return TokenPair{}, false, err
	}

	var pair TokenPair
	if err := json.Unmarshal(b, &pair); err != nil {
		// A corrupt token file is treated as no session rather than a
		// fatal error; the next Save overwrites it.
		return TokenPair{}, false, nil
	}
	if pair.Access == "" && pair.Refresh == "" {
		return TokenPair{}, false, nil
	}
	return pair, true, nil
}

func (s *FileStorage) Save(pair TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.Marshal(pair)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	// Write-then-rename keeps a crash from leaving a half-written file.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStorage) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
