package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/router-for-me/GroundedSearchMCP/internal/config"
)

// FileTokenStore persists the TokenFile as JSON with owner-only permissions.
// Reads never fail hard: missing, unparseable or schema-invalid files degrade
// to "not authenticated". A corrupt file is renamed aside with a .bak suffix
// so the user can inspect it, and a fresh login simply writes a new one.
//
// Writes are atomic with respect to this process's own crashes (tmp file plus
// rename), and in-process mutations are serialized so concurrent refreshes of
// different providers cannot drop each other's writes. Concurrent external
// writers are not protected against; this is a single-user local tool.
type FileTokenStore struct {
	path string

	// Guards the load-modify-save sequence of the mutating methods.
	mu sync.Mutex
}

// NewFileTokenStore returns a store bound to the given token file path.
// An empty path selects tokens.json next to the config file.
func NewFileTokenStore(path string) (*FileTokenStore, error) {
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("token store: resolve user config dir: %w", err)
		}
		path = filepath.Join(dir, config.AppDirName, "tokens.json")
	}
	return &FileTokenStore{path: path}, nil
}

// Path returns the absolute path of the backing token file.
func (s *FileTokenStore) Path() string {
	return s.path
}

// Load reads and validates the token file. A nil TokenFile means no
// credentials are stored (first run, or a corrupt file that was backed up).
func (s *FileTokenStore) Load() (*TokenFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("token store: read %s: %w", s.path, err)
	}

	var tokens TokenFile
	if errUnmarshal := json.Unmarshal(data, &tokens); errUnmarshal != nil {
		s.backupCorrupt(errUnmarshal)
		return nil, nil
	}
	if errValidate := tokens.Validate(); errValidate != nil {
		s.backupCorrupt(errValidate)
		return nil, nil
	}
	return &tokens, nil
}

// backupCorrupt moves a bad token file aside so the next save starts clean.
// Failure to back up is logged and otherwise ignored: corrupt local state
// must never block usage, only force re-authentication.
func (s *FileTokenStore) backupCorrupt(cause error) {
	backupPath := s.path + ".bak"
	log.Warnf("token store: %s is corrupt (%v), moving to %s", s.path, cause, backupPath)
	if errRename := os.Rename(s.path, backupPath); errRename != nil {
		log.Errorf("token store: failed to back up corrupt file: %v", errRename)
	}
}

// Save persists the token file atomically with owner-only permissions.
func (s *FileTokenStore) Save(tokens *TokenFile) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("token store: create directory: %w", err)
	}

	data, err := json.MarshalIndent(tokens, "", "\t")
	if err != nil {
		return fmt.Errorf("token store: marshal tokens: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if errWrite := os.WriteFile(tmpPath, data, 0o600); errWrite != nil {
		return fmt.Errorf("token store: write temp file: %w", errWrite)
	}
	if errRename := os.Rename(tmpPath, s.path); errRename != nil {
		return fmt.Errorf("token store: rename temp file: %w", errRename)
	}
	// Rename preserves the temp file's mode, but re-assert in case an older
	// file existed with looser permissions.
	if errChmod := os.Chmod(s.path, 0o600); errChmod != nil {
		return fmt.Errorf("token store: chmod token file: %w", errChmod)
	}
	return nil
}

// GetProviderTokens returns the stored token set for a provider, or nil when
// the provider is not authenticated.
func (s *FileTokenStore) GetProviderTokens(provider string) (*ProviderToken, error) {
	tokens, err := s.Load()
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, nil
	}
	return tokens.Provider(provider), nil
}

// UpdateProviderTokens replaces the token set for a provider and saves.
func (s *FileTokenStore) UpdateProviderTokens(provider string, token *ProviderToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.Load()
	if err != nil {
		return err
	}
	if tokens == nil {
		tokens = &TokenFile{}
	}
	tokens.SetProvider(provider, token)
	return s.Save(tokens)
}

// DeleteProviderTokens removes a provider's token set. When the deleted
// provider was the configured default, the default is cleared too so the file
// never holds a dangling reference.
func (s *FileTokenStore) DeleteProviderTokens(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.Load()
	if err != nil {
		return err
	}
	if tokens == nil {
		return nil
	}
	tokens.SetProvider(provider, nil)
	if tokens.DefaultProvider == provider {
		tokens.DefaultProvider = ""
	}
	return s.Save(tokens)
}

// DefaultProvider returns the stored default-provider preference, or empty.
func (s *FileTokenStore) DefaultProvider() (string, error) {
	tokens, err := s.Load()
	if err != nil {
		return "", err
	}
	if tokens == nil {
		return "", nil
	}
	return tokens.DefaultProvider, nil
}

// SetDefaultProvider persists the default-provider preference.
func (s *FileTokenStore) SetDefaultProvider(provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tokens, err := s.Load()
	if err != nil {
		return err
	}
	if tokens == nil {
		tokens = &TokenFile{}
	}
	tokens.DefaultProvider = provider
	return s.Save(tokens)
}
