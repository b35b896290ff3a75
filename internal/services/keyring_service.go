package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
)

const serviceName = "memit"

// KeyringOptions selects and configures the secret backend.
type KeyringOptions struct {
	// Backend forces one backend ("file", "keychain", "wincred", "secret-service",
	// ...). Empty lets the library pick the best available one.
	Backend  string
	FileDir  string
	Password string
}

// OpenKeyring opens the OS keyring for this application. The encrypted file
// backend is always allowed as a last resort so headless machines still work.
func OpenKeyring(opts KeyringOptions) (keyring.Keyring, error) {
	fileDir := opts.FileDir
	if fileDir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, err
		}
		fileDir = filepath.Join(configDir, serviceName, "keyring")
	}

	cfg := keyring.Config{
		ServiceName:              serviceName,
		KeychainTrustApplication: true,
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(opts.Password),
	}
	if b := strings.TrimSpace(opts.Backend); b != "" {
		cfg.AllowedBackends = []keyring.BackendType{keyring.BackendType(b)}
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

// KeyringService stores secret settings (API keys, auth tokens).
type KeyringService struct {
	ring keyring.Keyring
}

func NewKeyringService(ring keyring.Keyring) *KeyringService {
	return &KeyringService{ring: ring}
}

// Get returns the stored secret, or "" when none exists.
func (s *KeyringService) Get(key string) (string, error) {
	if key == "" {
		return "", errors.New("key is required")
	}
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(item.Data), nil
}

// Set stores value under key. An empty value deletes the key.
func (s *KeyringService) Set(key, value string) error {
	if key == "" {
		return errors.New("key is required")
	}
	if value == "" {
		return s.Delete(key)
	}
	return s.ring.Set(keyring.Item{
		Key:         key,
		Data:        []byte(value),
		Label:       serviceName + " " + key,
		Description: "Credential used by Memit",
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *KeyringService) Delete(key string) error {
	if key == "" {
		return errors.New("key is required")
	}
	if err := s.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *KeyringService) ListKeys() ([]string, error) {
	return s.ring.Keys()
}
