package google

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/99designs/keyring"
)

// ErrNoToken is returned by a TokenStore that holds no credentials
var ErrNoToken = errors.New("no stored Google credentials, run 'inbleach login' first")

// Token store kinds accepted by NewTokenStore
const (
	StoreFile    = "file"
	StoreKeyring = "keyring"
)

const (
	appName           = "inbleach"
	tokenFileName     = "google.token"
	keyringItemKey    = "google-credentials"
	keyringFilePrompt = "inbleach-file-key"
)

// TokenStore persists the credentials used by the command line tools
type TokenStore interface {
	Load() (*Credentials, error)
	Save(*Credentials) error
	Delete() error
}

// NewTokenStore returns the store of the given kind. For the file store,
// path overrides the default location; for the keyring store it is the
// directory of the encrypted file fallback.
func NewTokenStore(kind, path string) (TokenStore, error) {
	switch kind {
	case "", StoreFile:
		return NewFileTokenStore(path), nil
	case StoreKeyring:
		ring, err := OpenKeyring(path)
		if err != nil {
			return nil, err
		}
		return NewKeyringTokenStore(ring), nil
	default:
		return nil, fmt.Errorf("unknown token store %q, must be one of: file, keyring", kind)
	}
}

// FileTokenStore keeps credentials as JSON in a file only the user can read
type FileTokenStore struct {
	path string
}

// NewFileTokenStore creates a file store at path, or at the default
// location in the user cache directory when path is empty.
func NewFileTokenStore(path string) *FileTokenStore {
	if path == "" {
		path = DefaultTokenFile()
	}
	return &FileTokenStore{path: path}
}

// DefaultTokenFile returns the default credentials file location
func DefaultTokenFile() string {
	return filepath.Join(userCacheDir(), appName, tokenFileName)
}

// Path returns the file the store reads and writes
func (s *FileTokenStore) Path() string {
	return s.path
}

func (s *FileTokenStore) Load() (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	return ParseCredentials(data)
}

func (s *FileTokenStore) Save(c *Credentials) error {
	data, err := c.JSON()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}

func (s *FileTokenStore) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// KeyringTokenStore keeps credentials in the OS keychain
type KeyringTokenStore struct {
	ring keyring.Keyring
}

// NewKeyringTokenStore wraps an open keyring
func NewKeyringTokenStore(ring keyring.Keyring) *KeyringTokenStore {
	return &KeyringTokenStore{ring: ring}
}

// OpenKeyring opens the platform keychain, falling back to an encrypted file
// under fileDir (default ~/.config/inbleach/credentials).
func OpenKeyring(fileDir string) (keyring.Keyring, error) {
	if fileDir == "" {
		fileDir = "~/.config/" + appName + "/credentials"
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: appName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(keyringFilePrompt),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

func (s *KeyringTokenStore) Load() (*Credentials, error) {
	item, err := s.ring.Get(keyringItemKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("getting credential %q: %w", keyringItemKey, err)
	}
	return ParseCredentials(item.Data)
}

func (s *KeyringTokenStore) Save(c *Credentials) error {
	data, err := c.JSON()
	if err != nil {
		return err
	}
	err = s.ring.Set(keyring.Item{
		Key:         keyringItemKey,
		Data:        data,
		Label:       "inbleach Google credentials",
		Description: "OAuth2 credentials for the Gmail API",
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", keyringItemKey, err)
	}
	return nil
}

func (s *KeyringTokenStore) Delete() error {
	err := s.ring.Remove(keyringItemKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", keyringItemKey, err)
	}
	return nil
}

func userCacheDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Caches")
	case "windows":
		for _, ev := range []string{"LOCALAPPDATA", "TEMP", "TMP"} {
			if v := os.Getenv(ev); v != "" {
				return v
			}
		}
		return os.TempDir()
	}
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return xdg
	}
	return filepath.Join(homeDir(), ".cache")
}

func homeDir() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("HOMEDRIVE") + os.Getenv("HOMEPATH")
	}
	return os.Getenv("HOME")
}
