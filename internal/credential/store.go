package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
)

// FileStore keeps the token as JSON in a file.
type FileStore struct{}

func (FileStore) Load(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return &tok, nil
}

// Save writes to a temp file and renames it over path.
func (FileStore) Save(tok *oauth2.Token, path string) error {
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

const keyringService = "gigmail"

// KeyringStore keeps the token in the OS keyring, keyed by the token path.
type KeyringStore struct {
	Ring keyring.Keyring
}

// OpenKeyring opens the system keyring, falling back to an encrypted file
// backend under dir.
func OpenKeyring(dir string) (*KeyringStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(dir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt(keyringService + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &KeyringStore{Ring: ring}, nil
}

func (s *KeyringStore) Load(path string) (*oauth2.Token, error) {
	item, err := s.Ring.Get(path)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting token %q: %w", path, err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(item.Data, &tok); err != nil {
		return nil, fmt.Errorf("decode token %q: %w", path, err)
	}
	return &tok, nil
}

func (s *KeyringStore) Save(tok *oauth2.Token, path string) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	err = s.Ring.Set(keyring.Item{
		Key:   path,
		Data:  b,
		Label: "gigmail gmail token",
	})
	if err != nil {
		return fmt.Errorf("setting token %q: %w", path, err)
	}
	return nil
}
