package creds

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	"curator/internal/services"
)

// DefaultOwner keys the credential used when a job has no owner or the owner
// has no credential of their own.
const DefaultOwner = "default"

// Credential is one user's archive identity.
type Credential struct {
	Endpoint string `json:"endpoint,omitempty"`
	Username string `json:"username"`
	APIKey   string `json:"api_key"`
}

// Valid reports whether the credential carries enough to authenticate.
func (c Credential) Valid() bool {
	return strings.TrimSpace(c.Username) != "" && strings.TrimSpace(c.APIKey) != ""
}

// Store seals and unseals the credential file.
type Store struct {
	credsPath string
	keyPath   string
}

// NewStore builds a credential store over the configured file locations.
func NewStore(credsPath, keyPath string) *Store {
	return &Store{credsPath: credsPath, keyPath: keyPath}
}

// ForOwner decrypts the credential file and returns the credential for the
// given owner, falling back to the default entry. The plaintext never leaves
// this call's scope except through the returned value.
func (s *Store) ForOwner(owner string) (Credential, error) {
	all, err := s.load()
	if err != nil {
		return Credential{}, err
	}
	if owner != "" {
		if cred, ok := all[owner]; ok && cred.Valid() {
			return cred, nil
		}
	}
	if cred, ok := all[DefaultOwner]; ok && cred.Valid() {
		return cred, nil
	}
	return Credential{}, services.Wrap(services.ErrConfiguration, "", "credentials",
		fmt.Sprintf("no usable credential for owner %q", owner), nil)
}

// Set stores or replaces one owner's credential.
func (s *Store) Set(owner string, cred Credential) error {
	if owner == "" {
		owner = DefaultOwner
	}
	if !cred.Valid() {
		return services.Wrap(services.ErrValidation, "", "credentials", "username and api key are required", nil)
	}
	all, err := s.load()
	if err != nil {
		return err
	}
	if all == nil {
		all = make(map[string]Credential)
	}
	all[owner] = cred
	return s.save(all)
}

// Delete removes one owner's credential. Removing an absent owner is a no-op.
func (s *Store) Delete(owner string) error {
	all, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := all[owner]; !ok {
		return nil
	}
	delete(all, owner)
	return s.save(all)
}

// Owners lists the owners that have stored credentials.
func (s *Store) Owners() ([]string, error) {
	all, err := s.load()
	if err != nil {
		return nil, err
	}
	owners := make([]string, 0, len(all))
	for owner := range all {
		owners = append(owners, owner)
	}
	return owners, nil
}

func (s *Store) load() (map[string]Credential, error) {
	sealed, err := os.ReadFile(s.credsPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]Credential{}, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	key, err := s.loadKey(false)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, services.Wrap(services.ErrConfiguration, "", "credentials", "credential file truncated", nil)
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "credentials", "decrypt failed; wrong key?", err)
	}

	var all map[string]Credential
	if err := json.Unmarshal(plaintext, &all); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return all, nil
}

func (s *Store) save(all map[string]Credential) error {
	plaintext, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	key, err := s.loadKey(true)
	if err != nil {
		return err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return fmt.Errorf("init cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)

	if dir := filepath.Dir(s.credsPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create credentials directory: %w", err)
		}
	}
	if err := os.WriteFile(s.credsPath, sealed, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// loadKey reads the key file, generating a fresh key when generate is true
// and no key exists yet.
func (s *Store) loadKey(generate bool) ([]byte, error) {
	key, err := os.ReadFile(s.keyPath)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, services.Wrap(services.ErrConfiguration, "", "credentials",
				fmt.Sprintf("key file must hold %d bytes", chacha20poly1305.KeySize), nil)
		}
		return key, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	if !generate {
		return nil, services.Wrap(services.ErrConfiguration, "", "credentials", "key file missing", nil)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if dir := filepath.Dir(s.keyPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create key directory: %w", err)
		}
	}
	if err := os.WriteFile(s.keyPath, key, 0o600); err != nil {
		return nil, fmt.Errorf("write key file: %w", err)
	}
	return key, nil
}
