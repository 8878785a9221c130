package creds

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"curator/internal/services"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	return NewStore(filepath.Join(root, "credentials.enc"), filepath.Join(root, "credentials.key"))
}

func TestSetAndForOwner(t *testing.T) {
	store := newTestStore(t)

	cred := Credential{Username: "alice", APIKey: "k-123"}
	if err := store.Set("alice", cred); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := store.ForOwner("alice")
	if err != nil {
		t.Fatalf("for owner: %v", err)
	}
	if got.Username != "alice" || got.APIKey != "k-123" {
		t.Fatalf("credential = %+v", got)
	}
}

func TestForOwnerFallsBackToDefault(t *testing.T) {
	store := newTestStore(t)

	if err := store.Set(DefaultOwner, Credential{Username: "svc", APIKey: "k-shared"}); err != nil {
		t.Fatalf("set default: %v", err)
	}

	got, err := store.ForOwner("bob")
	if err != nil {
		t.Fatalf("for owner: %v", err)
	}
	if got.Username != "svc" {
		t.Fatalf("expected default credential, got %+v", got)
	}
}

func TestForOwnerMissingIsConfigurationError(t *testing.T) {
	store := newTestStore(t)
	if err := store.Set("alice", Credential{Username: "alice", APIKey: "k"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	_, err := store.ForOwner("nobody")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestFileIsEncryptedAtRest(t *testing.T) {
	store := newTestStore(t)
	if err := store.Set("alice", Credential{Username: "alice", APIKey: "super-secret-key"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, err := os.ReadFile(store.credsPath)
	if err != nil {
		t.Fatalf("read sealed file: %v", err)
	}
	if bytes.Contains(raw, []byte("super-secret-key")) || bytes.Contains(raw, []byte("alice")) {
		t.Fatal("plaintext leaked into credential file")
	}
}

func TestWrongKeyFailsDecryption(t *testing.T) {
	store := newTestStore(t)
	if err := store.Set("alice", Credential{Username: "alice", APIKey: "k"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Replace the key with garbage of the right length.
	key, err := os.ReadFile(store.keyPath)
	if err != nil {
		t.Fatalf("read key: %v", err)
	}
	for i := range key {
		key[i] ^= 0xff
	}
	if err := os.WriteFile(store.keyPath, key, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	_, err = store.ForOwner("alice")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestSetRejectsIncompleteCredential(t *testing.T) {
	store := newTestStore(t)
	err := store.Set("alice", Credential{Username: "alice"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteAndOwners(t *testing.T) {
	store := newTestStore(t)
	_ = store.Set("alice", Credential{Username: "alice", APIKey: "k1"})
	_ = store.Set("bob", Credential{Username: "bob", APIKey: "k2"})

	owners, err := store.Owners()
	if err != nil {
		t.Fatalf("owners: %v", err)
	}
	if len(owners) != 2 {
		t.Fatalf("owners = %v", owners)
	}

	if err := store.Delete("alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.ForOwner("alice"); err == nil {
		t.Fatal("deleted credential still resolvable")
	}
	// Deleting again is a no-op.
	if err := store.Delete("alice"); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
}
