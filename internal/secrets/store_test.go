package secrets

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}

	if err := store.Put("access_token", "ya29.secret-value"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok := store.Get("access_token")
	if !ok || got != "ya29.secret-value" {
		t.Errorf("Get() = %q, %v; want stored value", got, ok)
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("Get() on missing key reported present")
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := store.Put("refresh_token", "1//persisted"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	reopened, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("reopen NewFileStore() error = %v", err)
	}
	got, ok := reopened.Get("refresh_token")
	if !ok || got != "1//persisted" {
		t.Errorf("after reopen Get() = %q, %v; want persisted value", got, ok)
	}
}

func TestFileStore_EncryptedAtRest(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := store.Put("access_token", "plaintext-secret-value"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "secrets.enc"))
	if err != nil {
		t.Fatalf("failed to read store file: %v", err)
	}
	if bytes.Contains(raw, []byte("plaintext-secret-value")) {
		t.Error("secret value appears in plaintext on disk")
	}
}

func TestFileStore_DeleteIdempotent(t *testing.T) {
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	if err := store.Put("k", "v"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := store.Get("k"); ok {
		t.Error("key still present after delete")
	}
	if err := store.Delete("k"); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
}

func TestEncryptor_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	enc, err := NewEncryptor(dir)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	plaintext := []byte(`{"access_token":"ya29.test","refresh_token":"1//test"}`)

	ciphertext, err := enc.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Equal([]byte(ciphertext), plaintext) {
		t.Error("ciphertext equals plaintext")
	}

	decrypted, err := enc.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("roundtrip mismatch: got %s, want %s", decrypted, plaintext)
	}
}

func TestEncryptor_EmptyInput(t *testing.T) {
	dir := t.TempDir()

	enc, err := NewEncryptor(dir)
	if err != nil {
		t.Fatalf("NewEncryptor() error = %v", err)
	}

	if _, err := enc.Encrypt(nil); err == nil {
		t.Error("Encrypt(nil) succeeded, want error")
	}
	if _, err := enc.Decrypt(""); err == nil {
		t.Error("Decrypt(\"\") succeeded, want error")
	}
	if _, err := enc.Decrypt("not-base64!!"); err == nil {
		t.Error("Decrypt(invalid base64) succeeded, want error")
	}
}
