package cryptox

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dsemenov/datavault/internal/common"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := GenerateKey()
	if len(key) != KeySize {
		t.Fatalf("unexpected key length: %d", len(key))
	}

	plaintext := []byte(`{"content":"x","n":42}`)

	ciphertext, nonce, tag, err := Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatal("ciphertext equals plaintext")
	}
	if len(nonce) != NonceSize {
		t.Fatalf("unexpected nonce length: %d", len(nonce))
	}

	got, err := Decrypt(ciphertext, key, nonce, tag)
	if err != nil {
		t.Fatalf("Decrypt error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	key := GenerateKey()
	_, n1, _, err := Encrypt([]byte("payload"), key)
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	_, n2, _, err := Encrypt([]byte("payload"), key)
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	if bytes.Equal(n1, n2) {
		t.Fatal("nonce reused across encryptions")
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	key := GenerateKey()
	ciphertext, nonce, tag, err := Encrypt([]byte("sensitive"), key)
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}

	ciphertext[0] ^= 0xff

	_, err = Decrypt(ciphertext, key, nonce, tag)
	if !errors.Is(err, common.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	key := GenerateKey()
	other := GenerateKey()
	ciphertext, nonce, tag, err := Encrypt([]byte("sensitive"), key)
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}

	_, err = Decrypt(ciphertext, other, nonce, tag)
	if !errors.Is(err, common.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestDecrypt_MalformedInputs(t *testing.T) {
	key := GenerateKey()

	if _, _, _, err := Encrypt([]byte("x"), []byte("short")); !errors.Is(err, common.ErrDecode) {
		t.Fatalf("expected ErrDecode for short key, got %v", err)
	}

	if _, err := Decrypt([]byte("ct"), key, []byte("bad-nonce"), make([]byte, tagSize)); !errors.Is(err, common.ErrDecode) {
		t.Fatalf("expected ErrDecode for bad nonce, got %v", err)
	}

	if _, err := Decrypt([]byte("ct"), key, make([]byte, NonceSize), []byte("t")); !errors.Is(err, common.ErrDecode) {
		t.Fatalf("expected ErrDecode for bad tag, got %v", err)
	}
}
