// Package vault encrypts and decrypts per-tenant platform secrets at rest.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

// ErrCrypto indicates a tampered, truncated, or otherwise undecryptable
// ciphertext. Callers treat it as fatal for the credential lookup.
var ErrCrypto = errors.New("vault: cannot decrypt credential")

// ErrKeySize indicates an encryption key of the wrong length.
var ErrKeySize = errors.New("vault: encryption key must be 32 bytes")

const (
	keySize   = 32
	nonceSize = 24

	// Ciphertext prefixes. sealed values require the key; encoded values
	// are the keyless development fallback.
	prefixSealed  = "v1:"
	prefixEncoded = "b64:"
)

// Vault seals and opens credential strings with a process-wide symmetric key.
// When no key is configured it degrades to a reversible encoding so that
// stored values are never byte-identical to the secret, and Available
// reports false so operators can be warned.
type Vault struct {
	key    *[keySize]byte
	logger *slog.Logger
}

// New creates a Vault from a base64-encoded 32-byte key. An empty key yields
// a keyless vault.
func New(log *slog.Logger, encodedKey string) (*Vault, error) {
	if log == nil {
		log = slog.Default()
	}
	v := &Vault{logger: log.With(slog.String("service", "vault"))}
	encodedKey = strings.TrimSpace(encodedKey)
	if encodedKey == "" {
		v.logger.Warn("no encryption key configured; credentials are only encoded, not encrypted")
		return v, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryption key: %w", err)
	}
	if len(raw) != keySize {
		return nil, ErrKeySize
	}
	v.key = new([keySize]byte)
	copy(v.key[:], raw)
	return v, nil
}

// GenerateKey returns a fresh base64-encoded 32-byte key.
func GenerateKey() (string, error) {
	raw := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Available reports whether real encryption is configured.
func (v *Vault) Available() bool {
	return v.key != nil
}

// Encrypt seals plaintext. Keyless vaults fall back to a reversible encoding.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if v.key == nil {
		return prefixEncoded + base64.StdEncoding.EncodeToString([]byte(plaintext)), nil
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, v.key)
	return prefixSealed + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt. It never returns garbage:
// tampered or malformed input yields ErrCrypto.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	switch {
	case strings.HasPrefix(ciphertext, prefixEncoded):
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, prefixEncoded))
		if err != nil {
			return "", ErrCrypto
		}
		return string(raw), nil
	case strings.HasPrefix(ciphertext, prefixSealed):
		if v.key == nil {
			return "", fmt.Errorf("%w: sealed value but no key configured", ErrCrypto)
		}
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, prefixSealed))
		if err != nil {
			return "", ErrCrypto
		}
		if len(raw) < nonceSize+secretbox.Overhead {
			return "", ErrCrypto
		}
		var nonce [nonceSize]byte
		copy(nonce[:], raw[:nonceSize])
		opened, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, v.key)
		if !ok {
			return "", ErrCrypto
		}
		return string(opened), nil
	default:
		return "", ErrCrypto
	}
}

// DecryptAll opens every value of a credential map. Used to materialize a
// binding's credential set for the scope of one outbound call.
func (v *Vault) DecryptAll(encrypted map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(encrypted))
	for name, ciphertext := range encrypted {
		plain, err := v.Decrypt(ciphertext)
		if err != nil {
			return nil, fmt.Errorf("credential %q: %w", name, err)
		}
		out[name] = plain
	}
	return out, nil
}

// EncryptAll seals every value of a credential map.
func (v *Vault) EncryptAll(plain map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(plain))
	for name, value := range plain {
		sealed, err := v.Encrypt(value)
		if err != nil {
			return nil, fmt.Errorf("credential %q: %w", name, err)
		}
		out[name] = sealed
	}
	return out, nil
}
