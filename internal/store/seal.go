// ABOUTME: Seals agent private keys at rest with XChaCha20-Poly1305
// ABOUTME: The AEAD key is derived from the configured secret with HKDF-SHA256

package store

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	sealInfo    = "coven-hcs10 agent key v1"
	sealVersion = "v1"
)

type sealer struct {
	key []byte
}

func newSealer(secret []byte) (*sealer, error) {
	if len(secret) == 0 {
		return nil, nil
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(sealInfo)), key); err != nil {
		return nil, fmt.Errorf("deriving sealing key: %w", err)
	}
	return &sealer{key: key}, nil
}

// seal returns "v1:<base64 nonce||ciphertext>". The agent name is bound as
// associated data so a sealed key cannot be moved to another row.
func (s *sealer) seal(plaintext, name string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("creating AEAD: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	out := aead.Seal(nonce, nonce, []byte(plaintext), []byte(name))
	return sealVersion + ":" + base64.StdEncoding.EncodeToString(out), nil
}

func (s *sealer) open(sealed, name string) (string, error) {
	version, payload, ok := strings.Cut(sealed, ":")
	if !ok || version != sealVersion {
		return "", fmt.Errorf("unsupported sealed key format")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decoding sealed key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("creating AEAD: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("sealed key too short")
	}
	plaintext, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], []byte(name))
	if err != nil {
		return "", fmt.Errorf("opening sealed key: %w", err)
	}
	return string(plaintext), nil
}
