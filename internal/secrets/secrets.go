package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

const sealedPrefix = "v1:"

var ErrMalformed = errors.New("malformed sealed value")

// Box seals and opens credential fields with AES-256-GCM. Sealed values are
// "v1:" + base64(nonce || ciphertext).
type Box struct {
	aead cipher.AEAD
}

// NewBox derives the AES key from the passphrase with SHA-256.
func NewBox(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, errors.New("credentials key is empty")
	}
	key := sha256.Sum256([]byte(passphrase))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Box{aead: aead}, nil
}

func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	out := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the version prefix are legacy
// plaintext and returned unchanged.
func (b *Box) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if !strings.HasPrefix(sealed, sealedPrefix) {
		return sealed, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, sealedPrefix))
	if err != nil {
		return "", ErrMalformed
	}
	ns := b.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrMalformed
	}
	plain, err := b.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	return string(plain), nil
}

func (b *Box) SealCredentials(c domain.Credentials) (domain.Sealed, error) {
	var s domain.Sealed
	var err error
	if s.GameUsername, err = b.Seal(c.GameUsername); err != nil {
		return domain.Sealed{}, err
	}
	if s.GamePassword, err = b.Seal(c.GamePassword); err != nil {
		return domain.Sealed{}, err
	}
	if s.AdditionalInfo, err = b.Seal(c.AdditionalInfo); err != nil {
		return domain.Sealed{}, err
	}
	s.LoginMethod = c.LoginMethod
	return s, nil
}

func (b *Box) OpenCredentials(s domain.Sealed) (domain.Credentials, error) {
	var c domain.Credentials
	var err error
	if c.GameUsername, err = b.Open(s.GameUsername); err != nil {
		return domain.Credentials{}, fmt.Errorf("game username: %w", err)
	}
	if c.GamePassword, err = b.Open(s.GamePassword); err != nil {
		return domain.Credentials{}, fmt.Errorf("game password: %w", err)
	}
	if c.AdditionalInfo, err = b.Open(s.AdditionalInfo); err != nil {
		return domain.Credentials{}, fmt.Errorf("additional info: %w", err)
	}
	c.LoginMethod = s.LoginMethod
	return c, nil
}
