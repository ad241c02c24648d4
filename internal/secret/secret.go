// Package secret шифрует платёжные реквизиты перед записью в базу.
package secret

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	versionPlain  byte = 0
	versionSealed byte = 1
)

var ErrMalformed = errors.New("malformed sealed value")

type Box struct {
	key []byte
}

// NewBox принимает ключ в hex (32 байта). Пустой ключ - данные хранятся без шифрования.
func NewBox(hexKey string) (*Box, error) {
	if hexKey == "" {
		return &Box{}, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("payment key: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("payment key: want %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Box{key: key}, nil
}

func (b *Box) Sealing() bool {
	return len(b.key) > 0
}

func (b *Box) Seal(plain []byte) ([]byte, error) {
	if !b.Sealing() {
		return append([]byte{versionPlain}, plain...), nil
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plain)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := aead.Seal(nonce, nonce, plain, nil)
	return append([]byte{versionSealed}, sealed...), nil
}

func (b *Box) Open(value []byte) ([]byte, error) {
	if len(value) == 0 {
		return nil, nil
	}
	switch value[0] {
	case versionPlain:
		return value[1:], nil
	case versionSealed:
		if !b.Sealing() {
			return nil, fmt.Errorf("%w: payment key is not configured", ErrMalformed)
		}
		aead, err := chacha20poly1305.NewX(b.key)
		if err != nil {
			return nil, err
		}
		body := value[1:]
		if len(body) < aead.NonceSize() {
			return nil, ErrMalformed
		}
		return aead.Open(nil, body[:aead.NonceSize()], body[aead.NonceSize():], nil)
	default:
		return nil, ErrMalformed
	}
}
