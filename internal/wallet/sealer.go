package wallet

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealingKeySize = 32
	nonceSize      = 24
)

// Sealer 使用 nacl/secretbox 加密落库的助记词。密文格式为 nonce 加 box。
type Sealer struct {
	key [sealingKeySize]byte
}

// NewSealer 解析 32 字节的密钥，支持 hex 与标准 base64 两种写法。
func NewSealer(encoded string) (*Sealer, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errors.New("sealing key must not be empty")
	}
	raw, err := hex.DecodeString(encoded)
	if err != nil || len(raw) != sealingKeySize {
		raw, err = base64.StdEncoding.DecodeString(encoded)
		if err != nil || len(raw) != sealingKeySize {
			return nil, fmt.Errorf("sealing key must be %d bytes in hex or base64", sealingKeySize)
		}
	}
	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

// Seal 加密明文。
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

// Open 解密 Seal 的输出。
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, errors.New("sealed payload is too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, errors.New("sealed payload failed authentication")
	}
	return plain, nil
}
