// Package secret 负责敏感配置（如 LLM endpoint 的 API Key）的加解密。
package secret

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const prefix = "enc:v1:"

var (
	ErrEmptyKey   = errors.New("加密主密钥未配置")
	ErrNotSealed  = errors.New("值不是密文")
	ErrCorrupted  = errors.New("密文已损坏或主密钥不匹配")
	hkdfInfo      = []byte("llm-eval endpoint secrets")
	hkdfSaltValue = []byte("llm-eval-go")
)

// Box 使用 XChaCha20-Poly1305 加密字符串，密钥由主密钥经 HKDF-SHA256 派生。
type Box struct {
	aead cipher.AEAD
}

// NewBox 由主密钥创建 Box。
func NewBox(masterKey string) (*Box, error) {
	if masterKey == "" {
		return nil, ErrEmptyKey
	}
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(masterKey), hkdfSaltValue, hkdfInfo), key); err != nil {
		return nil, fmt.Errorf("派生密钥失败: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Box{aead: aead}, nil
}

// Seal 加密明文，返回带版本前缀的 base64 字符串。
func (b *Box) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(plaintext)+b.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Open 解密 Seal 的输出。
func (b *Box) Open(value string) (string, error) {
	if !IsSealed(value) {
		return "", ErrNotSealed
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(value, prefix))
	if err != nil || len(raw) < b.aead.NonceSize() {
		return "", ErrCorrupted
	}
	nonce, ct := raw[:b.aead.NonceSize()], raw[b.aead.NonceSize():]
	plain, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrCorrupted
	}
	return string(plain), nil
}

// IsSealed 判断值是否为本包生成的密文。
func IsSealed(value string) bool {
	return strings.HasPrefix(value, prefix)
}
