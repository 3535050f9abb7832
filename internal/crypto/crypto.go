package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/etlfabric/etlfabric-api/internal/connector"
)

// Service encrypts connection configs at rest with AES-256-GCM. The nonce
// is prepended to the ciphertext.
type Service struct {
	key []byte
}

// NewService decodes a base64 32-byte key.
func NewService(b64Key string) (*Service, error) {
	if b64Key == "" {
		return nil, fmt.Errorf("encryption key not set")
	}
	key, err := base64.StdEncoding.DecodeString(b64Key)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes")
	}
	return &Service{key: key}, nil
}

func (s *Service) Encrypt(plain []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func (s *Service) Decrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// EncryptConfig serializes and encrypts a connection config map.
func (s *Service) EncryptConfig(config connector.Config) ([]byte, error) {
	plain, err := json.Marshal(config)
	if err != nil {
		return nil, err
	}
	return s.Encrypt(plain)
}

// DecryptConfig decrypts and deserializes a stored connection config.
func (s *Service) DecryptConfig(data []byte) (connector.Config, error) {
	plain, err := s.Decrypt(data)
	if err != nil {
		return nil, err
	}
	var config connector.Config
	if err := json.Unmarshal(plain, &config); err != nil {
		return nil, err
	}
	return config, nil
}
