package secrets

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const keyLen = 32 // AES-256

var (
	// ErrInvalidCiphertext indicates the stored value is not in the
	// expected "iv:ciphertext" hex format or fails to decrypt.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// Codec encrypts and decrypts short secrets (user API keys) with
// AES-256-CBC. Each encryption uses a fresh random IV stored alongside the
// ciphertext as "ivhex:cthex".
type Codec struct {
	key []byte
}

// NewCodec derives the AES key from a passphrase and salt via scrypt.
func NewCodec(passphrase, salt string) (*Codec, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, errors.New("encryption passphrase required")
	}
	if strings.TrimSpace(salt) == "" {
		return nil, errors.New("encryption salt required")
	}
	key, err := scrypt.Key([]byte(passphrase), []byte(salt), 1<<15, 8, 1, keyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return &Codec{key: key}, nil
}

// Encrypt returns "ivhex:cthex" for the given plaintext.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("plaintext required")
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}
	padded := pad([]byte(plaintext))
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt. Returns ErrInvalidCiphertext for malformed or
// undecryptable input.
func (c *Codec) Decrypt(encrypted string) (string, error) {
	parts := strings.Split(encrypted, ":")
	if len(parts) != 2 {
		return "", ErrInvalidCiphertext
	}
	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrInvalidCiphertext
	}
	ct, err := hex.DecodeString(parts[1])
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", ErrInvalidCiphertext
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)
	plain, err = unpad(plain)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plain), nil
}

// IsEncrypted reports whether a stored value looks like Codec output.
func IsEncrypted(value string) bool {
	parts := strings.Split(value, ":")
	return len(parts) == 2 && len(parts[0]) == aes.BlockSize*2
}

func pad(data []byte) []byte {
	n := aes.BlockSize - len(data)%aes.BlockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty data")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return nil, errors.New("bad padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("bad padding")
		}
	}
	return data[:len(data)-n], nil
}
