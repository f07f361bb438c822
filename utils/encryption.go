package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"mailrules/config"
)

// ErrCiphertextTooShort means the stored value is shorter than one AES
// block and cannot carry an IV. Usually a sign the column holds plaintext
// from before encryption was enabled.
var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Encrypt seals a mailbox secret with AES-CFB under the deployment key
// and returns it base64-encoded for storage. Empty input stays empty so
// optional credential columns round-trip as-is.
func Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	block, err := aes.NewCipher([]byte(config.AppConfig.EncryptionKey))
	if err != nil {
		return "", fmt.Errorf("encryption key: %w", err)
	}

	// IV travels as the first block of the ciphertext.
	sealed := make([]byte, aes.BlockSize+len(plaintext))
	iv := sealed[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	cipher.NewCFBEncrypter(block, iv).XORKeyStream(sealed[aes.BlockSize:], []byte(plaintext))
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Called only by the adapter factory and the
// connection test; decrypted secrets never reach the API layer.
func Decrypt(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}

	block, err := aes.NewCipher([]byte(config.AppConfig.EncryptionKey))
	if err != nil {
		return "", fmt.Errorf("encryption key: %w", err)
	}

	sealed, err := base64.URLEncoding.DecodeString(stored)
	if err != nil {
		return "", err
	}
	if len(sealed) < aes.BlockSize {
		return "", ErrCiphertextTooShort
	}

	iv, body := sealed[:aes.BlockSize], sealed[aes.BlockSize:]
	cipher.NewCFBDecrypter(block, iv).XORKeyStream(body, body)
	return string(body), nil
}
