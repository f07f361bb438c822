package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailrules/config"
)

func setTestKey(t *testing.T) {
	t.Helper()
	prev := config.AppConfig.EncryptionKey
	config.AppConfig.EncryptionKey = "0123456789abcdef0123456789abcdef"
	t.Cleanup(func() { config.AppConfig.EncryptionKey = prev })
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	setTestKey(t)

	sealed, err := Encrypt("app-password-123")
	require.NoError(t, err)
	assert.NotEqual(t, "app-password-123", sealed)

	// A fresh IV per call: same plaintext, different ciphertext.
	sealed2, err := Encrypt("app-password-123")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, sealed2)

	got, err := Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "app-password-123", got)
}

func TestEncryptEmptyStaysEmpty(t *testing.T) {
	setTestKey(t)

	sealed, err := Encrypt("")
	require.NoError(t, err)
	assert.Empty(t, sealed)

	got, err := Decrypt("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecryptRejectsShortCiphertext(t *testing.T) {
	setTestKey(t)

	_, err := Decrypt("YWJj") // "abc", shorter than one block
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestJWTRoundTrip(t *testing.T) {
	setTestKey(t)

	token, err := GenerateJWTToken(42)
	require.NoError(t, err)

	claims, err := ParseJWTToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)

	_, err = ParseJWTToken(token + "tampered")
	assert.Error(t, err)
}
