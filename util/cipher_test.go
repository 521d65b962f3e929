package util

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESCipherRoundTrip(t *testing.T) {
	c, err := NewAESCipher(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	plaintext := []byte(`{"degree":"BSc","year":2024}`)
	ciphertext, nonce, err := c.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := c.Decrypt(ciphertext, nonce)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAESCipherFreshNonces(t *testing.T) {
	c, err := NewAESCipher(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	_, nonce1, err := c.Encrypt([]byte("metadata"))
	require.NoError(t, err)
	_, nonce2, err := c.Encrypt([]byte("metadata"))
	require.NoError(t, err)
	assert.NotEqual(t, nonce1, nonce2)
}

func TestAESCipherWrongNonce(t *testing.T) {
	c, err := NewAESCipher(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)

	ciphertext, nonce, err := c.Encrypt([]byte("metadata"))
	require.NoError(t, err)

	wrong := make([]byte, len(nonce))
	_, err = c.Decrypt(ciphertext, wrong)
	assert.Error(t, err)
}

func TestNewAESCipherKeyLength(t *testing.T) {
	_, err := NewAESCipher([]byte("short"))
	assert.Error(t, err)

	_, err = NewAESCipher(bytes.Repeat([]byte{0x01}, 32))
	assert.NoError(t, err)
}
