package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultEncryptor_RoundTrip(t *testing.T) {
	e, err := NewVaultEncryptor("passphrase-key")
	require.NoError(t, err)

	ciphertext, err := e.Encrypt("jane.doe@acme.io")
	require.NoError(t, err)
	assert.NotEqual(t, "jane.doe@acme.io", ciphertext)

	plaintext, err := e.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "jane.doe@acme.io", plaintext)
}

func TestVaultEncryptor_NoncesDiffer(t *testing.T) {
	e, err := NewVaultEncryptor("passphrase-key")
	require.NoError(t, err)

	first, err := e.Encrypt("same value")
	require.NoError(t, err)
	second, err := e.Encrypt("same value")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestVaultEncryptor_EmptyStringsPassThrough(t *testing.T) {
	e, err := NewVaultEncryptor("passphrase-key")
	require.NoError(t, err)

	ciphertext, err := e.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", ciphertext)

	plaintext, err := e.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", plaintext)
}

func TestVaultEncryptor_WrongKey(t *testing.T) {
	e1, err := NewVaultEncryptor("key-one")
	require.NoError(t, err)
	e2, err := NewVaultEncryptor("key-two")
	require.NoError(t, err)

	ciphertext, err := e1.Encrypt("secret")
	require.NoError(t, err)

	_, err = e2.Decrypt(ciphertext)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestVaultEncryptor_TamperedCiphertext(t *testing.T) {
	e, err := NewVaultEncryptor("passphrase-key")
	require.NoError(t, err)

	ciphertext, err := e.Encrypt("secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	_, err = e.Decrypt(tampered)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestVaultEncryptor_DecodeFailures(t *testing.T) {
	e, err := NewVaultEncryptor("passphrase-key")
	require.NoError(t, err)

	_, err = e.Decrypt("not base64!!!")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = e.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestNewVaultEncryptor_Keys(t *testing.T) {
	_, err := NewVaultEncryptor("")
	assert.ErrorIs(t, err, ErrInvalidKey)

	// A base64 32-byte key is used directly.
	key := make([]byte, 32)
	_, err = rand.Read(key)
	require.NoError(t, err)

	e, err := NewVaultEncryptor(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)

	ciphertext, err := e.Encrypt("value")
	require.NoError(t, err)
	plaintext, err := e.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "value", plaintext)
}
