package security

import (
	"testing"

	"github.com/ruteri/storage-policy-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptor_RoundTrip(t *testing.T) {
	enc, err := NewEncryptor([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{name: "short text", plaintext: []byte("hello")},
		{name: "empty payload", plaintext: []byte{}},
		{name: "binary", plaintext: []byte{0x00, 0xff, 0x10, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := enc.Encrypt(tt.plaintext)
			require.NoError(t, err)
			assert.NotEqual(t, len(tt.plaintext), len(sealed))

			opened, err := enc.Decrypt(sealed)
			require.NoError(t, err)
			if len(tt.plaintext) == 0 {
				assert.Empty(t, opened)
			} else {
				assert.Equal(t, tt.plaintext, opened)
			}
		})
	}
}

func TestEncryptor_DecryptRejectsGarbage(t *testing.T) {
	enc, err := NewEncryptor([]byte("test-secret"))
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "too short", data: []byte("SPB1")},
		{name: "wrong magic", data: make([]byte, 128)},
		{name: "plaintext passed as ciphertext", data: []byte("just some regular file content that was never encrypted")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := enc.Decrypt(tt.data)
			assert.ErrorIs(t, err, interfaces.ErrDecryptionFailed)
		})
	}
}

func TestEncryptor_DecryptRejectsTamperedEnvelope(t *testing.T) {
	enc, err := NewEncryptor([]byte("test-secret"))
	require.NoError(t, err)

	sealed, err := enc.Encrypt([]byte("sensitive payload"))
	require.NoError(t, err)

	sealed[len(sealed)-1] ^= 0x01
	_, err = enc.Decrypt(sealed)
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailed)
}

func TestEncryptor_DecryptRejectsWrongSecret(t *testing.T) {
	enc, err := NewEncryptor([]byte("secret-a"))
	require.NoError(t, err)
	other, err := NewEncryptor([]byte("secret-b"))
	require.NoError(t, err)

	sealed, err := enc.Encrypt([]byte("payload"))
	require.NoError(t, err)

	_, err = other.Decrypt(sealed)
	assert.ErrorIs(t, err, interfaces.ErrDecryptionFailed)
}

func TestNewEncryptor_RejectsEmptySecret(t *testing.T) {
	_, err := NewEncryptor(nil)
	assert.Error(t, err)
}
