package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/ruteri/storage-policy-backend/interfaces"
	"golang.org/x/crypto/argon2"
)

// Envelope layout: magic || salt || nonce || AES-GCM ciphertext. The salt is
// fresh per encryption, so the derived key differs for every payload.
var envelopeMagic = []byte("SPB1")

const (
	envelopeSaltSize  = 16
	envelopeNonceSize = 12
)

// Encryptor wraps payloads in an authenticated encryption envelope. The
// content key is derived from the configured secret with argon2id using a
// per-payload salt. Encryptor is safe for concurrent use.
type Encryptor struct {
	secret []byte
}

// NewEncryptor creates an encryptor from a secret. The secret must not be
// empty.
func NewEncryptor(secret []byte) (*Encryptor, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("empty encryption secret")
	}
	return &Encryptor{secret: secret}, nil
}

// Encrypt seals a payload into an envelope. The output is always longer than
// the input by the envelope overhead.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, envelopeSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	nonce := make([]byte, envelopeNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aesGCM, err := e.aead(salt)
	if err != nil {
		return nil, err
	}

	ciphertext := aesGCM.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, len(envelopeMagic)+envelopeSaltSize+envelopeNonceSize+len(ciphertext))
	out = append(out, envelopeMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decrypt opens an envelope produced by Encrypt. Any input that is not a
// well-formed envelope sealed with the same secret fails with
// interfaces.ErrDecryptionFailed; garbage is never silently returned.
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	header := len(envelopeMagic) + envelopeSaltSize + envelopeNonceSize
	if len(data) < header {
		return nil, fmt.Errorf("%w: payload too short", interfaces.ErrDecryptionFailed)
	}
	if !bytes.Equal(data[:len(envelopeMagic)], envelopeMagic) {
		return nil, fmt.Errorf("%w: not an encryption envelope", interfaces.ErrDecryptionFailed)
	}

	salt := data[len(envelopeMagic) : len(envelopeMagic)+envelopeSaltSize]
	nonce := data[len(envelopeMagic)+envelopeSaltSize : header]
	ciphertext := data[header:]

	aesGCM, err := e.aead(salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

func (e *Encryptor) aead(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey(e.secret, salt, 1, 64*1024, 4, 32)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aesGCM, nil
}
