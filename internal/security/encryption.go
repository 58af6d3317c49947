package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	apperrors "profileapi/internal/errors"
)

// Blob layout constants. These define the on-disk license format:
// base64(salt(64) || iv(16) || authTag(16) || ciphertext).
const (
	SaltSize         = 64
	IVSize           = 16
	TagSize          = 16
	KeySize          = 32
	PBKDF2Iterations = 100000
)

// Encode encrypts the payload under a key derived from the secret.
// Each call draws a fresh salt and IV, so two licenses encrypted with
// the same secret produce unlinkable ciphertexts.
func Encode(payload []byte, secret string) (string, error) {
	if secret == "" {
		return "", apperrors.ErrSecretMissing
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}

	key := pbkdf2.Key([]byte(secret), salt, PBKDF2Iterations, KeySize, sha512.New)
	defer wipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, iv, payload, nil)
	ciphertext := sealed[:len(sealed)-TagSize]
	authTag := sealed[len(sealed)-TagSize:]

	blob := make([]byte, 0, SaltSize+IVSize+TagSize+len(ciphertext))
	blob = append(blob, salt...)
	blob = append(blob, iv...)
	blob = append(blob, authTag...)
	blob = append(blob, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decode decrypts a blob produced by Encode. Any failure, whether a
// wrong secret, truncated input or flipped byte, is reported uniformly
// as ErrDecryptionFailed so callers cannot partially trust the result.
func Decode(blob, secret string) ([]byte, error) {
	if secret == "" {
		return nil, apperrors.ErrSecretMissing
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed encoding", apperrors.ErrDecryptionFailed)
	}
	if len(raw) < SaltSize+IVSize+TagSize {
		return nil, fmt.Errorf("%w: truncated blob", apperrors.ErrDecryptionFailed)
	}

	salt := raw[:SaltSize]
	iv := raw[SaltSize : SaltSize+IVSize]
	authTag := raw[SaltSize+IVSize : SaltSize+IVSize+TagSize]
	ciphertext := raw[SaltSize+IVSize+TagSize:]

	key := pbkdf2.Key([]byte(secret), salt, PBKDF2Iterations, KeySize, sha512.New)
	defer wipe(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, authTag...)

	payload, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", apperrors.ErrDecryptionFailed)
	}

	return payload, nil
}

// newGCM builds an AES-256-GCM AEAD with the 16-byte IV this format uses
func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// wipe overwrites key material before it leaves scope
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
