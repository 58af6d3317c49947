package security

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "profileapi/internal/errors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		secret  string
	}{
		{
			name:    "json payload",
			payload: []byte(`{"employeeId":"E001","name":"Jane Doe"}`),
			secret:  "company-secret-key",
		},
		{
			name:    "empty payload",
			payload: []byte{},
			secret:  "company-secret-key",
		},
		{
			name:    "binary payload",
			payload: []byte{0x00, 0xff, 0x10, 0x80, 0x7f},
			secret:  "another-secret",
		},
		{
			name:    "large payload",
			payload: []byte(strings.Repeat("license-data-", 1000)),
			secret:  "company-secret-key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := Encode(tt.payload, tt.secret)
			require.NoError(t, err)
			require.NotEmpty(t, blob)

			decoded, err := Decode(blob, tt.secret)
			require.NoError(t, err)
			// Compare contents: an empty payload may round-trip to a
			// nil slice.
			assert.Equal(t, string(tt.payload), string(decoded))
		})
	}
}

func TestEncodeBlobLayout(t *testing.T) {
	payload := []byte("layout check")

	blob, err := Encode(payload, "secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)

	assert.Equal(t, SaltSize+IVSize+TagSize+len(payload), len(raw))
}

func TestEncodeProducesUniqueBlobs(t *testing.T) {
	payload := []byte("same payload")

	first, err := Encode(payload, "secret")
	require.NoError(t, err)
	second, err := Encode(payload, "secret")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "fresh salt and iv must make blobs unlinkable")
}

func TestEncodeMissingSecret(t *testing.T) {
	_, err := Encode([]byte("payload"), "")
	assert.ErrorIs(t, err, apperrors.ErrSecretMissing)
}

func TestDecodeMissingSecret(t *testing.T) {
	_, err := Decode("anything", "")
	assert.ErrorIs(t, err, apperrors.ErrSecretMissing)
}

func TestDecodeWrongSecret(t *testing.T) {
	blob, err := Encode([]byte("payload"), "right-secret")
	require.NoError(t, err)

	_, err = Decode(blob, "wrong-secret")
	assert.ErrorIs(t, err, apperrors.ErrDecryptionFailed)
}

func TestDecodeTamperedBlob(t *testing.T) {
	blob, err := Encode([]byte(`{"employeeId":"E001"}`), "secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)

	// Flip one byte in every section of the blob: salt, iv, tag and
	// ciphertext corruption must all fail identically.
	positions := map[string]int{
		"salt":       0,
		"iv":         SaltSize,
		"auth_tag":   SaltSize + IVSize,
		"ciphertext": SaltSize + IVSize + TagSize,
	}

	for section, pos := range positions {
		t.Run(section, func(t *testing.T) {
			tampered := make([]byte, len(raw))
			copy(tampered, raw)
			tampered[pos] ^= 0x01

			_, err := Decode(base64.StdEncoding.EncodeToString(tampered), "secret")
			assert.ErrorIs(t, err, apperrors.ErrDecryptionFailed)
		})
	}
}

func TestDecodeMalformedInput(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{name: "not base64", blob: "!!!not-base64!!!"},
		{name: "empty", blob: ""},
		{name: "too short", blob: base64.StdEncoding.EncodeToString(make([]byte, SaltSize+IVSize))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.blob, "secret")
			assert.ErrorIs(t, err, apperrors.ErrDecryptionFailed)
		})
	}
}

func TestDecodeTruncatedCiphertext(t *testing.T) {
	blob, err := Encode([]byte("payload to truncate"), "secret")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)

	truncated := base64.StdEncoding.EncodeToString(raw[:len(raw)-3])
	_, err = Decode(truncated, "secret")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDecryptionFailed))
}
