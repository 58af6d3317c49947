package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"os"

	apperrors "profileapi/internal/errors"
)

// FingerprintProvider yields the current machine's fingerprint.
// *Fingerprinter satisfies it; tests substitute fixed fingerprints.
type FingerprintProvider interface {
	Fingerprint() (*HardwareFingerprint, error)
}

// BindingStore manages the admin machine binding file. The binding
// anchors license issuance to a single machine: only the machine whose
// fingerprint is sealed in the binding may generate licenses.
//
// Registration is an explicit operation. Issuance never creates a
// binding as a side effect, so copying the binary to a new machine
// cannot silently re-anchor trust there.
type BindingStore struct {
	path         string
	fingerprints FingerprintProvider
	logger       *slog.Logger
}

// NewBindingStore creates a binding store over the given file path
func NewBindingStore(path string, fingerprints FingerprintProvider, logger *slog.Logger) *BindingStore {
	return &BindingStore{
		path:         path,
		fingerprints: fingerprints,
		logger:       logger.With(slog.String("component", "binding_store")),
	}
}

// Registered reports whether a binding file exists
func (b *BindingStore) Registered() bool {
	_, err := os.Stat(b.path)
	return err == nil
}

// Register seals the current machine's fingerprint into the binding
// file. An existing binding is never overwritten; remove the file
// manually to re-register.
func (b *BindingStore) Register(companySecret string) error {
	if companySecret == "" {
		return apperrors.ErrSecretMissing
	}
	if b.Registered() {
		return apperrors.ErrBindingExists
	}

	fp, err := b.fingerprints.Fingerprint()
	if err != nil {
		return fmt.Errorf("failed to compute fingerprint: %w", err)
	}

	key := sha256.Sum256([]byte(companySecret))
	gcm, err := newGCM(key[:])
	if err != nil {
		return err
	}

	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return fmt.Errorf("failed to generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(fp.Hash), nil)
	ciphertext := sealed[:len(sealed)-TagSize]
	authTag := sealed[len(sealed)-TagSize:]

	blob := make([]byte, 0, IVSize+TagSize+len(ciphertext))
	blob = append(blob, iv...)
	blob = append(blob, authTag...)
	blob = append(blob, ciphertext...)

	if err := os.WriteFile(b.path, blob, 0o600); err != nil {
		return fmt.Errorf("failed to write binding file: %w", err)
	}

	b.logger.Info("admin machine registered",
		slog.String("path", b.path),
		slog.String("fingerprint", fp.Hash))

	return nil
}

// Authorize reports whether the current machine is the registered
// admin machine. Tampered binding files and wrong secrets both come
// back as a plain "not authorized"; only a missing secret or a missing
// binding surface as errors.
func (b *BindingStore) Authorize(companySecret string) (bool, error) {
	if companySecret == "" {
		return false, apperrors.ErrSecretMissing
	}

	blob, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, apperrors.ErrAdminNotRegistered
		}
		return false, fmt.Errorf("failed to read binding file: %w", err)
	}

	if len(blob) < IVSize+TagSize {
		b.logger.Warn("binding file truncated, treating as unauthorized",
			slog.Int("size", len(blob)))
		return false, nil
	}

	iv := blob[:IVSize]
	authTag := blob[IVSize : IVSize+TagSize]
	ciphertext := blob[IVSize+TagSize:]

	key := sha256.Sum256([]byte(companySecret))
	gcm, err := newGCM(key[:])
	if err != nil {
		return false, err
	}

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, authTag...)

	boundHash, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		b.logger.Warn("binding file failed authentication, treating as unauthorized")
		return false, nil
	}

	fp, err := b.fingerprints.Fingerprint()
	if err != nil {
		return false, fmt.Errorf("failed to compute fingerprint: %w", err)
	}

	authorized := subtle.ConstantTimeCompare(boundHash, []byte(fp.Hash)) == 1
	if !authorized {
		b.logger.Warn("issuance attempted from unbound machine",
			slog.String("current_fingerprint", fp.Hash))
	}

	return authorized, nil
}
