// Package license implements the hardware-locked software license
// gate: issuance on a registered admin machine, encrypted installation
// on the target machine, and validation bound to that machine's
// hardware fingerprint.
package license

import (
	"context"
	"fmt"
	"time"

	apperrors "profileapi/internal/errors"
)

// ValidityPeriod is the fixed lifetime of an issued license
const ValidityPeriod = 365 * 24 * time.Hour

// License is the payload sealed inside an encoded license blob. It is
// immutable after issuance; revocation means replacing the installed
// blob.
type License struct {
	EmployeeID          string    `json:"employeeId"`
	Name                string    `json:"name"`
	Email               string    `json:"email"`
	Department          string    `json:"department"`
	IssuedAt            time.Time `json:"issuedAt"`
	ExpiresAt           time.Time `json:"expiresAt"`
	HardwareFingerprint string    `json:"hardwareFingerprint"`
}

// GenerateRequest carries the caller-supplied identity fields for a
// new license.
type GenerateRequest struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Department string `json:"department" validate:"required"`
}

// ValidationResult is the structured outcome of a validation run.
// Error holds a human-readable reason when IsValid is false.
type ValidationResult struct {
	IsValid  bool     `json:"is_valid"`
	Employee *License `json:"employee,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Err maps the failure reason onto its sentinel error, for callers
// that branch with errors.Is instead of comparing reason strings. A
// valid result yields nil.
func (r *ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	switch r.Error {
	case ReasonNoLicense:
		return apperrors.ErrNoLicense
	case ReasonInvalidLicense:
		return apperrors.ErrDecryptionFailed
	case ReasonHardwareMismatch:
		return apperrors.ErrHardwareMismatch
	case ReasonExpired:
		return apperrors.ErrLicenseExpired
	default:
		return fmt.Errorf("license invalid: %s", r.Error)
	}
}

// Validation failure reasons surfaced to callers. The decode failure
// message deliberately does not distinguish an unreadable blob from a
// wrong secret.
const (
	ReasonNoLicense        = "No license file found"
	ReasonInvalidLicense   = "Invalid license"
	ReasonHardwareMismatch = "Invalid hardware configuration"
	ReasonExpired          = "License has expired"
)

type contextKey string

const clientIPContextKey contextKey = "client_ip"

// WithClientIP returns a context annotated with the remote client IP,
// recorded in validation audit entries.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey, ip)
}

// ClientIPFromContext retrieves the client IP set by WithClientIP.
func ClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPContextKey).(string); ok {
		return ip
	}
	return ""
}
