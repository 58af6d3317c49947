package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	apperrors "profileapi/internal/errors"
	"profileapi/internal/security"
)

// DocumentRecorder is implemented by audit stores that also persist
// issued license documents.
type DocumentRecorder interface {
	Record(ctx context.Context, lic *License) error
}

// Metrics holds the OpenTelemetry instruments for license operations
type Metrics struct {
	ValidationsTotal   metric.Int64Counter
	ValidationDuration metric.Float64Histogram
	LicensesIssued     metric.Int64Counter
}

// NewMetrics creates the license instruments on the given meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	validations, err := meter.Int64Counter("license.validations",
		metric.WithDescription("License validation attempts by result"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("license.validation.duration",
		metric.WithDescription("License validation duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	issued, err := meter.Int64Counter("license.issued",
		metric.WithDescription("Licenses issued"))
	if err != nil {
		return nil, err
	}
	return &Metrics{
		ValidationsTotal:   validations,
		ValidationDuration: duration,
		LicensesIssued:     issued,
	}, nil
}

// ManagerConfig wires a Manager's collaborators. Repository, Binding,
// Fingerprints and Logger are required; the rest are optional.
type ManagerConfig struct {
	Repository   BlobRepository
	Binding      *security.BindingStore
	Fingerprints security.FingerprintProvider
	Audit        AuditStore
	Logger       *slog.Logger
	Metrics      *Metrics
	Now          func() time.Time
}

// Manager issues, installs and validates hardware-bound licenses. One
// Manager is constructed per process and handed to the middleware and
// handlers; there is no package-level instance.
type Manager struct {
	repo         BlobRepository
	binding      *security.BindingStore
	fingerprints security.FingerprintProvider
	audit        AuditStore
	logger       *slog.Logger
	metrics      *Metrics
	now          func() time.Time
}

// NewManager creates a license manager from its configuration
func NewManager(cfg ManagerConfig) *Manager {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		repo:         cfg.Repository,
		binding:      cfg.Binding,
		fingerprints: cfg.Fingerprints,
		audit:        cfg.Audit,
		logger:       cfg.Logger.With(slog.String("component", "license_manager")),
		metrics:      cfg.Metrics,
		now:          now,
	}
}

// RegisterAdminMachine seals the current machine's fingerprint as the
// issuance anchor. Explicit by design: issuance never registers as a
// side effect.
func (m *Manager) RegisterAdminMachine(ctx context.Context, companySecret string) error {
	if err := m.binding.Register(companySecret); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "admin machine registered for license issuance")
	return nil
}

// Generate issues a license for the current machine. It refuses unless
// running on the registered admin machine. The returned blob is the
// encoded license ready for installation.
func (m *Manager) Generate(ctx context.Context, req GenerateRequest, companySecret string) (string, error) {
	authorized, err := m.binding.Authorize(companySecret)
	if err != nil {
		return "", err
	}
	if !authorized {
		m.logger.WarnContext(ctx, "license generation refused",
			slog.String("employee_id", req.EmployeeID))
		return "", apperrors.ErrNotAuthorized
	}

	fp, err := m.fingerprints.Fingerprint()
	if err != nil {
		return "", fmt.Errorf("failed to compute fingerprint: %w", err)
	}

	issuedAt := m.now().UTC()
	lic := License{
		EmployeeID:          req.EmployeeID,
		Name:                req.Name,
		Email:               req.Email,
		Department:          req.Department,
		IssuedAt:            issuedAt,
		ExpiresAt:           issuedAt.Add(ValidityPeriod),
		HardwareFingerprint: fp.Hash,
	}

	payload, err := json.Marshal(lic)
	if err != nil {
		return "", fmt.Errorf("failed to marshal license payload: %w", err)
	}

	blob, err := security.Encode(payload, companySecret)
	if err != nil {
		return "", err
	}

	if recorder, ok := m.audit.(DocumentRecorder); ok && recorder != nil {
		if err := recorder.Record(ctx, &lic); err != nil {
			m.logger.WarnContext(ctx, "failed to record issued license document",
				slog.String("employee_id", lic.EmployeeID),
				slog.String("error", err.Error()))
		}
	}

	if m.metrics != nil {
		m.metrics.LicensesIssued.Add(ctx, 1, metric.WithAttributes(
			attribute.String("department", lic.Department)))
	}

	m.logger.InfoContext(ctx, "license issued",
		slog.String("employee_id", lic.EmployeeID),
		slog.String("department", lic.Department),
		slog.Time("expires_at", lic.ExpiresAt))

	return blob, nil
}

// Install persists an encoded license blob. The blob is written as
// received; a corrupt blob is rejected by the codec on the next
// validation rather than here.
func (m *Manager) Install(ctx context.Context, blob string) error {
	if err := m.repo.Write(blob); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "license installed", slog.Int("blob_size", len(blob)))
	return nil
}

// Validate checks the installed license against the current machine.
// All license conditions are recovered into the result; only a missing
// company secret escapes as an error, since it indicates a deployment
// mistake rather than a license state.
//
// Check order: presence, decode, hardware, expiry. Hardware precedes
// expiry so a moved license reports the mismatch even when it has also
// expired.
func (m *Manager) Validate(ctx context.Context, companySecret string) (*ValidationResult, error) {
	if companySecret == "" {
		return nil, apperrors.ErrSecretMissing
	}

	start := m.now()
	fp, err := m.fingerprints.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("failed to compute fingerprint: %w", err)
	}

	result, employeeID := m.evaluate(ctx, companySecret, fp)

	m.recordValidation(ctx, employeeID, fp, result)

	if m.metrics != nil {
		outcome := "valid"
		if !result.IsValid {
			outcome = "invalid"
		}
		m.metrics.ValidationsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("result", outcome)))
		m.metrics.ValidationDuration.Record(ctx, m.now().Sub(start).Seconds())
	}

	return result, nil
}

// evaluate runs the validation checks and returns the result plus the
// employee ID when one could be decoded.
func (m *Manager) evaluate(ctx context.Context, companySecret string, fp *security.HardwareFingerprint) (*ValidationResult, string) {
	blob, err := m.repo.Read()
	if err != nil {
		if !errors.Is(err, apperrors.ErrNoLicense) {
			m.logger.ErrorContext(ctx, "failed to read license blob",
				slog.String("error", err.Error()))
		}
		return &ValidationResult{IsValid: false, Error: ReasonNoLicense}, ""
	}

	payload, err := security.Decode(blob, companySecret)
	if err != nil {
		m.logger.WarnContext(ctx, "license decode failed",
			slog.String("error", err.Error()))
		return &ValidationResult{IsValid: false, Error: ReasonInvalidLicense}, ""
	}

	var lic License
	if err := json.Unmarshal(payload, &lic); err != nil {
		m.logger.WarnContext(ctx, "license payload malformed",
			slog.String("error", err.Error()))
		return &ValidationResult{IsValid: false, Error: ReasonInvalidLicense}, ""
	}

	if lic.HardwareFingerprint != fp.Hash {
		m.logger.WarnContext(ctx, "license bound to different hardware",
			slog.String("employee_id", lic.EmployeeID),
			slog.String("licensed_fingerprint", lic.HardwareFingerprint),
			slog.String("current_fingerprint", fp.Hash))
		return &ValidationResult{IsValid: false, Error: ReasonHardwareMismatch}, lic.EmployeeID
	}

	if !m.now().Before(lic.ExpiresAt) {
		m.logger.WarnContext(ctx, "license expired",
			slog.String("employee_id", lic.EmployeeID),
			slog.Time("expires_at", lic.ExpiresAt))
		if m.audit != nil {
			if err := m.audit.Deactivate(ctx, lic.EmployeeID); err != nil {
				m.logger.WarnContext(ctx, "failed to deactivate license document",
					slog.String("employee_id", lic.EmployeeID),
					slog.String("error", err.Error()))
			}
		}
		return &ValidationResult{IsValid: false, Error: ReasonExpired}, lic.EmployeeID
	}

	return &ValidationResult{IsValid: true, Employee: &lic}, lic.EmployeeID
}

// recordValidation appends an audit entry for this check. Audit
// failures are logged, never surfaced: the validation outcome stands
// on its own.
func (m *Manager) recordValidation(ctx context.Context, employeeID string, fp *security.HardwareFingerprint, result *ValidationResult) {
	if m.audit == nil {
		return
	}

	device, err := security.DeviceID()
	if err != nil {
		device = fp.Hostname
	}

	record := NewValidationRecord(
		employeeID,
		device,
		ClientIPFromContext(ctx),
		fp.Hash,
		result.IsValid,
		result.Error,
	)
	if err := m.audit.Append(ctx, record); err != nil {
		m.logger.WarnContext(ctx, "failed to append validation record",
			slog.String("error", err.Error()))
	}
}

// History returns recent validation records from the audit trail
func (m *Manager) History(ctx context.Context, limit int64) ([]ValidationRecord, error) {
	if m.audit == nil {
		return nil, nil
	}
	return m.audit.History(ctx, limit)
}

// ValidateStartup runs a validation pass at process start and logs the
// outcome. It reports validity but does not halt the process; the
// caller decides whether to abort startup.
func (m *Manager) ValidateStartup(ctx context.Context, companySecret string) bool {
	result, err := m.Validate(ctx, companySecret)
	if err != nil {
		m.logger.ErrorContext(ctx, "startup license validation failed",
			slog.String("error", err.Error()))
		return false
	}
	if !result.IsValid {
		m.logger.ErrorContext(ctx, "startup license validation rejected",
			slog.String("reason", result.Error))
		return false
	}
	m.logger.InfoContext(ctx, "startup license validation succeeded",
		slog.String("employee_id", result.Employee.EmployeeID),
		slog.Time("expires_at", result.Employee.ExpiresAt))
	return true
}
