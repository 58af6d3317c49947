package services

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "profileapi/internal/errors"
	"profileapi/internal/license"
	"profileapi/internal/security"
)

const testSecret = "company-secret"

type staticFingerprints struct {
	fp *security.HardwareFingerprint
}

func (s *staticFingerprints) Fingerprint() (*security.HardwareFingerprint, error) {
	return s.fp, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newService builds a service over a manager pinned to a synthetic
// machine, with the admin binding pre-registered.
func newService(t *testing.T) (LicenseService, *license.MemoryRepository) {
	t.Helper()

	machine := &staticFingerprints{fp: &security.HardwareFingerprint{
		Hostname: "svc-host",
		Hash:     security.ComputeHash("svc-cpu", 8589934592, "linux", "aa:bb:cc:dd:ee:ff"),
	}}
	binding := security.NewBindingStore(
		filepath.Join(t.TempDir(), ".admin-fingerprint"), machine, testLogger())
	require.NoError(t, binding.Register(testSecret))

	repo := license.NewMemoryRepository()
	manager := license.NewManager(license.ManagerConfig{
		Repository:   repo,
		Binding:      binding,
		Fingerprints: machine,
		Audit:        license.NewMemoryAuditStore(),
		Logger:       testLogger(),
	})
	return NewLicenseService(manager, testSecret, testLogger()), repo
}

func sampleRequest() license.GenerateRequest {
	return license.GenerateRequest{
		EmployeeID: "E001",
		Name:       "Jane Doe",
		Email:      "jane@example.com",
		Department: "Engineering",
	}
}

func TestGetStatusNotInstalled(t *testing.T) {
	svc, _ := newService(t)

	resp, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusNotInstalled, resp.LicenseStatus)
	assert.Equal(t, license.ReasonNoLicense, resp.Message)
	assert.Nil(t, resp.Employee)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestGenerateInstallStatus(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	gen, err := svc.Generate(ctx, sampleRequest())
	require.NoError(t, err)
	require.NotEmpty(t, gen.Blob)

	require.NoError(t, svc.Install(ctx, gen.Blob))

	resp, err := svc.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, resp.LicenseStatus)
	require.NotNil(t, resp.Employee)
	assert.Equal(t, "E001", resp.Employee.EmployeeID)
	assert.Greater(t, resp.DaysLeft, 360)
}

func TestGetStatusInvalidBlob(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	require.NoError(t, repo.Write("corrupt"))

	resp, err := svc.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusInvalid, resp.LicenseStatus)
	assert.Equal(t, license.ReasonInvalidLicense, resp.Message)
}

func TestGetStatusWrongMachine(t *testing.T) {
	ctx := context.Background()

	issuer, _ := newService(t)
	gen, err := issuer.Generate(ctx, sampleRequest())
	require.NoError(t, err)

	// Build the target on different synthetic hardware so the issued
	// blob carries a mismatching fingerprint there.
	otherMachine := &staticFingerprints{fp: &security.HardwareFingerprint{
		Hash: security.ComputeHash("other-cpu", 1024, "linux", "11:22:33:44:55:66"),
	}}
	target := NewLicenseService(license.NewManager(license.ManagerConfig{
		Repository: license.NewMemoryRepository(),
		Binding: security.NewBindingStore(
			filepath.Join(t.TempDir(), ".admin-fingerprint"), otherMachine, testLogger()),
		Fingerprints: otherMachine,
		Logger:       testLogger(),
	}), testSecret, testLogger())

	require.NoError(t, target.Install(ctx, gen.Blob))

	resp, err := target.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusWrongMachine, resp.LicenseStatus)
}

func TestGetStatusMissingSecret(t *testing.T) {
	machine := &staticFingerprints{fp: &security.HardwareFingerprint{
		Hash: security.ComputeHash("cpu", 1024, "linux", "aa:bb"),
	}}
	manager := license.NewManager(license.ManagerConfig{
		Repository: license.NewMemoryRepository(),
		Binding: security.NewBindingStore(
			filepath.Join(t.TempDir(), ".admin-fingerprint"), machine, testLogger()),
		Fingerprints: machine,
		Logger:       testLogger(),
	})
	svc := NewLicenseService(manager, "", testLogger())

	_, err := svc.GetStatus(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrSecretMissing)
}

func TestRegisterAdminConflict(t *testing.T) {
	svc, _ := newService(t)

	// Fixture already registered this machine.
	err := svc.RegisterAdmin(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrBindingExists)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.GetStatus(ctx)
	require.NoError(t, err)

	records, err := svc.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Success)
}

func TestValidateStartup(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	assert.False(t, svc.ValidateStartup(ctx))

	gen, err := svc.Generate(ctx, sampleRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Install(ctx, gen.Blob))

	assert.True(t, svc.ValidateStartup(ctx))
}
