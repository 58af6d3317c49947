// Package services contains the business logic layer between the HTTP
// transport and the license manager.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"profileapi/internal/license"
)

// LicenseService provides license operations to the transport layer
type LicenseService interface {
	GetStatus(ctx context.Context) (*LicenseStatusResponse, error)
	RegisterAdmin(ctx context.Context) error
	Generate(ctx context.Context, req license.GenerateRequest) (*GenerateResponse, error)
	Install(ctx context.Context, blob string) error
	History(ctx context.Context, limit int64) ([]license.ValidationRecord, error)
	ValidateStartup(ctx context.Context) bool
}

// License status values reported by GetStatus
const (
	StatusActive       = "active"
	StatusExpired      = "expired"
	StatusWrongMachine = "wrong_machine"
	StatusNotInstalled = "not_installed"
	StatusInvalid      = "invalid"
)

// LicenseStatusResponse is the standardized license status payload
type LicenseStatusResponse struct {
	LicenseStatus string           `json:"license_status"`
	Message       string           `json:"message"`
	DaysLeft      int              `json:"days_left,omitempty"`
	Employee      *license.License `json:"employee,omitempty"`
	TraceID       string           `json:"trace_id"`
	Timestamp     time.Time        `json:"timestamp"`
}

// GenerateResponse carries a freshly issued license blob
type GenerateResponse struct {
	Blob      string    `json:"blob"`
	TraceID   string    `json:"trace_id"`
	Timestamp time.Time `json:"timestamp"`
}

// licenseService is the production LicenseService implementation
type licenseService struct {
	manager *license.Manager
	secret  string
	logger  *slog.Logger
}

// NewLicenseService creates a license service over the given manager
func NewLicenseService(manager *license.Manager, companySecret string, logger *slog.Logger) LicenseService {
	return &licenseService{
		manager: manager,
		secret:  companySecret,
		logger:  logger.With(slog.String("service", "license")),
	}
}

// GetStatus validates the installed license and maps the result onto a
// status response.
func (s *licenseService) GetStatus(ctx context.Context) (*LicenseStatusResponse, error) {
	result, err := s.manager.Validate(ctx, s.secret)
	if err != nil {
		return nil, err
	}

	resp := &LicenseStatusResponse{
		TraceID:   middleware.GetReqID(ctx),
		Timestamp: time.Now().UTC(),
	}

	if result.IsValid {
		resp.LicenseStatus = StatusActive
		resp.Message = "License is valid"
		resp.Employee = result.Employee
		resp.DaysLeft = int(time.Until(result.Employee.ExpiresAt).Hours() / 24)
		return resp, nil
	}

	resp.Message = result.Error
	switch result.Error {
	case license.ReasonNoLicense:
		resp.LicenseStatus = StatusNotInstalled
	case license.ReasonExpired:
		resp.LicenseStatus = StatusExpired
	case license.ReasonHardwareMismatch:
		resp.LicenseStatus = StatusWrongMachine
	default:
		resp.LicenseStatus = StatusInvalid
	}
	return resp, nil
}

// RegisterAdmin registers the current machine as the issuance anchor
func (s *licenseService) RegisterAdmin(ctx context.Context) error {
	return s.manager.RegisterAdminMachine(ctx, s.secret)
}

// Generate issues a license for the current machine
func (s *licenseService) Generate(ctx context.Context, req license.GenerateRequest) (*GenerateResponse, error) {
	blob, err := s.manager.Generate(ctx, req, s.secret)
	if err != nil {
		return nil, err
	}
	return &GenerateResponse{
		Blob:      blob,
		TraceID:   middleware.GetReqID(ctx),
		Timestamp: time.Now().UTC(),
	}, nil
}

// Install persists an encoded license blob
func (s *licenseService) Install(ctx context.Context, blob string) error {
	return s.manager.Install(ctx, blob)
}

// History returns recent validation audit records
func (s *licenseService) History(ctx context.Context, limit int64) ([]license.ValidationRecord, error) {
	return s.manager.History(ctx, limit)
}

// ValidateStartup runs the startup validation hook
func (s *licenseService) ValidateStartup(ctx context.Context) bool {
	return s.manager.ValidateStartup(ctx, s.secret)
}
