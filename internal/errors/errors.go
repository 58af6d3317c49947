package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// License gate sentinel errors
var (
	ErrSecretMissing      = errors.New("company secret is not configured")
	ErrNoLicense          = errors.New("no license file found")
	ErrDecryptionFailed   = errors.New("invalid license")
	ErrHardwareMismatch   = errors.New("invalid hardware configuration")
	ErrLicenseExpired     = errors.New("license has expired")
	ErrAdminNotRegistered = errors.New("admin machine is not registered")
	ErrNotAuthorized      = errors.New("machine is not authorized to issue licenses")
	ErrBindingExists      = errors.New("admin binding already exists")
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON includes extension members alongside the standard fields
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension member to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// NewLicenseProblem maps a license validation error message onto a 403
// problem response.
func NewLicenseProblem(detail, instance string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusForbidden,
		"/errors/license-invalid",
		"License Invalid",
		detail,
		instance,
	)
}

// NewConfigurationProblem reports a deployment mistake such as a
// missing company secret.
func NewConfigurationProblem(detail, instance string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusInternalServerError,
		"/errors/configuration",
		"Configuration Error",
		detail,
		instance,
	)
}

// NewSecurityViolationProblem reports a request that reached a guarded
// route without passing license validation.
func NewSecurityViolationProblem(instance string) *ProblemDetails {
	return NewProblemDetails(
		http.StatusForbidden,
		"/errors/security-violation",
		"Security Violation",
		"Request reached a protected route without license validation",
		instance,
	)
}
