// Package middleware provides the HTTP enforcement layer for the
// license gate: a primary validator that stamps successful requests
// with an unforgeable token, and a secondary guard that rejects any
// request reaching a protected route without that token.
package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	apperrors "profileapi/internal/errors"
	"profileapi/internal/license"
)

// Validator is the slice of the license manager the middleware needs
type Validator interface {
	Validate(ctx context.Context, companySecret string) (*license.ValidationResult, error)
}

// EnforcementToken is a per-process random value proving a request
// passed the primary validation middleware. It replaces runtime
// introspection tricks: the guard cannot be satisfied without the
// enforcer having run, because only the enforcer holds the token.
type EnforcementToken []byte

// NewEnforcementToken generates a fresh 32-byte token
func NewEnforcementToken() (EnforcementToken, error) {
	token := make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		return nil, fmt.Errorf("failed to generate enforcement token: %w", err)
	}
	return token, nil
}

type contextKey string

const (
	employeeContextKey contextKey = "license_employee"
	tokenContextKey    contextKey = "license_token"
)

// EmployeeFromContext returns the employee info stamped onto a request
// that passed license validation.
func EmployeeFromContext(ctx context.Context) (*license.License, bool) {
	emp, ok := ctx.Value(employeeContextKey).(*license.License)
	return emp, ok
}

// tokenFromContext returns the enforcement token stamped by the enforcer
func tokenFromContext(ctx context.Context) (EnforcementToken, bool) {
	token, ok := ctx.Value(tokenContextKey).(EnforcementToken)
	return token, ok
}

// EnforcerMetrics holds the OpenTelemetry instruments for the enforcer
type EnforcerMetrics struct {
	RequestsTotal      metric.Int64Counter
	ValidationFailures metric.Int64Counter
}

// NewEnforcerMetrics creates the enforcer instruments on the given meter
func NewEnforcerMetrics(meter metric.Meter) (*EnforcerMetrics, error) {
	requests, err := meter.Int64Counter("license.middleware.requests",
		metric.WithDescription("Requests seen by the license enforcement middleware"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("license.middleware.rejections",
		metric.WithDescription("Requests rejected by the license enforcement middleware"))
	if err != nil {
		return nil, err
	}
	return &EnforcerMetrics{RequestsTotal: requests, ValidationFailures: failures}, nil
}

// Enforcer is the primary license validation middleware. Each request
// re-validates from scratch; on success it stamps the employee info
// and the enforcement token onto the request context.
//
// Enforcement is controlled by an explicit flag passed at construction,
// never inferred from the runtime environment. When disabled the token
// is still stamped so downstream guards stay consistent.
type Enforcer struct {
	validator Validator
	secret    string
	enabled   bool
	token     EnforcementToken
	logger    *slog.Logger
	metrics   *EnforcerMetrics
}

// NewEnforcer creates the primary enforcement middleware
func NewEnforcer(validator Validator, secret string, enabled bool, token EnforcementToken, logger *slog.Logger) *Enforcer {
	return &Enforcer{
		validator: validator,
		secret:    secret,
		enabled:   enabled,
		token:     token,
		logger:    logger.With(slog.String("component", "license_middleware")),
	}
}

// SetMetrics attaches OpenTelemetry instruments to the enforcer
func (e *Enforcer) SetMetrics(metrics *EnforcerMetrics) {
	e.metrics = metrics
}

// Handler returns the middleware handler
func (e *Enforcer) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		reqID := middleware.GetReqID(ctx)

		if e.metrics != nil {
			e.metrics.RequestsTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("path", r.URL.Path)))
		}

		if !e.enabled {
			ctx = context.WithValue(ctx, tokenContextKey, e.token)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if e.secret == "" {
			e.logger.ErrorContext(ctx, "company secret not configured",
				slog.String("path", r.URL.Path))
			e.reject(w, r, apperrors.NewConfigurationProblem(
				"License validation is not configured on this server",
				instance(r, reqID)))
			return
		}

		ctx = license.WithClientIP(ctx, clientIP(r))
		result, err := e.validator.Validate(ctx, e.secret)
		if err != nil {
			if errors.Is(err, apperrors.ErrSecretMissing) {
				e.reject(w, r, apperrors.NewConfigurationProblem(
					"License validation is not configured on this server",
					instance(r, reqID)))
				return
			}
			e.logger.ErrorContext(ctx, "license validation error",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()))
			e.reject(w, r, apperrors.NewConfigurationProblem(
				"License validation failed unexpectedly",
				instance(r, reqID)))
			return
		}

		if !result.IsValid {
			e.logger.WarnContext(ctx, "request rejected by license gate",
				slog.String("path", r.URL.Path),
				slog.String("reason", result.Error))
			e.reject(w, r, apperrors.NewLicenseProblem(result.Error, instance(r, reqID)))
			return
		}

		employee := *result.Employee
		ctx = context.WithValue(ctx, employeeContextKey, &employee)
		ctx = context.WithValue(ctx, tokenContextKey, e.token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// reject renders the problem response and counts the rejection
func (e *Enforcer) reject(w http.ResponseWriter, r *http.Request, problem *apperrors.ProblemDetails) {
	if e.metrics != nil {
		e.metrics.ValidationFailures.Add(r.Context(), 1, metric.WithAttributes(
			attribute.Int("status", problem.Status)))
	}
	render.Render(w, r, problem)
}

// Guard is the secondary enforcement middleware. It verifies the
// enforcement token stamped by the Enforcer and exists to catch route
// wiring mistakes that bypass the primary middleware. It shares the
// process with the Enforcer, so it defends against misconfiguration,
// not a determined attacker.
type Guard struct {
	token  EnforcementToken
	logger *slog.Logger
}

// NewGuard creates the secondary guard middleware
func NewGuard(token EnforcementToken, logger *slog.Logger) *Guard {
	return &Guard{
		token:  token,
		logger: logger.With(slog.String("component", "license_guard")),
	}
}

// Handler returns the middleware handler
func (g *Guard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		reqID := middleware.GetReqID(ctx)

		stamped, ok := tokenFromContext(ctx)
		if !ok || subtle.ConstantTimeCompare(stamped, g.token) != 1 {
			g.logger.ErrorContext(ctx, "protected route reached without license validation",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))
			render.Render(w, r, apperrors.NewSecurityViolationProblem(instance(r, reqID)))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// instance builds the RFC 7807 instance reference for a request
func instance(r *http.Request, reqID string) string {
	if reqID == "" {
		return r.URL.Path
	}
	return r.URL.Path + "#" + reqID
}

// clientIP extracts the client address without the port
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
