// Package http contains the chi HTTP handlers for the license API.
package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "profileapi/internal/errors"
	"profileapi/internal/license"
	"profileapi/internal/services"
)

// LicenseHandler handles license-related HTTP requests
type LicenseHandler struct {
	service  services.LicenseService
	logger   *slog.Logger
	validate *validator.Validate
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(service services.LicenseService, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:  service,
		logger:   logger.With(slog.String("handler", "license")),
		validate: validator.New(),
	}
}

// InstallRequest carries an encoded license blob for installation
type InstallRequest struct {
	Blob string `json:"blob" validate:"required"`
}

// Routes returns the chi router for license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/status", h.GetStatus)
	r.Get("/history", h.GetHistory)
	r.Post("/register-admin", h.RegisterAdmin)
	r.Post("/generate", h.Generate)
	r.Post("/install", h.Install)

	return r
}

// GetStatus handles GET /api/license/status
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp, err := h.service.GetStatus(ctx)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, resp)
}

// GetHistory handles GET /api/license/history
func (h *LicenseHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := int64(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 {
			render.Render(w, r, apperrors.NewProblemDetails(
				http.StatusBadRequest,
				"/errors/invalid-request",
				"Invalid Request",
				"limit must be a positive integer",
				h.instance(r)))
			return
		}
		limit = parsed
	}

	records, err := h.service.History(ctx, limit)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if records == nil {
		records = []license.ValidationRecord{}
	}

	render.JSON(w, r, records)
}

// RegisterAdmin handles POST /api/license/register-admin
func (h *LicenseHandler) RegisterAdmin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.service.RegisterAdmin(ctx); err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]string{"message": "admin machine registered"})
}

// Generate handles POST /api/license/generate
func (h *LicenseHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req license.GenerateRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderBadRequest(w, r, "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.renderBadRequest(w, r, "employee_id, name, email and department are required")
		return
	}

	resp, err := h.service.Generate(ctx, req)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "license generated via API",
		slog.String("employee_id", req.EmployeeID))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// Install handles POST /api/license/install
func (h *LicenseHandler) Install(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req InstallRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderBadRequest(w, r, "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.renderBadRequest(w, r, "blob is required")
		return
	}

	if err := h.service.Install(ctx, req.Blob); err != nil {
		h.renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]string{"message": "license installed"})
}

// renderBadRequest renders a 400 problem response
func (h *LicenseHandler) renderBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	render.Render(w, r, apperrors.NewProblemDetails(
		http.StatusBadRequest,
		"/errors/invalid-request",
		"Invalid Request",
		detail,
		h.instance(r)))
}

// renderError maps service errors onto problem responses
func (h *LicenseHandler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	inst := h.instance(r)

	switch {
	case errors.Is(err, apperrors.ErrSecretMissing):
		render.Render(w, r, apperrors.NewConfigurationProblem(
			"License validation is not configured on this server", inst))
	case errors.Is(err, apperrors.ErrBindingExists):
		render.Render(w, r, apperrors.NewProblemDetails(
			http.StatusConflict,
			"/errors/binding-exists",
			"Admin Binding Exists",
			"An admin machine is already registered for this deployment",
			inst))
	case errors.Is(err, apperrors.ErrAdminNotRegistered):
		render.Render(w, r, apperrors.NewProblemDetails(
			http.StatusForbidden,
			"/errors/admin-not-registered",
			"Admin Not Registered",
			"No admin machine has been registered for license issuance",
			inst))
	case errors.Is(err, apperrors.ErrNotAuthorized):
		render.Render(w, r, apperrors.NewProblemDetails(
			http.StatusForbidden,
			"/errors/not-authorized",
			"Not Authorized",
			"This machine is not authorized to issue licenses",
			inst))
	default:
		h.logger.ErrorContext(r.Context(), "license request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		render.Render(w, r, apperrors.NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/internal",
			"Internal Server Error",
			"An unexpected error occurred",
			inst))
	}
}

// instance builds the RFC 7807 instance reference for a request
func (h *LicenseHandler) instance(r *http.Request) string {
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		return r.URL.Path + "#" + reqID
	}
	return r.URL.Path
}
