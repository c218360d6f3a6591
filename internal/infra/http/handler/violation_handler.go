package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	scansvc "github.com/auditflow/api/internal/app/scan"
	"github.com/auditflow/api/internal/infra/http/middleware"
	"github.com/auditflow/api/pkg/apierror"
	"github.com/auditflow/api/pkg/domain/finding"
)

// UpdateViolationRequest represents the body of a violation status change.
type UpdateViolationRequest struct {
	Status string `json:"status" validate:"required,violation_status"`
	Notes  string `json:"notes" validate:"max=2000"`
}

// Violations handles GET /api/v1/repos/{repoID}/violations.
func (h *ScanHandler) Violations(w http.ResponseWriter, r *http.Request) {
	repoID, ok := repoIDParam(r)
	if !ok {
		apierror.BadRequest("Invalid repository id").WriteJSON(w)
		return
	}

	var status *finding.Status
	if s := r.URL.Query().Get("status"); s != "" {
		st := finding.Status(s)
		if !st.IsValid() {
			apierror.BadRequest("Invalid violation status: " + s).WriteJSON(w)
			return
		}
		status = &st
	}

	list, err := h.service.Violations(r.Context(), repoID, middleware.GetUserID(r.Context()), status)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// UpdateViolation handles PATCH /api/v1/violations/{violationID}.
func (h *ScanHandler) UpdateViolation(w http.ResponseWriter, r *http.Request) {
	var req UpdateViolationRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	v, err := h.service.UpdateViolationStatus(r.Context(),
		chi.URLParam(r, "violationID"),
		middleware.GetUserID(r.Context()),
		scansvc.UpdateViolationInput{Status: req.Status, Notes: req.Notes},
	)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
