package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	scansvc "github.com/auditflow/api/internal/app/scan"
	"github.com/auditflow/api/internal/infra/http/middleware"
	"github.com/auditflow/api/pkg/apierror"
	"github.com/auditflow/api/pkg/domain/finding"
	"github.com/auditflow/api/pkg/domain/scanjob"
	"github.com/auditflow/api/pkg/logger"
	"github.com/auditflow/api/pkg/validator"
)

// ScanService is the application surface used by the scan handlers.
type ScanService interface {
	RequestScan(ctx context.Context, input scansvc.RequestScanInput) (*scanjob.Job, error)
	GetScan(ctx context.Context, scanID, userID string) (*scanjob.Job, error)
	LatestScan(ctx context.Context, repoID int64, userID string) (*scanjob.Job, error)
	ScanHistory(ctx context.Context, repoID int64, userID string, limit int) ([]scansvc.ScanSummary, error)
	AllScanHistory(ctx context.Context, userID string, limit int) ([]scansvc.ScanSummary, error)
	RepoSummary(ctx context.Context, repoID int64, userID string) (*scansvc.RepoSummary, error)
	Violations(ctx context.Context, repoID int64, userID string, status *finding.Status) (*scansvc.ViolationList, error)
	UpdateViolationStatus(ctx context.Context, violationID, userID string, input scansvc.UpdateViolationInput) (*finding.Violation, error)
	AnalyticsSummary(ctx context.Context, userID string) (*scansvc.AnalyticsSummary, error)
}

// ScanHandler handles HTTP requests for scans, violations and analytics.
type ScanHandler struct {
	service   ScanService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(service ScanService, v *validator.Validator, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "scan"),
	}
}

// RequestScanRequest is the optional body of a scan request.
type RequestScanRequest struct {
	RepoName string `json:"repo_name" validate:"max=255"`
}

// RequestScanResponse is returned when a scan has been queued.
type RequestScanResponse struct {
	ScanID string         `json:"scan_id"`
	Status scanjob.Status `json:"status"`
}

// ScanResponse represents a scan job in API responses.
type ScanResponse struct {
	ScanID    string              `json:"scan_id"`
	RepoID    int64               `json:"repo_id"`
	RepoName  string              `json:"repo_name"`
	Status    scanjob.Status      `json:"status"`
	Progress  int                 `json:"progress"`
	Summary   string              `json:"summary"`
	Results   *finding.ScanResult `json:"results,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

func toScanResponse(j *scanjob.Job) ScanResponse {
	return ScanResponse{
		ScanID:    j.ID,
		RepoID:    j.RepoID,
		RepoName:  j.RepoName,
		Status:    j.Status,
		Progress:  j.Progress,
		Summary:   j.Summary,
		Results:   j.Results,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// RequestScan handles POST /api/v1/repos/{repoID}/scan.
func (h *ScanHandler) RequestScan(w http.ResponseWriter, r *http.Request) {
	repoID, ok := repoIDParam(r)
	if !ok {
		apierror.BadRequest("Invalid repository id").WriteJSON(w)
		return
	}

	var req RequestScanRequest
	if err := decodeJSON(r, &req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleValidationError(w, err)
		return
	}

	job, err := h.service.RequestScan(r.Context(), scansvc.RequestScanInput{
		RepoID:   repoID,
		UserID:   middleware.GetUserID(r.Context()),
		RepoName: req.RepoName,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusAccepted, RequestScanResponse{ScanID: job.ID, Status: job.Status})
}

// Get handles GET /api/v1/scans/{scanID}.
func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.GetScan(r.Context(), chi.URLParam(r, "scanID"), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(job))
}

// Latest handles GET /api/v1/repos/{repoID}/scans/latest.
func (h *ScanHandler) Latest(w http.ResponseWriter, r *http.Request) {
	repoID, ok := repoIDParam(r)
	if !ok {
		apierror.BadRequest("Invalid repository id").WriteJSON(w)
		return
	}

	job, err := h.service.LatestScan(r.Context(), repoID, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toScanResponse(job))
}

// History handles GET /api/v1/repos/{repoID}/scans.
func (h *ScanHandler) History(w http.ResponseWriter, r *http.Request) {
	repoID, ok := repoIDParam(r)
	if !ok {
		apierror.BadRequest("Invalid repository id").WriteJSON(w)
		return
	}

	limit := parseQueryInt(r.URL.Query().Get("limit"), 0)
	scans, err := h.service.ScanHistory(r.Context(), repoID, middleware.GetUserID(r.Context()), limit)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(scans))
}

// AllHistory handles GET /api/v1/scans/history.
func (h *ScanHandler) AllHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseQueryInt(r.URL.Query().Get("limit"), 0)
	scans, err := h.service.AllScanHistory(r.Context(), middleware.GetUserID(r.Context()), limit)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newListResponse(scans))
}

// Summary handles GET /api/v1/repos/{repoID}/summary.
func (h *ScanHandler) Summary(w http.ResponseWriter, r *http.Request) {
	repoID, ok := repoIDParam(r)
	if !ok {
		apierror.BadRequest("Invalid repository id").WriteJSON(w)
		return
	}

	summary, err := h.service.RepoSummary(r.Context(), repoID, middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Analytics handles GET /api/v1/analytics/summary.
func (h *ScanHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.AnalyticsSummary(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
