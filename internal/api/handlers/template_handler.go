package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appMiddleware "github.com/plays3000/ai-server/internal/api/middlewares"
	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/core/learner"
	"github.com/plays3000/ai-server/internal/core/uploads"
	"github.com/plays3000/ai-server/internal/models"
)

const maxUploadMemory = 32 << 20

type templateService interface {
	Learn(ctx context.Context, in learner.LearnInput) (*learner.Result, error)
	ListActive(ctx context.Context, tenantID string) ([]models.Template, error)
	Versions(ctx context.Context, tenantID, name string) ([]models.Template, error)
	Deactivate(ctx context.Context, tenantID, name string) error
}

type TemplateHandler struct {
	svc        templateService
	uploadDir  string
	maxSamples int
	logger     *zap.Logger
}

func NewTemplateHandler(svc templateService, uploadDir string, maxSamples int, logger *zap.Logger) *TemplateHandler {
	return &TemplateHandler{svc: svc, uploadDir: uploadDir, maxSamples: maxSamples, logger: logger.Named("templates")}
}

type learnResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	MappedFields int    `json:"mappedFields"`
	Version      int    `json:"version"`
}

// Learn takes a multipart form with name, file (the blank template) and samples.
func (h *TemplateHandler) Learn(w http.ResponseWriter, r *http.Request) {
	id, ok := appMiddleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: multipart form expected", apperrors.ErrInvalidInput), "")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	name := strings.TrimSpace(r.FormValue("name"))
	blank := r.MultipartForm.File["file"]
	samples := r.MultipartForm.File["samples"]
	if name == "" || len(blank) == 0 {
		writeError(w, h.logger, fmt.Errorf("%w: template name and file are required", apperrors.ErrInvalidInput), "")
		return
	}
	if h.maxSamples > 0 && len(samples) > h.maxSamples {
		writeError(w, h.logger, fmt.Errorf("%w: at most %d samples", apperrors.ErrInvalidInput, h.maxSamples), "")
		return
	}

	scope := uploads.NewScope()
	defer func() {
		if err := scope.Release(); err != nil {
			h.logger.Warn("could not remove learn uploads", zap.Error(err))
		}
	}()
	saved, err := scope.SaveMultipart(h.uploadDir, blank[:1])
	if err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	sampleFiles, err := scope.SaveMultipart(h.uploadDir, samples)
	if err != nil {
		writeError(w, h.logger, err, "")
		return
	}

	res, err := h.svc.Learn(r.Context(), learner.LearnInput{
		TenantID: id.TenantID,
		Name:     name,
		Template: saved[0],
		Samples:  sampleFiles,
	})
	if err != nil {
		writeError(w, h.logger, err, "")
		return
	}

	writeJSON(w, http.StatusOK, learnResponse{
		Success:      true,
		Message:      fmt.Sprintf("template %q learned as version %d", name, res.Template.Version),
		MappedFields: res.MappedFields,
		Version:      res.Template.Version,
	})
}

func (h *TemplateHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := appMiddleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	tpls, err := h.svc.ListActive(r.Context(), id.TenantID)
	if err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, tpls)
}

func (h *TemplateHandler) Versions(w http.ResponseWriter, r *http.Request) {
	id, ok := appMiddleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	tpls, err := h.svc.Versions(r.Context(), id.TenantID, chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, tpls)
}

type deleteRequest struct {
	Name string `json:"name"`
}

// Delete deactivates every version of a template. Nothing is removed from storage.
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := appMiddleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: invalid body", apperrors.ErrInvalidInput), "")
		return
	}
	if err := h.svc.Deactivate(r.Context(), id.TenantID, req.Name); err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": fmt.Sprintf("template %q deactivated", req.Name)})
}
