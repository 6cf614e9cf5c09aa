package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appMiddleware "github.com/plays3000/ai-server/internal/api/middlewares"
	"github.com/plays3000/ai-server/internal/apperrors"
	"github.com/plays3000/ai-server/internal/core/pipeline"
	"github.com/plays3000/ai-server/internal/core/uploads"
	"github.com/plays3000/ai-server/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type chatService interface {
	Send(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	History(ctx context.Context, tenantID string, limit int) ([]models.ChatRecord, error)
	OpenGenerated(ctx context.Context, tenantID, fileName string) (io.ReadCloser, error)
}

type ChatHandler struct {
	svc       chatService
	uploadDir string
	logger    *zap.Logger
}

func NewChatHandler(svc chatService, uploadDir string, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{svc: svc, uploadDir: uploadDir, logger: logger.Named("chat")}
}

type chatResponse struct {
	Reply       string   `json:"reply"`
	DownloadURL *string  `json:"downloadUrl"`
	Template    string   `json:"template,omitempty"`
	FilledKeys  []string `json:"filledKeys,omitempty"`
}

// Send accepts message, an optional template name and any number of mediaFile parts.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	id, ok := appMiddleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		writeError(w, h.logger, fmt.Errorf("%w: unreadable form", apperrors.ErrInvalidInput), "")
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	// the pipeline releases the scope; the deferred call covers early returns
	scope := uploads.NewScope()
	defer func() { _ = scope.Release() }()
	if r.MultipartForm != nil {
		if _, err := scope.SaveMultipart(h.uploadDir, r.MultipartForm.File["mediaFile"]); err != nil {
			writeError(w, h.logger, err, "")
			return
		}
	}

	actor := id.Name
	if actor == "" {
		actor = id.UserID
	}
	res, err := h.svc.Send(r.Context(), pipeline.Request{
		TenantID:     id.TenantID,
		ActorName:    actor,
		Message:      r.FormValue("message"),
		TemplateName: r.FormValue("template"),
		Uploads:      scope,
	})
	if err != nil {
		partial := ""
		if res != nil {
			partial = res.Reply
		}
		writeError(w, h.logger, err, partial)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Reply:       res.Reply,
		DownloadURL: res.DownloadURL,
		Template:    res.Template,
		FilledKeys:  res.FilledKeys,
	})
}

// History lists the caller's latest exchanges; ?limit=N narrows it.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	id, ok := appMiddleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, h.logger, fmt.Errorf("%w: bad limit", apperrors.ErrInvalidInput), "")
			return
		}
		limit = n
	}
	recs, err := h.svc.History(r.Context(), id.TenantID, limit)
	if err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *ChatHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := appMiddleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	fileName := chi.URLParam(r, "fileName")
	rc, err := h.svc.OpenGenerated(r.Context(), id.TenantID, fileName)
	if err != nil {
		writeError(w, h.logger, err, "")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(fileName)))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("download interrupted", zap.String("file", fileName), zap.Error(err))
	}
}
