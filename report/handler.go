package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/memberdesk/memberdesk/internal/platform/httpx"
	"github.com/memberdesk/memberdesk/internal/shared"
	"github.com/memberdesk/memberdesk/internal/users"
	"github.com/memberdesk/memberdesk/internal/view"
)

// Renderer converts HTML into a PDF byte stream.
type Renderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Handler serves per-user PDF exports.
type Handler struct {
	logger    *slog.Logger
	service   *users.Service
	templates *view.Engine
	renderer  Renderer
	guards    shared.Guards
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *users.Service, templates *view.Engine, renderer Renderer, guards shared.Guards) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, renderer: renderer, guards: guards}
}

// MountRoutes registers the PDF export route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guards.RequireAuth, h.guards.RequireSelfOrAdmin("id"))
		r.Get("/generate_pdf/{id}", h.generatePDF)
	})
}

func (h *Handler) generatePDF(w http.ResponseWriter, r *http.Request) {
	targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	user, err := h.service.Get(r.Context(), targetID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("load user for pdf", slog.Any("error", err), slog.Int64("target_id", targetID))
		httpx.Problem(w, http.StatusInternalServerError, "Export Failed", "")
		return
	}

	html, err := h.templates.RenderToString("pages/user_pdf.html", view.TemplateData{
		Title: user.FullName(),
		Data:  user,
	})
	if err != nil {
		h.logger.Error("render pdf template", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Export Failed", "")
		return
	}

	pdf, err := h.renderer.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("render pdf", slog.Any("error", err), slog.Int64("target_id", targetID))
		httpx.Problem(w, http.StatusBadGateway, "Export Failed", "The PDF renderer is unavailable.")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=user_%d.pdf", user.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}
