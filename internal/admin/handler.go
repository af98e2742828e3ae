// Package admin serves the administrator dashboard and privilege toggles.
package admin

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/memberdesk/memberdesk/internal/shared"
	"github.com/memberdesk/memberdesk/internal/users"
	"github.com/memberdesk/memberdesk/internal/view"
)

const recentAccounts = 5

// Handler wires the admin-only endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *users.Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	guards    shared.Guards
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *users.Service, templates *view.Engine, csrf *shared.CSRFManager, guards shared.Guards) *Handler {
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, guards: guards}
}

// MountRoutes registers admin routes under /admin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guards.RequireAuth, h.guards.RequireAdmin)
	r.Get("/dashboard", h.showDashboard)
	r.Post("/toggle_admin/{id}", h.handleToggleAdmin)
}

type dashboardData struct {
	Stats  users.Stats
	Recent []users.User
	Users  []users.User
	Errors map[string]string
}

func (h *Handler) showDashboard(w http.ResponseWriter, r *http.Request) {
	var data dashboardData
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		stats, err := h.service.Stats(ctx)
		if err != nil {
			return err
		}
		data.Stats = stats
		return nil
	})
	g.Go(func() error {
		recent, err := h.service.Recent(ctx, recentAccounts)
		if err != nil {
			return err
		}
		data.Recent = recent
		return nil
	})
	g.Go(func() error {
		list, err := h.service.List(ctx)
		if err != nil {
			return err
		}
		data.Users = list
		return nil
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("load dashboard", slog.Any("error", err))
		h.render(w, r, dashboardData{Errors: map[string]string{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, data, http.StatusOK)
}

func (h *Handler) handleToggleAdmin(w http.ResponseWriter, r *http.Request) {
	targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	isAdmin, err := h.service.ToggleAdmin(r.Context(), targetID)
	if err != nil {
		h.logger.Error("toggle admin", slog.Any("error", err), slog.Int64("target_id", targetID))
		h.redirectWithFlash(w, r, "/admin/dashboard", "danger", shared.UserSafeMessage(err))
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess != nil && sess.UserID() == targetID && !isAdmin {
		// An admin may demote themself; make the loss of access visible.
		sess.Establish(sess.UserID(), sess.LoginID(), sess.DisplayName(), false)
		h.redirectWithFlash(w, r, "/users", "warning", "You removed your own administrator privileges.")
		return
	}
	message := "Administrator privileges revoked."
	if isAdmin {
		message = "Administrator privileges granted."
	}
	h.redirectWithFlash(w, r, "/admin/dashboard", "success", message)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, data dashboardData, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:         "Admin Dashboard",
		CSRFToken:     csrfToken,
		Flash:         flash,
		CurrentPath:   r.URL.Path,
		Authenticated: sess.Authenticated(),
		IsAdmin:       sess.IsAdmin(),
		UserName:      sess.DisplayName(),
		Data:          data,
	}
	w.WriteHeader(status)
	if err := h.templates.Render(w, "pages/dashboard.html", viewData); err != nil {
		h.logger.Error("render dashboard", slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
