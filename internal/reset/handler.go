package reset

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/memberdesk/memberdesk/internal/shared"
	"github.com/memberdesk/memberdesk/internal/users"
	"github.com/memberdesk/memberdesk/internal/view"
)

// Handler wires the reset request and confirmation endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		csrf:      csrf,
		validator: users.NewValidator(),
	}
}

// MountRoutes registers the reset routes. Both are public.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reset_password", h.showRequest)
	r.Post("/reset_password", h.handleRequest)
	r.Get("/reset_password/{token}", h.showConfirm)
	r.Post("/reset_password/{token}", h.handleConsume)
}

type requestForm struct {
	Email string `validate:"required,email,max=120"`
}

type requestPageData struct {
	Form   requestForm
	Errors map[string]string
}

func (h *Handler) showRequest(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/reset_request.html", "Reset Password", requestPageData{Errors: map[string]string{}}, http.StatusOK)
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := requestForm{Email: r.PostFormValue("email")}
	if err := h.validator.Struct(form); err != nil {
		h.render(w, r, "pages/reset_request.html", "Reset Password", requestPageData{Form: form, Errors: map[string]string{"Email": "Please enter a valid email address"}}, http.StatusBadRequest)
		return
	}

	err := h.service.Request(r.Context(), form.Email)
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, "/login", "success", "Password reset instructions have been sent to your email.")
	case errors.Is(err, shared.ErrNotFound):
		h.render(w, r, "pages/reset_request.html", "Reset Password", requestPageData{Form: form, Errors: map[string]string{"Email": "Email not found"}}, http.StatusBadRequest)
	case errors.Is(err, shared.ErrMailDelivery):
		// The token is already committed; only the delivery failed.
		h.logger.Error("send reset mail", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/reset_password", "danger", shared.UserSafeMessage(shared.ErrMailDelivery))
	default:
		h.logger.Error("request reset", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/reset_password", "danger", shared.UserSafeMessage(err))
	}
}

type confirmForm struct {
	Password string `validate:"required,min=8,passwordcomplex"`
}

type confirmPageData struct {
	Token  string
	Errors map[string]string
}

func (h *Handler) showConfirm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.service.Validate(r.Context(), token); err != nil {
		h.redirectWithFlash(w, r, "/reset_password", "danger", shared.UserSafeMessage(shared.ErrTokenInvalid))
		return
	}
	h.render(w, r, "pages/reset_confirm.html", "Choose New Password", confirmPageData{Token: token, Errors: map[string]string{}}, http.StatusOK)
}

func (h *Handler) handleConsume(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := confirmForm{Password: r.PostFormValue("password")}
	if err := h.validator.Struct(form); err != nil {
		msg := "Password must be at least 8 characters"
		for _, fe := range err.(validator.ValidationErrors) {
			if fe.Tag() == "passwordcomplex" {
				msg = "Password must include letters, numbers, and special characters"
			}
		}
		h.render(w, r, "pages/reset_confirm.html", "Choose New Password", confirmPageData{Token: token, Errors: map[string]string{"Password": msg}}, http.StatusBadRequest)
		return
	}

	if err := h.service.Consume(r.Context(), token, form.Password); err != nil {
		if errors.Is(err, shared.ErrTokenInvalid) {
			h.redirectWithFlash(w, r, "/reset_password", "danger", shared.UserSafeMessage(err))
			return
		}
		h.logger.Error("consume reset token", slog.Any("error", err))
		h.redirectWithFlash(w, r, "/reset_password", "danger", shared.UserSafeMessage(err))
		return
	}
	h.redirectWithFlash(w, r, "/login", "success", "Your password has been reset. Please log in.")
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, template, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:         title,
		CSRFToken:     csrfToken,
		Flash:         flash,
		CurrentPath:   r.URL.Path,
		Authenticated: sess.Authenticated(),
		IsAdmin:       sess.IsAdmin(),
		UserName:      sess.DisplayName(),
		Data:          data,
	}
	w.WriteHeader(status)
	if err := h.templates.Render(w, template, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", template), slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
