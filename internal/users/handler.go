package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/memberdesk/memberdesk/internal/shared"
	"github.com/memberdesk/memberdesk/internal/view"
)

// Handler wires HTTP endpoints for registration, login and profile flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	sessions  *shared.SessionManager
	csrf      *shared.CSRFManager
	guards    shared.Guards
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, guards shared.Guards) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		templates: templates,
		sessions:  sessions,
		csrf:      csrf,
		guards:    guards,
		validator: NewValidator(),
	}
}

// MountRoutes registers the public and profile routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showRegister)
	r.Post("/", h.handleRegister)
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Group(func(r chi.Router) {
		r.Use(h.guards.RequireAuth)
		r.Get("/logout", h.handleLogout)
		r.Get("/users", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guards.RequireAuth, h.guards.RequireSelfOrAdmin("id"))
		r.Get("/edit_profile/{id}", h.showEditProfile)
		r.Post("/edit_profile/{id}", h.handleEditProfile)
	})
}

type registerPageData struct {
	Form   RegistrationForm
	Errors map[string]string
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess.Authenticated() {
		http.Redirect(w, r, homePath(sess), http.StatusSeeOther)
		return
	}
	h.render(w, r, "pages/register.html", "Register", registerPageData{Errors: map[string]string{}}, http.StatusOK)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess.Authenticated() {
		http.Redirect(w, r, homePath(sess), http.StatusSeeOther)
		return
	}

	form := RegistrationForm{
		LoginID:   r.PostFormValue("login_id"),
		Password:  r.PostFormValue("password"),
		FirstName: r.PostFormValue("first_name"),
		LastName:  r.PostFormValue("last_name"),
		Address:   r.PostFormValue("address"),
		Gender:    r.PostFormValue("gender"),
		Phone:     r.PostFormValue("phone"),
		Email:     r.PostFormValue("email"),
	}
	if err := h.validator.Struct(form); err != nil {
		h.render(w, r, "pages/register.html", "Register", registerPageData{Form: form, Errors: FieldErrors(err)}, http.StatusBadRequest)
		return
	}

	user, err := h.service.Register(r.Context(), form)
	if err != nil {
		fieldErrs := map[string]string{}
		switch {
		case errors.Is(err, shared.ErrLoginIDTaken):
			fieldErrs["LoginID"] = shared.UserSafeMessage(err)
		case errors.Is(err, shared.ErrEmailTaken):
			fieldErrs["Email"] = shared.UserSafeMessage(err)
		default:
			h.logger.Error("register account", slog.Any("error", err))
			fieldErrs["general"] = shared.UserSafeMessage(shared.ErrConflict)
		}
		h.render(w, r, "pages/register.html", "Register", registerPageData{Form: form, Errors: fieldErrs}, http.StatusBadRequest)
		return
	}

	if sess != nil {
		sess.Establish(user.ID, user.LoginID, user.FullName(), user.IsAdmin)
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Registration successful!"})
	}
	http.Redirect(w, r, "/users", http.StatusSeeOther)
}

type loginForm struct {
	LoginID  string `validate:"required"`
	Password string `validate:"required"`
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess.Authenticated() {
		http.Redirect(w, r, homePath(sess), http.StatusSeeOther)
		return
	}
	h.render(w, r, "pages/login.html", "Log In", loginPageData{Errors: map[string]string{}}, http.StatusOK)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())

	form := loginForm{
		LoginID:  r.PostFormValue("login_id"),
		Password: r.PostFormValue("password"),
	}
	if err := h.validator.Struct(form); err != nil {
		h.render(w, r, "pages/login.html", "Log In", loginPageData{Form: form, Errors: map[string]string{"general": "Please enter your user ID and password."}}, http.StatusBadRequest)
		return
	}

	user, err := h.service.Authenticate(r.Context(), form.LoginID, form.Password)
	if err != nil {
		// Same message whether the account exists or the password is wrong.
		h.render(w, r, "pages/login.html", "Log In", loginPageData{Form: loginForm{LoginID: form.LoginID}, Errors: map[string]string{"general": shared.UserSafeMessage(shared.ErrInvalidCredentials)}}, http.StatusBadRequest)
		return
	}

	if sess != nil {
		sess.Establish(user.ID, user.LoginID, user.FullName(), user.IsAdmin)
		sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Welcome back, " + user.FirstName + "!"})
	}
	http.Redirect(w, r, homePath(sess), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.sessions.Destroy(sess)
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		h.render(w, r, "pages/users.html", "Users", map[string]any{"Errors": map[string]string{"general": shared.UserSafeMessage(err)}}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/users.html", "Users", map[string]any{"Users": list}, http.StatusOK)
}

type editPageData struct {
	TargetID int64
	Form     ProfileForm
	LoginID  string
	Errors   map[string]string
}

func (h *Handler) showEditProfile(w http.ResponseWriter, r *http.Request) {
	targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	user, err := h.service.Get(r.Context(), targetID)
	if err != nil {
		h.redirectWithFlash(w, r, "/users", "danger", shared.UserSafeMessage(err))
		return
	}
	data := editPageData{
		TargetID: user.ID,
		LoginID:  user.LoginID,
		Form: ProfileForm{
			FirstName: user.FirstName,
			LastName:  user.LastName,
			Address:   user.Address,
			Gender:    user.Gender,
			Phone:     user.Phone,
			Email:     user.Email,
		},
		Errors: map[string]string{},
	}
	h.render(w, r, "pages/edit_profile.html", "Edit Profile", data, http.StatusOK)
}

func (h *Handler) handleEditProfile(w http.ResponseWriter, r *http.Request) {
	targetID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	form := ProfileForm{
		FirstName: r.PostFormValue("first_name"),
		LastName:  r.PostFormValue("last_name"),
		Address:   r.PostFormValue("address"),
		Gender:    r.PostFormValue("gender"),
		Phone:     r.PostFormValue("phone"),
		Email:     r.PostFormValue("email"),
	}
	if err := h.validator.Struct(form); err != nil {
		h.render(w, r, "pages/edit_profile.html", "Edit Profile", editPageData{TargetID: targetID, Form: form, Errors: FieldErrors(err)}, http.StatusBadRequest)
		return
	}

	user, err := h.service.EditProfile(r.Context(), targetID, form)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrEmailTaken):
			h.render(w, r, "pages/edit_profile.html", "Edit Profile", editPageData{TargetID: targetID, Form: form, Errors: map[string]string{"Email": shared.UserSafeMessage(err)}}, http.StatusBadRequest)
		case errors.Is(err, shared.ErrNotFound):
			h.redirectWithFlash(w, r, "/users", "danger", shared.UserSafeMessage(err))
		default:
			h.logger.Error("edit profile", slog.Any("error", err), slog.Int64("target_id", targetID))
			h.render(w, r, "pages/edit_profile.html", "Edit Profile", editPageData{TargetID: targetID, Form: form, Errors: map[string]string{"general": shared.UserSafeMessage(err)}}, http.StatusBadRequest)
		}
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess != nil && sess.UserID() == user.ID {
		sess.SetDisplayName(user.FullName())
	}
	h.redirectWithFlash(w, r, "/users", "success", "Profile updated successfully!")
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

// ShowRegisterForTest exposes the GET handler for tests.
func (h *Handler) ShowRegisterForTest(w http.ResponseWriter, r *http.Request) {
	h.showRegister(w, r)
}

// HandleRegisterForTest exposes the POST handler for tests.
func (h *Handler) HandleRegisterForTest(w http.ResponseWriter, r *http.Request) {
	h.handleRegister(w, r)
}

// ShowLoginForTest exposes the GET handler for tests.
func (h *Handler) ShowLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.showLogin(w, r)
}

// HandleLoginForTest exposes the POST handler for tests.
func (h *Handler) HandleLoginForTest(w http.ResponseWriter, r *http.Request) {
	h.handleLogin(w, r)
}

func homePath(sess *shared.Session) string {
	if sess.IsAdmin() {
		return "/admin/dashboard"
	}
	return "/users"
}
