package users_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/memberdesk/memberdesk/internal/shared"
	"github.com/memberdesk/memberdesk/internal/users"
	"github.com/memberdesk/memberdesk/internal/view"
	_ "github.com/memberdesk/memberdesk/testing"
)

func newUsersHandler(t *testing.T, repo users.RepositoryPort) (*users.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guards := shared.Guards{Logger: logger}
	handler := users.NewHandler(logger, users.NewService(repo), templates, sessionManager, csrfManager, guards)
	return handler, sessionManager
}

func chiRouter(h *users.Handler) http.Handler {
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func strconvInt(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestRegisterPage(t *testing.T) {
	handler, sessionManager := newUsersHandler(t, newStubRepo())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	handler.ShowRegisterForTest(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "<form") {
		t.Fatalf("expected registration form in body")
	}
	if !strings.Contains(res.Body.String(), shared.CSRFFormField) {
		t.Fatalf("expected csrf field in form")
	}
}

func TestRegisterValidationErrors(t *testing.T) {
	handler, sessionManager := newUsersHandler(t, newStubRepo())

	postData := url.Values{}
	postData.Set("login_id", "a!")
	postData.Set("password", "short")
	postData.Set("first_name", "Alice")
	postData.Set("last_name", "Smith")
	postData.Set("address", "12 Main Street")
	postData.Set("gender", "female")
	postData.Set("phone", "5551234567")
	postData.Set("email", "alice@example.com")

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(postData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	handler.HandleRegisterForTest(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	body := res.Body.String()
	if !strings.Contains(body, "User ID must be alphanumeric") {
		t.Fatalf("expected login id error in body")
	}
	if !strings.Contains(body, "Phone number must be in format") {
		t.Fatalf("expected phone error in body")
	}
	// Submitted values are redisplayed.
	if !strings.Contains(body, "alice@example.com") {
		t.Fatalf("expected email value to be redisplayed")
	}
}

func TestRegisterConflictShowsFieldError(t *testing.T) {
	repo := newStubRepo()
	repo.add(users.User{LoginID: "alice1", Email: "other@example.com"})
	handler, sessionManager := newUsersHandler(t, repo)

	form := validRegistration()
	postData := url.Values{}
	postData.Set("login_id", form.LoginID)
	postData.Set("password", form.Password)
	postData.Set("first_name", form.FirstName)
	postData.Set("last_name", form.LastName)
	postData.Set("address", form.Address)
	postData.Set("gender", form.Gender)
	postData.Set("phone", form.Phone)
	postData.Set("email", form.Email)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(postData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	handler.HandleRegisterForTest(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "User ID already taken") {
		t.Fatalf("expected conflict message in body")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := newStubRepo()
	hashed, err := bcrypt.GenerateFromPassword([]byte("Passw0rd!"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo.add(users.User{LoginID: "alice1", PasswordHash: string(hashed), FirstName: "Alice"})
	handler, sessionManager := newUsersHandler(t, repo)

	postData := url.Values{}
	postData.Set("login_id", "alice1")
	postData.Set("password", "wrongpass")

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(postData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "Invalid username or password") {
		t.Fatalf("expected generic credential message in body")
	}
	if sess.Authenticated() {
		t.Fatalf("session must not carry identity after failed login")
	}
}

func TestLoginSuccessEstablishesSession(t *testing.T) {
	repo := newStubRepo()
	hashed, err := bcrypt.GenerateFromPassword([]byte("Passw0rd!"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo.add(users.User{LoginID: "alice1", PasswordHash: string(hashed), FirstName: "Alice", LastName: "Smith"})
	handler, sessionManager := newUsersHandler(t, repo)

	postData := url.Values{}
	postData.Set("login_id", "alice1")
	postData.Set("password", "Passw0rd!")

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(postData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)
	if err := sessionManager.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", res.Code)
	}
	if got := res.Header().Get("Location"); got != "/users" {
		t.Fatalf("expected redirect to /users, got %q", got)
	}
	if !sess.Authenticated() {
		t.Fatalf("expected authenticated session")
	}
	if sess.DisplayName() != "Alice Smith" {
		t.Fatalf("expected cached display name, got %q", sess.DisplayName())
	}
}

func TestLoginRedirectsAdminsToDashboard(t *testing.T) {
	repo := newStubRepo()
	hashed, err := bcrypt.GenerateFromPassword([]byte("Passw0rd!"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	repo.add(users.User{LoginID: "admin1", PasswordHash: string(hashed), FirstName: "Ada", IsAdmin: true})
	handler, sessionManager := newUsersHandler(t, repo)

	postData := url.Values{}
	postData.Set("login_id", "admin1")
	postData.Set("password", "Passw0rd!")

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(postData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	handler.HandleLoginForTest(res, req)

	if got := res.Header().Get("Location"); got != "/admin/dashboard" {
		t.Fatalf("expected redirect to /admin/dashboard, got %q", got)
	}
}

func TestGuardedRoutesRedirectAnonymous(t *testing.T) {
	handler, sessionManager := newUsersHandler(t, newStubRepo())

	router := chiRouter(handler)
	for _, path := range []string{"/users", "/logout", "/edit_profile/1"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		sess, err := sessionManager.Load(context.Background(), req)
		if err != nil {
			t.Fatalf("load session: %v", err)
		}
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

		res := httptest.NewRecorder()
		router.ServeHTTP(res, req)

		if res.Code != http.StatusSeeOther {
			t.Fatalf("%s: expected redirect, got %d", path, res.Code)
		}
		if got := res.Header().Get("Location"); got != "/login" {
			t.Fatalf("%s: expected redirect to /login, got %q", path, got)
		}
	}
}

func TestEditProfileDeniedForOtherUser(t *testing.T) {
	repo := newStubRepo()
	repo.add(users.User{LoginID: "alice1", Email: "alice@example.com"})
	target := repo.add(users.User{LoginID: "bob42", Email: "bob@example.com"})
	handler, sessionManager := newUsersHandler(t, repo)

	router := chiRouter(handler)
	req := httptest.NewRequest(http.MethodGet, "/edit_profile/"+strconvInt(target.ID), nil)
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	sess.Establish(1, "alice1", "Alice Smith", false)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", res.Code)
	}
	if got := res.Header().Get("Location"); got != "/users" {
		t.Fatalf("expected redirect to /users, got %q", got)
	}
}

func TestEditProfileAllowedForAdmin(t *testing.T) {
	repo := newStubRepo()
	repo.add(users.User{LoginID: "admin1", Email: "admin@example.com", IsAdmin: true})
	target := repo.add(users.User{LoginID: "bob42", Email: "bob@example.com", FirstName: "Bob"})
	handler, sessionManager := newUsersHandler(t, repo)

	router := chiRouter(handler)
	req := httptest.NewRequest(http.MethodGet, "/edit_profile/"+strconvInt(target.ID), nil)
	sess, err := sessionManager.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	sess.Establish(1, "admin1", "Ada Admin", true)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "bob@example.com") {
		t.Fatalf("expected target profile values in form")
	}
}
