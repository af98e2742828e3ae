package shared

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Guards wires access-control middleware for HTTP handlers. Each guard is a
// pure predicate over session state (plus the target id from the URL); none
// of them touch the store.
type Guards struct {
	Logger *slog.Logger
}

// RequireAuth ensures the request carries an authenticated session. Failing
// requests are redirected to the login page.
func (g Guards) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		if !sess.Authenticated() {
			if sess != nil {
				sess.AddFlash(FlashMessage{Kind: "warning", Message: "Please log in to continue."})
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin ensures the session belongs to an administrator.
func (g Guards) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		if !sess.Authenticated() {
			if sess != nil {
				sess.AddFlash(FlashMessage{Kind: "warning", Message: "Please log in to continue."})
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		if !sess.IsAdmin() {
			if g.Logger != nil {
				g.Logger.Warn("admin access denied", slog.String("login_id", sess.LoginID()), slog.String("path", r.URL.Path))
			}
			sess.AddFlash(FlashMessage{Kind: "warning", Message: "Administrator access required."})
			http.Redirect(w, r, "/users", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSelfOrAdmin ensures the session identity matches the id URL
// parameter, or that the session belongs to an administrator.
func (g Guards) RequireSelfOrAdmin(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := SessionFromContext(r.Context())
			if !sess.Authenticated() {
				if sess != nil {
					sess.AddFlash(FlashMessage{Kind: "warning", Message: "Please log in to continue."})
				}
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			targetID, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
			if err != nil {
				http.NotFound(w, r)
				return
			}
			if sess.UserID() != targetID && !sess.IsAdmin() {
				if g.Logger != nil {
					g.Logger.Warn("profile access denied", slog.String("login_id", sess.LoginID()), slog.Int64("target_id", targetID))
				}
				sess.AddFlash(FlashMessage{Kind: "warning", Message: "You can only access your own profile."})
				http.Redirect(w, r, "/users", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
