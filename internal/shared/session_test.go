package shared_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/memberdesk/memberdesk/internal/shared"
	_ "github.com/memberdesk/memberdesk/testing"
)

func newSessionManager(t *testing.T) (*shared.SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return shared.NewSessionManager(client, "test_session", "secret", time.Hour, false), mr
}

func TestSessionIdentityRoundTrip(t *testing.T) {
	sm, _ := newSessionManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sess.Authenticated() {
		t.Fatal("fresh session must not be authenticated")
	}

	sess.Establish(42, "alice1", "Alice Smith", true)
	res := httptest.NewRecorder()
	if err := sm.Commit(context.Background(), res, req, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}

	cookies := res.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected session cookie to be set")
	}

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	next.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: sess.ID})
	reloaded, err := sm.Load(context.Background(), next)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Authenticated() {
		t.Fatal("expected reloaded session to be authenticated")
	}
	if reloaded.UserID() != 42 || reloaded.LoginID() != "alice1" || !reloaded.IsAdmin() {
		t.Fatalf("identity lost on reload: id=%d login=%q admin=%v", reloaded.UserID(), reloaded.LoginID(), reloaded.IsAdmin())
	}
	if reloaded.DisplayName() != "Alice Smith" {
		t.Fatalf("expected display name to survive, got %q", reloaded.DisplayName())
	}
}

func TestSessionClearIdentity(t *testing.T) {
	sm, _ := newSessionManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.Establish(42, "alice1", "Alice Smith", false)
	sess.ClearIdentity()

	if sess.Authenticated() || sess.UserID() != 0 || sess.LoginID() != "" {
		t.Fatal("expected identity to be fully cleared")
	}
}

func TestCorruptUserIDDowngradesToAnonymous(t *testing.T) {
	sm, mr := newSessionManager(t)

	payload := `{"values":{},"user_id":"not-a-number","login_id":"alice1","name":"Alice Smith","is_admin":true,"flashes":null}`
	if err := mr.Set("session:corrupt", payload); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "corrupt"})
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sess.Authenticated() || sess.UserID() != 0 {
		t.Fatalf("corrupt id must not authenticate, got user id %d", sess.UserID())
	}
}

func TestSessionDestroyRemovesStateAndCookie(t *testing.T) {
	sm, mr := newSessionManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.Establish(42, "alice1", "Alice Smith", false)
	if err := sm.Commit(context.Background(), httptest.NewRecorder(), req, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}

	sm.Destroy(sess)
	res := httptest.NewRecorder()
	if err := sm.Commit(context.Background(), res, req, sess); err != nil {
		t.Fatalf("commit destroy: %v", err)
	}

	if mr.Exists("session:" + sess.ID) {
		t.Fatal("expected session key to be deleted")
	}
	var expired bool
	for _, c := range res.Result().Cookies() {
		if c.Name == sm.CookieName() && c.MaxAge < 0 {
			expired = true
		}
	}
	if !expired {
		t.Fatal("expected expired session cookie")
	}
}

func TestFlashSurvivesRedirectRequest(t *testing.T) {
	sm, _ := newSessionManager(t)

	// First request queues a flash and commits, as redirect handlers do.
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Registration successful!"})
	if err := sm.Commit(context.Background(), httptest.NewRecorder(), req, sess); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// The follow-up request must still see the message.
	next := httptest.NewRequest(http.MethodGet, "/users", nil)
	next.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: sess.ID})
	reloaded, err := sm.Load(context.Background(), next)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	msg := reloaded.PopFlash()
	if msg == nil || msg.Message != "Registration successful!" {
		t.Fatalf("expected queued flash on the follow-up request, got %+v", msg)
	}

	// Popping consumed it; after this request commits it is gone for good.
	if err := sm.Commit(context.Background(), httptest.NewRecorder(), next, reloaded); err != nil {
		t.Fatalf("commit after pop: %v", err)
	}
	third := httptest.NewRequest(http.MethodGet, "/users", nil)
	third.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: sess.ID})
	again, err := sm.Load(context.Background(), third)
	if err != nil {
		t.Fatalf("reload after pop: %v", err)
	}
	if msg := again.PopFlash(); msg != nil {
		t.Fatalf("expected flash to be consumed, got %+v", msg)
	}
}

func TestFlashMessagesAreOneShot(t *testing.T) {
	sm, _ := newSessionManager(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "first"})
	sess.AddFlash(shared.FlashMessage{Kind: "warning", Message: "second"})

	if msg := sess.PopFlash(); msg == nil || msg.Message != "first" {
		t.Fatalf("expected oldest flash first, got %+v", msg)
	}
	if msg := sess.PopFlash(); msg == nil || msg.Message != "second" {
		t.Fatalf("expected second flash, got %+v", msg)
	}
	if msg := sess.PopFlash(); msg != nil {
		t.Fatalf("expected no flashes left, got %+v", msg)
	}
}

func TestCSRFTokenLifecycle(t *testing.T) {
	sm, _ := newSessionManager(t)
	cm := shared.NewCSRFManager("csrfsecret")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	token, err := cm.EnsureToken(context.Background(), sess)
	if err != nil || token == "" {
		t.Fatalf("ensure token: %q %v", token, err)
	}
	again, err := cm.EnsureToken(context.Background(), sess)
	if err != nil || again != token {
		t.Fatalf("expected stable token per session, got %q then %q", token, again)
	}

	if err := cm.VerifyToken(context.Background(), sess, token); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := cm.VerifyToken(context.Background(), sess, "forged"); err != shared.ErrCSRFTokenMismatch {
		t.Fatalf("expected mismatch error, got %v", err)
	}
	if err := cm.VerifyToken(context.Background(), sess, ""); err != shared.ErrCSRFTokenMissing {
		t.Fatalf("expected missing error, got %v", err)
	}

	other, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("load other: %v", err)
	}
	if err := cm.VerifyToken(context.Background(), other, token); err != shared.ErrCSRFTokenMissing {
		t.Fatalf("expected token from another session to be rejected, got %v", err)
	}
}
