package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/expensehub/expensehub/internal/auth"
	"github.com/expensehub/expensehub/internal/config"
	"github.com/expensehub/expensehub/internal/domain/user"
	"github.com/expensehub/expensehub/internal/http/handlers"
	"github.com/expensehub/expensehub/internal/http/middlewares"
	"github.com/expensehub/expensehub/internal/notifications"
	"github.com/expensehub/expensehub/internal/repo/postgres"
	"github.com/expensehub/expensehub/internal/security"
	"github.com/expensehub/expensehub/internal/tokens"
	"github.com/gin-gonic/gin"
)

type fakeUserStore struct {
	getByEmailFn func(ctx context.Context, email string) (user.User, error)
	createFn     func(ctx context.Context, email, passwordHash, name string) (user.User, error)
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (user.User, error) {
	if f.getByEmailFn != nil {
		return f.getByEmailFn(ctx, email)
	}
	return user.User{}, postgres.ErrUserNotFound
}

func (f *fakeUserStore) Create(ctx context.Context, email, passwordHash, name string) (user.User, error) {
	if f.createFn != nil {
		return f.createFn(ctx, email, passwordHash, name)
	}
	return user.User{
		ID:           newUUID(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
	}, nil
}

type fakeSessionStore struct {
	createFn func(ctx context.Context, row postgres.SessionRow) error
	rotateFn func(ctx context.Context, oldID, presentedHash string, newRow postgres.SessionRow) (postgres.SessionRow, error)
	revokeFn func(ctx context.Context, id string) error

	revoked []string
}

func (f *fakeSessionStore) Create(ctx context.Context, row postgres.SessionRow) error {
	if f.createFn != nil {
		return f.createFn(ctx, row)
	}
	return nil
}

func (f *fakeSessionStore) Rotate(ctx context.Context, oldID, presentedHash string, newRow postgres.SessionRow) (postgres.SessionRow, error) {
	if f.rotateFn != nil {
		return f.rotateFn(ctx, oldID, presentedHash, newRow)
	}
	return postgres.SessionRow{}, postgres.ErrSessionNotFound
}

func (f *fakeSessionStore) Revoke(ctx context.Context, id string) error {
	f.revoked = append(f.revoked, id)
	if f.revokeFn != nil {
		return f.revokeFn(ctx, id)
	}
	return nil
}

type fakeNotifier struct {
	sent []notifications.SendWelcomeInput
}

func (f *fakeNotifier) SendWelcome(ctx context.Context, input notifications.SendWelcomeInput) error {
	f.sent = append(f.sent, input)
	return nil
}

func testConfig() config.Config {
	return config.Config{
		Env:                 "test",
		JWTSecret:           "unit-test-secret",
		JWTAccessTTLMinutes: 15,
		JWTRefreshTTLDays:   7,
	}
}

func testManager(cfg config.Config) *auth.Manager {
	return auth.NewManager(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL())
}

type authHarness struct {
	users    *fakeUserStore
	sessions *fakeSessionStore
	notifier *fakeNotifier
	revoker  *tokens.MemoryRevoker
	jwt      *auth.Manager
	handler  *handlers.AuthHandler
	cfg      config.Config
}

func newAuthHarness() *authHarness {
	cfg := testConfig()

	h := &authHarness{
		users:    &fakeUserStore{},
		sessions: &fakeSessionStore{},
		notifier: &fakeNotifier{},
		revoker:  tokens.NewMemoryRevoker(),
		jwt:      testManager(cfg),
		cfg:      cfg,
	}

	h.handler = handlers.NewAuthHandler(h.users, h.sessions, h.jwt, h.revoker, h.notifier, nil, cfg)

	return h
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// Register

func TestRegisterHandler(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setUp          func(*authHarness)
		wantStatusCode int
		wantError      string
	}{
		{
			name:           "success",
			body:           `{"name": "Alice", "email": "alice@example.com", "password": "supersecret"}`,
			wantStatusCode: http.StatusCreated,
		},
		{
			name: "email_taken",
			body: `{"name": "Alice", "email": "alice@example.com", "password": "supersecret"}`,
			setUp: func(h *authHarness) {
				h.users.createFn = func(ctx context.Context, email, passwordHash, name string) (user.User, error) {
					return user.User{}, postgres.ErrEmailAlreadyUsed
				}
			},
			wantStatusCode: http.StatusUnprocessableEntity,
			wantError:      "The email has already been taken.",
		},
		{
			name:           "invalid_email",
			body:           `{"name": "Alice", "email": "not-an-email", "password": "supersecret"}`,
			wantStatusCode: http.StatusUnprocessableEntity,
		},
		{
			name:           "short_password",
			body:           `{"name": "Alice", "email": "alice@example.com", "password": "short"}`,
			wantStatusCode: http.StatusUnprocessableEntity,
		},
		{
			name:           "missing_name",
			body:           `{"email": "alice@example.com", "password": "supersecret"}`,
			wantStatusCode: http.StatusUnprocessableEntity,
		},
		{
			name: "session_store_down",
			body: `{"name": "Alice", "email": "alice@example.com", "password": "supersecret"}`,
			setUp: func(h *authHarness) {
				h.sessions.createFn = func(ctx context.Context, row postgres.SessionRow) error {
					return errors.New("db down")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			h := newAuthHarness()

			if tt.setUp != nil {
				tt.setUp(h)
			}

			r := gin.New()
			r.POST("/register", h.handler.Register)

			w := postJSON(r, "/register", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantError != "" {
				var body map[string]string
				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
					t.Fatalf("unmarshal body: %v", err)
				}
				if body["error"] != tt.wantError {
					t.Errorf("error = %q, want %q", body["error"], tt.wantError)
				}
			}
		})
	}
}

func TestRegisterIssuesUsableToken(t *testing.T) {
	h := newAuthHarness()

	r := gin.New()
	r.POST("/register", h.handler.Register)

	w := postJSON(r, "/register", `{"name": "Alice", "email": "alice@example.com", "password": "supersecret"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	var payload struct {
		Token string    `json:"token"`
		User  user.User `json:"user"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	claims, err := h.jwt.VerifyAccessToken(payload.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.UserID != payload.User.ID {
		t.Errorf("token subject %q, user id %q", claims.UserID, payload.User.ID)
	}

	// the serialized user must never carry the bcrypt hash
	if bytes.Contains(w.Body.Bytes(), []byte("$2a$")) {
		t.Error("response leaks the password hash")
	}

	// a refresh cookie rides along
	cookies := w.Result().Cookies()
	found := false
	for _, c := range cookies {
		if c.Name == "refresh_token" && c.Value != "" {
			found = true
			if !c.HttpOnly {
				t.Error("refresh cookie is not HttpOnly")
			}
		}
	}
	if !found {
		t.Error("no refresh_token cookie set")
	}

	if len(h.notifier.sent) != 1 || h.notifier.sent[0].Email != "alice@example.com" {
		t.Errorf("welcome notification not sent: %+v", h.notifier.sent)
	}
}

// Login

func TestLoginHandler(t *testing.T) {
	hash, err := security.HashPassword("supersecret")
	if err != nil {
		t.Fatal(err)
	}

	existing := user.User{
		ID:           newUUID(),
		Email:        "alice@example.com",
		PasswordHash: hash,
		Name:         "Alice",
	}

	lookup := func(ctx context.Context, email string) (user.User, error) {
		if email == existing.Email {
			return existing, nil
		}
		return user.User{}, postgres.ErrUserNotFound
	}

	tests := []struct {
		name           string
		body           string
		wantStatusCode int
		wantError      string
	}{
		{
			name:           "success",
			body:           `{"email": "alice@example.com", "password": "supersecret"}`,
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "unknown_email",
			body:           `{"email": "nobody@example.com", "password": "supersecret"}`,
			wantStatusCode: http.StatusUnauthorized,
			wantError:      "Unauthorized",
		},
		{
			name:           "wrong_password",
			body:           `{"email": "alice@example.com", "password": "not-the-password"}`,
			wantStatusCode: http.StatusUnauthorized,
			wantError:      "Unauthorized",
		},
		{
			name:           "missing_password",
			body:           `{"email": "alice@example.com"}`,
			wantStatusCode: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			h := newAuthHarness()
			h.users.getByEmailFn = lookup

			r := gin.New()
			r.POST("/login", h.handler.Login)

			w := postJSON(r, "/login", tt.body)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantError != "" {
				var body map[string]string
				if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
					t.Fatalf("unmarshal body: %v", err)
				}
				if body["error"] != tt.wantError {
					t.Errorf("error = %q, want %q", body["error"], tt.wantError)
				}
			}
		})
	}
}

// Logout, end to end through the auth middleware. The presented token must be
// dead afterwards while a second token of the same user stays valid.

func TestLogoutRevokesPresentedTokenOnly(t *testing.T) {
	h := newAuthHarness()

	mw := middlewares.NewAuthMiddleware(h.jwt, h.revoker)

	r := gin.New()
	r.POST("/logout", mw.RequireAuth(), h.handler.Logout)
	r.GET("/whoami", mw.RequireAuth(), func(c *gin.Context) {
		id, _ := middlewares.UserIDFromContext(c)
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	userID := newUUID()

	tokenA, err := h.jwt.GenerateAccessToken(userID, "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	tokenB, err := h.jwt.GenerateAccessToken(userID, "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}

	do := func(method, path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	// both tokens work before logout
	if w := do(http.MethodGet, "/whoami", tokenA); w.Code != http.StatusOK {
		t.Fatalf("token A rejected before logout: %d %s", w.Code, w.Body.String())
	}

	w := do(http.MethodPost, "/logout", tokenA)
	if w.Code != http.StatusOK {
		t.Fatalf("logout failed: %d %s", w.Code, w.Body.String())
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal logout body: %v", err)
	}
	if body["message"] != "Logged out successfully" {
		t.Errorf("logout message = %q", body["message"])
	}

	// the presented token is now dead
	if w := do(http.MethodGet, "/whoami", tokenA); w.Code != http.StatusUnauthorized {
		t.Fatalf("token A still accepted after logout: %d", w.Code)
	}

	// a sibling token of the same user is untouched
	if w := do(http.MethodGet, "/whoami", tokenB); w.Code != http.StatusOK {
		t.Fatalf("token B rejected after unrelated logout: %d %s", w.Code, w.Body.String())
	}
}

func TestLogoutRevokesRefreshSessionFromCookie(t *testing.T) {
	h := newAuthHarness()

	mw := middlewares.NewAuthMiddleware(h.jwt, h.revoker)

	r := gin.New()
	r.POST("/logout", mw.RequireAuth(), h.handler.Logout)

	userID := newUUID()

	accessToken, err := h.jwt.GenerateAccessToken(userID, "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}

	rawRefresh, refreshJTI, _, err := h.jwt.GenerateRefreshToken(userID, "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: rawRefresh})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("logout failed: %d %s", w.Code, w.Body.String())
	}

	if len(h.sessions.revoked) != 1 || h.sessions.revoked[0] != refreshJTI {
		t.Errorf("revoked sessions = %v, want [%s]", h.sessions.revoked, refreshJTI)
	}
}

// Refresh

func TestRefreshRotatesSession(t *testing.T) {
	h := newAuthHarness()

	userID := newUUID()

	rawRefresh, oldJTI, _, err := h.jwt.GenerateRefreshToken(userID, "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}

	var rotatedTo postgres.SessionRow

	h.sessions.rotateFn = func(ctx context.Context, oldID, presentedHash string, newRow postgres.SessionRow) (postgres.SessionRow, error) {
		if oldID != oldJTI {
			t.Errorf("rotate called with old id %q, want %q", oldID, oldJTI)
		}
		if presentedHash != h.jwt.HashRefreshToken(rawRefresh) {
			t.Error("rotate called with wrong presented hash")
		}
		rotatedTo = newRow
		return postgres.SessionRow{ID: oldID, UserID: userID}, nil
	}

	r := gin.New()
	r.POST("/refresh", h.handler.Refresh)

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refresh_token", Value: rawRefresh})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body=%s", w.Code, w.Body.String())
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	claims, err := h.jwt.VerifyAccessToken(payload.Token)
	if err != nil {
		t.Fatalf("refreshed access token does not verify: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("token subject = %q, want %q", claims.UserID, userID)
	}

	if rotatedTo.UserID != userID || rotatedTo.ID == oldJTI || rotatedTo.ID == "" {
		t.Errorf("rotation produced bad new row: %+v", rotatedTo)
	}

	// the cookie now carries the rotated token, not the old one
	for _, c := range w.Result().Cookies() {
		if c.Name == "refresh_token" {
			if c.Value == rawRefresh {
				t.Error("refresh cookie was not rotated")
			}
			if _, err := h.jwt.VerifyRefreshToken(c.Value); err != nil {
				t.Errorf("rotated cookie token does not verify: %v", err)
			}
		}
	}
}

func TestRefreshRejections(t *testing.T) {
	tests := []struct {
		name           string
		cookie         string
		rotateErr      error
		wantStatusCode int
	}{
		{
			name:           "missing_cookie",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "garbage_cookie",
			cookie:         "not-a-jwt",
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "unknown_session",
			cookie:         "valid",
			rotateErr:      postgres.ErrSessionNotFound,
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "revoked_session",
			cookie:         "valid",
			rotateErr:      postgres.ErrSessionRevoked,
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "expired_session",
			cookie:         "valid",
			rotateErr:      postgres.ErrSessionExpired,
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "hash_mismatch",
			cookie:         "valid",
			rotateErr:      postgres.ErrSessionMismatch,
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "store_error",
			cookie:         "valid",
			rotateErr:      errors.New("db down"),
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			h := newAuthHarness()

			cookieValue := tt.cookie
			if cookieValue == "valid" {
				raw, _, _, err := h.jwt.GenerateRefreshToken(newUUID(), "alice@example.com")
				if err != nil {
					t.Fatal(err)
				}
				cookieValue = raw
			}

			if tt.rotateErr != nil {
				h.sessions.rotateFn = func(ctx context.Context, oldID, presentedHash string, newRow postgres.SessionRow) (postgres.SessionRow, error) {
					return postgres.SessionRow{}, tt.rotateErr
				}
			}

			r := gin.New()
			r.POST("/refresh", h.handler.Refresh)

			req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
			if cookieValue != "" {
				req.AddCookie(&http.Cookie{Name: "refresh_token", Value: cookieValue})
			}

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}
