package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/expensehub/expensehub/internal/auth"
	"github.com/expensehub/expensehub/internal/config"
	"github.com/expensehub/expensehub/internal/domain/user"
	"github.com/expensehub/expensehub/internal/http/middlewares"
	"github.com/expensehub/expensehub/internal/notifications"
	"github.com/expensehub/expensehub/internal/observability"
	"github.com/expensehub/expensehub/internal/repo/postgres"
	"github.com/expensehub/expensehub/internal/security"
	"github.com/expensehub/expensehub/internal/tokens"
	"github.com/gin-gonic/gin"
)

type UserStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, email, passwordHash, name string) (user.User, error)
}

type SessionStore interface {
	Create(ctx context.Context, row postgres.SessionRow) error
	Rotate(ctx context.Context, oldID, presentedHash string, newRow postgres.SessionRow) (postgres.SessionRow, error)
	Revoke(ctx context.Context, id string) error
}

type AuthHandler struct {
	users    UserStore
	sessions SessionStore
	jwt      *auth.Manager
	revoker  tokens.Revoker
	notifier notifications.Notifier
	prom     *observability.Prom
	cfg      config.Config
}

func NewAuthHandler(users UserStore, sessions SessionStore, jwtManager *auth.Manager, revoker tokens.Revoker, notifier notifications.Notifier, prom *observability.Prom, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		jwt:      jwtManager,
		revoker:  revoker,
		notifier: notifier,
		prom:     prom,
		cfg:      cfg,
	}
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,max=255"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req RegisterRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)

	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		h.observeAuth("register", "error")
		RespondInternal(ctx, "Could not create user")
		return
	}

	u, err := h.users.Create(cctx, req.Email, hash, req.Name)

	if err != nil {
		if err == postgres.ErrEmailAlreadyUsed {
			h.observeAuth("register", "rejected")
			RespondUnprocessable(ctx, "The email has already been taken.")
			return
		}

		h.observeAuth("register", "error")
		RespondInternal(ctx, "Could not create user")
		return
	}

	accessToken, err := h.issueSession(ctx, cctx, u)

	if err != nil {
		h.observeAuth("register", "error")
		RespondInternal(ctx, "Could not create session")
		return
	}

	// best effort; registration does not fail if the provider is down
	_ = h.notifier.SendWelcome(cctx, notifications.SendWelcomeInput{
		Email: u.Email,
		Name:  u.Name,
	})

	h.observeAuth("register", "ok")

	ctx.JSON(http.StatusCreated, gin.H{
		"token": accessToken,
		"user":  u,
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// short timeout for DB lookup
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		// same response as a wrong password; do not leak which field failed
		h.observeAuth("login", "rejected")
		RespondUnauthorized(ctx, "Unauthorized")
		return
	}

	err = security.CheckPassword(foundUser.PasswordHash, req.Password)

	if err != nil {
		h.observeAuth("login", "rejected")
		RespondUnauthorized(ctx, "Unauthorized")
		return
	}

	accessToken, err := h.issueSession(ctx, cctx, foundUser)

	if err != nil {
		h.observeAuth("login", "error")
		RespondInternal(ctx, "Could not create session")
		return
	}

	h.observeAuth("login", "ok")

	ctx.JSON(http.StatusOK, gin.H{
		"token": accessToken,
		"user":  foundUser,
	})
}

// Logout revokes exactly the access token presented on this request, plus the
// refresh session if its cookie rode along. Other tokens of the same user
// stay valid.
func (h *AuthHandler) Logout(ctx *gin.Context) {
	jti, ok := middlewares.TokenJTIFromContext(ctx)

	if !ok || jti == "" {
		RespondUnauthorized(ctx, "Unauthenticated.")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	ttl := h.cfg.AccessTTL()

	if exp, ok := middlewares.TokenExpiryFromContext(ctx); ok {
		ttl = time.Until(exp)
	}

	if err := h.revoker.Revoke(cctx, jti, ttl); err != nil {
		RespondInternal(ctx, "Could not log out")
		return
	}

	if raw, err := ctx.Cookie(refreshCookieName); err == nil && raw != "" {
		if claims, err := h.jwt.VerifyRefreshToken(raw); err == nil {
			_ = h.sessions.Revoke(cctx, claims.JTI)
		}
	}

	h.clearRefreshCookie(ctx)

	RespondMessage(ctx, "Logged out successfully")
}

func (h *AuthHandler) Refresh(ctx *gin.Context) {
	raw, err := ctx.Cookie(refreshCookieName)

	if err != nil || raw == "" {
		RespondUnauthorized(ctx, "Missing refresh token")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(raw)

	if err != nil {
		RespondUnauthorized(ctx, "Invalid refresh token")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	newRaw, newJTI, newExpiresAt, err := h.jwt.GenerateRefreshToken(claims.UserID, claims.Email)

	if err != nil {
		h.observeAuth("refresh", "error")
		RespondInternal(ctx, "Could not refresh session")
		return
	}

	newRow := postgres.SessionRow{
		ID:        newJTI,
		UserID:    claims.UserID,
		TokenHash: h.jwt.HashRefreshToken(newRaw),
		ExpiresAt: newExpiresAt,
		CreatedAt: time.Now().UTC(),
	}

	old, err := h.sessions.Rotate(cctx, claims.JTI, h.jwt.HashRefreshToken(raw), newRow)

	if err != nil {
		switch err {
		case postgres.ErrSessionNotFound, postgres.ErrSessionRevoked, postgres.ErrSessionMismatch:
			h.observeAuth("refresh", "rejected")
			RespondUnauthorized(ctx, "Invalid refresh token")
		case postgres.ErrSessionExpired:
			h.observeAuth("refresh", "rejected")
			RespondUnauthorized(ctx, "Refresh token expired")
		default:
			h.observeAuth("refresh", "error")
			RespondInternal(ctx, "Could not refresh session")
		}
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(old.UserID, claims.Email)
	if err != nil {
		h.observeAuth("refresh", "error")
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	h.setRefreshCookie(ctx, newRaw, newExpiresAt)

	h.observeAuth("refresh", "ok")

	ctx.JSON(http.StatusOK, gin.H{
		"token": accessToken,
	})
}

// Helper functions

func (h *AuthHandler) issueSession(ctx *gin.Context, cctx context.Context, u user.User) (string, error) {
	accessToken, err := h.jwt.GenerateAccessToken(u.ID, u.Email)

	if err != nil {
		return "", err
	}

	rawRefresh, jti, expiresAt, err := h.jwt.GenerateRefreshToken(u.ID, u.Email)

	if err != nil {
		return "", err
	}

	row := postgres.SessionRow{
		ID:        jti,
		UserID:    u.ID,
		TokenHash: h.jwt.HashRefreshToken(rawRefresh),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.sessions.Create(cctx, row); err != nil {
		return "", err
	}

	h.setRefreshCookie(ctx, rawRefresh, expiresAt)

	return accessToken, nil
}

func (h *AuthHandler) observeAuth(op, result string) {
	if h.prom != nil {
		h.prom.AuthResults.WithLabelValues(op, result).Inc()
	}
}

const refreshCookieName = "refresh_token"

func (h *AuthHandler) setRefreshCookie(ctx *gin.Context, raw string, expiresAt time.Time) {
	secure := h.cfg.Env == "prod"

	maxAge := int(time.Until(expiresAt).Seconds())

	ctx.SetSameSite(http.SameSiteStrictMode)

	ctx.SetCookie(
		refreshCookieName,
		raw,
		maxAge,
		"/",
		"",
		secure,
		true, // HttpOnly.
	)
}

func (h *AuthHandler) clearRefreshCookie(ctx *gin.Context) {
	secure := h.cfg.Env == "prod"
	ctx.SetSameSite(http.SameSiteStrictMode)
	ctx.SetCookie(
		refreshCookieName,
		"",
		-1,
		"/",
		"",
		secure,
		true,
	)
}
