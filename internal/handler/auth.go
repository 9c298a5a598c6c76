package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/config"
	"github.com/iliyamo/event-booking/internal/model"
	"github.com/iliyamo/event-booking/internal/repository"
	"github.com/iliyamo/event-booking/internal/utils"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  UserStore
	Tokens TokenStore
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t}
}

// ----- DTOs -----

type registerReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID    uuid.UUID  `json:"id"`
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// issue signs an access token and stores a fresh refresh token for u.
func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    userPart{ID: u.ID, Email: u.Email, Role: u.Role},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

// Register creates a user with the plain user role and returns tokens
// immediately. Admins are provisioned out of band.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	email := repository.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return badRequest(c, "email/password required")
	}
	if !strings.Contains(email, "@") {
		return badRequest(c, "invalid email")
	}
	if len(req.Password) < utils.MinPasswordLength {
		return badRequest(c, "password must be at least 8 characters")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.Create(ctx, email, req.Password, model.RoleUser, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists", "code": "email_exists"})
		}
		return internalError(c, "create user failed", err)
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return internalError(c, "issue tokens failed", err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	email := repository.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return badRequest(c, "email/password required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return unauthorized(c, "invalid credentials")
		}
		return internalError(c, "query failed", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return unauthorized(c, "invalid credentials")
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return internalError(c, "issue tokens failed", err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh consumes the presented refresh token and issues a new pair. A token
// replayed after rotation is rejected.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	userID, err := h.Tokens.Consume(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidRefresh) {
			return unauthorized(c, "invalid refresh")
		}
		return internalError(c, "refresh failed", err)
	}

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return unauthorized(c, "invalid refresh")
		}
		return internalError(c, "load user failed", err)
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return internalError(c, "issue tokens failed", err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes a single refresh token when one is in the body, or every
// token of the bearer when only an Authorization header is sent.
func (h *AuthHandler) Logout(c echo.Context) error {
	var (
		bearer    model.Principal
		hasBearer bool
	)
	if raw, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer "); ok {
		if p, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimSpace(raw)); err == nil {
			bearer, hasBearer = p, true
		}
	}

	// A missing or malformed body just means no refresh token was sent.
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	if refreshToken != "" {
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			if errors.Is(err, repository.ErrInvalidRefresh) {
				return unauthorized(c, "invalid refresh token")
			}
			return internalError(c, "logout failed", err)
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return internalError(c, "logout failed", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	if hasBearer {
		if err := h.Tokens.RevokeAllForUser(ctx, bearer.UserID); err != nil {
			return internalError(c, "logout failed", err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	return badRequest(c, "provide Authorization header or refresh_token")
}

// Me echoes the authenticated principal.
func (h *AuthHandler) Me(c echo.Context) error {
	p, ok := getPrincipal(c)
	if !ok {
		return unauthorized(c, "unauthorized")
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id": p.UserID,
		"role":    p.Role,
	})
}
