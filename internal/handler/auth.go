package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/raffle-ticket-sales/internal/config"
	"github.com/iliyamo/raffle-ticket-sales/internal/model"
	"github.com/iliyamo/raffle-ticket-sales/internal/repository"
	"github.com/iliyamo/raffle-ticket-sales/internal/utils"
)

type UserStore interface {
	Create(ctx context.Context, email, password, role string, cost int) (uint64, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// RosterLookup tells whether an e-mail belongs to a seller of the roster.
type RosterLookup interface {
	GetByEmail(ctx context.Context, email string) (model.Seller, error)
}

// AuthHandler issues and revokes the tokens the identity middleware
// verifies.
type AuthHandler struct {
	Cfg     config.Config
	Users   UserStore
	Tokens  TokenStore
	Sellers RosterLookup
	Log     zerolog.Logger
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore, s RosterLookup, log zerolog.Logger) *AuthHandler {
	if u == nil || t == nil || s == nil {
		panic("nil repository passed to NewAuthHandler")
	}
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Sellers: s, Log: log}
}

type credentialsReq struct {
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
	ID    uint64 `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// Register lets a roster seller create their login.  Treasury accounts
// are provisioned by the seed command only.
func (h *AuthHandler) Register(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid_body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid_credentials", Message: "email and a password of at least 8 characters are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Sellers.GetByEmail(ctx, req.Email); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusForbidden, errorBody{Error: "not_in_roster", Message: "this e-mail is not on the seller roster"})
		}
		h.Log.Error().Err(err).Msg("roster lookup failed")
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "storage_unavailable"})
	}
	uid, err := h.Users.Create(ctx, req.Email, req.Password, model.RoleSeller, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, errorBody{Error: "email_exists"})
		}
		h.Log.Error().Err(err).Msg("create user failed")
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "create_user_failed"})
	}
	return h.issue(ctx, c, http.StatusCreated, model.User{ID: uid, Email: req.Email, Role: model.RoleSeller})
}

// Login verifies the password and returns a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req credentialsReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid_body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid_credentials", Message: "email/password required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.Log.Error().Err(err).Msg("load user failed")
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: "storage_unavailable"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) || !u.IsActive {
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "invalid_credentials"})
	}
	return h.issue(ctx, c, http.StatusOK, u)
}

// Refresh rotates a refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "refresh_token_required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "invalid_refresh"})
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil || !u.IsActive {
		return c.JSON(http.StatusUnauthorized, errorBody{Error: "invalid_refresh"})
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		h.Log.Warn().Err(err).Uint64("user_id", userID).Msg("revoke old refresh failed")
	}
	return h.issue(ctx, c, http.StatusOK, u)
}

// Logout revokes the given refresh token, or every refresh token of the
// authenticated caller when none is given.  An authenticated caller may
// only revoke their own refresh tokens.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if raw != "" {
		hash := utils.HashRefreshRaw(raw)
		owner, err := h.Tokens.ValidateRefresh(ctx, hash)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorBody{Error: "invalid_refresh"})
		}
		if id, ok := currentIdentity(c); ok && id.UserID != owner {
			return c.JSON(http.StatusForbidden, errorBody{Error: "refresh_token_not_owned"})
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return c.JSON(http.StatusInternalServerError, errorBody{Error: "logout_failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}

	id, ok := currentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	if err := h.Tokens.RevokeAllForUser(ctx, id.UserID); err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "logout_failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Me echoes the verified identity.
func (h *AuthHandler) Me(c echo.Context) error {
	id, ok := currentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	return c.JSON(http.StatusOK, userPart{ID: id.UserID, Email: id.Email, Role: id.Role})
}

func (h *AuthHandler) issue(ctx context.Context, c echo.Context, status int, u model.User) error {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Email, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "issue_access_failed"})
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "issue_refresh_failed"})
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		h.Log.Error().Err(err).Uint64("user_id", u.ID).Msg("save refresh failed")
		return c.JSON(http.StatusInternalServerError, errorBody{Error: "save_refresh_failed"})
	}
	return c.JSON(status, authResp{
		User:    userPart{ID: u.ID, Email: u.Email, Role: u.Role},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	})
}
