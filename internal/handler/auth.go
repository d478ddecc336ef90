package handler

import (
    "net/http" // HTTP status codes and primitives
    "time"     // token expiry formatting

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/bus-seat-reservation/internal/config" // app configuration
    "github.com/iliyamo/bus-seat-reservation/internal/utils"  // helper functions (hashing, token issuing)
)

// AuthHandler implements the single shared admin credential.  There are
// no user accounts: one username/password pair from the environment
// unlocks the departure-management endpoints, nothing else.
type AuthHandler struct {
    Cfg config.Config
}

func NewAuthHandler(cfg config.Config) *AuthHandler {
    return &AuthHandler{Cfg: cfg}
}

type loginReq struct {
    Username string `json:"username"`
    Password string `json:"password"`
}

// Login handles POST /v1/auth/login.  On a matching credential it
// issues a short-lived HS256 admin token.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
    }
    if req.Username != h.Cfg.AdminUser || !utils.VerifyPassword(h.Cfg.AdminPassHash, req.Password) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    }
    tok, err := utils.NewAdminToken(h.Cfg.JWTSecret, h.Cfg.AdminUser, h.Cfg.AccessTTLMin)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to issue token"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "access_token": tok.Token,
        "expires_at":   tok.Exp.Format(time.RFC3339),
    })
}
