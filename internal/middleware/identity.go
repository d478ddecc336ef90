package middleware

// Request identity for rate-limit keying.  Most seat-map traffic is
// anonymous, so the holder token is the best available identity: one
// misbehaving tab gets throttled without punishing everyone behind the
// same NAT.  Admin requests carry a JWT and are keyed by its subject.

import (
    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
)

// requestIdentity resolves, in order: the JWT subject set by JWTAuth,
// a raw parsed token left in context, the holder token from the query
// string or X-Holder-Id header, then "guest".
func requestIdentity(c echo.Context) string {
    if v, ok := c.Get("user_id").(string); ok && v != "" {
        return v
    }
    if tok, ok := c.Get("user").(*jwt.Token); ok {
        if cl, ok := tok.Claims.(jwt.MapClaims); ok {
            if v, ok := cl["sub"].(string); ok && v != "" {
                return v
            }
        }
    }
    if v := c.QueryParam("holder"); v != "" {
        return v
    }
    if v := c.Request().Header.Get("X-Holder-Id"); v != "" {
        return v
    }
    return "guest"
}
