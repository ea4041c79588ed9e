package middleware

import (
    "github.com/labstack/echo/v4"
)

const identityKey = "identity"

// Identity is the verified caller, set by JWTAuth.
type Identity struct {
    UserID uint64
    Email  string
    Role   string
}

// IdentityFrom returns the identity JWTAuth stored on c.
func IdentityFrom(c echo.Context) (Identity, bool) {
    id, ok := c.Get(identityKey).(Identity)
    return id, ok
}

// SetIdentity stores id on c the way JWTAuth does.
func SetIdentity(c echo.Context, id Identity) {
    c.Set(identityKey, id)
    c.Set("user_id", id.UserID)
    c.Set("role", id.Role)
}
