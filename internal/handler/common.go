package handler

import (
    "errors"
    "net/http"
    "strconv"

    "github.com/labstack/echo/v4"
    "github.com/rs/zerolog"

    "github.com/iliyamo/raffle-ticket-sales/internal/middleware"
    "github.com/iliyamo/raffle-ticket-sales/internal/service"
)

// errorBody is the structured failure returned by every endpoint.
type errorBody struct {
    Error   string      `json:"error"`
    Message string      `json:"message,omitempty"`
    Details interface{} `json:"details,omitempty"`
}

func statusFor(k service.Kind) int {
    switch k {
    case service.KindValidation:
        return http.StatusBadRequest
    case service.KindNotFound:
        return http.StatusNotFound
    case service.KindConflict:
        return http.StatusConflict
    case service.KindDependency:
        return http.StatusServiceUnavailable
    }
    return http.StatusInternalServerError
}

// respondError writes err as a structured failure.  Server-side failures
// are logged with their cause; the body only carries the stable reason.
func respondError(c echo.Context, logger zerolog.Logger, err error) error {
    var se *service.Error
    if !errors.As(err, &se) {
        logger.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
        return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal_error", Message: "unexpected failure"})
    }
    status := statusFor(se.Kind)
    if status >= http.StatusInternalServerError {
        logger.Error().Err(err).Str("path", c.Path()).Str("reason", se.Reason).Msg("request failed")
    }
    return c.JSON(status, errorBody{Error: se.Reason, Message: se.Message, Details: se.Details})
}

// currentIdentity returns the verified caller or writes a 401.
func currentIdentity(c echo.Context) (middleware.Identity, bool) {
    id, ok := middleware.IdentityFrom(c)
    if !ok || id.UserID == 0 {
        return middleware.Identity{}, false
    }
    return id, true
}

func unauthorized(c echo.Context) error {
    return c.JSON(http.StatusUnauthorized, errorBody{Error: "unauthorized"})
}

func userScope(id middleware.Identity) string { return strconv.FormatUint(id.UserID, 10) }
