package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/model"
)

const principalKey = "principal"

// ErrorKey holds an internal error a handler answered with a generic 5xx body,
// so RequestLogger can still record the cause.
const ErrorKey = "handler_error"

func setPrincipal(c echo.Context, p model.Principal) {
	c.Set(principalKey, p)
}

// PrincipalFrom returns the authenticated caller set by JWTAuth.
func PrincipalFrom(c echo.Context) (model.Principal, bool) {
	p, ok := c.Get(principalKey).(model.Principal)
	return p, ok
}

// userID identifies the caller in rate limit keys and request logs, or
// "anon" when the request is unauthenticated.
func userID(c echo.Context) string {
	if p, ok := PrincipalFrom(c); ok {
		return p.UserID.String()
	}
	return "anon"
}
