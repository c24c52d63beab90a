package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// GetID reads the authenticated user id placed in the context by the token
// middleware.
func GetID(c echo.Context) (uint, error) {
	id, ok := c.Get("userID").(uint)
	if !ok {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "missing user context")
	}
	return id, nil
}

func GetRole(c echo.Context) string {
	r, _ := c.Get("role").(string)
	return r
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}
