package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// requestUserID returns the authenticated user's id as a string for
// use in rate-limit keys, or "anon" for unauthenticated requests.
func requestUserID(c echo.Context) string {
	if uid, ok := c.Get("user_id").(uint64); ok {
		return strconv.FormatUint(uid, 10)
	}
	return "anon"
}
