package middleware

import (
	"net/http"

	"go.uber.org/zap"
)

// LogFields adds storefront request flags to the access log line.
func LogFields(r *http.Request) []zap.Field {
	return []zap.Field{
		zap.Bool("htmx", IsHTMX(r.Context())),
		zap.Bool("logged_in", LoggedIn(r)),
	}
}
