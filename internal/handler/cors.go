package handler

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORSOptions builds the cross-origin policy for browser clients.
func CORSOptions(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	// Credentials are never allowed together with a wildcard origin.
	allowCreds := true
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCreds = false
			break
		}
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length"},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}

// WithCORS wraps next in the CORS middleware.
func WithCORS(next http.Handler, allowedOrigins []string) http.Handler {
	return cors.Handler(CORSOptions(allowedOrigins))(next)
}
