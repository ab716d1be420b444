package remote

import (
	"net/http"
	"strings"
)

const (
	PathLogin        = "/api/auth/login"
	PathRegister     = "/api/auth/register"
	PathRefresh      = "/api/auth/refresh"
	PathHealth       = "/api/health"
	PathWorkouts     = "/api/workouts"
	PathMeasurements = "/api/measurements"
)

// IsAuthEndpoint reports whether path is one of the authentication endpoints.
// Those never carry a bearer token, never trigger a refresh, and are never
// queued offline.
func IsAuthEndpoint(path string) bool {
	switch strings.TrimRight(path, "/") {
	case PathLogin, PathRegister, PathRefresh:
		return true
	}
	return false
}

// IsMutation reports whether method changes server state.
func IsMutation(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
