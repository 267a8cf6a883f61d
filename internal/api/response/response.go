// Package response writes JSON and problem responses for the API handlers.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/toomja/ilm/internal/api/middleware"
	"github.com/toomja/ilm/internal/api/models"
)

// JSON writes data with the given status code and echoes the request ID.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set(middleware.RequestIDHeader, requestID)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Cached writes a 200 that shared caches may keep until expiresAt, the
// moment the cache entry behind it goes stale. Stale or past-expiry data is
// served with no-cache so clients revalidate.
func Cached(w http.ResponseWriter, r *http.Request, data interface{}, expiresAt, now time.Time) {
	maxAge := int(expiresAt.Sub(now).Seconds())
	if maxAge > 0 {
		w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(maxAge))
		w.Header().Set("Expires", expiresAt.UTC().Format(http.TimeFormat))
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	JSON(w, r, http.StatusOK, data)
}

// Error writes problem with the request path as its instance.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 problem.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(middleware.GetRequestID(r.Context()), detail, errors))
}

// NotFound writes a 404 problem.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(middleware.GetRequestID(r.Context()), detail))
}

// MethodNotAllowed writes a 405 problem.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Error(w, r, models.NewMethodNotAllowed(middleware.GetRequestID(r.Context()),
		r.Method+" is not supported on this resource"))
}

// InternalError writes a 500 problem. detail must not leak internals.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(middleware.GetRequestID(r.Context()), detail))
}

// WeatherUnavailable writes a 503 problem with a Retry-After hint.
func WeatherUnavailable(w http.ResponseWriter, r *http.Request, detail string, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	}
	Error(w, r, models.NewWeatherUnavailable(middleware.GetRequestID(r.Context()), detail))
}
