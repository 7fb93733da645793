package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"weather-rain-pipeline/internal/bundle"
	"weather-rain-pipeline/internal/features"
	"weather-rain-pipeline/internal/models"
	"weather-rain-pipeline/internal/services"
	"weather-rain-pipeline/pkg/logging"
	"weather-rain-pipeline/pkg/metrics"
)

const (
	defaultDays          = 7
	defaultEventDays     = 3
	maxDays              = 30
	defaultLookbackHours = 6
	minLookbackHours     = 3
	maxLookbackHours     = 24

	docsPath    = "/api/docs"
	openAPIPath = docsPath + "/openapi.json"
)

// HealthCheckFunc reports whether one dependency is usable.
type HealthCheckFunc func(ctx context.Context) error

// WeatherHandler serves the read-only dashboard API
type WeatherHandler struct {
	weatherService    *services.WeatherService
	predictionService *services.PredictionService
	checks            map[string]HealthCheckFunc
	logger            *logging.StructuredLogger
	metrics           *metrics.Collector
}

// NewWeatherHandler creates a new weather handler
func NewWeatherHandler(
	weatherService *services.WeatherService,
	predictionService *services.PredictionService,
	checks map[string]HealthCheckFunc,
	logger *logging.StructuredLogger,
	metricsCollector *metrics.Collector,
) *WeatherHandler {
	return &WeatherHandler{
		weatherService:    weatherService,
		predictionService: predictionService,
		checks:            checks,
		logger:            logger,
		metrics:           metricsCollector,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// SeriesResponse carries a city's rows for a window of days.
type SeriesResponse struct {
	City  string                      `json:"city"`
	Days  int                         `json:"days"`
	Count int                         `json:"count"`
	Data  []models.WeatherObservation `json:"data"`
}

// GetCities handles GET /api/cities
func (h *WeatherHandler) GetCities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/cities", time.Now())

	cities, err := h.weatherService.Cities(ctx)
	if err != nil {
		h.fail(w, r, "/api/cities", "failed to list cities", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/cities", r.Method, "200")
	h.sendJSON(w, map[string]interface{}{"cities": cities}, http.StatusOK)
}

// GetObservations handles GET /api/observations
func (h *WeatherHandler) GetObservations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/observations", time.Now())

	city, days, ok := h.cityAndDays(w, r, defaultDays)
	if !ok {
		return
	}

	observations, err := h.weatherService.Observations(ctx, city, days)
	if err != nil {
		h.fail(w, r, "/api/observations", "failed to retrieve observations", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/observations", r.Method, "200")
	h.sendJSON(w, SeriesResponse{City: city, Days: days, Count: len(observations), Data: observations}, http.StatusOK)
}

// GetLatest handles GET /api/latest
func (h *WeatherHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/latest", time.Now())

	city, days, ok := h.cityAndDays(w, r, defaultDays)
	if !ok {
		return
	}

	latest, err := h.weatherService.Latest(ctx, city, days)
	if err != nil {
		h.fail(w, r, "/api/latest", "failed to retrieve latest observation", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/latest", r.Method, "200")
	h.sendJSON(w, latest, http.StatusOK)
}

// GetPrediction handles GET /api/prediction
func (h *WeatherHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/prediction", time.Now())

	city := r.URL.Query().Get("city")
	if city == "" {
		h.sendError(w, r, "city is required", http.StatusBadRequest)
		return
	}

	hours := defaultLookbackHours
	if v := r.URL.Query().Get("lookback_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < minLookbackHours || n > maxLookbackHours {
			h.sendError(w, r, fmt.Sprintf("invalid lookback_hours, expected integer between %d and %d", minLookbackHours, maxLookbackHours), http.StatusBadRequest)
			return
		}
		hours = n
	}

	prediction, err := h.predictionService.Predict(ctx, city, time.Duration(hours)*time.Hour)
	if err != nil {
		h.fail(w, r, "/api/prediction", "failed to compute prediction", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/prediction", r.Method, "200")
	h.sendJSON(w, prediction, http.StatusOK)
}

// GetRainEvents handles GET /api/events
func (h *WeatherHandler) GetRainEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("/api/events", time.Now())

	city, days, ok := h.cityAndDays(w, r, defaultEventDays)
	if !ok {
		return
	}

	events, err := h.weatherService.RainEvents(ctx, city, days)
	if err != nil {
		h.fail(w, r, "/api/events", "failed to retrieve rain events", err)
		return
	}

	h.metrics.RecordAPIRequest("/api/events", r.Method, "200")
	h.sendJSON(w, SeriesResponse{City: city, Days: days, Count: len(events), Data: events}, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *WeatherHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := "healthy"
	code := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.Warn(ctx, "[HEALTH_CHECK] Dependency unhealthy", logging.Fields{"check": name}, err)
			checks[name] = err.Error()
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{"status": status})
	h.sendJSON(w, map[string]interface{}{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, code)
}

// cityAndDays reads the required city and the optional days window. It
// writes a 400 and returns false when either is invalid.
func (h *WeatherHandler) cityAndDays(w http.ResponseWriter, r *http.Request, def int) (string, int, bool) {
	city := r.URL.Query().Get("city")
	if city == "" {
		h.sendError(w, r, "city is required", http.StatusBadRequest)
		return "", 0, false
	}

	days := def
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxDays {
			h.sendError(w, r, fmt.Sprintf("invalid days, expected integer between 1 and %d", maxDays), http.StatusBadRequest)
			return "", 0, false
		}
		days = n
	}
	return city, days, true
}

// fail maps service errors onto HTTP statuses.
func (h *WeatherHandler) fail(w http.ResponseWriter, r *http.Request, endpoint, message string, err error) {
	ctx := r.Context()

	switch {
	case errors.Is(err, services.ErrCityNotFound), errors.Is(err, features.ErrNoFeatureRow):
		h.metrics.RecordAPIError("not_found", endpoint)
		h.sendError(w, r, err.Error(), http.StatusNotFound)
	case errors.Is(err, bundle.ErrNotFound):
		h.metrics.RecordAPIError("model_missing", endpoint)
		h.sendError(w, r, "no trained model available, run the trainer first", http.StatusServiceUnavailable)
	default:
		h.logger.Error(ctx, "[API_ERROR] Request failed", logging.Fields{
			"endpoint": endpoint,
			"query":    r.URL.RawQuery,
		}, err)
		h.metrics.RecordAPIError("internal_error", endpoint)
		h.sendError(w, r, message, http.StatusInternalServerError)
	}
}

func (h *WeatherHandler) observe(endpoint string, started time.Time) {
	h.metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
}

// sendJSON sends a JSON response
func (h *WeatherHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response
func (h *WeatherHandler) sendError(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	h.metrics.RecordAPIRequest(r.URL.Path, r.Method, strconv.Itoa(statusCode))

	response := ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}

	h.sendJSON(w, response, statusCode)
}

// RegisterRoutes registers all dashboard API routes
func (h *WeatherHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/cities", h.GetCities).Methods("GET")
	router.HandleFunc("/api/observations", h.GetObservations).Methods("GET")
	router.HandleFunc("/api/latest", h.GetLatest).Methods("GET")
	router.HandleFunc("/api/prediction", h.GetPrediction).Methods("GET")
	router.HandleFunc("/api/events", h.GetRainEvents).Methods("GET")
	router.HandleFunc(docsPath, SwaggerUI).Methods("GET")
	router.HandleFunc(openAPIPath, OpenAPISpec).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
