package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weather-rain-pipeline/internal/models"
	"weather-rain-pipeline/internal/services"
	"weather-rain-pipeline/pkg/logging"
	"weather-rain-pipeline/pkg/metrics"
)

type staticLoader []models.WeatherObservation

func (l staticLoader) LoadAll(ctx context.Context) ([]models.WeatherObservation, error) {
	return l, nil
}

// recentHistory ends at the current hour so the dashboard windows include it.
// Every third row is humid and carries 15 mm of rain.
func recentHistory(city string, n int) []models.WeatherObservation {
	end := time.Now().UTC().Truncate(time.Hour)
	out := make([]models.WeatherObservation, 0, n)
	for i := 0; i < n; i++ {
		humidity, rain := 55.0+float64(i%4), 0.0
		if i%3 == 0 {
			humidity, rain = 95, 15
		}
		out = append(out, models.WeatherObservation{
			City:       city,
			Source:     models.SourceForecast,
			ObservedAt: end.Add(-time.Duration(n-1-i) * time.Hour),
			Temp:       models.Float(25 + float64(i%5)),
			Humidity:   models.Float(humidity),
			Pressure:   models.Float(1010),
			WindSpeed:  models.Float(3),
			Clouds:     models.Float(humidity - 20),
			Rain3h:     models.Float(rain),
		})
	}
	return out
}

type fixture struct {
	router    *mux.Router
	metrics   *metrics.Collector
	modelPath string
	loader    staticLoader
}

func newFixture(t *testing.T, checks map[string]HealthCheckFunc) *fixture {
	t.Helper()
	logger := logging.NewNopLogger()
	collector := metrics.NewCollector("test", prometheus.NewRegistry())
	loader := staticLoader(append(recentHistory("Recife", 48), recentHistory("Manaus", 48)...))
	modelPath := filepath.Join(t.TempDir(), "rain_classifier.json")

	handler := NewWeatherHandler(
		services.NewWeatherService(loader, logger, collector),
		services.NewPredictionService(loader, modelPath, logger, collector),
		checks, logger, collector,
	)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	return &fixture{router: router, metrics: collector, modelPath: modelPath, loader: loader}
}

func (f *fixture) train(t *testing.T) {
	t.Helper()
	service := services.NewTrainingService(f.loader, services.DefaultTrainingOptions(f.modelPath),
		logging.NewNopLogger(), metrics.NewCollector("train", prometheus.NewRegistry()))
	_, err := service.Train(context.Background())
	require.NoError(t, err)
}

func (f *fixture) get(t *testing.T, target string, out interface{}) int {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestGetCities(t *testing.T) {
	f := newFixture(t, nil)

	var body struct {
		Cities []string `json:"cities"`
	}
	assert.Equal(t, http.StatusOK, f.get(t, "/api/cities", &body))
	assert.Equal(t, []string{"Manaus", "Recife"}, body.Cities)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.APIRequestsTotal.WithLabelValues("/api/cities", "GET", "200")))
}

func TestGetObservations(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		check      func(t *testing.T, body []byte)
	}{
		{
			name:       "default window",
			target:     "/api/observations?city=Recife",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var resp SeriesResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, defaultDays, resp.Days)
				assert.Equal(t, 48, resp.Count)
				assert.True(t, resp.Data[0].ObservedAt.Before(resp.Data[47].ObservedAt))
			},
		},
		{
			name:       "one day",
			target:     "/api/observations?city=Recife&days=1",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var resp SeriesResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.LessOrEqual(t, resp.Count, 25)
				assert.GreaterOrEqual(t, resp.Count, 23)
			},
		},
		{name: "missing city", target: "/api/observations", wantStatus: http.StatusBadRequest},
		{name: "days not a number", target: "/api/observations?city=Recife&days=abc", wantStatus: http.StatusBadRequest},
		{name: "days out of range", target: "/api/observations?city=Recife&days=31", wantStatus: http.StatusBadRequest},
		{name: "unknown city", target: "/api/observations?city=Natal", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.check != nil {
				tt.check(t, rec.Body.Bytes())
				return
			}
			var errResp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
			assert.Equal(t, tt.wantStatus, errResp.Code)
			assert.NotEmpty(t, errResp.Message)
		})
	}
}

func TestGetLatestAndEvents(t *testing.T) {
	f := newFixture(t, nil)

	var latest models.WeatherObservation
	assert.Equal(t, http.StatusOK, f.get(t, "/api/latest?city=Manaus", &latest))
	assert.Equal(t, "Manaus", latest.City)
	assert.Equal(t, time.Now().UTC().Truncate(time.Hour), latest.ObservedAt.UTC())

	var events SeriesResponse
	assert.Equal(t, http.StatusOK, f.get(t, "/api/events?city=Manaus", &events))
	assert.Equal(t, defaultEventDays, events.Days)
	// every third of the 48 rows rains and all of them fall inside three days
	assert.Equal(t, 16, events.Count)
	for i := 1; i < len(events.Data); i++ {
		assert.True(t, events.Data[i-1].ObservedAt.After(events.Data[i].ObservedAt))
	}
}

func TestGetPrediction(t *testing.T) {
	f := newFixture(t, nil)

	var errResp ErrorResponse
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/api/prediction?city=Recife", &errResp))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.APIErrorsTotal.WithLabelValues("model_missing", "/api/prediction")))

	f.train(t)

	var prediction services.Prediction
	assert.Equal(t, http.StatusOK, f.get(t, "/api/prediction?city=Recife&lookback_hours=12", &prediction))
	assert.Equal(t, "Recife", prediction.City)
	assert.Equal(t, prediction.Probability >= prediction.Threshold, prediction.Alert)
	assert.Empty(t, prediction.Backfilled)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/prediction?city=Recife&lookback_hours=2", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/prediction", nil))
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/prediction?city=Natal", nil))
}

func TestHealthCheck(t *testing.T) {
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}

	healthy := newFixture(t, map[string]HealthCheckFunc{
		"database": func(ctx context.Context) error { return nil },
	})
	assert.Equal(t, http.StatusOK, healthy.get(t, "/health", &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])

	broken := newFixture(t, map[string]HealthCheckFunc{
		"database": func(ctx context.Context) error { return errors.New("connection refused") },
	})
	assert.Equal(t, http.StatusServiceUnavailable, broken.get(t, "/health", &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "connection refused", body.Checks["database"])
}

func TestOpenAPISpec(t *testing.T) {
	f := newFixture(t, nil)

	var doc struct {
		OpenAPI string                 `json:"openapi"`
		Paths   map[string]interface{} `json:"paths"`
	}
	assert.Equal(t, http.StatusOK, f.get(t, "/api/docs/openapi.json", &doc))
	assert.Equal(t, "3.0.0", doc.OpenAPI)
	for _, path := range []string{"/api/cities", "/api/observations", "/api/latest", "/api/prediction", "/api/events", "/health"} {
		assert.Contains(t, doc.Paths, path)
	}
}

func TestSwaggerUI(t *testing.T) {
	f := newFixture(t, nil)

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/docs", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Rain Alert Dashboard API</title>")
	assert.Contains(t, body, `id="swagger-ui"`)
	assert.Contains(t, body, "openapi.json")
}
