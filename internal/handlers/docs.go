package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type schema = map[string]interface{}

func queryParam(name, description, typ string, required bool, def interface{}) schema {
	s := schema{"type": typ}
	if def != nil {
		s["default"] = def
	}
	return schema{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    required,
		"schema":      s,
	}
}

func jsonResponse(description string, body schema) schema {
	return schema{
		"description": description,
		"content": schema{
			"application/json": schema{"schema": body},
		},
	}
}

func errorResponses(codes ...string) schema {
	ref := schema{"$ref": "#/components/schemas/Error"}
	out := schema{}
	for _, code := range codes {
		status, _ := strconv.Atoi(code)
		out[code] = jsonResponse(http.StatusText(status), ref)
	}
	return out
}

func getOperation(summary string, params []schema, ok schema, errs ...string) schema {
	responses := errorResponses(errs...)
	responses["200"] = ok
	op := schema{"summary": summary, "responses": responses}
	if len(params) > 0 {
		op["parameters"] = params
	}
	return schema{"get": op}
}

func nullableNumber() schema { return schema{"type": "number", "nullable": true} }

var (
	cityParam = queryParam("city", "City name as configured for ingestion", "string", true, nil)

	observationSchema = schema{
		"type": "object",
		"properties": schema{
			"ingested_at":  schema{"type": "string", "format": "date-time"},
			"city":         schema{"type": "string"},
			"lat":          schema{"type": "number"},
			"lon":          schema{"type": "number"},
			"source":       schema{"type": "string", "enum": []string{"current", "forecast"}},
			"dt":           schema{"type": "string", "format": "date-time"},
			"temp":         nullableNumber(),
			"humidity":     nullableNumber(),
			"pressure":     nullableNumber(),
			"wind_speed":   nullableNumber(),
			"wind_deg":     nullableNumber(),
			"clouds":       nullableNumber(),
			"rain_1h":      nullableNumber(),
			"rain_3h":      nullableNumber(),
			"weather_main": schema{"type": "string", "nullable": true},
			"weather_desc": schema{"type": "string", "nullable": true},
		},
	}

	seriesSchema = schema{
		"type": "object",
		"properties": schema{
			"city":  schema{"type": "string"},
			"days":  schema{"type": "integer"},
			"count": schema{"type": "integer"},
			"data":  schema{"type": "array", "items": schema{"$ref": "#/components/schemas/Observation"}},
		},
	}
)

// OpenAPISpec returns the OpenAPI 3.0 document for the dashboard API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := schema{
		"openapi": "3.0.0",
		"info": schema{
			"title":       "Rain Alert Dashboard API",
			"description": "Read-only access to ingested observations and heavy-rain predictions",
			"version":     "1.0.0",
		},
		"paths": schema{
			"/api/cities": getOperation("List cities with observations", nil,
				jsonResponse("Cities, sorted", schema{
					"type":       "object",
					"properties": schema{"cities": schema{"type": "array", "items": schema{"type": "string"}}},
				}), "500"),
			"/api/observations": getOperation("Observation series for a city",
				[]schema{cityParam, queryParam("days", "Window in days (1-30)", "integer", false, defaultDays)},
				jsonResponse("Rows oldest first", seriesSchema), "400", "404", "500"),
			"/api/latest": getOperation("Latest observation with measurements",
				[]schema{cityParam, queryParam("days", "Window in days (1-30)", "integer", false, defaultDays)},
				jsonResponse("Newest row carrying temp, humidity, pressure or rain_3h", schema{"$ref": "#/components/schemas/Observation"}),
				"400", "404", "500"),
			"/api/prediction": getOperation("Heavy-rain probability for the next 3 hours",
				[]schema{cityParam, queryParam("lookback_hours", "Feature window in hours (3-24)", "integer", false, defaultLookbackHours)},
				jsonResponse("Probability, threshold and alert flag", schema{
					"type": "object",
					"properties": schema{
						"city":        schema{"type": "string"},
						"dt":          schema{"type": "string", "format": "date-time"},
						"probability": schema{"type": "number"},
						"threshold":   schema{"type": "number"},
						"alert":       schema{"type": "boolean"},
						"features":    schema{"type": "object", "additionalProperties": schema{"type": "number"}},
						"backfilled":  schema{"type": "array", "items": schema{"type": "string"}},
						"trained_at":  schema{"type": "string", "format": "date-time"},
					},
				}), "400", "404", "500", "503"),
			"/api/events": getOperation("Recent heavy-rain rows (rain_3h >= 10 mm)",
				[]schema{cityParam, queryParam("days", "Window in days (1-30)", "integer", false, defaultEventDays)},
				jsonResponse("Rows newest first", seriesSchema), "400", "404", "500"),
			"/health": getOperation("Health check", nil,
				jsonResponse("Service and dependency status", schema{"type": "object"}), "503"),
			"/metrics": schema{
				"get": schema{
					"summary": "Prometheus metrics",
					"responses": schema{
						"200": schema{
							"description": "Prometheus metrics in text format",
							"content":     schema{"text/plain": schema{"schema": schema{"type": "string"}}},
						},
					},
				},
			},
		},
		"components": schema{
			"schemas": schema{
				"Observation": observationSchema,
				"Error": schema{
					"type": "object",
					"properties": schema{
						"error":   schema{"type": "string"},
						"message": schema{"type": "string"},
						"code":    schema{"type": "integer"},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
