package models

import (
	"fmt"
	"time"
)

// SourceKind tells which upstream endpoint produced an observation.
type SourceKind string

const (
	SourceCurrent  SourceKind = "current"
	SourceForecast SourceKind = "forecast"
)

// City is one configured location. Cities are parsed once at startup and
// never modified afterwards.
type City struct {
	Name string  `json:"name" yaml:"name"`
	Lat  float64 `json:"lat" yaml:"lat"`
	Lon  float64 `json:"lon" yaml:"lon"`
}

func (c City) String() string {
	return fmt.Sprintf("%s (%.4f, %.4f)", c.Name, c.Lat, c.Lon)
}

// WeatherObservation is one row of weather_raw and of the silver snapshots.
// Optional measurements are pointers so that a missing value is stored as an
// explicit NULL rather than a zero.
type WeatherObservation struct {
	IngestedAt  time.Time  `json:"ingested_at" db:"ingested_at"`
	City        string     `json:"city" db:"city"`
	Lat         float64    `json:"lat" db:"lat"`
	Lon         float64    `json:"lon" db:"lon"`
	Source      SourceKind `json:"source" db:"source"`
	ObservedAt  time.Time  `json:"dt" db:"dt"`
	Temp        *float64   `json:"temp" db:"temp"`
	Humidity    *float64   `json:"humidity" db:"humidity"`
	Pressure    *float64   `json:"pressure" db:"pressure"`
	WindSpeed   *float64   `json:"wind_speed" db:"wind_speed"`
	WindDeg     *float64   `json:"wind_deg" db:"wind_deg"`
	Clouds      *float64   `json:"clouds" db:"clouds"`
	Rain1h      *float64   `json:"rain_1h" db:"rain_1h"`
	Rain3h      *float64   `json:"rain_3h" db:"rain_3h"`
	WeatherMain *string    `json:"weather_main" db:"weather_main"`
	WeatherDesc *string    `json:"weather_desc" db:"weather_desc"`
}

// ObservationColumns is the fixed column set shared by weather_raw and the
// snapshot files, in storage order.
var ObservationColumns = []string{
	"ingested_at", "city", "lat", "lon", "source", "dt",
	"temp", "humidity", "pressure", "wind_speed", "wind_deg", "clouds",
	"rain_1h", "rain_3h", "weather_main", "weather_desc",
}

// Numeric measurements that feed the feature builder, in feature order.
const (
	MeasurementTemp      = "temp"
	MeasurementHumidity  = "humidity"
	MeasurementPressure  = "pressure"
	MeasurementWindSpeed = "wind_speed"
	MeasurementClouds    = "clouds"
)

// Measurements lists the numeric columns used for lag and rolling features.
var Measurements = []string{
	MeasurementTemp,
	MeasurementHumidity,
	MeasurementPressure,
	MeasurementWindSpeed,
	MeasurementClouds,
}

// Measurement returns the named numeric measurement, or nil when it is
// absent or the name is unknown.
func (o *WeatherObservation) Measurement(name string) *float64 {
	switch name {
	case MeasurementTemp:
		return o.Temp
	case MeasurementHumidity:
		return o.Humidity
	case MeasurementPressure:
		return o.Pressure
	case MeasurementWindSpeed:
		return o.WindSpeed
	case MeasurementClouds:
		return o.Clouds
	case "wind_deg":
		return o.WindDeg
	case "rain_1h":
		return o.Rain1h
	case "rain_3h":
		return o.Rain3h
	default:
		return nil
	}
}

// Rain3hOrZero treats a missing 3-hour accumulation as no rain.
func (o *WeatherObservation) Rain3hOrZero() float64 {
	if o.Rain3h == nil {
		return 0
	}
	return *o.Rain3h
}

// Float returns a pointer to v. Handy for building observations in code and tests.
func Float(v float64) *float64 {
	return &v
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}
