// Package snapshot writes and reads the silver layer: one parquet file per
// (city, source) group and ingest run.
package snapshot

import (
	"time"

	"weather-rain-pipeline/internal/models"
)

// record is the parquet row layout. Column names match weather_raw.
type record struct {
	IngestedAt  int64    `parquet:"name=ingested_at,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	City        string   `parquet:"name=city,type=BYTE_ARRAY,convertedtype=UTF8"`
	Lat         float64  `parquet:"name=lat,type=DOUBLE"`
	Lon         float64  `parquet:"name=lon,type=DOUBLE"`
	Source      string   `parquet:"name=source,type=BYTE_ARRAY,convertedtype=UTF8"`
	Dt          int64    `parquet:"name=dt,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	Temp        *float64 `parquet:"name=temp,type=DOUBLE,repetitiontype=OPTIONAL"`
	Humidity    *float64 `parquet:"name=humidity,type=DOUBLE,repetitiontype=OPTIONAL"`
	Pressure    *float64 `parquet:"name=pressure,type=DOUBLE,repetitiontype=OPTIONAL"`
	WindSpeed   *float64 `parquet:"name=wind_speed,type=DOUBLE,repetitiontype=OPTIONAL"`
	WindDeg     *float64 `parquet:"name=wind_deg,type=DOUBLE,repetitiontype=OPTIONAL"`
	Clouds      *float64 `parquet:"name=clouds,type=DOUBLE,repetitiontype=OPTIONAL"`
	Rain1h      *float64 `parquet:"name=rain_1h,type=DOUBLE,repetitiontype=OPTIONAL"`
	Rain3h      *float64 `parquet:"name=rain_3h,type=DOUBLE,repetitiontype=OPTIONAL"`
	WeatherMain *string  `parquet:"name=weather_main,type=BYTE_ARRAY,convertedtype=UTF8,repetitiontype=OPTIONAL"`
	WeatherDesc *string  `parquet:"name=weather_desc,type=BYTE_ARRAY,convertedtype=UTF8,repetitiontype=OPTIONAL"`
}

func fromObservation(o models.WeatherObservation) record {
	return record{
		IngestedAt:  o.IngestedAt.UnixMilli(),
		City:        o.City,
		Lat:         o.Lat,
		Lon:         o.Lon,
		Source:      string(o.Source),
		Dt:          o.ObservedAt.UnixMilli(),
		Temp:        o.Temp,
		Humidity:    o.Humidity,
		Pressure:    o.Pressure,
		WindSpeed:   o.WindSpeed,
		WindDeg:     o.WindDeg,
		Clouds:      o.Clouds,
		Rain1h:      o.Rain1h,
		Rain3h:      o.Rain3h,
		WeatherMain: o.WeatherMain,
		WeatherDesc: o.WeatherDesc,
	}
}

func (r record) toObservation() models.WeatherObservation {
	return models.WeatherObservation{
		IngestedAt:  time.UnixMilli(r.IngestedAt).UTC(),
		City:        r.City,
		Lat:         r.Lat,
		Lon:         r.Lon,
		Source:      models.SourceKind(r.Source),
		ObservedAt:  time.UnixMilli(r.Dt).UTC(),
		Temp:        r.Temp,
		Humidity:    r.Humidity,
		Pressure:    r.Pressure,
		WindSpeed:   r.WindSpeed,
		WindDeg:     r.WindDeg,
		Clouds:      r.Clouds,
		Rain1h:      r.Rain1h,
		Rain3h:      r.Rain3h,
		WeatherMain: r.WeatherMain,
		WeatherDesc: r.WeatherDesc,
	}
}
