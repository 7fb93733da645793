package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// The payload types mirror the OpenWeatherMap 2.5 JSON bodies. Every section
// and field is optional: a nil pointer means the upstream omitted it or sent
// a value of the wrong type. Decoding into these types is the only place
// where the payload shape is inspected.

type WeatherCondition struct {
	Main        *string `json:"main"`
	Description *string `json:"description"`
}

type MainSection struct {
	Temp     *float64 `json:"temp"`
	Humidity *float64 `json:"humidity"`
	Pressure *float64 `json:"pressure"`
}

type WindSection struct {
	Speed *float64 `json:"speed"`
	Deg   *float64 `json:"deg"`
}

type CloudsSection struct {
	All *float64 `json:"all"`
}

type RainSection struct {
	OneHour   *float64 `json:"1h"`
	ThreeHour *float64 `json:"3h"`
}

// Conditions holds the sections shared by /weather bodies and /forecast list entries.
type Conditions struct {
	Dt      *int64             `json:"dt"`
	Weather []WeatherCondition `json:"weather"`
	Main    *MainSection       `json:"main"`
	Wind    *WindSection       `json:"wind"`
	Clouds  *CloudsSection     `json:"clouds"`
	Rain    *RainSection       `json:"rain"`
}

// CurrentPayload is the body of GET /weather.
type CurrentPayload struct {
	Conditions
	Name string `json:"name"`

	// keys counts the top-level members of the decoded body.
	keys int
}

// ForecastEntry is one 3-hour slot of GET /forecast.
type ForecastEntry struct {
	Conditions
	DtTxt string `json:"dt_txt"`
}

// ForecastPayload is the body of GET /forecast.
type ForecastPayload struct {
	List []ForecastEntry `json:"list"`
}

const forecastTimeLayout = "2006-01-02 15:04:05"

// ToObservation normalizes a current-conditions payload. It never fails:
// missing sections become nulls, a missing 1h rain figure becomes zero, and
// the 3h figure is always null because /weather does not report it.
func (p *CurrentPayload) ToObservation(city City, ingestedAt time.Time) WeatherObservation {
	var c Conditions
	if p != nil {
		c = p.Conditions
	}

	obs := c.observation(city, SourceCurrent, ingestedAt)
	obs.ObservedAt = c.observedAt(ingestedAt)
	obs.Rain3h = nil
	return obs
}

// ToObservations normalizes a forecast payload into one row per list entry.
// An absent list yields no rows.
func (p *ForecastPayload) ToObservations(city City, ingestedAt time.Time) []WeatherObservation {
	if p == nil || len(p.List) == 0 {
		return nil
	}

	rows := make([]WeatherObservation, 0, len(p.List))
	for _, entry := range p.List {
		obs := entry.observation(city, SourceForecast, ingestedAt)
		obs.ObservedAt = entry.observedAt(ingestedAt)
		if entry.Dt == nil && entry.DtTxt != "" {
			if ts, err := time.ParseInLocation(forecastTimeLayout, entry.DtTxt, time.UTC); err == nil {
				obs.ObservedAt = ts
			}
		}
		rows = append(rows, obs)
	}
	return rows
}

func (c Conditions) observation(city City, source SourceKind, ingestedAt time.Time) WeatherObservation {
	obs := WeatherObservation{
		IngestedAt: ingestedAt.UTC(),
		City:       city.Name,
		Lat:        city.Lat,
		Lon:        city.Lon,
		Source:     source,
		Rain1h:     Float(0),
		Rain3h:     Float(0),
	}

	if len(c.Weather) > 0 {
		obs.WeatherMain = c.Weather[0].Main
		obs.WeatherDesc = c.Weather[0].Description
	}
	if c.Main != nil {
		obs.Temp = c.Main.Temp
		obs.Humidity = c.Main.Humidity
		obs.Pressure = c.Main.Pressure
	}
	if c.Wind != nil {
		obs.WindSpeed = c.Wind.Speed
		obs.WindDeg = c.Wind.Deg
	}
	if c.Clouds != nil {
		obs.Clouds = c.Clouds.All
	}
	if c.Rain != nil {
		if c.Rain.OneHour != nil {
			obs.Rain1h = c.Rain.OneHour
		}
		if c.Rain.ThreeHour != nil {
			obs.Rain3h = c.Rain.ThreeHour
		}
	}

	return obs
}

// observedAt falls back to the ingestion time when dt is missing; the column
// is NOT NULL in weather_raw.
func (c Conditions) observedAt(ingestedAt time.Time) time.Time {
	if c.Dt == nil {
		return ingestedAt.UTC()
	}
	return time.Unix(*c.Dt, 0).UTC()
}

// IsEmpty reports whether the body was an empty object. Such a response
// produces no row; any other body, even one without the sections the
// normalizer reads, produces a row of nulls.
func (p *CurrentPayload) IsEmpty() bool {
	if p == nil {
		return true
	}
	c := p.Conditions
	return p.keys == 0 && p.Name == "" &&
		c.Dt == nil && len(c.Weather) == 0 && c.Main == nil && c.Wind == nil && c.Clouds == nil && c.Rain == nil
}

// UnmarshalJSON decodes a /weather body. Only a body that is not a JSON
// object fails; wrongly typed members decode as absent.
func (p *CurrentPayload) UnmarshalJSON(data []byte) error {
	var obj rawObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	*p = CurrentPayload{Conditions: obj.conditions(), keys: len(obj)}
	if name := obj.text("name"); name != nil {
		p.Name = *name
	}
	return nil
}

// UnmarshalJSON decodes a /forecast body. Entries that are not objects are
// skipped and wrongly typed members decode as absent, so one bad slot never
// costs the rest of the list.
func (p *ForecastPayload) UnmarshalJSON(data []byte) error {
	var obj rawObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	*p = ForecastPayload{}
	var entries []json.RawMessage
	if err := json.Unmarshal(obj["list"], &entries); err != nil {
		return nil
	}
	for _, raw := range entries {
		entry := decodeObject(raw)
		if entry == nil {
			continue
		}
		fe := ForecastEntry{Conditions: entry.conditions()}
		if txt := entry.text("dt_txt"); txt != nil {
			fe.DtTxt = *txt
		}
		p.List = append(p.List, fe)
	}
	return nil
}

// rawObject is a JSON object whose members are decoded one at a time.
type rawObject map[string]json.RawMessage

// decodeObject returns nil when data is absent, null or not an object.
func decodeObject(data json.RawMessage) rawObject {
	if len(data) == 0 {
		return nil
	}
	var obj rawObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil
	}
	return obj
}

func (o rawObject) present(key string) (json.RawMessage, bool) {
	raw, ok := o[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil, false
	}
	return raw, true
}

// number accepts JSON numbers and numeric strings. Anything else, including
// NaN and infinities, is absent.
func (o rawObject) number(key string) *float64 {
	raw, ok := o.present(key)
	if !ok {
		return nil
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		if v, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return nil
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (o rawObject) text(key string) *string {
	raw, ok := o.present(key)
	if !ok {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func (o rawObject) conditions() Conditions {
	var c Conditions

	if dt := o.number("dt"); dt != nil {
		unix := int64(*dt)
		c.Dt = &unix
	}

	var weather []json.RawMessage
	if raw, ok := o.present("weather"); ok && json.Unmarshal(raw, &weather) == nil {
		for _, w := range weather {
			if cond := decodeObject(w); cond != nil {
				c.Weather = append(c.Weather, WeatherCondition{Main: cond.text("main"), Description: cond.text("description")})
			}
		}
	}

	if m := decodeObject(o["main"]); m != nil {
		c.Main = &MainSection{Temp: m.number("temp"), Humidity: m.number("humidity"), Pressure: m.number("pressure")}
	}
	if w := decodeObject(o["wind"]); w != nil {
		c.Wind = &WindSection{Speed: w.number("speed"), Deg: w.number("deg")}
	}
	if cl := decodeObject(o["clouds"]); cl != nil {
		c.Clouds = &CloudsSection{All: cl.number("all")}
	}
	if r := decodeObject(o["rain"]); r != nil {
		c.Rain = &RainSection{OneHour: r.number("1h"), ThreeHour: r.number("3h")}
	}
	return c
}
