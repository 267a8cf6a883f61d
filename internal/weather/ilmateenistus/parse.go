package ilmateenistus

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/toomja/ilm/internal/weather"
)

// Response is the raw meteogram payload.
type Response struct {
	Forecast *ForecastBlock `json:"forecast"`
}

// UnmarshalJSON implements json.Unmarshaler. A forecast node that is not
// an object decodes as absent.
func (r *Response) UnmarshalJSON(b []byte) error {
	*r = Response{}

	var node struct {
		Forecast json.RawMessage `json:"forecast"`
	}
	if err := json.Unmarshal(b, &node); err != nil {
		return nil //nolint:nilerr // wrong-shaped payloads carry no data
	}
	r.Forecast = weather.DecodeObject[ForecastBlock](node.Forecast)
	return nil
}

// ForecastBlock wraps the tabular forecast.
type ForecastBlock struct {
	Tabular *Tabular `json:"tabular"`
}

// UnmarshalJSON implements json.Unmarshaler. A tabular node that is not an
// object decodes as absent.
func (fb *ForecastBlock) UnmarshalJSON(b []byte) error {
	*fb = ForecastBlock{}

	var node struct {
		Tabular json.RawMessage `json:"tabular"`
	}
	if err := json.Unmarshal(b, &node); err != nil {
		return nil //nolint:nilerr // wrong-shaped blocks carry no data
	}
	fb.Tabular = weather.DecodeObject[Tabular](node.Tabular)
	return nil
}

// Tabular holds the forecast timesteps.
type Tabular struct {
	Time Timesteps `json:"time"`
}

// Timesteps decodes the "time" node, which is an array of timestep
// objects or a single object. Non-object entries are skipped.
type Timesteps []Timestep

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timesteps) UnmarshalJSON(b []byte) error {
	*ts = nil

	var entries []json.RawMessage
	if err := json.Unmarshal(b, &entries); err != nil {
		entries = []json.RawMessage{b}
	}

	for _, raw := range entries {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
			continue
		}
		var step Timestep
		if err := json.Unmarshal(raw, &step); err != nil {
			continue
		}
		*ts = append(*ts, step)
	}
	return nil
}

// Timestep is one forecast interval. Values sit under "@attributes".
type Timestep struct {
	Attributes struct {
		From Text `json:"from"`
		To   Text `json:"to"`
	} `json:"@attributes"`

	Temperature attrs[struct {
		Value weather.Number `json:"value"`
	}] `json:"temperature"`

	WindSpeed attrs[struct {
		Mps weather.Number `json:"mps"`
	}] `json:"windSpeed"`

	WindDirection attrs[struct {
		Name Text           `json:"name"`
		Deg  weather.Number `json:"deg"`
	}] `json:"windDirection"`

	Precipitation attrs[struct {
		Value weather.Number `json:"value"`
	}] `json:"precipitation"`

	Phenomenon attrs[struct {
		Et Text `json:"et"`
		En Text `json:"en"`
	}] `json:"phenomen"`
}

// attrs decodes an {"@attributes": {...}} node, leaving it empty when the
// node has any other shape.
type attrs[T any] struct {
	Attributes T
}

func (a *attrs[T]) UnmarshalJSON(b []byte) error {
	var node struct {
		Attributes T `json:"@attributes"`
	}
	if err := json.Unmarshal(b, &node); err != nil {
		*a = attrs[T]{}
		return nil //nolint:nilerr // malformed nodes are unknown
	}
	a.Attributes = node.Attributes
	return nil
}

// Text is a lenient JSON string that also accepts numbers.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	*t = ""

	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil //nolint:nilerr // malformed values are empty
	}
	switch v := raw.(type) {
	case string:
		*t = Text(strings.TrimSpace(v))
	case float64:
		*t = Text(strconv.FormatFloat(v, 'f', -1, 64))
	}
	return nil
}

var timeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// parseTime reads a timestep boundary. Times without an offset are local
// to weather.LocalZone.
func parseTime(s Text) (time.Time, bool) {
	v := string(s)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), true
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, v, weather.LocalZone); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// Parse maps a raw payload to a normalized forecast. It returns nil when no
// timesteps are present. Timestep 0 is the current conditions.
// Precipitation and snowfall default to 0; apparent temperature, cloud
// cover, humidity and precipitation probability are not reported.
func Parse(resp *Response, location string) *weather.NormalizedForecast {
	if resp == nil || resp.Forecast == nil || resp.Forecast.Tabular == nil {
		return nil
	}
	steps := resp.Forecast.Tabular.Time
	if len(steps) == 0 {
		return nil
	}

	observedAt, _ := parseTime(steps[0].Attributes.From)
	f := &weather.NormalizedForecast{
		Location: location,
		Current: weather.CurrentConditions{
			Conditions: conditions(&steps[0]),
			ObservedAt: observedAt,
		},
		IssuedAt: observedAt,
		Source:   weather.SourceEstonian,
	}

	f.Hourly = make([]weather.HourSample, 0, len(steps))
	for i := range steps {
		t, ok := parseTime(steps[i].Attributes.From)
		if !ok {
			continue
		}
		f.Hourly = append(f.Hourly, weather.HourSample{
			Time:       t,
			Conditions: conditions(&steps[i]),
			Snowfall:   weather.Float(0),
		})
	}
	f.Summary = weather.Summarize(f.Hourly)

	return f
}

func conditions(s *Timestep) weather.Conditions {
	dir := s.WindDirection.Attributes
	c := weather.Conditions{
		Temperature:   s.Temperature.Attributes.Value.Ptr(),
		Phenomenon:    string(s.Phenomenon.Attributes.Et),
		WindSpeed:     s.WindSpeed.Attributes.Mps.Ptr(),
		WindDirection: string(dir.Name),
		WindDegrees:   dir.Deg.Ptr(),
		Precipitation: weather.Float(s.Precipitation.Attributes.Value.Or(0)),
	}
	if c.WindDirection == "" && dir.Deg.Valid() {
		c.WindDirection = weather.CompassLabel(dir.Deg.Or(0))
	}
	return c
}
