package openmeteo

import (
	"encoding/json"
	"time"

	"github.com/toomja/ilm/internal/weather"
)

// Response is the raw Open-Meteo forecast payload. Every field is nullable.
type Response struct {
	Latitude  weather.Number `json:"latitude"`
	Longitude weather.Number `json:"longitude"`
	Current   *CurrentBlock  `json:"current"`
	Hourly    *HourlyBlock   `json:"hourly"`
}

// UnmarshalJSON implements json.Unmarshaler. Current and hourly nodes that
// are not objects, or do not fit their block, decode as absent.
func (r *Response) UnmarshalJSON(b []byte) error {
	*r = Response{}

	var node struct {
		Latitude  weather.Number  `json:"latitude"`
		Longitude weather.Number  `json:"longitude"`
		Current   json.RawMessage `json:"current"`
		Hourly    json.RawMessage `json:"hourly"`
	}
	if err := json.Unmarshal(b, &node); err != nil {
		return nil //nolint:nilerr // wrong-shaped payloads carry no data
	}
	r.Latitude, r.Longitude = node.Latitude, node.Longitude
	r.Current = weather.DecodeObject[CurrentBlock](node.Current)
	r.Hourly = weather.DecodeObject[HourlyBlock](node.Hourly)
	return nil
}

// CurrentBlock holds the current conditions.
type CurrentBlock struct {
	Time                string         `json:"time"`
	Temperature         weather.Number `json:"temperature_2m"`
	ApparentTemperature weather.Number `json:"apparent_temperature"`
	RelativeHumidity    weather.Number `json:"relative_humidity_2m"`
	Precipitation       weather.Number `json:"precipitation"`
	CloudCover          weather.Number `json:"cloud_cover"`
	WindSpeed           weather.Number `json:"wind_speed_10m"`
	WindDirection       weather.Number `json:"wind_direction_10m"`
	WeatherCode         weather.Number `json:"weather_code"`
}

// HourlyBlock holds parallel arrays indexed by position.
type HourlyBlock struct {
	Time                     []string         `json:"time"`
	Temperature              []weather.Number `json:"temperature_2m"`
	ApparentTemperature      []weather.Number `json:"apparent_temperature"`
	RelativeHumidity         []weather.Number `json:"relative_humidity_2m"`
	Precipitation            []weather.Number `json:"precipitation"`
	PrecipitationProbability []weather.Number `json:"precipitation_probability"`
	Snowfall                 []weather.Number `json:"snowfall"`
	CloudCover               []weather.Number `json:"cloud_cover"`
	WindSpeed                []weather.Number `json:"wind_speed_10m"`
	WindDirection            []weather.Number `json:"wind_direction_10m"`
}

// Parse maps a raw payload to a normalized forecast. It returns nil when the
// current block is absent. Precipitation and snowfall default to 0; every
// other missing value stays unknown. Hours before the current observation
// hour are dropped so index 0 is the nearest hour.
func Parse(resp *Response, location string) *weather.NormalizedForecast {
	if resp == nil || resp.Current == nil {
		return nil
	}

	cur := resp.Current
	observedAt, _ := parseTime(cur.Time)

	f := &weather.NormalizedForecast{
		Location: location,
		Current: weather.CurrentConditions{
			Conditions: conditions(
				cur.Temperature, cur.ApparentTemperature, cur.WindSpeed, cur.WindDirection,
				cur.Precipitation, cur.CloudCover, cur.RelativeHumidity,
			),
			ObservedAt: observedAt,
		},
		IssuedAt: observedAt,
		Source:   weather.SourceOpenMeteo,
	}
	f.Hourly = parseHourly(resp.Hourly, observedAt.Truncate(time.Hour))
	f.Summary = weather.Summarize(f.Hourly)

	return f
}

func parseHourly(h *HourlyBlock, from time.Time) []weather.HourSample {
	if h == nil {
		return nil
	}

	samples := make([]weather.HourSample, 0, len(h.Time))
	for i, ts := range h.Time {
		t, ok := parseTime(ts)
		if !ok {
			continue
		}
		if !from.IsZero() && t.Before(from) {
			continue
		}

		samples = append(samples, weather.HourSample{
			Time: t,
			Conditions: conditions(
				at(h.Temperature, i), at(h.ApparentTemperature, i), at(h.WindSpeed, i), at(h.WindDirection, i),
				at(h.Precipitation, i), at(h.CloudCover, i), at(h.RelativeHumidity, i),
			),
			PrecipitationProbability: at(h.PrecipitationProbability, i).Ptr(),
			// Snowfall is reported in centimetres.
			Snowfall: weather.Float(weather.Round1(at(h.Snowfall, i).Or(0) * 10)),
		})
	}
	return samples
}

func conditions(temp, apparent, wind, dir, precip, cloud, humidity weather.Number) weather.Conditions {
	c := weather.Conditions{
		Temperature:         temp.Ptr(),
		ApparentTemperature: apparent.Ptr(),
		WindSpeed:           wind.Ptr(),
		WindDegrees:         dir.Ptr(),
		Precipitation:       weather.Float(precip.Or(0)),
		CloudCover:          cloud.Ptr(),
		Humidity:            humidity.Ptr(),
	}
	if dir.Valid() {
		c.WindDirection = weather.CompassLabel(dir.Or(0))
	}
	return c
}

func at(values []weather.Number, i int) weather.Number {
	if i < len(values) {
		return values[i]
	}
	return weather.Number{}
}
