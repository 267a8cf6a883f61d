package ilmateenistus

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/toomja/ilm/internal/weather"
)

// Location is a place returned by the location autocomplete.
type Location struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Lat  *float64 `json:"lat"`
	Lon  *float64 `json:"lon"`
}

// Coordinates returns the "lat;lon" form used by the meteogram, or "" when
// the location has no coordinates.
func (l Location) Coordinates() string {
	if l.Lat == nil || l.Lon == nil {
		return ""
	}
	return formatCoord(*l.Lat) + ";" + formatCoord(*l.Lon)
}

// searchResponse accepts a list of locations, a single location object or
// an object wrapping the list in "data".
type searchResponse struct {
	locations []Location
}

func (r *searchResponse) UnmarshalJSON(b []byte) error {
	r.locations = nil

	var list []json.RawMessage
	if err := json.Unmarshal(b, &list); err == nil {
		r.locations = decodeLocations(list)
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil || obj == nil {
		return nil //nolint:nilerr // anything else holds no locations
	}
	if data, ok := obj["data"]; ok {
		if err := json.Unmarshal(data, &list); err == nil {
			r.locations = decodeLocations(list)
			return nil
		}
	}
	r.locations = decodeLocations([]json.RawMessage{b})
	return nil
}

// rawLocation covers the field spellings seen in autocomplete results.
type rawLocation struct {
	ID          Text           `json:"id"`
	Name        Text           `json:"name"`
	Label       Text           `json:"label"`
	Title       Text           `json:"title"`
	Value       Text           `json:"value"`
	Lat         weather.Number `json:"lat"`
	Lon         weather.Number `json:"lon"`
	Latitude    weather.Number `json:"latitude"`
	Longitude   weather.Number `json:"longitude"`
	Coordinates Text           `json:"coordinates"`
}

func decodeLocations(entries []json.RawMessage) []Location {
	locations := make([]Location, 0, len(entries))
	for _, raw := range entries {
		var rl rawLocation
		if err := json.Unmarshal(raw, &rl); err != nil {
			continue
		}

		loc := Location{
			ID:   string(rl.ID),
			Name: string(firstText(rl.Name, rl.Label, rl.Title, rl.Value)),
			Lat:  firstNumber(rl.Lat, rl.Latitude),
			Lon:  firstNumber(rl.Lon, rl.Longitude),
		}
		if (loc.Lat == nil || loc.Lon == nil) && rl.Coordinates != "" {
			loc.Lat, loc.Lon = splitCoordinates(string(rl.Coordinates))
		}
		if loc.Name == "" && loc.ID == "" {
			continue
		}
		locations = append(locations, loc)
	}
	return locations
}

func splitCoordinates(s string) (lat, lon *float64) {
	parts := strings.Split(s, ";")
	if len(parts) != 2 {
		parts = strings.Split(s, ",")
	}
	if len(parts) != 2 {
		return nil, nil
	}

	la, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lo, errLon := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLat != nil || errLon != nil {
		return nil, nil
	}
	return weather.Float(la), weather.Float(lo)
}

func firstText(values ...Text) Text {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNumber(values ...weather.Number) *float64 {
	for _, v := range values {
		if v.Valid() {
			return v.Ptr()
		}
	}
	return nil
}
