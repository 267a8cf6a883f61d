package weather

import (
	"math"
	"time"

	"github.com/sixdouglas/suncalc"
)

// horizonElevation is the apparent sunrise/sunset elevation, corrected for
// refraction and the solar disc.
const horizonElevation = -0.833

// SunPosition is the sun's position seen from a point on the ground.
type SunPosition struct {
	Elevation float64 `json:"elevation"` // degrees above the horizon
	Azimuth   float64 `json:"azimuth"`   // degrees clockwise from north
}

// IsDay reports whether the sun is above the horizon.
func (p SunPosition) IsDay() bool {
	return p.Elevation > horizonElevation
}

// SolarPosition computes the sun's position at t for lat/lon.
func SolarPosition(t time.Time, lat, lon float64) SunPosition {
	pos := suncalc.GetPosition(t.UTC(), lat, lon)

	// suncalc measures azimuth from south, positive towards west.
	azimuth := math.Mod(degrees(pos.Azimuth)+180, 360)
	if azimuth < 0 {
		azimuth += 360
	}

	return SunPosition{
		Elevation: Round1(degrees(pos.Altitude)),
		Azimuth:   Round1(azimuth),
	}
}

func degrees(r float64) float64 { return r * 180 / math.Pi }
