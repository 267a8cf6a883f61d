package weather

import "time"

// LocalZone is the time zone of the forecast location. Estonian provider
// times are interpreted in it and narratives are written for it.
var LocalZone = loadZone("Europe/Tallinn", 2*60*60)

func loadZone(name string, fallbackOffset int) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone(name, fallbackOffset)
	}
	return loc
}
