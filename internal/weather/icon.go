package weather

import "strings"

// Icon identifiers of the read API.
const (
	IconClearDay          = "clear-day"
	IconClearNight        = "clear-night"
	IconPartlyCloudyDay   = "partly-cloudy-day"
	IconPartlyCloudyNight = "partly-cloudy-night"
	IconCloudy            = "cloudy"
	IconFog               = "fog"
	IconRain              = "rain"
	IconSleet             = "sleet"
	IconSnow              = "snow"
	IconThunderstorm      = "thunderstorm"
)

// iconRules map phenomenon fragments, Estonian and English, to icons.
// Order matters: "uduvihm" is rain, not fog, and "lumesadu" is snow.
var iconRules = []struct {
	fragments []string
	day       string
	night     string
}{
	{[]string{"äike", "thunder"}, IconThunderstorm, IconThunderstorm},
	{[]string{"lörts", "jäide", "sleet", "freezing"}, IconSleet, IconSleet},
	{[]string{"lumi", "lume", "snow"}, IconSnow, IconSnow},
	{[]string{"vihm", "sadu", "rain", "drizzle", "shower"}, IconRain, IconRain},
	{[]string{"udu", "fog", "mist"}, IconFog, IconFog},
	{[]string{"vähene pilvisus", "vahelduv pilvisus", "selginemine", "partly", "few clouds"}, IconPartlyCloudyDay, IconPartlyCloudyNight},
	{[]string{"pilves", "pilvisus", "overcast", "cloud"}, IconCloudy, IconCloudy},
	{[]string{"selge", "clear", "sunny"}, IconClearDay, IconClearNight},
}

// IconFor selects a day/night aware icon. The phenomenon label wins; without
// one the icon is derived from precipitation and cloud cover.
func IconFor(c Conditions, day bool) string {
	if label := strings.ToLower(strings.TrimSpace(c.Phenomenon)); label != "" {
		for _, rule := range iconRules {
			for _, f := range rule.fragments {
				if strings.Contains(label, f) {
					return pick(day, rule.day, rule.night)
				}
			}
		}
	}

	if c.Precipitation != nil && *c.Precipitation >= 0.1 {
		if c.Temperature != nil && *c.Temperature <= 0 {
			return IconSnow
		}
		return IconRain
	}

	switch {
	case c.CloudCover == nil:
		return pick(day, IconPartlyCloudyDay, IconPartlyCloudyNight)
	case *c.CloudCover < 20:
		return pick(day, IconClearDay, IconClearNight)
	case *c.CloudCover < 70:
		return pick(day, IconPartlyCloudyDay, IconPartlyCloudyNight)
	default:
		return IconCloudy
	}
}

func pick(day bool, dayIcon, nightIcon string) string {
	if day {
		return dayIcon
	}
	return nightIcon
}
