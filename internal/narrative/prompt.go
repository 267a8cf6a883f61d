package narrative

import (
	"fmt"
	"strings"
	"time"

	"github.com/toomja/ilm/internal/weather"
)

// SystemPrompt fixes the persona, language and length of the narrative.
const SystemPrompt = `Sa oled sõbralik ja täpne Eesti ilmadiktor, kes kirjutab lühikesi ilmateateid ühe küla elanikele.
Kirjuta alati eesti keeles, 2-3 lauset, kokku kuni 60 sõna.
Kasuta ainult kasutaja sõnumis antud andmeid. Kui mõni väärtus puudub, ära seda maini ega oleta.
Ära kasuta loetelusid, pealkirju ega emotikone.
Ära korda varasemate tekstide sõnastust.`

const (
	bucketCount   = 4
	bucketHours   = 6
	maxHistory    = 4
	promptTimeFmt = "2006-01-02 15:04"
)

// BuildPrompt renders the user prompt for f. Only known values are
// included. history holds prior narratives, newest first; at most four are
// used.
func BuildPrompt(f *weather.NormalizedForecast, history []string, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Asukoht: %s\n", f.Location)
	fmt.Fprintf(&b, "Kohalik aeg: %s (%s)\n", now.In(weather.LocalZone).Format(promptTimeFmt), weather.LocalZone)

	b.WriteString("\nPraegu:\n")
	writeConditions(&b, f.Current.Conditions)

	if buckets := bucketize(f.Hourly); len(buckets) > 0 {
		b.WriteString("\nJärgmised 24 tundi:\n")
		for _, bk := range buckets {
			fmt.Fprintf(&b, "- %s–%s: %s\n",
				bk.from.In(weather.LocalZone).Format("15:04"),
				bk.to.In(weather.LocalZone).Format("15:04"),
				bk.describe())
		}
	}

	if lines := summaryLines(f.Summary); len(lines) > 0 {
		b.WriteString("\nÖöpäeva kokkuvõte:\n")
		for _, l := range lines {
			fmt.Fprintf(&b, "- %s\n", l)
		}
	}

	var recent []string
	for _, h := range history {
		if strings.TrimSpace(h) != "" {
			recent = append(recent, strings.TrimSpace(h))
		}
		if len(recent) == maxHistory {
			break
		}
	}
	if len(recent) > 0 {
		b.WriteString("\nVarasemad tekstid, mille sõnastust ei tohi korrata:\n")
		for _, h := range recent {
			fmt.Fprintf(&b, "- %q\n", h)
		}
	}

	b.WriteString("\nKirjuta selle põhjal praegune ilmateade. Ära maini andmeid, mida ülal pole.\n")
	return b.String()
}

func writeConditions(b *strings.Builder, c weather.Conditions) {
	if c.Temperature != nil {
		fmt.Fprintf(b, "- Temperatuur: %.1f°C\n", *c.Temperature)
	}
	if c.ApparentTemperature != nil {
		fmt.Fprintf(b, "- Tajutav temperatuur: %.1f°C\n", *c.ApparentTemperature)
	}
	if c.Phenomenon != "" {
		fmt.Fprintf(b, "- Ilm: %s\n", c.Phenomenon)
	}
	if c.WindSpeed != nil {
		if c.WindDirection != "" {
			fmt.Fprintf(b, "- Tuul: %.1f m/s, suund %s\n", *c.WindSpeed, c.WindDirection)
		} else {
			fmt.Fprintf(b, "- Tuul: %.1f m/s\n", *c.WindSpeed)
		}
	}
	if c.Precipitation != nil {
		fmt.Fprintf(b, "- Sademed: %.1f mm\n", *c.Precipitation)
	}
	if c.CloudCover != nil {
		fmt.Fprintf(b, "- Pilvisus: %.0f%%\n", *c.CloudCover)
	}
	if c.Humidity != nil {
		fmt.Fprintf(b, "- Õhuniiskus: %.0f%%\n", *c.Humidity)
	}
}

type bucket struct {
	from, to time.Time
	summary  weather.Summary
	maxWind  *float64
}

// bucketize splits the first 24 samples into four six-hour buckets.
// Buckets without samples are omitted.
func bucketize(hourly []weather.HourSample) []bucket {
	if len(hourly) > weather.SummaryHours {
		hourly = hourly[:weather.SummaryHours]
	}

	var buckets []bucket
	for i := 0; i < bucketCount; i++ {
		start := i * bucketHours
		if start >= len(hourly) {
			break
		}
		end := min(start+bucketHours, len(hourly))
		samples := hourly[start:end]

		bk := bucket{
			from:    samples[0].Time,
			to:      samples[len(samples)-1].Time.Add(time.Hour),
			summary: weather.Summarize(samples),
		}
		for _, s := range samples {
			if s.WindSpeed != nil && (bk.maxWind == nil || *s.WindSpeed > *bk.maxWind) {
				bk.maxWind = weather.Float(*s.WindSpeed)
			}
		}
		buckets = append(buckets, bk)
	}
	return buckets
}

func (bk bucket) describe() string {
	var parts []string
	s := bk.summary
	switch {
	case s.MinTemperature != nil && *s.MinTemperature != *s.MaxTemperature:
		parts = append(parts, fmt.Sprintf("%.1f…%.1f°C", *s.MinTemperature, *s.MaxTemperature))
	case s.MinTemperature != nil:
		parts = append(parts, fmt.Sprintf("%.1f°C", *s.MinTemperature))
	}
	if len(s.DominantConditions) > 0 {
		parts = append(parts, s.DominantConditions[0])
	}
	if s.TotalPrecipitation != nil && *s.TotalPrecipitation > 0 {
		parts = append(parts, fmt.Sprintf("sademeid %.1f mm", *s.TotalPrecipitation))
	}
	if s.MaxPrecipitationProbability != nil {
		parts = append(parts, fmt.Sprintf("sajutõenäosus kuni %.0f%%", *s.MaxPrecipitationProbability))
	}
	if bk.maxWind != nil {
		parts = append(parts, fmt.Sprintf("tuul kuni %.1f m/s", *bk.maxWind))
	}
	if len(parts) == 0 {
		return "andmed puuduvad"
	}
	return strings.Join(parts, ", ")
}

func summaryLines(s weather.Summary) []string {
	var lines []string
	if s.MinTemperature != nil && s.MaxTemperature != nil {
		lines = append(lines, fmt.Sprintf("Temperatuur %.1f…%.1f°C", *s.MinTemperature, *s.MaxTemperature))
	}
	if s.MinApparentTemperature != nil && s.MaxApparentTemperature != nil {
		lines = append(lines, fmt.Sprintf("Tajutav temperatuur %.1f…%.1f°C", *s.MinApparentTemperature, *s.MaxApparentTemperature))
	}
	if s.TotalPrecipitation != nil {
		lines = append(lines, fmt.Sprintf("Sademeid kokku %.1f mm", *s.TotalPrecipitation))
	}
	if s.MaxPrecipitationProbability != nil {
		lines = append(lines, fmt.Sprintf("Suurim sajutõenäosus %.0f%%", *s.MaxPrecipitationProbability))
	}
	if s.AvgCloudCover != nil {
		lines = append(lines, fmt.Sprintf("Keskmine pilvisus %.0f%%", *s.AvgCloudCover))
	}
	if len(s.DominantConditions) > 0 {
		lines = append(lines, "Valdav ilm: "+strings.Join(s.DominantConditions, ", "))
	}
	return lines
}
