package weather

import "math"

// SummaryHours is the number of hourly samples a Summary covers.
const SummaryHours = 24

const maxDominantConditions = 3

// Summarize reduces the first 24 hourly samples. Unknown values are skipped
// and a reduction over no known values stays nil.
func Summarize(hourly []HourSample) Summary {
	if len(hourly) > SummaryHours {
		hourly = hourly[:SummaryHours]
	}

	var (
		temp, apparent, precip, probability, cloud []float64
		labels                                     []string
	)
	for i := range hourly {
		h := &hourly[i]
		temp = appendKnown(temp, h.Temperature)
		apparent = appendKnown(apparent, h.ApparentTemperature)
		precip = appendKnown(precip, h.Precipitation)
		probability = appendKnown(probability, h.PrecipitationProbability)
		cloud = appendKnown(cloud, h.CloudCover)
		if h.Phenomenon != "" {
			labels = append(labels, h.Phenomenon)
		}
	}

	return Summary{
		MinTemperature:              reduce(temp, math.Min),
		MaxTemperature:              reduce(temp, math.Max),
		MinApparentTemperature:      reduce(apparent, math.Min),
		MaxApparentTemperature:      reduce(apparent, math.Max),
		TotalPrecipitation:          roundPtr(reduce(precip, func(a, b float64) float64 { return a + b })),
		MaxPrecipitationProbability: reduce(probability, math.Max),
		AvgCloudCover:               average(cloud),
		DominantConditions:          dominant(labels, maxDominantConditions),
	}
}

func appendKnown(values []float64, v *float64) []float64 {
	if v == nil || math.IsNaN(*v) {
		return values
	}
	return append(values, *v)
}

func reduce(values []float64, fn func(a, b float64) float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	acc := values[0]
	for _, v := range values[1:] {
		acc = fn(acc, v)
	}
	return &acc
}

func average(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return Float(Round1(sum / float64(len(values))))
}

func roundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return Float(Round1(*v))
}

// dominant returns up to n labels ordered by frequency, ties broken by
// first appearance.
func dominant(labels []string, n int) []string {
	counts := make(map[string]int, len(labels))
	var order []string
	for _, l := range labels {
		if counts[l] == 0 {
			order = append(order, l)
		}
		counts[l]++
	}

	result := make([]string, 0, n)
	used := make(map[string]bool, n)
	for len(result) < n && len(result) < len(order) {
		best := ""
		for _, l := range order {
			if used[l] {
				continue
			}
			if best == "" || counts[l] > counts[best] {
				best = l
			}
		}
		used[best] = true
		result = append(result, best)
	}
	return result
}

var compassPoints = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// CompassLabel returns the 16-point compass label for a bearing in degrees.
func CompassLabel(deg float64) string {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	idx := int(math.Floor(deg/22.5+0.5)) % len(compassPoints)
	return compassPoints[idx]
}
