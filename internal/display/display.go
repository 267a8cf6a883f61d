// Package display renders the cached forecast for terminals and small
// displays.
package display

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/toomja/ilm/internal/weather"
)

// Output formats.
const (
	FormatSimple   = "simple"
	FormatMinimal  = "minimal"
	FormatDetailed = "detailed"
	FormatJSON     = "json"
	FormatTable    = "table"
)

// Formats lists the supported formats.
var Formats = []string{FormatSimple, FormatMinimal, FormatDetailed, FormatJSON, FormatTable}

// ErrUnknownFormat is returned for a format not in Formats.
var ErrUnknownFormat = errors.New("unknown output format")

const (
	unavailable = "Weather data unavailable"
	tableHours  = 12
)

// Write renders entry in format. A nil entry renders the unavailable
// placeholder of the format.
func Write(w io.Writer, format string, entry *weather.CacheEntry) error {
	switch format {
	case FormatSimple:
		return line(w, Simple(entry))
	case FormatMinimal:
		return line(w, Minimal(entry))
	case FormatDetailed:
		return line(w, Detailed(entry))
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	case FormatTable:
		return Table(w, entry)
	default:
		return fmt.Errorf("%w: %q (want one of %s)", ErrUnknownFormat, format, strings.Join(Formats, ", "))
	}
}

// Simple renders "2.4°C • Vahelduv pilvisus • Tuul 4.6 m/s".
func Simple(entry *weather.CacheEntry) string {
	if entry == nil {
		return unavailable
	}
	c := entry.Payload.Current
	return fmt.Sprintf("%s°C • %s • Tuul %s m/s", num(c.Temperature, 1), label(c.Conditions), num(c.WindSpeed, 1))
}

var shortTerms = strings.NewReplacer("pilvisus", "pilv", "Vahelduv", "Vahel.")

// Minimal renders "2° Vahel. pilv" for small e-ink displays.
func Minimal(entry *weather.CacheEntry) string {
	if entry == nil {
		return "N/A"
	}
	c := entry.Payload.Current
	return fmt.Sprintf("%s° %s", num(c.Temperature, 0), shortTerms.Replace(label(c.Conditions)))
}

// Detailed renders a multi-line block.
func Detailed(entry *weather.CacheEntry) string {
	if entry == nil {
		return unavailable
	}
	f := entry.Payload
	c := f.Current

	var b strings.Builder
	fmt.Fprintf(&b, "Location: %s\n", f.Location)
	fmt.Fprintf(&b, "Temperature: %s°C", num(c.Temperature, 1))
	if c.ApparentTemperature != nil {
		fmt.Fprintf(&b, " (feels like %s°C)", num(c.ApparentTemperature, 1))
	}
	fmt.Fprintf(&b, "\nConditions: %s\n", label(c.Conditions))
	fmt.Fprintf(&b, "Wind: %s\n", strings.TrimSpace(num(c.WindSpeed, 1)+" m/s "+c.WindDirection))
	fmt.Fprintf(&b, "Precipitation: %s mm\n", num(c.Precipitation, 1))
	if s := f.Summary; s.MinTemperature != nil && s.MaxTemperature != nil {
		fmt.Fprintf(&b, "Next 24h: %s…%s°C, %s mm\n", num(s.MinTemperature, 1), num(s.MaxTemperature, 1), num(s.TotalPrecipitation, 1))
	}
	fmt.Fprintf(&b, "Source: %s\n", f.Source)
	fmt.Fprintf(&b, "Forecast time: %s", c.ObservedAt.In(weather.LocalZone).Format("2006-01-02 15:04"))
	for _, a := range entry.Alerts {
		fmt.Fprintf(&b, "\n! %s", a.Message)
	}
	return b.String()
}

// Table renders the next hours as aligned, borderless columns.
func Table(w io.Writer, entry *weather.CacheEntry) error {
	if entry == nil {
		return line(w, unavailable)
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Time", "Temp", "Wind", "Precip", "Cloud", "Conditions"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for i, h := range entry.Payload.Hourly {
		if i == tableHours {
			break
		}
		table.Append([]string{
			h.Time.In(weather.LocalZone).Format("15:04"),
			num(h.Temperature, 1) + "°C",
			num(h.WindSpeed, 1) + " m/s",
			num(h.Precipitation, 1) + " mm",
			num(h.CloudCover, 0) + "%",
			label(h.Conditions),
		})
	}
	table.Render()

	_, err := w.Write(buf.Bytes())
	return err
}

// label falls back to the sky icon name when the source has no phenomenon.
func label(c weather.Conditions) string {
	if c.Phenomenon != "" {
		return c.Phenomenon
	}
	return strings.ReplaceAll(weather.IconFor(c, true), "-day", "")
}

func num(v *float64, decimals int) string {
	if v == nil {
		return "–"
	}
	return fmt.Sprintf("%.*f", decimals, *v)
}

func line(w io.Writer, s string) error {
	_, err := fmt.Fprintln(w, s)
	return err
}
