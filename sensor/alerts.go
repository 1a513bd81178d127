package sensor

import (
	"fmt"
	"strconv"

	"krishimitra/weather"
)

// Alert is a farmer-facing notice derived from current conditions.
type Alert struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// HighTemperature is the reading above which a heat alert is raised.
const HighTemperature = 35.0

// PoorAQI is the OpenWeatherMap index (1-5) at which air is considered poor.
const PoorAQI = 4

// Alerts derives weather and air quality alerts. At most one weather alert
// is raised; with nothing to report a single all-clear alert is returned.
func Alerts(w weather.Weather, a weather.AirQuality) []Alert {
	var alerts []Alert

	switch w.Condition {
	case "Rain", "Drizzle", "Thunderstorm":
		alerts = append(alerts, Alert{
			ID:      "w1",
			Title:   w.Condition + " Expected",
			Message: fmt.Sprintf("Prepare for %s. Consider postponing outdoor activities.", orDefault(w.Description, "wet conditions")),
		})
	case "Snow", "Mist", "Fog":
		alerts = append(alerts, Alert{
			ID:      "w2",
			Title:   w.Condition + " Alert",
			Message: fmt.Sprintf("Reduced visibility due to %s. Take precautions.", orDefault(w.Description, "conditions")),
		})
	default:
		if w.Temperature > HighTemperature {
			alerts = append(alerts, Alert{
				ID:      "w3",
				Title:   "High Temperature Alert",
				Message: "Temperature is " + strconv.FormatFloat(w.Temperature, 'f', -1, 64) + "°C. Ensure plants have adequate water.",
			})
		}
	}

	if a.AQI >= PoorAQI {
		alerts = append(alerts, Alert{
			ID:      "a1",
			Title:   "Poor Air Quality",
			Message: "Air quality is poor. This may affect sensitive crops.",
		})
	}

	if len(alerts) == 0 {
		return []Alert{{
			ID:      "w0",
			Title:   "No Weather Alerts",
			Message: "Weather conditions are favorable for farming activities.",
		}}
	}
	return alerts
}

// Point is one sample of the daily air quality chart.
type Point struct {
	Time  string `json:"time"`
	Value int    `json:"value"`
}

// AirQualityScore maps the 1-5 index onto 0-100.
func AirQualityScore(aqi int) int {
	return aqi * 20
}

var seriesOffsets = []struct {
	label  string
	offset int
}{
	{"6AM", -5},
	{"9AM", -10},
	{"12PM", -2},
	{"3PM", 0},
	{"6PM", -3},
	{"9PM", 2},
}

// AirQualitySeries spreads the current score over a six-point day so the
// dashboard chart has a shape.
func AirQualitySeries(aqi int) []Point {
	base := AirQualityScore(aqi)
	out := make([]Point, len(seriesOffsets))
	for i, s := range seriesOffsets {
		out[i] = Point{Time: s.label, Value: max(0, base+s.offset)}
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
