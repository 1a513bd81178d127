package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"krishimitra/weather"
)

func TestAlerts(t *testing.T) {
	tests := []struct {
		name string
		w    weather.Weather
		aqi  int
		ids  []string
		msg  string
	}{
		{"clear", weather.Weather{Condition: "Clear", Temperature: 28}, 2, []string{"w0"}, "Weather conditions are favorable for farming activities."},
		{"rain", weather.Weather{Condition: "Rain", Description: "light rain"}, 1, []string{"w1"}, "Prepare for light rain. Consider postponing outdoor activities."},
		{"fog no description", weather.Weather{Condition: "Fog"}, 1, []string{"w2"}, "Reduced visibility due to conditions. Take precautions."},
		{"heat", weather.Weather{Condition: "Clear", Temperature: 36.5}, 1, []string{"w3"}, "Temperature is 36.5°C. Ensure plants have adequate water."},
		{"rain beats heat", weather.Weather{Condition: "Thunderstorm", Temperature: 40}, 1, []string{"w1"}, ""},
		{"at threshold", weather.Weather{Condition: "Clear", Temperature: 35}, 3, []string{"w0"}, ""},
		{"heat and smog", weather.Weather{Condition: "Haze", Temperature: 38}, 4, []string{"w3", "a1"}, ""},
		{"smog only", weather.Weather{Condition: "Clear"}, 5, []string{"a1"}, "Air quality is poor. This may affect sensitive crops."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerts := Alerts(tt.w, weather.AirQuality{AQI: tt.aqi})
			ids := make([]string, len(alerts))
			for i, a := range alerts {
				ids[i] = a.ID
			}
			assert.Equal(t, tt.ids, ids)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, alerts[0].Message)
			}
		})
	}
}

func TestAirQualitySeriesFloorsAtZero(t *testing.T) {
	series := AirQualitySeries(0)
	for _, p := range series {
		assert.GreaterOrEqual(t, p.Value, 0)
	}
	assert.Equal(t, []string{"6AM", "9AM", "12PM", "3PM", "6PM", "9PM"}, func() []string {
		out := make([]string, len(series))
		for i, p := range series {
			out[i] = p.Time
		}
		return out
	}())
	assert.Equal(t, 2, AirQualitySeries(1)[5].Value-AirQualitySeries(1)[3].Value)
}
