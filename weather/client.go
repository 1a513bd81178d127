// Package weather reads current conditions and air quality from
// OpenWeatherMap, falling back to fixed values whenever the provider cannot
// be used.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"krishimitra/config"
	"krishimitra/monitoring"
)

// ErrNoAPIKey is logged when no provider key is configured.
var ErrNoAPIKey = errors.New("weather api key not configured")

type Weather struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	WindSpeed   float64 `json:"wind_speed"`
	Condition   string  `json:"weather_condition"`
	Description string  `json:"weather_description"`
	RainfallMM  float64 `json:"rainfall_mm"`
	Timestamp   int64   `json:"timestamp"`
}

// Live reports whether w came from the provider rather than the fallback.
func (w Weather) Live() bool {
	return w.Timestamp > 0
}

type AirQuality struct {
	AQI       int     `json:"aqi"`
	CO        float64 `json:"co"`
	NO2       float64 `json:"no2"`
	O3        float64 `json:"o3"`
	PM25      float64 `json:"pm2_5"`
	PM10      float64 `json:"pm10"`
	Timestamp int64   `json:"timestamp"`
}

// Combined merges weather and air quality into one flat record. The
// timestamp is the air quality reading's.
type Combined struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
	WindSpeed   float64 `json:"wind_speed"`
	Condition   string  `json:"weather_condition"`
	Description string  `json:"weather_description"`
	RainfallMM  float64 `json:"rainfall_mm"`
	AQI         int     `json:"aqi"`
	CO          float64 `json:"co"`
	NO2         float64 `json:"no2"`
	O3          float64 `json:"o3"`
	PM25        float64 `json:"pm2_5"`
	PM10        float64 `json:"pm10"`
	Timestamp   int64   `json:"timestamp"`
}

// FallbackWeather is served when the provider is unreachable.
func FallbackWeather() Weather {
	return Weather{
		Temperature: 25.0,
		Humidity:    65,
		Pressure:    1013,
		WindSpeed:   3.5,
		Condition:   "Clear",
		Description: "clear sky",
		RainfallMM:  750,
	}
}

// FallbackAirQuality is served when the provider is unreachable.
func FallbackAirQuality() AirQuality {
	return AirQuality{AQI: 2, CO: 400.5, NO2: 15, O3: 40.5, PM25: 12.5, PM10: 25}
}

// Merge flattens w and a into a Combined record.
func Merge(w Weather, a AirQuality) Combined {
	return Combined{
		Temperature: w.Temperature,
		Humidity:    w.Humidity,
		Pressure:    w.Pressure,
		WindSpeed:   w.WindSpeed,
		Condition:   w.Condition,
		Description: w.Description,
		RainfallMM:  w.RainfallMM,
		AQI:         a.AQI,
		CO:          a.CO,
		NO2:         a.NO2,
		O3:          a.O3,
		PM25:        a.PM25,
		PM10:        a.PM10,
		Timestamp:   a.Timestamp,
	}
}

// Client fetches readings for one fixed location.
type Client struct {
	baseURL string
	apiKey  string
	lat     float64
	lon     float64
	http    *http.Client
	logger  *zap.Logger

	weather *expirable.LRU[string, Weather]
	air     *expirable.LRU[string, AirQuality]
}

// NewClient builds a client from cfg. Live readings are cached for
// cfg.CacheTTL; fallbacks are never cached.
func NewClient(cfg config.WeatherConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 16
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		lat:     cfg.Lat,
		lon:     cfg.Lon,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.Named("weather"),
		weather: expirable.NewLRU[string, Weather](size, nil, cfg.CacheTTL),
		air:     expirable.NewLRU[string, AirQuality](size, nil, cfg.CacheTTL),
	}
}

func (c *Client) key() string {
	return strconv.FormatFloat(c.lat, 'f', 4, 64) + "," + strconv.FormatFloat(c.lon, 'f', 4, 64)
}

// Current returns the current weather, or FallbackWeather on any failure.
func (c *Client) Current(ctx context.Context) Weather {
	w, err := c.currentWeather(ctx)
	if err != nil {
		return c.weatherFallback(err)
	}
	return w
}

// AirQuality returns the current air quality, or FallbackAirQuality on any
// failure.
func (c *Client) AirQuality(ctx context.Context) AirQuality {
	a, err := c.currentAirQuality(ctx)
	if err != nil {
		return c.airFallback(err)
	}
	return a
}

// Both fetches weather and air quality concurrently. Each kind falls back
// on its own; a failed weather fetch does not cancel the air quality one.
func (c *Client) Both(ctx context.Context) (Weather, AirQuality) {
	var (
		g          errgroup.Group
		w          Weather
		a          AirQuality
		werr, aerr error
	)
	g.Go(func() error {
		w, werr = c.currentWeather(ctx)
		return werr
	})
	g.Go(func() error {
		a, aerr = c.currentAirQuality(ctx)
		return aerr
	})
	if err := g.Wait(); err == nil {
		return w, a
	}
	if werr != nil {
		w = c.weatherFallback(werr)
	}
	if aerr != nil {
		a = c.airFallback(aerr)
	}
	return w, a
}

func (c *Client) currentWeather(ctx context.Context) (Weather, error) {
	if w, ok := c.weather.Get(c.key()); ok {
		return w, nil
	}
	w, err := c.fetchWeather(ctx)
	if err != nil {
		return Weather{}, err
	}
	c.weather.Add(c.key(), w)
	return w, nil
}

func (c *Client) currentAirQuality(ctx context.Context) (AirQuality, error) {
	if a, ok := c.air.Get(c.key()); ok {
		return a, nil
	}
	a, err := c.fetchAirQuality(ctx)
	if err != nil {
		return AirQuality{}, err
	}
	c.air.Add(c.key(), a)
	return a, nil
}

func (c *Client) weatherFallback(err error) Weather {
	c.logger.Warn("using fallback weather", zap.Error(err))
	monitoring.WeatherFallbacks.WithLabelValues("weather").Inc()
	return FallbackWeather()
}

func (c *Client) airFallback(err error) AirQuality {
	c.logger.Warn("using fallback air quality", zap.Error(err))
	monitoring.WeatherFallbacks.WithLabelValues("air_quality").Inc()
	return FallbackAirQuality()
}

// Combined returns weather and air quality merged into one record.
func (c *Client) Combined(ctx context.Context) Combined {
	return Merge(c.Both(ctx))
}

type owmWeather struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Rain map[string]float64 `json:"rain"`
	Dt   int64              `json:"dt"`
}

type owmAirPollution struct {
	List []struct {
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
		Components struct {
			CO   float64 `json:"co"`
			NO2  float64 `json:"no2"`
			O3   float64 `json:"o3"`
			PM25 float64 `json:"pm2_5"`
			PM10 float64 `json:"pm10"`
		} `json:"components"`
		Dt int64 `json:"dt"`
	} `json:"list"`
}

// RainfallEstimate scales the last hour of rain up to the rough annual
// figure the soil model was trained on.
func RainfallEstimate(rain1h float64) float64 {
	return rain1h * 24 * 365 / 12
}

func (c *Client) fetchWeather(ctx context.Context) (Weather, error) {
	var raw owmWeather
	if err := c.get(ctx, "/weather", url.Values{"units": {"metric"}}, &raw); err != nil {
		return Weather{}, err
	}
	if len(raw.Weather) == 0 {
		return Weather{}, errors.New("weather response has no conditions")
	}
	return Weather{
		Temperature: raw.Main.Temp,
		Humidity:    raw.Main.Humidity,
		Pressure:    raw.Main.Pressure,
		WindSpeed:   raw.Wind.Speed,
		Condition:   raw.Weather[0].Main,
		Description: raw.Weather[0].Description,
		RainfallMM:  RainfallEstimate(raw.Rain["1h"]),
		Timestamp:   raw.Dt,
	}, nil
}

func (c *Client) fetchAirQuality(ctx context.Context) (AirQuality, error) {
	var raw owmAirPollution
	if err := c.get(ctx, "/air_pollution", nil, &raw); err != nil {
		return AirQuality{}, err
	}
	if len(raw.List) == 0 {
		return AirQuality{}, errors.New("air pollution response is empty")
	}
	item := raw.List[0]
	return AirQuality{
		AQI:       item.Main.AQI,
		CO:        item.Components.CO,
		NO2:       item.Components.NO2,
		O3:        item.Components.O3,
		PM25:      item.Components.PM25,
		PM10:      item.Components.PM10,
		Timestamp: item.Dt,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, extra url.Values, out any) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(c.lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(c.lon, 'f', -1, 64))
	q.Set("appid", c.apiKey)
	for k, v := range extra {
		q[k] = v
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
