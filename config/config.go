// Package config loads the service configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Log     LogConfig     `yaml:"log"`
	Models  ModelsConfig  `yaml:"models"`
	Weather WeatherConfig `yaml:"weather"`
	Market  MarketConfig  `yaml:"market"`
	Plant   PlantConfig   `yaml:"plant"`
	Store   StoreConfig   `yaml:"store"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RateLimit      float64       `yaml:"rate_limit"`
	RateBurst      int           `yaml:"rate_burst"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type ModelsConfig struct {
	Dir           string        `yaml:"dir"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
	Crop          CropModel     `yaml:"crop"`
	Soil          SoilModel     `yaml:"soil"`
}

type CropModel struct {
	Classifier string `yaml:"classifier"`
}

type SoilModel struct {
	Health string `yaml:"health"`
	Issues string `yaml:"issues"`
	Scaler string `yaml:"scaler"`
}

type WeatherConfig struct {
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Lat       float64       `yaml:"lat"`
	Lon       float64       `yaml:"lon"`
	Timeout   time.Duration `yaml:"timeout"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	CacheSize int           `yaml:"cache_size"`
}

type MarketConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type PlantConfig struct {
	InferenceURL string        `yaml:"inference_url"`
	Timeout      time.Duration `yaml:"timeout"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	DefaultDevice string `yaml:"default_device"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:           8000,
			Timeout:        30 * time.Second,
			AllowedOrigins: []string{"*"},
			RateLimit:      50,
			RateBurst:      100,
			MaxBodyBytes:   10 << 20,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Models: ModelsConfig{
			Dir:           "models",
			WatchDebounce: 500 * time.Millisecond,
			Crop:          CropModel{Classifier: "crop_recommendation/crop_model.json"},
			Soil: SoilModel{
				Health: "soil_health/soil_health_index_model.json",
				Issues: "soil_health/soil_issues_model.json",
				Scaler: "soil_health/feature_scaler.json",
			},
		},
		Weather: WeatherConfig{
			BaseURL:   "https://api.openweathermap.org/data/2.5",
			Lat:       18.5204,
			Lon:       73.8567,
			Timeout:   5 * time.Second,
			CacheTTL:  10 * time.Minute,
			CacheSize: 128,
		},
		Market: MarketConfig{
			BaseURL: "https://agmarket-api.onrender.com/request",
			Timeout: 10 * time.Second,
		},
		Plant: PlantConfig{Timeout: 15 * time.Second},
		Store: StoreConfig{
			Driver:        "sqlite",
			Path:          "data/krishimitra.db",
			RedisAddr:     "localhost:6379",
			DefaultDevice: "device1",
		},
	}
}

// Load reads path over the defaults and then applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		c.HTTP.Port = port
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := lookup("OPENWEATHER_API_KEY"); ok {
		c.Weather.APIKey = v
	}
	if v, ok := lookup("DEFAULT_LAT"); ok {
		lat, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DEFAULT_LAT: %w", err)
		}
		c.Weather.Lat = lat
	}
	if v, ok := lookup("DEFAULT_LON"); ok {
		lon, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DEFAULT_LON: %w", err)
		}
		c.Weather.Lon = lon
	}
	if v, ok := lookup("MODEL_DIR"); ok {
		c.Models.Dir = v
	}
	if v, ok := lookup("PLANT_INFERENCE_URL"); ok {
		c.Plant.InferenceURL = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		c.Store.RedisAddr = v
	}
	return nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	switch c.Store.Driver {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("store.driver %q: want sqlite or redis", c.Store.Driver)
	}
	if c.Models.Dir == "" {
		return errors.New("models.dir is required")
	}
	return nil
}
