// Package sensor serves field device telemetry enriched with weather data
// and soil health predictions.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"krishimitra/db"
	"krishimitra/predict"
	"krishimitra/weather"
)

// ErrInvalidValue is returned for updates carrying unusable values.
var ErrInvalidValue = errors.New("invalid sensor value")

// Store persists the latest snapshot of each device.
type Store interface {
	Get(ctx context.Context, device string) (db.Snapshot, error)
	Put(ctx context.Context, device string, snap db.Snapshot) error
	Update(ctx context.Context, device string, fields map[string]any) (db.Snapshot, error)
	Ping(ctx context.Context) error
}

// Weather provides current conditions; it never fails.
type Weather interface {
	Current(ctx context.Context) weather.Weather
	Both(ctx context.Context) (weather.Weather, weather.AirQuality)
	Combined(ctx context.Context) weather.Combined
}

// SoilPredictor scores soil readings.
type SoilPredictor interface {
	Predict(ctx context.Context, raw map[string]float64, detailed bool) (*predict.SoilHealth, error)
}

// Publisher pushes snapshot changes to live subscribers.
type Publisher interface {
	Publish(device string, data any) error
}

// Readings the devices do not measure.
var soilDefaults = map[string]float64{
	"Nitrogen_ppm":           1500,
	"Phosphorus_ppm":         15,
	"Potassium_ppm":          200,
	"Organic_Carbon_percent": 1.5,
	"Clay_Content_percent":   25,
}

type Service struct {
	store         Store
	weather       Weather
	soil          SoilPredictor
	publisher     Publisher
	defaultDevice string
	cleaner       *Cleaner
	logger        *zap.Logger
	now           func() time.Time
}

// NewService wires the sensor service. publisher may be nil.
func NewService(store Store, w Weather, soil SoilPredictor, publisher Publisher, defaultDevice string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:         store,
		weather:       w,
		soil:          soil,
		publisher:     publisher,
		defaultDevice: defaultDevice,
		cleaner:       NewCleaner(),
		logger:        logger.Named("sensor"),
		now:           time.Now,
	}
}

// Device resolves an empty device id to the configured default.
func (s *Service) Device(id string) string {
	if id == "" {
		return s.defaultDevice
	}
	return id
}

// SoilInputs builds the soil model input from a snapshot. Fields the device
// does not report come from weather or fixed defaults.
func SoilInputs(snap db.Snapshot, w weather.Weather) map[string]float64 {
	raw := make(map[string]float64, len(predict.SoilFeatureNames))
	for k, v := range soilDefaults {
		raw[k] = v
	}
	raw["pH"] = number(snap, "ph", 6.5)
	raw["Salinity_dS_m"] = number(snap, "salinity", 0.8)
	raw["Soil_Moisture_percent"] = number(snap, "moisture", 50)
	raw["Temperature_C"] = w.Temperature
	raw["Rainfall_mm"] = w.RainfallMM
	return raw
}

func number(snap db.Snapshot, key string, def float64) float64 {
	if v, ok := toFloat(snap[key]); ok {
		return v
	}
	return def
}

// SoilHealth scores the device's latest snapshot.
func (s *Service) SoilHealth(ctx context.Context, device string) (*predict.SoilHealth, error) {
	snap, err := s.store.Get(ctx, s.Device(device))
	if err != nil {
		return nil, err
	}
	return s.soil.Predict(ctx, SoilInputs(snap, s.weather.Current(ctx)), false)
}

// Overview returns the snapshot enriched with soil health, air quality and
// weather alerts. Fields already present in the snapshot are kept.
func (s *Service) Overview(ctx context.Context, device string) (db.Snapshot, error) {
	snap, err := s.store.Get(ctx, s.Device(device))
	if err != nil {
		return nil, err
	}
	w, a := s.weather.Both(ctx)

	health, err := s.soil.Predict(ctx, SoilInputs(snap, w), false)
	if err != nil {
		return nil, fmt.Errorf("soil health: %w", err)
	}
	snap["soilHealth"] = health
	snap["lastUpdated"] = s.now().UTC().Format(time.RFC3339)

	if _, ok := snap["airQuality"]; !ok {
		snap["airQuality"] = AirQualityScore(a.AQI)
	}
	if _, ok := snap["airQualityData"]; !ok {
		snap["airQualityData"] = AirQualitySeries(a.AQI)
	}
	if _, ok := snap["weatherAlerts"]; !ok {
		snap["weatherAlerts"] = Alerts(w, a)
	}
	return snap, nil
}

// Weather returns combined weather and air quality.
func (s *Service) Weather(ctx context.Context) weather.Combined {
	return s.weather.Combined(ctx)
}

// SetThreshold stores the irrigation moisture threshold for device.
func (s *Service) SetThreshold(ctx context.Context, device string, threshold float64) error {
	return s.update(ctx, device, map[string]any{"threshold": threshold})
}

// SetIrrigation switches irrigation on or off for device.
func (s *Service) SetIrrigation(ctx context.Context, device string, on bool) error {
	return s.update(ctx, device, map[string]any{"irrigation": on})
}

// Ingest replaces the snapshot reported by a device.
func (s *Service) Ingest(ctx context.Context, device string, snap db.Snapshot) error {
	if len(snap) == 0 {
		return fmt.Errorf("%w: empty snapshot", ErrInvalidValue)
	}
	if err := s.cleaner.Validate(snap); err != nil {
		return err
	}
	device = s.Device(device)
	if err := s.store.Put(ctx, device, snap); err != nil {
		return err
	}
	s.publish(device, snap)
	return nil
}

func (s *Service) update(ctx context.Context, device string, fields map[string]any) error {
	if err := s.cleaner.Validate(fields); err != nil {
		return err
	}
	device = s.Device(device)
	merged, err := s.store.Update(ctx, device, fields)
	if err != nil {
		return err
	}
	s.publish(device, merged)
	return nil
}

func (s *Service) publish(device string, snap db.Snapshot) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(device, snap); err != nil {
		s.logger.Warn("publish sensor update", zap.String("device", device), zap.Error(err))
	}
}

// HealthReport summarises the sensor backend dependencies.
type HealthReport struct {
	Status     string        `json:"status"`
	Store      string        `json:"store"`
	WeatherAPI string        `json:"weather_api"`
	Error      string        `json:"error,omitempty"`
	Validation CleaningStats `json:"validation"`
	Timestamp  string        `json:"timestamp"`
}

// Health checks the snapshot store and whether weather is live.
func (s *Service) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:     "healthy",
		Store:      "connected",
		WeatherAPI: "connected",
		Validation: s.cleaner.Stats(),
		Timestamp:  s.now().UTC().Format(time.RFC3339),
	}
	if err := s.store.Ping(ctx); err != nil {
		report.Status = "unhealthy"
		report.Store = "error"
		report.Error = err.Error()
	}
	if !s.weather.Current(ctx).Live() {
		report.WeatherAPI = "using fallback data"
	}
	return report
}
