// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"krishimitra/config"
	"krishimitra/db"
	"krishimitra/market"
	"krishimitra/ml"
	"krishimitra/monitoring"
	"krishimitra/plant"
	"krishimitra/predict"
	"krishimitra/sensor"
)

// CropPredictor 作物推荐
type CropPredictor interface {
	Predict(ctx context.Context, raw map[string]float64) (*predict.CropResult, error)
	Health(ctx context.Context) ml.Health
}

// SoilPredictor 土壤健康评分
type SoilPredictor interface {
	Predict(ctx context.Context, raw map[string]float64, detailed bool) (*predict.SoilHealth, error)
	Health(ctx context.Context) ml.Health
}

// PlantClassifier 植物病害识别
type PlantClassifier interface {
	Predict(ctx context.Context, img *plant.Image, requestID string) (*plant.Prediction, error)
}

// MarketSource 市场行情
type MarketSource interface {
	Insights(ctx context.Context, q market.Query) (json.RawMessage, error)
}

// PredictionLog 预测审计记录
type PredictionLog interface {
	RecentPredictions(ctx context.Context, model string, limit int) ([]db.PredictionRow, error)
}

// Deps 处理器依赖，为 nil 的依赖不注册对应路由
type Deps struct {
	Crop        CropPredictor
	Soil        SoilPredictor
	Guard       *ml.Guard
	Sensor      *sensor.Service
	Hub         *monitoring.WebSocketHub
	Plant       PlantClassifier
	Market      MarketSource
	Predictions PredictionLog
}

// Server HTTP服务器
type Server struct {
	server  *http.Server
	handler http.Handler
	logger  *zap.Logger
}

// NewServer 创建HTTP服务器
func NewServer(cfg config.HTTPConfig, deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	mux := http.NewServeMux()
	h := &handlers{deps: deps, logger: logger}

	// 注册所有处理器
	h.register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(logger),                        // 1. 恢复中间件（最先执行，捕获panic）
		RequestIDMiddleware,                               // 2. 请求ID
		LoggerMiddleware(logger),                          // 3. 日志中间件
		MetricsMiddleware(mux),                            // 4. 指标
		SecurityHeadersMiddleware,                         // 5. 安全头中间件
		CORSMiddleware(cfg.AllowedOrigins),                // 6. CORS中间件
		RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst), // 7. 限流
		TimeoutMiddleware(cfg.Timeout),                    // 8. 超时中间件
		RequestSizeMiddleware(cfg.MaxBodyBytes),           // 9. 请求体大小限制
	)

	// 包装处理器
	handler := chain(mux)

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Timeout,
			WriteTimeout:      cfg.Timeout + 5*time.Second,
			IdleTimeout:       120 * time.Second,
		},
		handler: handler,
		logger:  logger,
	}
}

// Handler 返回带中间件的处理器
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start 启动服务器，阻塞直到服务器关闭
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
