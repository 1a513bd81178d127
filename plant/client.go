// Package plant classifies leaf images for disease through a remote
// inference service.
package plant

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"krishimitra/config"
)

var (
	// ErrNotConfigured means no inference service URL is set.
	ErrNotConfigured = errors.New("plant disease model not available")
	// ErrInference covers unusable responses from the inference service.
	ErrInference = errors.New("plant inference failed")
)

// InferRequest is sent to the inference service.
type InferRequest struct {
	Image     string `json:"image"`
	Format    string `json:"format"`
	RequestID string `json:"request_id,omitempty"`
}

// InferResponse carries either class probabilities or raw logits, one per
// entry of Classes.
type InferResponse struct {
	Probabilities []float64 `json:"probabilities,omitempty"`
	Logits        []float64 `json:"logits,omitempty"`
}

// Prediction is the most likely disease class.
type Prediction struct {
	PredictedClass string  `json:"predicted_class"`
	Confidence     float64 `json:"confidence"`
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an inference client. An empty cfg.InferenceURL yields a
// client whose calls fail with ErrNotConfigured.
func NewClient(cfg config.PlantConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.InferenceURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("plant"),
	}
}

// Configured reports whether an inference service is set.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// Predict classifies img.
func (c *Client) Predict(ctx context.Context, img *Image, requestID string) (*Prediction, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(InferRequest{
		Image:     base64.StdEncoding.EncodeToString(img.Data),
		Format:    img.Format,
		RequestID: requestID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: inference service returned status %d: %s", ErrInference, resp.StatusCode, respBody)
	}

	var out InferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %w", ErrInference, err)
	}
	return Best(out)
}

// Health checks the inference service.
func (c *Client) Health(ctx context.Context) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInference, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: inference service not ready: status %d", ErrInference, resp.StatusCode)
	}
	return nil
}

// Best picks the most likely class. Logits are softmaxed first.
func Best(r InferResponse) (*Prediction, error) {
	probs := r.Probabilities
	if len(probs) == 0 && len(r.Logits) > 0 {
		probs = softmax(r.Logits)
	}
	if len(probs) != len(Classes) {
		return nil, fmt.Errorf("%w: got %d scores for %d classes", ErrInference, len(probs), len(Classes))
	}

	best := 0
	for i, p := range probs {
		if math.IsNaN(p) {
			return nil, fmt.Errorf("%w: NaN score", ErrInference)
		}
		if p > probs[best] {
			best = i
		}
	}
	return &Prediction{PredictedClass: Classes[best], Confidence: probs[best]}, nil
}

func softmax(logits []float64) []float64 {
	hi := math.Inf(-1)
	for _, v := range logits {
		hi = math.Max(hi, v)
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		out[i] = math.Exp(v - hi)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
