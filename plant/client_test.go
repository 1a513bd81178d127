package plant

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krishimitra/config"
)

func leafPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{G: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func scores(hot int, v float64) []float64 {
	out := make([]float64, len(Classes))
	for i := range out {
		out[i] = (1 - v) / float64(len(Classes)-1)
	}
	out[hot] = v
	return out
}

func TestValidate(t *testing.T) {
	data := leafPNG(t)

	img, err := Validate(data, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, 4, img.Width)
	assert.Equal(t, 3, img.Height)

	_, err = Validate(data, "text/plain")
	assert.ErrorIs(t, err, ErrInvalidImage)
	assert.Contains(t, err.Error(), "file must be an image")

	_, err = Validate(nil, "image/png")
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = Validate([]byte("definitely not pixels"), "image/jpeg")
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestDecodeBase64(t *testing.T) {
	data := leafPNG(t)
	enc := base64.StdEncoding.EncodeToString(data)

	img, err := DecodeBase64(enc)
	require.NoError(t, err)
	assert.Equal(t, data, img.Data)

	img, err = DecodeBase64("data:image/png;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)

	_, err = DecodeBase64("%%%")
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestBest(t *testing.T) {
	p, err := Best(InferResponse{Probabilities: scores(3, 0.9)})
	require.NoError(t, err)
	assert.Equal(t, "Apple___healthy", p.PredictedClass)
	assert.Equal(t, 0.9, p.Confidence)

	logits := make([]float64, len(Classes))
	logits[len(Classes)-1] = 10
	p, err = Best(InferResponse{Logits: logits})
	require.NoError(t, err)
	assert.Equal(t, "Tomato___healthy", p.PredictedClass)
	assert.Greater(t, p.Confidence, 0.99)

	_, err = Best(InferResponse{Probabilities: []float64{1}})
	assert.ErrorIs(t, err, ErrInference)
}

func TestClientPredict(t *testing.T) {
	data := leafPNG(t)

	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/predict", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var req InferRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "png", req.Format)
			assert.Equal(t, "req-1", req.RequestID)
			assert.Equal(t, base64.StdEncoding.EncodeToString(data), req.Image)

			w.Header().Set("Content-Type", "application/json")
			require.NoError(t, json.NewEncoder(w).Encode(InferResponse{Probabilities: scores(21, 0.8)}))
		}))
		defer server.Close()

		client := NewClient(config.PlantConfig{InferenceURL: server.URL + "/", Timeout: 5 * time.Second}, nil)
		img, err := Validate(data, "image/png")
		require.NoError(t, err)

		pred, err := client.Predict(context.Background(), img, "req-1")
		require.NoError(t, err)
		assert.Equal(t, "Potato___Late_blight", pred.PredictedClass)
		assert.Equal(t, 0.8, pred.Confidence)
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("cuda out of memory"))
		}))
		defer server.Close()

		client := NewClient(config.PlantConfig{InferenceURL: server.URL}, nil)
		_, err := client.Predict(context.Background(), &Image{Data: data, Format: "png"}, "")
		assert.ErrorIs(t, err, ErrInference)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("not configured", func(t *testing.T) {
		client := NewClient(config.PlantConfig{}, nil)
		assert.False(t, client.Configured())
		_, err := client.Predict(context.Background(), &Image{Data: data}, "")
		assert.ErrorIs(t, err, ErrNotConfigured)
		assert.ErrorIs(t, client.Health(context.Background()), ErrNotConfigured)
	})
}

func TestClientHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(config.PlantConfig{InferenceURL: server.URL}, nil)
	assert.NoError(t, client.Health(context.Background()))
}
