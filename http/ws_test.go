package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"krishimitra/config"
	"krishimitra/db"
	"krishimitra/ml"
	"krishimitra/monitoring"
	"krishimitra/predict"
	"krishimitra/sensor"
	"krishimitra/weather"
)

func TestSensorUpdatesReachWebSocket(t *testing.T) {
	dir := t.TempDir()
	writeModels(t, dir)
	store, err := db.OpenSQLite(filepath.Join(dir, "ws.db"))
	require.NoError(t, err)
	defer store.Close()

	hub := monitoring.NewWebSocketHub([]string{"*"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-hub.Done()
	}()
	go hub.Run(ctx)

	guard := ml.NewGuard(ml.NewStore(dir, []ml.Spec{predict.SoilSpec("health.json", "issues.json", "scaler.json")}, nil), nil)
	soil := predict.NewSoilService(guard, nil, nil)
	svc := sensor.NewService(store, weather.NewClient(config.WeatherConfig{}, nil), soil, hub, "device1", nil)

	srv := httptest.NewServer(NewServer(config.Default().HTTP, Deps{Sensor: svc, Hub: hub}, zap.NewNop()).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sensor/ws?device=device1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/sensor/update", strings.NewReader(`{"threshold":42}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg monitoring.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, monitoring.SensorUpdate, msg.Type)
	assert.Equal(t, "device1", msg.Device)

	var data map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, 42.0, data["threshold"])
}
