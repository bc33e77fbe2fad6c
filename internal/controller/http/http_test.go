package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mpu_telemetry/internal/telemetry"
)

type fakeTelemetry struct {
	interval *telemetry.Interval
	sets     []uint32
}

func (f *fakeTelemetry) Status() telemetry.Status {
	return telemetry.Status{Connection: "connected", IntervalMs: f.interval.Get(), Published: 3}
}

func (f *fakeTelemetry) Interval() *telemetry.Interval { return f.interval }

func (f *fakeTelemetry) SetInterval(ms uint32) uint32 {
	f.sets = append(f.sets, ms)
	return f.interval.Set(ms)
}

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]interface{}) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func TestStatus(t *testing.T) {
	f := &fakeTelemetry{interval: telemetry.NewInterval(5000)}
	code, out := do(t, NewRouter(f, nil), http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "connected", out["connection"])
	assert.Equal(t, float64(5000), out["interval"])
	assert.Equal(t, float64(3), out["published"])
}

func TestInterval_GetPut(t *testing.T) {
	f := &fakeTelemetry{interval: telemetry.NewInterval(5000)}
	r := NewRouter(f, nil)

	code, out := do(t, r, http.MethodGet, "/interval", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(5000), out["interval"])

	code, out = do(t, r, http.MethodPut, "/interval", `{"interval":50}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(100), out["interval"])

	code, out = do(t, r, http.MethodPut, "/interval", `{"interval":250}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(250), out["interval"])
	assert.Equal(t, []uint32{50, 250}, f.sets)
}

func TestInterval_PutRejectsBadBody(t *testing.T) {
	f := &fakeTelemetry{interval: telemetry.NewInterval(5000)}
	r := NewRouter(f, nil)

	for _, body := range []string{`{}`, `{"interval":-1}`, `{"interval":"fast"}`, `not json`} {
		code, out := do(t, r, http.MethodPut, "/interval", body)
		assert.Equal(t, http.StatusBadRequest, code, body)
		assert.NotEmpty(t, out["err"], body)
	}
	assert.Empty(t, f.sets)
	assert.Equal(t, uint32(5000), f.interval.Get())
}

func TestRoom_Broadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	room := NewRoom()
	go room.Run(ctx)

	f := &fakeTelemetry{interval: telemetry.NewInterval(5000)}
	srv := httptest.NewServer(NewRouter(f, room))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return room.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	room.Forward([]byte(`{"sensor":"MPU6050"}`))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Equal(t, `{"sensor":"MPU6050"}`, string(msg))

	_ = conn.Close()
	require.Eventually(t, func() bool { return room.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}
