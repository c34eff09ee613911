package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tw-tick-api/src/format"
	"tw-tick-api/src/governor"
	"tw-tick-api/src/logger"
	"tw-tick-api/src/models"
	"tw-tick-api/src/service"
	"tw-tick-api/src/utils"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dayRows = `[
	{"code":"2330","display_date":20230426,"display_time":90000123000,"trade_price":515.5,"trade_volume":3,"match_flag":"Y","acc_transaction_volume":3},
	{"code":"2330","display_date":20230426,"display_time":90001000000,"trade_price":516,"trade_volume":2,"match_flag":"Y","acc_transaction_volume":5},
	{"code":"2330","display_date":20230426,"display_time":90002000000,"trade_price":516.4,"trade_volume":1,"match_flag":"Y","acc_transaction_volume":6}
]`

type memorySource struct{}

func (memorySource) Name() string { return "memory" }

func (memorySource) FetchTicks(ctx context.Context, stockID string, date time.Time) ([]*models.MTickRecord, error) {
	if stockID != "2330" || format.DateKey(date) != 20230426 {
		return nil, nil
	}
	var recs []*models.MTickRecord
	err := json.Unmarshal([]byte(dayRows), &recs)
	return recs, err
}

func testConfig() *models.MConfig {
	return &models.MConfig{
		Name:                  "tw-tick-api",
		CorsOrigins:           []string{"*"},
		DefaultConvertFormats: true,
		WebSocket: models.MWebSocketConfig{
			HeartbeatInterval:   1,
			StreamIntervalMs:    1,
			FetchTimeoutSeconds: 5,
			WriteWaitSeconds:    5,
			PongWaitSeconds:     60,
			TimePrecision:       format.PrecisionMicrosecond,
		},
		Limits: models.MLimitsConfig{
			MinDate:               "2020-03-02",
			RestRequestsPerWindow: 100,
			RestWindowSeconds:     60,
			MaxWSConnectionsPerIP: 10,
		},
	}
}

func newTestServer(t *testing.T, cfg *models.MConfig) (*FastAPIServer, *httptest.Server) {
	t.Helper()
	log := logger.NewNopLogger("server")
	cal := &utils.TradingCalendar{Fallback: true, Timezone: utils.TaipeiLocation}
	query, err := service.NewQueryService(cfg, memorySource{}, cal, log)
	require.NoError(t, err)

	s := NewFastAPIServer(cfg, query, governor.NewConnectionGovernor(&cfg.Limits, log), []string{"memory"}, log)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Stop(context.Background())
	})
	return s, ts
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func dialWS(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestTickDataByDate(t *testing.T) {
	_, ts := newTestServer(t, testConfig())

	var body map[string]interface{}
	status := getJSON(t, ts.URL+"/api/v1/tick-data/2330/date/20230426", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, float64(3), body["count"])
	assert.Equal(t, "2023-04-26", body["date"])
	assert.Equal(t, true, body["convert_formats"])

	rows := body["data"].([]interface{})
	first := rows[0].(map[string]interface{})
	assert.Equal(t, "09:00:00.123000", first["display_time"])
	assert.Equal(t, float64(516), first["trade_price"])
	second := rows[1].(map[string]interface{})
	assert.Equal(t, float64(2), second["trade_volume"])

	status = getJSON(t, ts.URL+"/api/v1/tick-data/2330/date/20230426?convert_formats=false", &body)
	require.Equal(t, http.StatusOK, status)
	first = body["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(20230426), first["display_date"])
}

func TestTickDataEmptyDay(t *testing.T) {
	_, ts := newTestServer(t, testConfig())

	var body models.MTickDataResponse
	status := getJSON(t, ts.URL+"/api/v1/tick-data/2330/date/2023-04-27", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0, body.Count)
}

func TestClientErrorsUseDetailBody(t *testing.T) {
	_, ts := newTestServer(t, testConfig())

	for _, path := range []string{
		"/api/v1/tick-data/2330/date/2023-02-30",
		"/api/v1/tick-data/2330/date/2019-01-02",
		"/api/v1/tick-data/2330/range/2023-04-27/2023-04-26",
		"/api/v1/tick-data/2330/date/20230426?convert_formats=maybe",
		"/api/v1/tick-data/2330/date/20230426?start_time=25",
		"/api/v1/tick-data/price/round/-3",
		"/api/v1/tick-data/price/round/abc",
		"/api/v1/tick-data/price/round/1e2000000",
	} {
		var body models.MErrorResponse
		status := getJSON(t, ts.URL+path, &body)
		assert.Equal(t, http.StatusBadRequest, status, path)
		assert.NotEmpty(t, body.Detail.Message, path)
	}
}

func TestLatestTickNotFound(t *testing.T) {
	_, ts := newTestServer(t, testConfig())

	var latest models.MLatestTickResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/tick-data/2330/latest?date=2023-04-26", &latest))
	raw, ok := latest.Data.Get(models.FieldDisplayTime)
	require.True(t, ok)
	assert.Equal(t, `"09:00:02.000000"`, string(raw))

	var body models.MErrorResponse
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/api/v1/tick-data/2330/latest?date=2023-04-27", &body))
}

func TestRoundPriceEndpoint(t *testing.T) {
	_, ts := newTestServer(t, testConfig())

	var body map[string]interface{}
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/tick-data/price/round/123.45", &body))
	assert.Equal(t, 123.45, body["original_price"])
	assert.Equal(t, 123.5, body["rounded_price"])
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.RestRequestsPerWindow = 2
	_, ts := newTestServer(t, cfg)

	var ok map[string]interface{}
	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/v1/tick-data/price/round/10", &ok))
	}

	var body models.MErrorResponse
	assert.Equal(t, http.StatusTooManyRequests, getJSON(t, ts.URL+"/api/v1/tick-data/price/round/10", &body))
	assert.Contains(t, body.Detail.Message, "rate limit exceeded")

	// health is not rate limited
	var health models.MHealthStatus
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/health", &health))
	assert.Equal(t, 1, health.TrackedRateClients)
	assert.Equal(t, []string{"memory"}, health.Sources)
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, testConfig())

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/tick-data/price/round/10", nil)
	req.Header.Set("Origin", "http://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestTickStream(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	conn := dialWS(t, ts, "/ws/tick/2330/2023-04-26")

	var info models.MInfoMessage
	require.NoError(t, conn.ReadJSON(&info))
	assert.Equal(t, "info", info.Type)
	assert.Equal(t, 3, info.TotalRecords)

	for i := 1; i <= 3; i++ {
		var row map[string]interface{}
		require.NoError(t, conn.ReadJSON(&row))
		meta := row["_meta"].(map[string]interface{})
		assert.Equal(t, float64(i), meta["record_number"])
		assert.Equal(t, "2023-04-26", row["display_date"])
	}

	var done models.MCompletedMessage
	require.NoError(t, conn.ReadJSON(&done))
	assert.Equal(t, "completed", done.Type)
	assert.Equal(t, 3, done.Stats.TotalRecords)

	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestTickStreamInvalidDate(t *testing.T) {
	_, ts := newTestServer(t, testConfig())
	conn := dialWS(t, ts, "/ws/tick/2330/2023-13-40")

	var msg models.MErrorMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Contains(t, msg.Error, "invalid date")
}

func TestWebSocketAdmissionCap(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxWSConnectionsPerIP = 1
	s, ts := newTestServer(t, cfg)

	hb := dialWS(t, ts, "/ws/heartbeat")
	var beat models.MHeartbeatMessage
	require.NoError(t, hb.ReadJSON(&beat))
	assert.Equal(t, "heartbeat", beat.Type)

	rejected := dialWS(t, ts, "/ws/tick/2330/2023-04-26")
	var msg models.MErrorMessage
	require.NoError(t, rejected.ReadJSON(&msg))
	assert.Contains(t, msg.Error, "max websocket connections exceeded")

	// closing the heartbeat frees the slot
	hb.Close()
	require.Eventually(t, func() bool {
		return s.Governor.Stats().ActiveWebSockets == 0
	}, 5*time.Second, 10*time.Millisecond)

	conn := dialWS(t, ts, "/ws/tick/2330/2023-04-26")
	var info models.MInfoMessage
	require.NoError(t, conn.ReadJSON(&info))
	assert.Equal(t, "info", info.Type)
}

func TestTickStreamFollowsConfiguredFormat(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultConvertFormats = false
	_, ts := newTestServer(t, cfg)

	conn := dialWS(t, ts, "/ws/tick/2330/2023-04-26")
	var info models.MInfoMessage
	require.NoError(t, conn.ReadJSON(&info))

	var row map[string]interface{}
	require.NoError(t, conn.ReadJSON(&row))
	assert.Equal(t, float64(20230426), row["display_date"])

	// an explicit query value still wins
	conn = dialWS(t, ts, "/ws/tick/2330/2023-04-26?convert_formats=true")
	require.NoError(t, conn.ReadJSON(&info))
	require.NoError(t, conn.ReadJSON(&row))
	assert.Equal(t, "2023-04-26", row["display_date"])
}

func TestStreamSlotHeldUntilConnectionEnds(t *testing.T) {
	cfg := testConfig()
	cfg.WebSocket.StreamIntervalMs = 100
	s, ts := newTestServer(t, cfg)

	conn := dialWS(t, ts, "/ws/tick/2330/2023-04-26")
	var info models.MInfoMessage
	require.NoError(t, conn.ReadJSON(&info))
	assert.Equal(t, 1, s.Governor.Stats().ActiveWebSockets)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
			break
		}
	}
	require.Eventually(t, func() bool {
		return s.Governor.Stats().ActiveWebSockets == 0
	}, 5*time.Second, 10*time.Millisecond)
}
