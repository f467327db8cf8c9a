package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adsb1090/internal/modes"
	"adsb1090/internal/stats"
	"adsb1090/internal/track"
)

func newTestServer(t *testing.T) (*Server, *track.Registry) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reg := track.New(track.Config{}, logger)
	promReg := prometheus.NewRegistry()
	st := stats.New(promReg)

	srv := NewServer(Config{
		Port:    0,
		WebPage: "/gmap.html",
		HomeLat: 51.5, HomeLon: -0.12, HasHome: true,
		Version: "test",
	}, reg, st, promReg, logger)
	return srv, reg
}

func seedAircraft(reg *track.Registry) {
	now := time.Now()
	reg.Update(&modes.Message{
		DF: 17, ICAO: 0x4840d6, TypeCode: 4,
		Callsign: "KLM1023", Category: "A0",
		Flags:     modes.FlagCallsignValid,
		Timestamp: now,
	})
	reg.Update(&modes.Message{
		DF: 17, ICAO: 0x4840d6, TypeCode: 11,
		Altitude: 38000,
		Lat:      51.686763, Lon: 0.701294, NUCp: 7,
		Flags:     modes.FlagAltitudeValid | modes.FlagLatLonValid,
		Timestamp: now,
	})
}

// TestRootRedirect: '/' answers 301 with the configured page and an
// empty body.
func TestRootRedirect(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/gmap.html", rec.Header().Get("Location"))
	assert.Empty(t, rec.Body.Bytes())
}

func TestAircraftJSON(t *testing.T) {
	srv, reg := newTestServer(t)
	seedAircraft(reg)

	req := httptest.NewRequest(http.MethodGet, "/data/aircraft.json", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var envelope struct {
		Now      float64          `json:"now"`
		Messages uint64           `json:"messages"`
		Aircraft []map[string]any `json:"aircraft"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))

	assert.Greater(t, envelope.Now, 0.0)
	assert.Equal(t, uint64(2), envelope.Messages)
	require.Len(t, envelope.Aircraft, 1)

	ac := envelope.Aircraft[0]
	assert.Equal(t, "4840d6", ac["hex"])
	assert.Equal(t, "KLM1023", ac["flight"])
	assert.Equal(t, float64(38000), ac["alt_baro"])
	assert.InDelta(t, 51.686763, ac["lat"].(float64), 1e-6)
	assert.InDelta(t, 0.701294, ac["lon"].(float64), 1e-6)

	// Fields without a value stay absent.
	_, hasGS := ac["gs"]
	assert.False(t, hasGS)
}

func TestChunksAliasesAircraft(t *testing.T) {
	srv, reg := newTestServer(t)
	seedAircraft(reg)

	req := httptest.NewRequest(http.MethodGet, "/chunks/chunks.json", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "aircraft")
}

func TestLegacyDataJSON(t *testing.T) {
	srv, reg := newTestServer(t)
	seedAircraft(reg)

	req := httptest.NewRequest(http.MethodGet, "/data.json", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "4840d6", list[0]["hex"])
	assert.Equal(t, float64(1), list[0]["validposition"])
}

func TestReceiverJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/data/receiver.json", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "test", out["version"])
	assert.Equal(t, float64(1000), out["refresh"])
	assert.InDelta(t, 51.5, out["lat"].(float64), 1e-9)
	assert.InDelta(t, -0.12, out["lon"].(float64), 1e-9)
}

func TestStatsJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/data/stats.json", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Contains(t, out, "services")
	assert.Contains(t, out, "cpr")
}

func TestFavicon(t *testing.T) {
	srv, _ := newTestServer(t)

	for path, ctype := range map[string]string{
		"/favicon.png": "image/png",
		"/favicon.ico": "image/x-icon",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, ctype, rec.Header().Get("Content-Type"))
		assert.NotEmpty(t, rec.Body.Bytes())
	}
}

func TestUnknownPathWithoutWebRoot(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/no/such/path", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebSocketEcho(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/echo"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte("hello")))
	mt, msg, err := c.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "hello", string(msg))

	// The echo is one-shot: the server closes after the first frame.
	_ = c.WriteMessage(websocket.TextMessage, []byte("again"))
	_, _, err = c.ReadMessage()
	assert.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure) ||
		websocket.IsUnexpectedCloseError(err))
}

func TestCheckWebRoot(t *testing.T) {
	assert.NoError(t, CheckWebRoot(""))
	assert.NoError(t, CheckWebRoot(t.TempDir()))
	assert.Error(t, CheckWebRoot("/no/such/dir/at/all"))
}
