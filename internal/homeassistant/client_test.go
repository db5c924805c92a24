package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"coverwatcher/internal/engine"
)

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c := NewClient(Options{BaseURL: srv.URL, Token: "secret", Timeout: time.Second}, zerolog.Nop())
	c.now = func() time.Time { return time.Date(2025, 6, 10, 9, 0, 0, 0, time.Local) }
	return c
}

func writeEntity(w http.ResponseWriter, state string, attrs map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"state": state, "attributes": attrs})
}

func writeJSON(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func TestSunData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Fatalf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/api/states/sun.sun" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		writeEntity(w, "above_horizon", map[string]any{"azimuth": 182.5, "elevation": 45.1})
	}))
	defer srv.Close()

	azimuth, elevation, err := testClient(t, srv).SunData(context.Background())
	if err != nil {
		t.Fatalf("SunData failed: %v", err)
	}
	if azimuth != 182.5 || elevation != 45.1 {
		t.Fatalf("unexpected sun data: %v, %v", azimuth, elevation)
	}
}

func TestSunDataMissingAzimuthDefaultsToZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEntity(w, "above_horizon", map[string]any{"elevation": 30.0})
	}))
	defer srv.Close()

	azimuth, elevation, err := testClient(t, srv).SunData(context.Background())
	if err != nil {
		t.Fatalf("SunData failed: %v", err)
	}
	if azimuth != 0 || elevation != 30 {
		t.Fatalf("unexpected sun data: %v, %v", azimuth, elevation)
	}
}

func TestSunDataMissingElevationFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEntity(w, "above_horizon", map[string]any{"azimuth": 100.0})
	}))
	defer srv.Close()

	if _, _, err := testClient(t, srv).SunData(context.Background()); err == nil {
		t.Fatal("missing elevation should fail")
	}
}

func TestSunDataEntityNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, _, err := testClient(t, srv).SunData(context.Background()); err == nil {
		t.Fatal("missing sun entity should fail")
	}
}

func TestWeatherConditionUnavailableIsRecoverable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEntity(w, "unavailable", nil)
	}))
	defer srv.Close()

	_, err := testClient(t, srv).WeatherCondition(context.Background(), "weather.home")
	if !errors.Is(err, engine.ErrWeatherDataUnavailable) {
		t.Fatalf("expected ErrWeatherDataUnavailable, got %v", err)
	}
}

func TestMaxTemperatureFromDailyForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/states/weather.home":
			writeEntity(w, "sunny", map[string]any{"temperature_unit": "°C"})
		case "/api/services/weather/get_forecasts":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["type"] != "daily" {
				t.Fatalf("expected daily forecast request, got %v", body["type"])
			}
			writeJSON(w, map[string]any{
				"service_response": map[string]any{
					"weather.home": map[string]any{
						"forecast": []map[string]any{
							{"datetime": "2025-06-10T12:00:00+02:00", "temperature": 28.5},
							{"datetime": "2025-06-11T12:00:00+02:00", "temperature": 31.0},
						},
					},
				},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	// Test clock is 09:00, before the 17:00 cutover: today's entry applies.
	temp, err := testClient(t, srv).MaxTemperature(context.Background(), "weather.home")
	if err != nil {
		t.Fatalf("MaxTemperature failed: %v", err)
	}
	if temp != 28.5 {
		t.Fatalf("expected today's forecast 28.5, got %v", temp)
	}
}

func TestMaxTemperatureAfterCutoverUsesTomorrow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/states/weather.home":
			writeEntity(w, "sunny", map[string]any{"temperature_unit": "°C"})
		default:
			writeJSON(w, map[string]any{
				"service_response": map[string]any{
					"weather.home": map[string]any{
						"forecast": []map[string]any{
							{"datetime": "2025-06-10", "temperature": 28.5},
							{"datetime": "2025-06-11", "temperature": 31.0},
						},
					},
				},
			})
		}
	}))
	defer srv.Close()

	c := testClient(t, srv)
	c.now = func() time.Time { return time.Date(2025, 6, 10, 18, 30, 0, 0, time.Local) }

	temp, err := c.MaxTemperature(context.Background(), "weather.home")
	if err != nil {
		t.Fatalf("MaxTemperature failed: %v", err)
	}
	if temp != 31.0 {
		t.Fatalf("expected tomorrow's forecast 31.0, got %v", temp)
	}
}

func TestMaxTemperatureConvertsFahrenheit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/states/weather.home":
			writeEntity(w, "sunny", map[string]any{"temperature_unit": "°F"})
		default:
			writeJSON(w, map[string]any{
				"service_response": map[string]any{
					"weather.home": map[string]any{
						"forecast": []map[string]any{
							{"datetime": "2025-06-10", "temperature": 86.0},
						},
					},
				},
			})
		}
	}))
	defer srv.Close()

	temp, err := testClient(t, srv).MaxTemperature(context.Background(), "weather.home")
	if err != nil {
		t.Fatalf("MaxTemperature failed: %v", err)
	}
	if temp != 30.0 {
		t.Fatalf("expected 86°F converted to 30°C, got %v", temp)
	}
}

func TestMaxTemperatureEmptyForecastIsRecoverable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/states/weather.home":
			writeEntity(w, "sunny", nil)
		default:
			writeJSON(w, map[string]any{"service_response": map[string]any{}})
		}
	}))
	defer srv.Close()

	_, err := testClient(t, srv).MaxTemperature(context.Background(), "weather.home")
	if !errors.Is(err, engine.ErrWeatherDataUnavailable) {
		t.Fatalf("expected ErrWeatherDataUnavailable, got %v", err)
	}
}

func TestSetCoverPositionUsesPositionService(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	actual, err := testClient(t, srv).SetCoverPosition(context.Background(), "cover.south", 40, engine.FeatureSetPosition)
	if err != nil {
		t.Fatalf("SetCoverPosition failed: %v", err)
	}
	if actual != 40 {
		t.Fatalf("expected actual position 40, got %d", actual)
	}
	if gotPath != "/api/services/cover/set_cover_position" {
		t.Fatalf("unexpected service path %s", gotPath)
	}
	if gotBody["entity_id"] != "cover.south" || gotBody["position"] != 40.0 {
		t.Fatalf("unexpected payload %#v", gotBody)
	}
}

func TestSetCoverPositionBinaryFallback(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	features := engine.FeatureOpen | engine.FeatureClose

	actual, err := c.SetCoverPosition(context.Background(), "cover.garage", 80, features)
	if err != nil || actual != 100 {
		t.Fatalf("expected open to 100, got %d, %v", actual, err)
	}
	actual, err = c.SetCoverPosition(context.Background(), "cover.garage", 30, features)
	if err != nil || actual != 0 {
		t.Fatalf("expected close to 0, got %d, %v", actual, err)
	}

	want := []string{"/api/services/cover/open_cover", "/api/services/cover/close_cover"}
	for i, p := range want {
		if paths[i] != p {
			t.Fatalf("call %d: expected %s, got %s", i, p, paths[i])
		}
	}
}

func TestSetCoverPositionSimulationSkipsCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := testClient(t, srv)
	c.SetSimulation(true)

	actual, err := c.SetCoverPosition(context.Background(), "cover.south", 25, engine.FeatureSetPosition)
	if err != nil {
		t.Fatalf("simulation should not fail: %v", err)
	}
	if actual != 25 {
		t.Fatalf("simulation should report would-be position, got %d", actual)
	}
	if called {
		t.Fatal("simulation mode must not call the service")
	}
}

func TestSetCoverPositionOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	if _, err := testClient(t, srv).SetCoverPosition(context.Background(), "cover.south", 120, engine.FeatureSetPosition); err == nil {
		t.Fatal("position above 100 should fail")
	}
}

func TestAddLogbookEntrySwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	// Must not panic or propagate anything.
	testClient(t, srv).AddLogbookEntry(context.Background(), "closing", "cover.south", "heat_protection", 0)
}

func TestCoverStatesMapsFailuresToNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/states/cover.good" {
			writeEntity(w, "open", map[string]any{"supported_features": 15, "current_position": 60})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	states := testClient(t, srv).CoverStates(context.Background(), []string{"cover.good", "cover.bad"})
	if states["cover.bad"] != nil {
		t.Fatal("unreachable cover should map to nil")
	}
	good := states["cover.good"]
	if good == nil || good.State != "open" {
		t.Fatalf("unexpected state %#v", good)
	}
	if pos, ok := good.Int("current_position"); !ok || pos != 60 {
		t.Fatalf("expected position 60, got %d (%v)", pos, ok)
	}
}
