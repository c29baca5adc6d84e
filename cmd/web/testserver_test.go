package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/potholemap/potholemap/internal/e2etest"
	"github.com/stretchr/testify/require"
)

const potholeListing = `[
  {"unique_key":"111","latitude":"40.7128","longitude":"-74.006","street_name":"BROADWAY",
   "created_date":"2024-01-05T10:15:00.000","descriptor":"Pothole"},
  {"unique_key":"222","latitude":40.73,"longitude":-73.99,"street_name":"5 AVENUE",
   "created_date":"2024-01-06T08:00:00.000"},
  {"unique_key":"333","latitude":"not a number","longitude":"-73.9"}
]`

// fakeBackend serves the pothole listing and analyzer. The analyzer detects potholes only at marker 111.
type fakeBackend struct {
	*httptest.Server
	listingDown atomic.Bool
	analyses    atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	backend := &fakeBackend{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/potholes", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if backend.listingDown.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"data file missing"}`))
			return
		}
		_, _ = w.Write([]byte(potholeListing))
	})
	mux.HandleFunc("GET /api/potholes/analyzer", func(w http.ResponseWriter, r *http.Request) {
		backend.analyses.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("lat") == "40.7128" {
			_, _ = w.Write([]byte(`{"street_view_url":"https://maps.example/sv-111.jpg",
"analysis":{"potholes_detected":2,"annotated_image_path":"/images/111-annotated.png"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"street_view_url":"https://maps.example/sv.jpg","analysis":{"potholes_detected":0}}`))
	})
	backend.Server = httptest.NewServer(mux)
	t.Cleanup(backend.Close)
	return backend
}

func testLookupEnv(apiURL string) func(string) (string, bool) {
	env := map[string]string{
		"POTHOLEMAP_ADDR":         "localhost:0",
		"POTHOLEMAP_API_URL":      apiURL,
		"POTHOLEMAP_SQLITE_URL":   ":memory:",
		"POTHOLEMAP_SIM311_DELAY": "0s",
		"POTHOLEMAP_CLOSE_DELAY":  "-1s",
		"POTHOLEMAP_ANALYZE_RATE": "0",
	}
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

// startTestServer starts the application against backend and returns it once it is ready.
func startTestServer(t *testing.T, backend *fakeBackend) *e2etest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	server, err := e2etest.StartServer(ctx, io.Discard, testLookupEnv(backend.URL), run)
	require.NoError(t, err)
	return server
}
