package potholeapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/models"
	"github.com/potholemap/potholemap/internal/potholeapi"
	"github.com/potholemap/potholemap/internal/testhelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *potholeapi.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := potholeapi.NewClient(potholeapi.Config{
		APIURL:      srv.URL,
		SubmitURL:   srv.URL,
		HTTPClient:  srv.Client(),
		AnalyzeRate: 0,
		Logger:      testhelpers.NewLogger(io.Discard),
	})
	require.NoError(t, err)
	return client
}

func respond(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestClient_Analyze(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		want       models.AnalysisResult
		wantRemote bool
	}{
		{
			name: "positive detection with relative annotated image",
			handler: respond(http.StatusOK, `{"street_view_url":"https://maps.example/sv.jpg",
"analysis":{"potholes_detected":2,"annotated_image_path":"/images/40.7-74.0-annotated.png"}}`),
			want: models.AnalysisResult{
				DetectionCount: 2,
				StreetViewURL:  "https://maps.example/sv.jpg",
			},
		},
		{
			name:    "zero detections is not an error",
			handler: respond(http.StatusOK, `{"street_view_url":"https://maps.example/sv.jpg","analysis":{"potholes_detected":0}}`),
			want:    models.AnalysisResult{DetectionCount: 0, StreetViewURL: "https://maps.example/sv.jpg"},
		},
		{
			name:    "analyzer failure is reported in the result",
			handler: respond(http.StatusOK, `{"error":"Analysis failed: no imagery","status":"failed"}`),
			want:    models.AnalysisResult{Error: "Analysis failed: no imagery"},
		},
		{
			name:       "non-success status",
			handler:    respond(http.StatusBadGateway, `upstream down`),
			wantRemote: true,
		},
		{
			name:       "missing detection count",
			handler:    respond(http.StatusOK, `{"analysis":{}}`),
			wantRemote: true,
		},
		{
			name:       "garbage body",
			handler:    respond(http.StatusOK, `<html>`),
			wantRemote: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery string
			client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/potholes/analyzer", r.URL.Path)
				gotQuery = r.URL.RawQuery
				tt.handler(w, r)
			}))

			got, err := client.Analyze(context.Background(), 40.7128, -74.006)
			require.Equal(t, "lat=40.7128&lng=-74.006", gotQuery)
			if tt.wantRemote {
				var remoteErr *potholeapi.RemoteError
				require.True(t, errors.As(err, &remoteErr), "want RemoteError, got %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want.DetectionCount, got.DetectionCount)
			require.Equal(t, tt.want.StreetViewURL, got.StreetViewURL)
			require.Equal(t, tt.want.Error, got.Error)
			if tt.want.DetectionCount > 0 {
				require.Contains(t, got.AnnotatedImageURL, "/images/40.7-74.0-annotated.png")
				require.Contains(t, got.AnnotatedImageURL, "http://")
			}
		})
	}
}

func TestClient_Analyze_networkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client, err := potholeapi.NewClient(potholeapi.Config{APIURL: srv.URL, SubmitURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Analyze(context.Background(), 40.7, -74)
	var networkErr *potholeapi.NetworkError
	require.True(t, errors.As(err, &networkErr), "want NetworkError, got %v", err)
	require.Equal(t, "analyze", networkErr.Op)
}

func TestClient_Submit(t *testing.T) {
	report := models.Report{
		Latitude:    40.7128,
		Longitude:   -74.006,
		Description: "Large crack",
		Severity:    models.SeverityHigh,
	}

	t.Run("success", func(t *testing.T) {
		client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/311/reports", r.URL.Path)
			var got models.Report
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			assert.Equal(t, report, got)
			respond(http.StatusOK, `{"success":true,"reportId":"311-123","message":"Report submitted successfully! Report ID: 311-123"}`)(w, r)
		}))
		result, err := client.Submit(context.Background(), report)
		require.NoError(t, err)
		require.True(t, result.Success)
		require.Equal(t, "311-123", result.ReportID)
		require.Contains(t, result.Message, "311-123")
	})

	t.Run("well-formed rejection", func(t *testing.T) {
		client := newTestClient(t, respond(http.StatusUnprocessableEntity,
			`{"success":false,"message":"No pothole detected at this location."}`))
		result, err := client.Submit(context.Background(), report)
		require.NoError(t, err)
		require.False(t, result.Success)
		require.Equal(t, "No pothole detected at this location.", result.Message)
	})

	t.Run("rejection with success status", func(t *testing.T) {
		client := newTestClient(t, respond(http.StatusOK, `{"success":false,"message":"Duplicate report"}`))
		result, err := client.Submit(context.Background(), report)
		require.NoError(t, err)
		require.False(t, result.Success)
	})

	t.Run("server error", func(t *testing.T) {
		client := newTestClient(t, respond(http.StatusInternalServerError, `boom`))
		_, err := client.Submit(context.Background(), report)
		var remoteErr *potholeapi.RemoteError
		require.True(t, errors.As(err, &remoteErr))
		require.Equal(t, http.StatusInternalServerError, remoteErr.StatusCode)
	})
}

func TestClient_ListReports(t *testing.T) {
	t.Run("skips malformed records", func(t *testing.T) {
		client := newTestClient(t, respond(http.StatusOK, `[
{"unique_key":"1","latitude":"40.7128","longitude":"-74.006","street_name":"WALL ST"},
{"unique_key":"2","latitude":"not a number","longitude":"-74.0"},
{"unique_key":"3","longitude":"-74.0"},
{"unique_key":"4","latitude":40.7306,"longitude":-73.9352}
]`))
		records, err := client.ListReports(context.Background())
		require.NoError(t, err)
		require.Len(t, records, 2)
		require.Equal(t, "1", records[0].UniqueKey)
		require.Equal(t, "4", records[1].UniqueKey)
	})

	t.Run("error object", func(t *testing.T) {
		client := newTestClient(t, respond(http.StatusOK, `{"error":"Pothole data file not found."}`))
		_, err := client.ListReports(context.Background())
		var remoteErr *potholeapi.RemoteError
		require.True(t, errors.As(err, &remoteErr))
		require.Equal(t, "Pothole data file not found.", remoteErr.Message)
	})
}

func TestClient_ReportStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/311/status/311-123", r.URL.Path)
		respond(http.StatusOK, `{"reportId":"311-123","status":"submitted","severity":"high",
"estimatedResolution":"5-7 business days","submittedAt":"2024-01-05T10:15:00Z"}`)(w, r)
	}))
	status, err := client.ReportStatus(context.Background(), "311-123")
	require.NoError(t, err)
	require.Equal(t, "submitted", status.Status)
	require.Equal(t, models.SeverityHigh, status.Severity)
}

func TestNewClient_rejectsRelativeURL(t *testing.T) {
	_, err := potholeapi.NewClient(potholeapi.Config{APIURL: "localhost:8000", SubmitURL: "http://localhost"})
	require.Error(t, err)
}

func TestClient_remoteErrorMessageIsTruncatedOnRuneBoundary(t *testing.T) {
	// One ASCII byte shifts the two-byte runes so that the size limit falls inside a rune.
	body := "x" + strings.Repeat("ö", 600)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(body))
	}))

	_, err := client.ListReports(context.Background())
	var remoteErr *potholeapi.RemoteError
	require.True(t, errors.As(err, &remoteErr), "want RemoteError, got %v", err)
	require.Equal(t, http.StatusBadGateway, remoteErr.StatusCode)
	assert.True(t, utf8.ValidString(remoteErr.Message), "message %q", remoteErr.Message)
	assert.True(t, strings.HasSuffix(remoteErr.Message, "…"))
	assert.True(t, strings.HasPrefix(body, strings.TrimSuffix(remoteErr.Message, "…")))
	assert.Less(t, len(remoteErr.Message), len(body))
}
