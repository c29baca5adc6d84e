package potholeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/models"
	"golang.org/x/time/rate"
)

const (
	potholesPath  = "/api/potholes"
	analyzerPath  = "/api/potholes/analyzer"
	submitPath    = "/api/311/reports"
	statusPath    = "/api/311/status/"
	maxBodyBytes  = 4 << 20
	maxErrorBytes = 512
)

// Config configures a [Client].
type Config struct {
	// APIURL is the base URL of the backend API serving the pothole listing and the analyzer.
	APIURL string
	// SubmitURL is the base URL of the 311 service accepting reports.
	SubmitURL string
	// HTTPClient defaults to a client with a 30-second timeout.
	HTTPClient *http.Client
	// AnalyzeRate limits analyzer calls per second. Zero or negative disables limiting.
	AnalyzeRate float64
	Logger      *slog.Logger
}

// Client talks to the backend API and to the 311 service. It holds no state besides its configuration and is
// safe for concurrent use.
type Client struct {
	httpClient *http.Client
	apiURL     *url.URL
	submitURL  *url.URL
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a client from cfg.
func NewClient(cfg Config) (*Client, error) {
	apiURL, err := parseBaseURL(cfg.APIURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse API URL", slog.String("url", cfg.APIURL))
	}
	submitURL, err := parseBaseURL(cfg.SubmitURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse submit URL", slog.String("url", cfg.SubmitURL))
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second} //nolint:mnd // the analyzer runs a vision model.
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.AnalyzeRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.AnalyzeRate), 1)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		httpClient: httpClient,
		apiURL:     apiURL,
		submitURL:  submitURL,
		limiter:    limiter,
		logger:     logger.With(slog.String("source", "potholeapi")),
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("URL must be absolute http(s)", slog.String("url", raw))
	}
	return u, nil
}

// ListReports fetches the pothole listing. Entries that cannot be parsed are skipped and logged.
func (c *Client) ListReports(ctx context.Context) ([]models.PotholeRecord, error) {
	const op = "list reports"
	body, err := c.get(ctx, op, c.endpoint(c.apiURL, potholesPath, nil))
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		// The backend answers with an object when its data file is missing.
		var errBody struct {
			Error string `json:"error"`
		}
		if err = json.Unmarshal(trimmed, &errBody); err != nil || errBody.Error == "" {
			return nil, &RemoteError{Op: op, StatusCode: http.StatusOK, Message: "unexpected object in listing"}
		}
		return nil, &RemoteError{Op: op, StatusCode: http.StatusOK, Message: errBody.Error}
	}

	var entries []json.RawMessage
	if err = json.Unmarshal(trimmed, &entries); err != nil {
		return nil, &RemoteError{Op: op, StatusCode: http.StatusOK, Message: "decode listing: " + err.Error()}
	}
	records := make([]models.PotholeRecord, 0, len(entries))
	for i, entry := range entries {
		record, parseErr := models.ParsePotholeRecord(entry)
		if parseErr != nil {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "skipping malformed pothole record",
				slog.Int("index", i), errors.SlogError(parseErr))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

type analyzerResponse struct {
	StreetViewURL string `json:"street_view_url"`
	Analysis      *struct {
		PotholesDetected   *int   `json:"potholes_detected"`
		AnnotatedImagePath string `json:"annotated_image_path"`
	} `json:"analysis"`
	Error  string `json:"error"`
	Status string `json:"status"`
}

// Analyze asks the analyzer whether there is a pothole at the given location.
//
// A zero detection count is a valid result. An analyzer that answers but fails to analyze yields a result with
// Error set.
func (c *Client) Analyze(ctx context.Context, lat, lng float64) (models.AnalysisResult, error) {
	const op = "analyze"
	if err := c.limiter.Wait(ctx); err != nil {
		return models.AnalysisResult{}, &NetworkError{Op: op, Err: err}
	}
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))

	body, err := c.get(ctx, op, c.endpoint(c.apiURL, analyzerPath, query))
	if err != nil {
		return models.AnalysisResult{}, err
	}

	var resp analyzerResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		return models.AnalysisResult{}, &RemoteError{Op: op, StatusCode: http.StatusOK, Message: "decode: " + err.Error()}
	}
	if resp.Error != "" || resp.Status == "failed" {
		msg := resp.Error
		if msg == "" {
			msg = "analysis failed"
		}
		return models.AnalysisResult{StreetViewURL: resp.StreetViewURL, Error: msg}, nil
	}
	if resp.Analysis == nil || resp.Analysis.PotholesDetected == nil {
		return models.AnalysisResult{}, &RemoteError{Op: op, StatusCode: http.StatusOK, Message: "missing detection count"}
	}
	if *resp.Analysis.PotholesDetected < 0 {
		return models.AnalysisResult{}, &RemoteError{Op: op, StatusCode: http.StatusOK, Message: "negative detection count"}
	}
	return models.AnalysisResult{
		DetectionCount:    *resp.Analysis.PotholesDetected,
		StreetViewURL:     resp.StreetViewURL,
		AnnotatedImageURL: c.resolve(c.apiURL, resp.Analysis.AnnotatedImagePath),
		Error:             "",
	}, nil
}

// Submit files the report with the 311 service. It does not verify the analysis; callers must.
//
// A well-formed rejection is returned as a result with Success false, not as an error.
func (c *Client) Submit(ctx context.Context, report models.Report) (models.SubmissionResult, error) {
	const op = "submit"
	payload, err := json.Marshal(report)
	if err != nil {
		return models.SubmissionResult{}, errors.Wrap(err, "marshal report")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(c.submitURL, submitPath, nil),
		bytes.NewReader(payload))
	if err != nil {
		return models.SubmissionResult{}, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, body, err := c.do(ctx, op, req)
	if err != nil {
		return models.SubmissionResult{}, err
	}

	var result models.SubmissionResult
	decodeErr := json.Unmarshal(body, &result)
	switch {
	case status >= 200 && status < 300:
		if decodeErr != nil {
			return models.SubmissionResult{}, &RemoteError{Op: op, StatusCode: status, Message: "decode: " + decodeErr.Error()}
		}
		if result.Success && result.ReportID == "" {
			return models.SubmissionResult{}, &RemoteError{Op: op, StatusCode: status, Message: "success without report ID"}
		}
		return result, nil
	case status >= 400 && status < 500 && decodeErr == nil && !result.Success && result.Message != "":
		return result, nil
	default:
		return models.SubmissionResult{}, &RemoteError{Op: op, StatusCode: status, Message: snippet(body)}
	}
}

// ReportStatus looks up the processing state of a submitted report.
func (c *Client) ReportStatus(ctx context.Context, reportID string) (models.ReportStatus, error) {
	const op = "report status"
	body, err := c.get(ctx, op, c.endpoint(c.submitURL, statusPath+reportID, nil))
	if err != nil {
		return models.ReportStatus{}, err
	}
	var status models.ReportStatus
	if err = json.Unmarshal(body, &status); err != nil {
		return models.ReportStatus{}, &RemoteError{Op: op, StatusCode: http.StatusOK, Message: "decode: " + err.Error()}
	}
	return status, nil
}

// get issues a GET request and returns the body of a successful response.
func (c *Client) get(ctx context.Context, op, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	status, body, err := c.do(ctx, op, req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &RemoteError{Op: op, StatusCode: status, Message: snippet(body)}
	}
	return body, nil
}

// do sends req and reads the whole body. Only transport failures are returned as errors.
func (c *Client) do(ctx context.Context, op string, req *http.Request) (int, []byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &NetworkError{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, &NetworkError{Op: op, Err: err}
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "remote call",
		slog.String("op", op),
		slog.String("method", req.Method),
		slog.String("url", req.URL.Redacted()),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))
	return resp.StatusCode, body, nil
}

func (c *Client) endpoint(base *url.URL, path string, query url.Values) string {
	u := *base
	u.Path = strings.TrimRight(base.Path, "/") + path
	u.RawPath = ""
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// resolve turns a possibly relative reference returned by the remote side into an absolute URL.
func (c *Client) resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBytes {
		cut := maxErrorBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "…"
	}
	if s == "" {
		return "empty response"
	}
	return s
}
