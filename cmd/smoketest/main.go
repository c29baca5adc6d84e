package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/potholemap/potholemap/internal/e2etest"
	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/logging"
	"github.com/potholemap/potholemap/internal/potholeapi"
)

// TestMap loads the map and checks that the pothole listing made it onto the page.
func TestMap(ctx context.Context, client *e2etest.Client) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second) //nolint:mnd // 10 seconds
	defer cancel()

	if err := client.WaitForReady(ctx, "/api/healthy"); err != nil {
		return errors.Wrap(err, "wait for ready")
	}
	doc, err := client.GetDoc(ctx, "/")
	if err != nil {
		return errors.Wrap(err, "get map")
	}
	if doc.Find(".load-error").Length() > 0 {
		return errors.New("pothole reports could not be loaded")
	}
	if count := doc.Find("li.marker").Length(); count == 0 {
		return errors.New("no pothole markers on the map")
	}
	return nil
}

// TestServiceRequests checks that the 311 service answers unknown reports with not found.
func TestServiceRequests(ctx context.Context, url string, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second) //nolint:mnd // 10 seconds
	defer cancel()

	client, err := potholeapi.NewClient(potholeapi.Config{
		APIURL:      url,
		SubmitURL:   url,
		HTTPClient:  &http.Client{Timeout: 10 * time.Second}, //nolint:mnd // 10 seconds
		AnalyzeRate: 0,
		Logger:      logger,
	})
	if err != nil {
		return errors.Wrap(err, "new client")
	}
	_, err = client.ReportStatus(ctx, "311-0")
	var remoteErr *potholeapi.RemoteError
	if !errors.As(err, &remoteErr) || remoteErr.StatusCode != http.StatusNotFound {
		return errors.New("unknown report was not answered with not found", errors.SlogError(err))
	}
	return nil
}

func main() {
	logger := logging.NewLogger(os.Stdout, slog.LevelDebug)
	ctx := context.Background()

	if len(os.Args) != 2 { //nolint:mnd // we expect only hostname to be passed as argument.
		logger.LogAttrs(ctx, slog.LevelError, "usage: smoketest <hostname>")
		os.Exit(1)
	}

	var (
		hostname = os.Args[1]
		url      = "https://" + hostname
		client   *e2etest.Client
		err      error
	)
	ctx = logging.WithAttrs(ctx, slog.String("hostname", url))

	if client, err = e2etest.NewClient(url); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error creating client", errors.SlogError(err))
		os.Exit(1)
	}
	if err = TestMap(ctx, client); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing map", errors.SlogError(err))
		os.Exit(1)
	}
	if err = TestServiceRequests(ctx, url, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "error testing service requests", errors.SlogError(err))
		os.Exit(1)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "Smoke test successful 🙌")
	os.Exit(0)
}
