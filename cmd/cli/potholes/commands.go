package potholes

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/logging"
	"github.com/potholemap/potholemap/internal/potholeapi"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var Group = &cobra.Group{
	ID:    "potholes",
	Title: "Pothole data",
}

const commandTimeout = time.Minute

func init() {
	Fetch.Flags().String("out", "./pothole_reports.json", "path of the written listing")
	Fetch.Flags().Int("limit", 100, "number of most recent reports to fetch") //nolint:mnd // open data default.
	Fetch.Flags().String("source", OpenDataURL, "Socrata resource URL")

	Analyze.Flags().Float64("lat", 0, "latitude in degrees")
	Analyze.Flags().Float64("lng", 0, "longitude in degrees")
	_ = Analyze.MarkFlagRequired("lat")
	_ = Analyze.MarkFlagRequired("lng")
}

var Fetch = &cobra.Command{
	Use:     "fetch-reports",
	GroupID: "potholes",
	Short:   "Fetch recent pothole reports",
	Long:    "Fetches the most recent pothole service requests from NYC Open Data and writes them as JSON.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, _ := cmd.Flags().GetString("out")
		limit, _ := cmd.Flags().GetInt("limit")
		source, _ := cmd.Flags().GetString("source")
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()
		logger := logging.NewLogger(cmd.ErrOrStderr(), slog.LevelInfo)

		entries, err := FetchOpenData(ctx, &http.Client{Timeout: commandTimeout}, source, limit, logger)
		if err != nil {
			return errors.Wrap(err, "fetch open data")
		}
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return errors.Wrap(err, "marshal listing")
		}
		if err = os.WriteFile(out, data, 0o600); err != nil { //nolint:mnd // owner read-write.
			return errors.Wrap(err, "write listing", slog.String("path", out))
		}
		logger.LogAttrs(ctx, slog.LevelInfo, "saved pothole reports",
			slog.Int("count", len(entries)), slog.String("path", out))
		return nil
	},
}

var Analyze = &cobra.Command{
	Use:     "analyze",
	GroupID: "potholes",
	Short:   "Analyze a location",
	Long:    "Runs the street view pothole analyzer for a location and prints the result as YAML.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		lat, _ := cmd.Flags().GetFloat64("lat")
		lng, _ := cmd.Flags().GetFloat64("lng")
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		result, err := client.Analyze(ctx, lat, lng)
		if err != nil {
			return errors.Wrap(err, "analyze")
		}
		return writeYAML(cmd.OutOrStdout(), analysisOutput{
			Latitude:          lat,
			Longitude:         lng,
			PotholesDetected:  result.DetectionCount,
			Reportable:        result.Positive(),
			StreetViewURL:     result.StreetViewURL,
			AnnotatedImageURL: result.AnnotatedImageURL,
			Error:             result.Error,
		})
	},
}

var Status = &cobra.Command{
	Use:     "status <report-id>",
	GroupID: "potholes",
	Short:   "Look up a 311 report",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()

		status, err := client.ReportStatus(ctx, args[0])
		if err != nil {
			return errors.Wrap(err, "report status")
		}
		return writeYAML(cmd.OutOrStdout(), status)
	},
}

type analysisOutput struct {
	Latitude          float64 `yaml:"latitude"`
	Longitude         float64 `yaml:"longitude"`
	PotholesDetected  int     `yaml:"potholesDetected"`
	Reportable        bool    `yaml:"reportable"`
	StreetViewURL     string  `yaml:"streetViewUrl,omitempty"`
	AnnotatedImageURL string  `yaml:"annotatedImageUrl,omitempty"`
	Error             string  `yaml:"error,omitempty"`
}

func newClient(cmd *cobra.Command) (*potholeapi.Client, error) {
	apiURL, _ := cmd.Flags().GetString("api-url")
	submitURL, _ := cmd.Flags().GetString("submit-url")
	client, err := potholeapi.NewClient(potholeapi.Config{
		APIURL:      apiURL,
		SubmitURL:   submitURL,
		HTTPClient:  &http.Client{Timeout: commandTimeout},
		AnalyzeRate: 0,
		Logger:      logging.NewLogger(cmd.ErrOrStderr(), slog.LevelWarn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "new client")
	}
	return client, nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2) //nolint:mnd // two spaces
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "encode YAML")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, "close YAML encoder")
	}
	return nil
}
