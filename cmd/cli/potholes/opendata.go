package potholes

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/models"
)

// OpenDataURL is the NYC 311 service request data set on the Socrata open data portal.
const OpenDataURL = "https://data.cityofnewyork.us/resource/7dn9-uvry.json"

const openDataWhere = "complaint_type = 'Street Condition' AND descriptor = 'Pothole' " +
	"AND latitude IS NOT NULL AND longitude IS NOT NULL"

// FetchOpenData queries the most recent pothole service requests. Entries that would be skipped by the map are
// dropped here as well, so the written listing only holds usable records.
func FetchOpenData(
	ctx context.Context,
	client *http.Client,
	endpoint string,
	limit int,
	logger *slog.Logger,
) ([]json.RawMessage, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "parse endpoint", slog.String("endpoint", endpoint))
	}
	query := url.Values{}
	query.Set("$limit", strconv.Itoa(limit))
	query.Set("$order", "created_date DESC")
	query.Set("$where", openDataWhere)
	query.Set("$select", "created_date, unique_key, complaint_type, descriptor, street_name, latitude, longitude")
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "query open data")
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20)) //nolint:mnd // 32 MiB
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("unexpected status code", slog.Int("status", resp.StatusCode))
	}

	var entries []json.RawMessage
	if err = json.Unmarshal(body, &entries); err != nil {
		return nil, errors.Wrap(err, "decode open data")
	}
	usable := make([]json.RawMessage, 0, len(entries))
	for i, entry := range entries {
		if _, parseErr := models.ParsePotholeRecord(entry); parseErr != nil {
			logger.LogAttrs(ctx, slog.LevelWarn, "dropping unusable record", slog.Int("index", i),
				errors.SlogError(parseErr))
			continue
		}
		usable = append(usable, entry)
	}
	return usable, nil
}
