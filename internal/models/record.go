package models

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/potholemap/potholemap/internal/errors"
)

var ErrMalformedRecord = errors.NewSentinel("malformed pothole record")

// PotholeRecord is a pothole service request as listed by the backend API. The fields mirror the NYC 311 open data
// set the backend serves.
type PotholeRecord struct {
	UniqueKey     string    `json:"unique_key"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	StreetName    string    `json:"street_name,omitempty"`
	CreatedDate   time.Time `json:"created_date"`
	ComplaintType string    `json:"complaint_type,omitempty"`
	Descriptor    string    `json:"descriptor,omitempty"`
}

// flexNumber accepts both JSON numbers and numeric strings. Open data exports encode numbers as strings.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(err, "unmarshal string")
		}
		*n = flexNumber(strings.TrimSpace(s))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return errors.Wrap(err, "unmarshal number")
	}
	*n = flexNumber(num.String())
	return nil
}

type rawPotholeRecord struct {
	UniqueKey     *flexNumber `json:"unique_key"`
	Latitude      *flexNumber `json:"latitude"`
	Longitude     *flexNumber `json:"longitude"`
	StreetName    string      `json:"street_name"`
	CreatedDate   string      `json:"created_date"`
	ComplaintType string      `json:"complaint_type"`
	Descriptor    string      `json:"descriptor"`
}

// createdDateLayouts are tried in order. Socrata uses floating timestamps without a zone.
var createdDateLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// ParsePotholeRecord decodes a single listing entry.
//
// Missing keys or coordinates, unparseable numbers and coordinates outside the valid ranges are reported as
// [ErrMalformedRecord]. An unparseable creation date is tolerated and left as the zero time.
func ParsePotholeRecord(data []byte) (PotholeRecord, error) {
	var raw rawPotholeRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return PotholeRecord{}, errors.Wrap(ErrMalformedRecord, err.Error())
	}
	if raw.UniqueKey == nil || *raw.UniqueKey == "" {
		return PotholeRecord{}, errors.Wrap(ErrMalformedRecord, "missing unique_key")
	}
	key := string(*raw.UniqueKey)
	lat, err := parseCoordinate(raw.Latitude)
	if err != nil {
		return PotholeRecord{}, errors.Wrap(err, "latitude", slog.String("unique_key", key))
	}
	lng, err := parseCoordinate(raw.Longitude)
	if err != nil {
		return PotholeRecord{}, errors.Wrap(err, "longitude", slog.String("unique_key", key))
	}
	if !(Position{Latitude: lat, Longitude: lng}).Valid() {
		return PotholeRecord{}, errors.Wrap(ErrMalformedRecord, "coordinate out of range",
			slog.String("unique_key", key), slog.Float64("latitude", lat), slog.Float64("longitude", lng))
	}

	record := PotholeRecord{
		UniqueKey:     key,
		Latitude:      lat,
		Longitude:     lng,
		StreetName:    strings.TrimSpace(raw.StreetName),
		ComplaintType: strings.TrimSpace(raw.ComplaintType),
		Descriptor:    strings.TrimSpace(raw.Descriptor),
	}
	for _, layout := range createdDateLayouts {
		if t, parseErr := time.Parse(layout, raw.CreatedDate); parseErr == nil {
			record.CreatedDate = t
			break
		}
	}
	return record, nil
}

func parseCoordinate(n *flexNumber) (float64, error) {
	if n == nil || *n == "" {
		return 0, errors.Wrap(ErrMalformedRecord, "missing coordinate")
	}
	f, err := strconv.ParseFloat(string(*n), 64)
	if err != nil {
		return 0, errors.Wrap(ErrMalformedRecord, "unparseable coordinate", slog.String("value", string(*n)))
	}
	return f, nil
}

// Position returns the record's coordinate.
func (r PotholeRecord) Position() Position {
	return Position{Latitude: r.Latitude, Longitude: r.Longitude}
}

// Marker creates the map marker for the record.
func (r PotholeRecord) Marker() *Marker {
	label := r.Descriptor
	if label == "" {
		label = r.ComplaintType
	}
	if label == "" {
		label = "Pothole"
	}
	description := label
	if r.StreetName != "" {
		description = label + " on " + r.StreetName
	}
	return &Marker{
		ID:          r.UniqueKey,
		Position:    r.Position(),
		Description: description,
		StreetName:  r.StreetName,
		CreatedAt:   r.CreatedDate,
		ReportID:    "",
	}
}
