// Package board holds the in-memory pothole markers shown on one browser session's map.
package board

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/golang/geo/s2"
	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/models"
)

var ErrMarkerNotFound = errors.NewSentinel("marker not found")

// DefaultCenter is shown when there are no markers. It is New York City, where the pothole data comes from.
var DefaultCenter = models.Position{Latitude: 40.7128, Longitude: -74.006} //nolint:gochecknoglobals // constant.

// Board is the marker collection of one session. It is safe for concurrent use.
type Board struct {
	mu      sync.RWMutex
	order   []string
	markers map[string]*models.Marker
}

// New creates a board from the fetched pothole records. Records with a duplicate key keep the first occurrence.
func New(records []models.PotholeRecord) *Board {
	b := &Board{
		mu:      sync.RWMutex{},
		order:   make([]string, 0, len(records)),
		markers: make(map[string]*models.Marker, len(records)),
	}
	for _, r := range records {
		if !r.Position().Valid() {
			continue
		}
		if _, ok := b.markers[r.UniqueKey]; ok {
			continue
		}
		b.order = append(b.order, r.UniqueKey)
		b.markers[r.UniqueKey] = r.Marker()
	}
	return b
}

// Markers returns copies of the markers, newest first.
func (b *Board) Markers() []models.Marker {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Marker, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.markers[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of markers.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}

// Get returns a copy of the marker with the given ID.
func (b *Board) Get(id string) (models.Marker, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.markers[id]
	if !ok {
		return models.Marker{}, errors.Wrap(ErrMarkerNotFound, "get marker", slog.String("marker_id", id))
	}
	return *m, nil
}

// MarkSubmitted records the report ID on exactly the marker with the given ID.
func (b *Board) MarkSubmitted(id, reportID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.markers[id]
	if !ok {
		return errors.Wrap(ErrMarkerNotFound, "mark submitted", slog.String("marker_id", id))
	}
	if err := m.MarkSubmitted(reportID); err != nil {
		return errors.Wrap(err, "mark submitted")
	}
	return nil
}

// Bounds returns the smallest rectangle containing every marker. It is empty when the board is.
func (b *Board) Bounds() s2.Rect {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rect := s2.EmptyRect()
	for _, id := range b.order {
		rect = rect.AddPoint(b.markers[id].Position.LatLng())
	}
	return rect
}

// Center returns the center of [Board.Bounds], or [DefaultCenter] for an empty board.
func (b *Board) Center() models.Position {
	bounds := b.Bounds()
	if bounds.IsEmpty() {
		return DefaultCenter
	}
	c := bounds.Center()
	return models.Position{Latitude: c.Lat.Degrees(), Longitude: c.Lng.Degrees()}
}
