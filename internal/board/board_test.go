package board_test

import (
	"testing"
	"time"

	"github.com/potholemap/potholemap/internal/board"
	"github.com/potholemap/potholemap/internal/errors"
	"github.com/potholemap/potholemap/internal/models"
	"github.com/stretchr/testify/require"
)

func testRecords() []models.PotholeRecord {
	return []models.PotholeRecord{
		{
			UniqueKey: "a", Latitude: 40.70, Longitude: -74.00, StreetName: "WALL ST",
			CreatedDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Descriptor: "Pothole",
		},
		{
			UniqueKey: "b", Latitude: 40.80, Longitude: -73.90, StreetName: "BROADWAY",
			CreatedDate: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Descriptor: "Pothole",
		},
		{UniqueKey: "a", Latitude: 1, Longitude: 1},
		{UniqueKey: "bad", Latitude: 91, Longitude: 0},
	}
}

func TestNew(t *testing.T) {
	b := board.New(testRecords())
	require.Equal(t, 2, b.Len())

	markers := b.Markers()
	require.Equal(t, "b", markers[0].ID, "newest first")
	require.Equal(t, "a", markers[1].ID)
	require.Equal(t, "Pothole on WALL ST", markers[1].Description)
	require.InDelta(t, 40.70, markers[1].Position.Latitude, 1e-9, "first duplicate wins")
}

func TestBoard_MarkSubmitted(t *testing.T) {
	b := board.New(testRecords())

	require.NoError(t, b.MarkSubmitted("a", "311-123"))

	a, err := b.Get("a")
	require.NoError(t, err)
	require.Equal(t, "311-123", a.ReportID)
	other, err := b.Get("b")
	require.NoError(t, err)
	require.False(t, other.Submitted(), "only the originating marker changes")

	err = b.MarkSubmitted("a", "311-456")
	require.ErrorIs(t, err, models.ErrAlreadySubmitted)
	a, _ = b.Get("a")
	require.Equal(t, "311-123", a.ReportID)

	err = b.MarkSubmitted("missing", "311-1")
	require.True(t, errors.Is(err, board.ErrMarkerNotFound))
}

func TestBoard_Get_returnsCopy(t *testing.T) {
	b := board.New(testRecords())
	m, err := b.Get("a")
	require.NoError(t, err)
	m.ReportID = "tampered"

	again, _ := b.Get("a")
	require.Empty(t, again.ReportID)
}

func TestBoard_Center(t *testing.T) {
	b := board.New(testRecords())
	c := b.Center()
	require.InDelta(t, 40.75, c.Latitude, 1e-6)
	require.InDelta(t, -73.95, c.Longitude, 1e-6)

	bounds := b.Bounds()
	require.InDelta(t, 40.70, bounds.Lo().Lat.Degrees(), 1e-6)
	require.InDelta(t, -73.90, bounds.Hi().Lng.Degrees(), 1e-6)

	empty := board.New(nil)
	require.Equal(t, board.DefaultCenter, empty.Center())
	require.True(t, empty.Bounds().IsEmpty())
}
