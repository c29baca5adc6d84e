package models_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/potholemap/potholemap/internal/models"
	"github.com/stretchr/testify/require"
)

func TestParsePotholeRecord(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    models.PotholeRecord
		wantErr bool
	}{
		{
			name: "string encoded numbers",
			data: `{"unique_key":"59893035","latitude":"40.7128","longitude":"-74.006","street_name":"WALL ST",
"created_date":"2024-01-05T10:15:00.000","complaint_type":"Street Condition","descriptor":"Pothole"}`,
			want: models.PotholeRecord{
				UniqueKey:     "59893035",
				Latitude:      40.7128,
				Longitude:     -74.006,
				StreetName:    "WALL ST",
				CreatedDate:   time.Date(2024, 1, 5, 10, 15, 0, 0, time.UTC),
				ComplaintType: "Street Condition",
				Descriptor:    "Pothole",
			},
		},
		{
			name: "plain numbers and unparseable date",
			data: `{"unique_key":12,"latitude":40.7306,"longitude":-73.9352,"created_date":"yesterday"}`,
			want: models.PotholeRecord{
				UniqueKey: "12",
				Latitude:  40.7306,
				Longitude: -73.9352,
			},
		},
		{
			name:    "missing latitude",
			data:    `{"unique_key":"1","longitude":"-74.0"}`,
			wantErr: true,
		},
		{
			name:    "null longitude",
			data:    `{"unique_key":"1","latitude":"40.0","longitude":null}`,
			wantErr: true,
		},
		{
			name:    "unparseable latitude",
			data:    `{"unique_key":"1","latitude":"forty","longitude":"-74.0"}`,
			wantErr: true,
		},
		{
			name:    "latitude out of range",
			data:    `{"unique_key":"1","latitude":"140.0","longitude":"-74.0"}`,
			wantErr: true,
		},
		{
			name:    "missing unique key",
			data:    `{"latitude":"40.0","longitude":"-74.0"}`,
			wantErr: true,
		},
		{
			name:    "not an object",
			data:    `"oops"`,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := models.ParsePotholeRecord([]byte(tt.data))
			if tt.wantErr {
				require.ErrorIs(t, err, models.ErrMalformedRecord)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParsePotholeRecord() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPotholeRecord_Marker(t *testing.T) {
	record := models.PotholeRecord{UniqueKey: "7", Latitude: 40.7, Longitude: -74, StreetName: "BROADWAY"}
	marker := record.Marker()
	require.Equal(t, "7", marker.ID)
	require.Equal(t, "Pothole on BROADWAY", marker.Description)
	require.False(t, marker.Submitted())

	record.Descriptor = "Pothole - Highway"
	record.StreetName = ""
	require.Equal(t, "Pothole - Highway", record.Marker().Description)
}
