package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLocationType(t *testing.T) {
	cases := map[string]LocationType{
		"":        LocationRoom,
		"pool":    LocationPool,
		" Beach ": LocationBeach,
		"walk-in": LocationWalkIn,
		"TABLE":   LocationTable,
	}
	for raw, want := range cases {
		got, err := ParseLocationType(raw)
		require.NoError(t, err, raw)
		require.Equal(t, want, got)
	}
	_, err := ParseLocationType("rooftop")
	require.ErrorIs(t, err, ErrInvalidLocation)
}

func TestStationIsValid(t *testing.T) {
	require.True(t, StationKitchen.IsValid())
	require.True(t, StationBar.IsValid())
	require.False(t, Station("GRILL").IsValid())
}
