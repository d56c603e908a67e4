package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBandFor_RequiresObservations(t *testing.T) {
	table := DefaultBandTable()

	assert.Equal(t, BandUnclassified, table.BandFor(0, 90))
	assert.Equal(t, BandUnclassified, table.BandFor(2, 90), "two observations are not enough")
	assert.Equal(t, BandExemplary, table.BandFor(3, 90))
}

func TestBandFor_Thresholds(t *testing.T) {
	table := DefaultBandTable()

	cases := []struct {
		score float64
		want  MaturityBand
	}{
		{0, BandEmergent},
		{44.9, BandEmergent},
		{45, BandConsolidating},
		{64.9, BandConsolidating},
		{65, BandEstablished},
		{84.9, BandEstablished},
		{85, BandExemplary},
		{100, BandExemplary},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, table.BandFor(5, tc.score), "score %.1f", tc.score)
	}
}
