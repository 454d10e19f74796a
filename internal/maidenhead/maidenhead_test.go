package maidenhead

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocator(t *testing.T) {
	for _, test := range []struct {
		name     string
		lat, lon float64
		want     string
	}{
		{"boston", 42.3601, -71.0589, "FN42li"},
		{"sydney", -33.8688, 151.2093, "QF56od"},
		{"origin", 0, 0, "JJ00aa"},
		{"south west corner", -90, -180, "AA00aa"},
		{"north east corner", 90, 180, "RR99xx"},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := Locator(test.lat, test.lon)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
			assert.True(t, Valid(got))
		})
	}
}

func TestLocatorOutOfRange(t *testing.T) {
	for _, c := range [][2]float64{{91, 0}, {-90.5, 0}, {0, 181}, {0, -180.1}, {math.NaN(), 0}} {
		_, err := Locator(c[0], c[1])
		assert.Error(t, err, "%v", c)
	}
}

func TestValid(t *testing.T) {
	for s, want := range map[string]bool{
		"FN42li":  true,
		"FN42LI":  true,
		"FN42":    false,
		"FN42lii": false,
		"SN42li":  false,
		"fn42li":  true,
		"FN4Ali":  false,
		"FN42ly":  false,
	} {
		assert.Equal(t, want, Valid(s), s)
	}
}
