// Package maidenhead converts decimal coordinates to Maidenhead grid
// locators at subsquare precision, the form the rotator controller takes
// its station location in.
package maidenhead

import (
	"fmt"
	"math"
	"strings"
)

// Length of a subsquare locator such as "FN42li".
const Length = 6

// Locator returns the 6 character locator containing lat, lon.
func Locator(lat, lon float64) (string, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return "", fmt.Errorf("latitude %v is outside -90 to 90", lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return "", fmt.Errorf("longitude %v is outside -180 to 180", lon)
	}
	// The north pole and the antimeridian fold into the last cell.
	x := math.Min(lon+180, math.Nextafter(360, 0))
	y := math.Min(lat+90, math.Nextafter(180, 0))

	b := []byte{
		'A' + byte(x/20),
		'A' + byte(y/10),
		'0' + byte(math.Mod(x, 20)/2),
		'0' + byte(math.Mod(y, 10)),
		'a' + byte(math.Mod(x, 2)*12),
		'a' + byte(math.Mod(y, 1)*24),
	}
	return string(b), nil
}

// Valid reports whether s is a well formed 6 character locator, in either
// letter case.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	u := strings.ToUpper(s)
	return between(u[0], 'A', 'R') && between(u[1], 'A', 'R') &&
		between(u[2], '0', '9') && between(u[3], '0', '9') &&
		between(u[4], 'A', 'X') && between(u[5], 'A', 'X')
}

func between(c, lo, hi byte) bool {
	return c >= lo && c <= hi
}
