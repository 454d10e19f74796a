package config

import (
	"strings"

	"github.com/w1xm/k3ng_interface/internal/maidenhead"
)

// Normalize fills derived fields. It must be called only after Validate.
//
// Coordinates are converted to the grid locator the controller takes, and
// the locator's subsquare is lowercased as the firmware prints it.
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}
	s := &cfg.Station
	if s.Latitude != nil && s.Longitude != nil {
		if grid, err := maidenhead.Locator(*s.Latitude, *s.Longitude); err == nil {
			s.Grid = grid
		}
	}
	if len(s.Grid) == maidenhead.Length {
		s.Grid = strings.ToUpper(s.Grid[:4]) + strings.ToLower(s.Grid[4:])
	}
}
