// Package siteloc logs the acquisition array's site location in UTM at
// startup (SPEC_FULL.md §3/§4 C9). It is purely informational: nothing
// in the acquisition loop reads from it, and a deployment without a
// configured site location never calls this package.
package siteloc

import (
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/tzneal/coordconv"
)

func degToRad(d float64) float64 { return d * math.Pi / 180 }

// LogSiteLocation converts lat/lon (decimal degrees) to UTM and logs
// both forms once. Conversion failure is logged and non-fatal — this
// never gates acquisition startup.
func LogSiteLocation(logger *log.Logger, lat, lon float64) {
	latlng := s2.LatLng{
		Lat: s1.Angle(degToRad(lat)),
		Lng: s1.Angle(degToRad(lon)),
	}

	utm, err := coordconv.DefaultUTMConverter.ConvertFromGeodetic(latlng, 0)
	if err != nil {
		logger.Warn("site location configured but UTM conversion failed", "lat", lat, "lon", lon, "err", err)
		return
	}

	logger.Info("receiver array site location",
		"lat", lat, "lon", lon,
		"utm", fmt.Sprintf("zone=%d hemisphere=%c easting=%.0f northing=%.0f", utm.Zone, hemisphereRune(utm.Hemisphere), utm.Easting, utm.Northing),
	)
}

func hemisphereRune(h coordconv.Hemisphere) rune {
	switch h {
	case coordconv.HemisphereNorth:
		return 'N'
	case coordconv.HemisphereSouth:
		return 'S'
	default:
		return '?'
	}
}
