package weather

import (
	"math"
	"strings"

	"github.com/guregu/null"
)

// CompassPoints are the 16 rose sectors, index-aligned with BinWindDirections.
var CompassPoints = [16]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

const sectorWidth = 360.0 / 16

// SectorIndex returns the compass sector a direction falls into.
// Sectors are centered on their compass point, so N spans [348.75, 11.25).
func SectorIndex(deg float64) int {
	a := math.Mod(deg, 360)
	if a < 0 {
		a += 360
	}
	shifted := math.Mod(a+sectorWidth/2, 360)
	return int(math.Floor(shifted/sectorWidth)) % len(CompassPoints)
}

// CompassDegrees maps a compass token such as "NW" to the center of its sector.
func CompassDegrees(token string) (float64, bool) {
	t := strings.ToUpper(strings.TrimSpace(token))
	for i, p := range CompassPoints {
		if p == t {
			return float64(i) * sectorWidth, true
		}
	}
	return 0, false
}

// BinWindDirections counts readings per compass sector. When weighted, each
// reading adds its wind speed instead of 1. Readings without a finite
// direction are skipped, and so are weighted readings without a speed.
func BinWindDirections(readings []Reading, weighted bool) [16]float64 {
	var bins [16]float64
	for _, r := range readings {
		dir, ok := r.Value(MetricWindDirection)
		if !ok {
			continue
		}
		w := 1.0
		if weighted {
			speed, ok := r.Value(MetricWindSpeed)
			if !ok {
				continue
			}
			w = speed
		}
		bins[SectorIndex(dir)] += w
	}
	return bins
}

// calmResultant is the mean resultant length below which directions are
// treated as cancelling out.
const calmResultant = 1e-9

// VectorAverageDirection is the circular mean of directions in degrees,
// optionally weighted by the paired speeds. A direction without a usable
// speed weighs 1. It returns an invalid null.Float when nothing is averaged
// or when the directions cancel out.
func VectorAverageDirection(directions []float64, speeds []float64) null.Float {
	var sx, sy, sw float64
	for i, d := range directions {
		if !isFinite(d) {
			continue
		}
		w := 1.0
		if i < len(speeds) && isFinite(speeds[i]) && speeds[i] >= 0 {
			w = speeds[i]
		}
		rad := d * math.Pi / 180
		sx += math.Sin(rad) * w
		sy += math.Cos(rad) * w
		sw += w
	}
	// Opposing winds cancel out and leave no direction to report.
	if sw == 0 || math.Hypot(sx, sy)/sw < calmResultant {
		return null.Float{}
	}

	deg := math.Atan2(sx/sw, sy/sw) * 180 / math.Pi
	deg = math.Mod(deg+360, 360)
	return null.FloatFrom(deg)
}

// MeanWindDirection extracts directions and speeds from readings and returns
// their speed-weighted circular mean.
func MeanWindDirection(readings []Reading) null.Float {
	dirs := make([]float64, 0, len(readings))
	speeds := make([]float64, 0, len(readings))
	for _, r := range readings {
		dir, ok := r.Value(MetricWindDirection)
		if !ok {
			continue
		}
		speed, ok := r.Value(MetricWindSpeed)
		if !ok {
			speed = math.NaN()
		}
		dirs = append(dirs, dir)
		speeds = append(speeds, speed)
	}
	return VectorAverageDirection(dirs, speeds)
}
