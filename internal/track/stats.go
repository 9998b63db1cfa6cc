package track

import (
	"github.com/w2vasia/gps-track/internal/shared/geo"
)

// Stats is derived from one or more segments. Duration and AvgSpeedMps are
// present only when the stat-source carries first and last timestamps;
// Max/MinElevationM only when at least one point carries elevation.
type Stats struct {
	DistanceM     float64  `json:"distance_m"`
	GainM         float64  `json:"elevation_gain_m"`
	LossM         float64  `json:"elevation_loss_m"`
	DurationS     *float64 `json:"duration_s,omitempty"`
	AvgSpeedMps   *float64 `json:"avg_speed_mps,omitempty"`
	MaxElevationM *float64 `json:"max_elevation_m,omitempty"`
	MinElevationM *float64 `json:"min_elevation_m,omitempty"`
}

// ElevationPoint is one entry of a display-ready elevation profile:
// cumulative distance from the start of the profile in kilometers, the
// elevation in meters, and the originating coordinates for cross-highlighting.
type ElevationPoint struct {
	DistanceKm float64 `json:"distance_km"`
	ElevationM float64 `json:"elevation_m"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

const (
	// Profiles longer than profileLimit points are downsampled for display.
	profileLimit  = 5000
	profileTarget = 2000
)

// ComputeStats aggregates distance, elevation change, duration and speed
// over the given segments. Distance accumulates between consecutive points
// within a segment only, so stats over [s1, s2] sum the per-segment totals.
func ComputeStats(segments ...Segment) Stats {
	var s Stats
	for _, seg := range segments {
		for i := 1; i < len(seg); i++ {
			s.DistanceM += geo.DistanceM(seg[i-1].Lat, seg[i-1].Lng, seg[i].Lat, seg[i].Lng)
			if seg[i-1].Elevation != nil && seg[i].Elevation != nil {
				diff := *seg[i].Elevation - *seg[i-1].Elevation
				if diff > 0 {
					s.GainM += diff
				} else {
					s.LossM -= diff
				}
			}
		}
		for _, p := range seg {
			if p.Elevation == nil {
				continue
			}
			if s.MaxElevationM == nil || *p.Elevation > *s.MaxElevationM {
				v := *p.Elevation
				s.MaxElevationM = &v
			}
			if s.MinElevationM == nil || *p.Elevation < *s.MinElevationM {
				v := *p.Elevation
				s.MinElevationM = &v
			}
		}
	}

	first, last := endpoints(segments)
	if first != nil && last != nil && first.Time != nil && last.Time != nil {
		d := last.Time.Sub(*first.Time).Seconds()
		s.DurationS = &d
		if d > 0 {
			v := s.DistanceM / d
			s.AvgSpeedMps = &v
		}
	}
	return s
}

func endpoints(segments []Segment) (*Waypoint, *Waypoint) {
	var first, last *Waypoint
	for i := range segments {
		if len(segments[i]) == 0 {
			continue
		}
		if first == nil {
			first = &segments[i][0]
		}
		last = &segments[i][len(segments[i])-1]
	}
	return first, last
}

// Profile builds the elevation profile of a whole track. Distance accumulates
// continuously across segments; entries are emitted only for points carrying
// elevation, so a track without any elevation yields an empty profile.
func Profile(t Track) []ElevationPoint {
	var points []ElevationPoint
	distM := 0.0
	for _, seg := range t.Segments {
		points = appendProfile(points, seg, &distM)
	}
	return Downsample(points)
}

// SegmentProfile builds the profile of a single segment, with cumulative
// distance starting at zero.
func SegmentProfile(seg Segment) []ElevationPoint {
	distM := 0.0
	return Downsample(appendProfile(nil, seg, &distM))
}

func appendProfile(points []ElevationPoint, seg Segment, distM *float64) []ElevationPoint {
	for i, p := range seg {
		if i > 0 {
			*distM += geo.DistanceM(seg[i-1].Lat, seg[i-1].Lng, p.Lat, p.Lng)
		}
		if p.Elevation == nil {
			continue
		}
		points = append(points, ElevationPoint{
			DistanceKm: *distM / 1000,
			ElevationM: *p.Elevation,
			Lat:        p.Lat,
			Lng:        p.Lng,
		})
	}
	return points
}

// Downsample reduces an oversized profile with a fixed stride, keeping the
// first and last entries. Profiles at or under the display limit pass
// through unchanged.
func Downsample(points []ElevationPoint) []ElevationPoint {
	if len(points) <= profileLimit {
		return points
	}
	stride := (len(points) + profileTarget - 1) / profileTarget
	out := make([]ElevationPoint, 0, profileTarget+1)
	lastIdx := -1
	for i := 0; i < len(points); i += stride {
		out = append(out, points[i])
		lastIdx = i
	}
	if lastIdx != len(points)-1 {
		out = append(out, points[len(points)-1])
	}
	return out
}
