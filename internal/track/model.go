package track

import "time"

// Waypoint is a single recorded point. Lat and Lng are always finite;
// points that fail that constraint are dropped during parsing and never
// reach this model. Elevation and Time are optional.
type Waypoint struct {
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	Elevation *float64   `json:"elevation_m,omitempty"`
	Time      *time.Time `json:"time,omitempty"`
	Name      string     `json:"name,omitempty"`
}

// Segment is one continuous run of points, in recording order.
// Segments are never materialized empty.
type Segment []Waypoint

// Track is the normalized result of parsing one GPX document. Tracks and
// routes both flatten into Segments in document order; Waypoints holds the
// document's standalone points.
type Track struct {
	Name      string     `json:"name,omitempty"`
	Desc      string     `json:"desc,omitempty"`
	Author    string     `json:"author,omitempty"`
	Segments  []Segment  `json:"segments"`
	Waypoints []Waypoint `json:"waypoints,omitempty"`
}

// PointCount returns the number of segment points in the track, excluding
// standalone waypoints.
func (t Track) PointCount() int {
	n := 0
	for _, seg := range t.Segments {
		n += len(seg)
	}
	return n
}
