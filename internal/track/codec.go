package track

import (
	"fmt"
	"time"
)

// The transport representation crosses the dispatch pool boundary and is
// stored as JSONB. Timestamps travel as RFC3339Nano strings because the
// boundary carries JSON primitives only; absent optional fields stay absent.

type TransportWaypoint struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Elevation *float64 `json:"elevation_m,omitempty"`
	Time      *string  `json:"time,omitempty"`
	Name      string   `json:"name,omitempty"`
}

type TransportTrack struct {
	Name      string                `json:"name,omitempty"`
	Desc      string                `json:"desc,omitempty"`
	Author    string                `json:"author,omitempty"`
	Segments  [][]TransportWaypoint `json:"segments"`
	Waypoints []TransportWaypoint   `json:"waypoints,omitempty"`
}

// Serialize maps a Track to its transport form. Together with Deserialize
// it is an exact inverse for any parser-produced value.
func Serialize(t Track) TransportTrack {
	tt := TransportTrack{
		Name:     t.Name,
		Desc:     t.Desc,
		Author:   t.Author,
		Segments: make([][]TransportWaypoint, 0, len(t.Segments)),
	}
	for _, seg := range t.Segments {
		points := make([]TransportWaypoint, 0, len(seg))
		for _, p := range seg {
			points = append(points, serializePoint(p))
		}
		tt.Segments = append(tt.Segments, points)
	}
	for _, p := range t.Waypoints {
		tt.Waypoints = append(tt.Waypoints, serializePoint(p))
	}
	return tt
}

// Deserialize maps a transport track back to the normalized model. It fails
// only when a timestamp string is not a valid RFC3339 instant, which cannot
// happen for values produced by Serialize.
func Deserialize(tt TransportTrack) (Track, error) {
	t := Track{
		Name:     tt.Name,
		Desc:     tt.Desc,
		Author:   tt.Author,
		Segments: make([]Segment, 0, len(tt.Segments)),
	}
	for _, seg := range tt.Segments {
		points := make(Segment, 0, len(seg))
		for _, p := range seg {
			wp, err := deserializePoint(p)
			if err != nil {
				return Track{}, err
			}
			points = append(points, wp)
		}
		t.Segments = append(t.Segments, points)
	}
	for _, p := range tt.Waypoints {
		wp, err := deserializePoint(p)
		if err != nil {
			return Track{}, err
		}
		t.Waypoints = append(t.Waypoints, wp)
	}
	return t, nil
}

func serializePoint(p Waypoint) TransportWaypoint {
	tp := TransportWaypoint{
		Lat:       p.Lat,
		Lng:       p.Lng,
		Elevation: p.Elevation,
		Name:      p.Name,
	}
	if p.Time != nil {
		s := p.Time.Format(time.RFC3339Nano)
		tp.Time = &s
	}
	return tp
}

func deserializePoint(p TransportWaypoint) (Waypoint, error) {
	wp := Waypoint{
		Lat:       p.Lat,
		Lng:       p.Lng,
		Elevation: p.Elevation,
		Name:      p.Name,
	}
	if p.Time != nil {
		ts, err := time.Parse(time.RFC3339Nano, *p.Time)
		if err != nil {
			return Waypoint{}, fmt.Errorf("invalid transport timestamp %q: %w", *p.Time, err)
		}
		wp.Time = &ts
	}
	return wp, nil
}
