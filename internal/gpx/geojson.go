package gpx

import (
	"encoding/xml"
	"errors"
	"math"
	"strings"

	geojson "github.com/paulmach/go.geojson"

	"github.com/w2vasia/gps-track/internal/track"
)

// geojsonStrategy is the conversion-backed parse path: it hands structural
// interpretation to a Converter and walks the resulting feature collection.
// It is deliberately defensive about the collection's shape; anything it
// cannot interpret is skipped, not an error.
type geojsonStrategy struct {
	converter Converter
}

func (s geojsonStrategy) parse(doc []byte) (track.Track, error) {
	fc, err := s.converter.Convert(doc)
	if err != nil {
		return track.Track{}, err
	}
	if fc == nil {
		return track.Track{}, errors.New("converter returned no feature collection")
	}

	t := track.Track{}
	t.Name, t.Desc, t.Author = decodeDocMeta(doc)

	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		switch f.Geometry.Type {
		case geojson.GeometryLineString:
			if seg := segmentFromLine(f.Geometry.LineString, f.Properties["coordTimes"]); len(seg) > 0 {
				t.Segments = append(t.Segments, seg)
			}
		case geojson.GeometryMultiLineString:
			// One TrackSegment per constituent line, never flattened.
			times, _ := f.Properties["coordTimes"].([]interface{})
			for i, line := range f.Geometry.MultiLineString {
				var lineTimes interface{}
				if i < len(times) {
					lineTimes = times[i]
				}
				if seg := segmentFromLine(line, lineTimes); len(seg) > 0 {
					t.Segments = append(t.Segments, seg)
				}
			}
		case geojson.GeometryPoint:
			if wp, ok := waypointFromFeature(f); ok {
				t.Waypoints = append(t.Waypoints, wp)
			}
		}
	}
	return t, nil
}

func segmentFromLine(coords [][]float64, coordTimes interface{}) track.Segment {
	times, _ := coordTimes.([]interface{})
	var seg track.Segment
	for i, c := range coords {
		wp, ok := waypointFromCoordinate(c)
		if !ok {
			continue
		}
		if i < len(times) {
			if s, ok := times[i].(string); ok {
				if ts, ok := parseInstant(s); ok {
					wp.Time = &ts
				}
			}
		}
		seg = append(seg, wp)
	}
	return seg
}

func waypointFromFeature(f *geojson.Feature) (track.Waypoint, bool) {
	wp, ok := waypointFromCoordinate(f.Geometry.Point)
	if !ok {
		return track.Waypoint{}, false
	}
	if name, ok := f.Properties["name"].(string); ok {
		wp.Name = name
	}
	if s, ok := f.Properties["time"].(string); ok {
		if ts, ok := parseInstant(s); ok {
			wp.Time = &ts
		}
	}
	return wp, true
}

// waypointFromCoordinate enforces the model invariant: latitude and
// longitude must both be finite or the point does not exist.
func waypointFromCoordinate(c []float64) (track.Waypoint, bool) {
	if len(c) < 2 {
		return track.Waypoint{}, false
	}
	lng, lat := c[0], c[1]
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return track.Waypoint{}, false
	}
	wp := track.Waypoint{Lat: lat, Lng: lng}
	if len(c) >= 3 && !math.IsNaN(c[2]) && !math.IsInf(c[2], 0) {
		ele := c[2]
		wp.Elevation = &ele
	}
	return wp, true
}

type xmlDocMeta struct {
	Name     string `xml:"name"`
	Desc     string `xml:"desc"`
	Author   string `xml:"author"`
	Metadata struct {
		Name   string `xml:"name"`
		Desc   string `xml:"desc"`
		Author struct {
			Name string `xml:"name"`
			Text string `xml:",chardata"`
		} `xml:"author"`
	} `xml:"metadata"`
}

// decodeDocMeta pulls document-level name/desc/author from either the GPX
// 1.1 metadata block or the GPX 1.0 top-level elements. Best effort only.
func decodeDocMeta(doc []byte) (name, desc, author string) {
	var m xmlDocMeta
	if err := xml.Unmarshal(doc, &m); err != nil {
		return "", "", ""
	}
	name = strings.TrimSpace(m.Metadata.Name)
	if name == "" {
		name = strings.TrimSpace(m.Name)
	}
	desc = strings.TrimSpace(m.Metadata.Desc)
	if desc == "" {
		desc = strings.TrimSpace(m.Desc)
	}
	author = strings.TrimSpace(m.Metadata.Author.Name)
	if author == "" {
		author = strings.TrimSpace(m.Metadata.Author.Text)
	}
	if author == "" {
		author = strings.TrimSpace(m.Author)
	}
	return name, desc, author
}
