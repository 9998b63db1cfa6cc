package gpx

import (
	"encoding/xml"
	"math"
	"strconv"
	"strings"
	"time"

	geojson "github.com/paulmach/go.geojson"
)

// Converter turns a raw GPX document into a GeoJSON feature collection.
// Tracks become LineString features (MultiLineString when a track has more
// than one segment), routes become LineString features, and standalone
// waypoints become Point features carrying name/time properties.
type Converter interface {
	Convert(doc []byte) (*geojson.FeatureCollection, error)
}

// XMLConverter is the default Converter. It decodes the document strictly:
// a coordinate attribute that fails to parse aborts the whole conversion,
// while a missing attribute yields a non-finite coordinate that the
// consuming strategy filters out.
type XMLConverter struct{}

type xmlDoc struct {
	Tracks    []xmlTrack `xml:"trk"`
	Routes    []xmlRoute `xml:"rte"`
	Waypoints []xmlPoint `xml:"wpt"`
}

type xmlTrack struct {
	Name     string       `xml:"name"`
	Segments []xmlSegment `xml:"trkseg"`
}

type xmlSegment struct {
	Points []xmlPoint `xml:"trkpt"`
}

type xmlRoute struct {
	Name   string     `xml:"name"`
	Points []xmlPoint `xml:"rtept"`
}

type xmlPoint struct {
	Lat  *float64 `xml:"lat,attr"`
	Lon  *float64 `xml:"lon,attr"`
	Ele  string   `xml:"ele"`
	Time string   `xml:"time"`
	Name string   `xml:"name"`
}

func (XMLConverter) Convert(doc []byte) (*geojson.FeatureCollection, error) {
	var d xmlDoc
	if err := xml.Unmarshal(doc, &d); err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()

	for _, trk := range d.Tracks {
		var lines [][][]float64
		var lineTimes []interface{}
		for _, seg := range trk.Segments {
			if len(seg.Points) == 0 {
				continue
			}
			coords, times := lineCoordinates(seg.Points)
			lines = append(lines, coords)
			lineTimes = append(lineTimes, times)
		}
		if len(lines) == 0 {
			continue
		}

		var f *geojson.Feature
		if len(lines) == 1 {
			f = geojson.NewFeature(geojson.NewLineStringGeometry(lines[0]))
			f.Properties["coordTimes"] = lineTimes[0]
		} else {
			f = geojson.NewFeature(geojson.NewMultiLineStringGeometry(lines...))
			f.Properties["coordTimes"] = lineTimes
		}
		if trk.Name != "" {
			f.Properties["name"] = trk.Name
		}
		fc.AddFeature(f)
	}

	for _, rte := range d.Routes {
		if len(rte.Points) == 0 {
			continue
		}
		coords, times := lineCoordinates(rte.Points)
		f := geojson.NewFeature(geojson.NewLineStringGeometry(coords))
		f.Properties["coordTimes"] = times
		if rte.Name != "" {
			f.Properties["name"] = rte.Name
		}
		fc.AddFeature(f)
	}

	for _, wpt := range d.Waypoints {
		f := geojson.NewFeature(geojson.NewPointGeometry(pointCoordinate(wpt)))
		if wpt.Name != "" {
			f.Properties["name"] = strings.TrimSpace(wpt.Name)
		}
		if ts, ok := parseInstant(wpt.Time); ok {
			f.Properties["time"] = ts.Format(time.RFC3339Nano)
		}
		fc.AddFeature(f)
	}

	return fc, nil
}

// lineCoordinates renders points as [lng, lat(, ele)] coordinates plus a
// parallel slice of RFC3339 timestamps (nil where a point has none).
// A missing lat/lon attribute becomes NaN so the consumer can drop the point
// without breaking the time alignment.
func lineCoordinates(points []xmlPoint) ([][]float64, []interface{}) {
	coords := make([][]float64, 0, len(points))
	times := make([]interface{}, 0, len(points))
	for _, p := range points {
		coords = append(coords, pointCoordinate(p))
		if ts, ok := parseInstant(p.Time); ok {
			times = append(times, ts.Format(time.RFC3339Nano))
		} else {
			times = append(times, nil)
		}
	}
	return coords, times
}

func pointCoordinate(p xmlPoint) []float64 {
	lat, lng := math.NaN(), math.NaN()
	if p.Lat != nil {
		lat = *p.Lat
	}
	if p.Lon != nil {
		lng = *p.Lon
	}
	if ele, ok := finiteFloat(p.Ele); ok {
		return []float64{lng, lat, ele}
	}
	return []float64{lng, lat}
}

func finiteFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseInstant accepts the ISO-8601 timestamp shapes that occur in GPX
// files in the wild, with or without a zone designator.
func parseInstant(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, true
	}
	if ts, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return ts, true
	}
	return time.Time{}, false
}
