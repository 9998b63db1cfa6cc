package gpx

import (
	gpxgo "github.com/tkrajina/gpxgo/gpx"

	"github.com/w2vasia/gps-track/internal/track"
)

// Export renders the normalized model as a GPX 1.1 document. This is a
// serialization of the model, not a round trip of the original upload:
// anything the parser dropped or never read stays gone.
func Export(t track.Track) ([]byte, error) {
	doc := &gpxgo.GPX{
		Creator:     "gps-track",
		Name:        t.Name,
		Description: t.Desc,
		AuthorName:  t.Author,
	}

	if len(t.Segments) > 0 {
		trk := gpxgo.GPXTrack{Name: t.Name}
		for _, seg := range t.Segments {
			gseg := gpxgo.GPXTrackSegment{}
			for _, p := range seg {
				gseg.Points = append(gseg.Points, exportPoint(p))
			}
			trk.Segments = append(trk.Segments, gseg)
		}
		doc.Tracks = []gpxgo.GPXTrack{trk}
	}

	for _, p := range t.Waypoints {
		doc.Waypoints = append(doc.Waypoints, exportPoint(p))
	}

	return gpxgo.ToXml(doc, gpxgo.ToXmlParams{Version: "1.1", Indent: true})
}

func exportPoint(p track.Waypoint) gpxgo.GPXPoint {
	gp := gpxgo.GPXPoint{
		Point: gpxgo.Point{Latitude: p.Lat, Longitude: p.Lng},
		Name:  p.Name,
	}
	if p.Elevation != nil {
		gp.Elevation = *gpxgo.NewNullableFloat64(*p.Elevation)
	}
	if p.Time != nil {
		gp.Timestamp = *p.Time
	}
	return gp
}
