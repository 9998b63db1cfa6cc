package gpx

import (
	"errors"
	"strings"
	"testing"
	"time"

	geojson "github.com/paulmach/go.geojson"

	"github.com/w2vasia/gps-track/internal/track"
)

const simpleDoc = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <metadata>
    <name>Morning ride</name>
    <desc>around the lake</desc>
    <author><name>w2</name></author>
  </metadata>
  <trk>
    <name>Lap 1</name>
    <trkseg>
      <trkpt lat="47.0" lon="8.5"><ele>401.5</ele><time>2024-05-01T08:00:00Z</time></trkpt>
      <trkpt lat="47.001" lon="8.501"><ele>403.0</ele><time>2024-05-01T08:00:10Z</time></trkpt>
      <trkpt lat="47.002" lon="8.502"><ele>404.5</ele><time>2024-05-01T08:00:20Z</time></trkpt>
    </trkseg>
    <trkseg>
      <trkpt lat="47.010" lon="8.510"/>
      <trkpt lat="47.011" lon="8.511"/>
    </trkseg>
  </trk>
  <wpt lat="47.05" lon="8.55"><ele>1898</ele><name>Summit</name></wpt>
</gpx>`

const routeDoc = `<gpx version="1.0">
  <name>Planned route</name>
  <rte>
    <name>To the hut</name>
    <rtept lat="46.5" lon="8.0"><ele>1200</ele></rtept>
    <rtept lat="46.51" lon="8.01"><ele>1300</ele></rtept>
    <rtept lat="46.52" lon="8.02"><ele>1450</ele></rtept>
  </rte>
</gpx>`

const prefixedDoc = `<g:gpx xmlns:g="http://www.topografix.com/GPX/1/1">
  <g:trk><g:trkseg>
    <g:trkpt lat="10.0" lon="20.0"><g:ele>5</g:ele></g:trkpt>
    <g:trkpt lat="10.1" lon="20.1"><g:ele>6</g:ele></g:trkpt>
  </g:trkseg></g:trk>
</g:gpx>`

const missingLatDoc = `<gpx>
  <trk><trkseg>
    <trkpt lat="47.0" lon="8.5"/>
    <trkpt lon="8.6"/>
    <trkpt lat="47.2" lon="8.7"/>
  </trkseg></trk>
</gpx>`

const badAttrDoc = `<gpx>
  <trk><trkseg>
    <trkpt lat="47.0" lon="8.5"/>
    <trkpt lat="oops" lon="8.6"/>
    <trkpt lat="47.2" lon="8.7"/>
  </trkseg></trk>
</gpx>`

func mustParse(t *testing.T, p *Parser, doc string) track.Track {
	t.Helper()
	tr, err := p.Parse(doc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return tr
}

func TestParseSimpleDocument(t *testing.T) {
	tr := mustParse(t, NewParser(nil), simpleDoc)

	if tr.Name != "Morning ride" || tr.Desc != "around the lake" || tr.Author != "w2" {
		t.Fatalf("unexpected metadata: %+v", tr)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(tr.Segments))
	}
	if len(tr.Segments[0]) != 3 || len(tr.Segments[1]) != 2 {
		t.Fatalf("unexpected segment sizes: %d, %d", len(tr.Segments[0]), len(tr.Segments[1]))
	}

	p0 := tr.Segments[0][0]
	if p0.Lat != 47.0 || p0.Lng != 8.5 {
		t.Fatalf("unexpected first point: %+v", p0)
	}
	if p0.Elevation == nil || *p0.Elevation != 401.5 {
		t.Fatalf("expected elevation 401.5, got %+v", p0.Elevation)
	}
	want := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	if p0.Time == nil || !p0.Time.Equal(want) {
		t.Fatalf("unexpected time: %+v", p0.Time)
	}

	// Second segment has no elevation or time.
	if tr.Segments[1][0].Elevation != nil || tr.Segments[1][0].Time != nil {
		t.Fatalf("expected bare points in second segment")
	}

	if len(tr.Waypoints) != 1 {
		t.Fatalf("expected 1 waypoint, got %d", len(tr.Waypoints))
	}
	if tr.Waypoints[0].Name != "Summit" {
		t.Fatalf("unexpected waypoint name: %q", tr.Waypoints[0].Name)
	}
}

func TestParseRouteFlattening(t *testing.T) {
	tr := mustParse(t, NewParser(nil), routeDoc)

	if len(tr.Segments) != 1 {
		t.Fatalf("expected route to become one segment, got %d", len(tr.Segments))
	}
	if len(tr.Segments[0]) != 3 {
		t.Fatalf("expected 3 route points, got %d", len(tr.Segments[0]))
	}
	if tr.Name != "Planned route" {
		t.Fatalf("expected GPX 1.0 top-level name, got %q", tr.Name)
	}
}

func TestParseNamespacePrefixes(t *testing.T) {
	tr := mustParse(t, NewParser(nil), prefixedDoc)
	if len(tr.Segments) != 1 || len(tr.Segments[0]) != 2 {
		t.Fatalf("unexpected structure: %+v", tr.Segments)
	}
}

func TestParseDropsPointMissingLat(t *testing.T) {
	tr := mustParse(t, NewParser(nil), missingLatDoc)
	if len(tr.Segments) != 1 || len(tr.Segments[0]) != 2 {
		t.Fatalf("expected malformed point to be dropped: %+v", tr.Segments)
	}
	if tr.Segments[0][0].Lat != 47.0 || tr.Segments[0][1].Lat != 47.2 {
		t.Fatalf("wrong surviving points: %+v", tr.Segments[0])
	}
}

func TestParseDropsPointWithBadAttr(t *testing.T) {
	// The strict conversion path cannot decode "oops" as a float, so this
	// document exercises the fallback, which drops the single point.
	tr := mustParse(t, NewParser(nil), badAttrDoc)
	if len(tr.Segments) != 1 || len(tr.Segments[0]) != 2 {
		t.Fatalf("expected malformed point to be dropped: %+v", tr.Segments)
	}
}

func TestParseMalformedXML(t *testing.T) {
	for _, doc := range []string{
		"<gpx><trk><trkseg>",
		"not xml at all",
		"",
		"<gpx><trk></gpx></trk>",
	} {
		_, err := NewParser(nil).Parse(doc)
		if !errors.Is(err, ErrMalformedDocument) {
			t.Fatalf("doc %q: expected ErrMalformedDocument, got %v", doc, err)
		}
	}
}

func TestParseZeroValidPointsIsEmptyValid(t *testing.T) {
	doc := `<gpx><trk><trkseg><trkpt lon="8.5"/><trkpt lon="8.6"/></trkseg></trk></gpx>`
	tr := mustParse(t, NewParser(nil), doc)
	if len(tr.Segments) != 0 || len(tr.Waypoints) != 0 {
		t.Fatalf("expected empty track, got %+v", tr)
	}
}

func TestParseInvalidElevationAndTimeAreOmitted(t *testing.T) {
	doc := `<gpx><trk><trkseg>
	  <trkpt lat="1" lon="2"><ele>abc</ele><time>yesterday</time></trkpt>
	</trkseg></trk></gpx>`
	tr := mustParse(t, NewParser(nil), doc)
	if len(tr.Segments) != 1 || len(tr.Segments[0]) != 1 {
		t.Fatalf("expected the point to survive: %+v", tr.Segments)
	}
	p := tr.Segments[0][0]
	if p.Elevation != nil || p.Time != nil {
		t.Fatalf("expected unparsable ele/time to be omitted: %+v", p)
	}
}

func TestParseTimeWithoutZone(t *testing.T) {
	doc := `<gpx><trk><trkseg>
	  <trkpt lat="1" lon="2"><time>2024-05-01T08:00:00</time></trkpt>
	</trkseg></trk></gpx>`
	tr := mustParse(t, NewParser(nil), doc)
	if tr.Segments[0][0].Time == nil {
		t.Fatalf("expected zoneless timestamp to parse")
	}
}

func TestStrategiesAgree(t *testing.T) {
	for _, doc := range []string{simpleDoc, routeDoc, prefixedDoc, missingLatDoc} {
		primary, err := geojsonStrategy{converter: XMLConverter{}}.parse([]byte(doc))
		if err != nil {
			t.Fatalf("primary strategy: %v", err)
		}
		fb, err := FallbackParse(doc)
		if err != nil {
			t.Fatalf("fallback strategy: %v", err)
		}

		if len(primary.Segments) != len(fb.Segments) {
			t.Fatalf("segment count differs: %d vs %d", len(primary.Segments), len(fb.Segments))
		}
		for i := range primary.Segments {
			if len(primary.Segments[i]) != len(fb.Segments[i]) {
				t.Fatalf("segment %d size differs", i)
			}
			for j := range primary.Segments[i] {
				a, b := primary.Segments[i][j], fb.Segments[i][j]
				if a.Lat != b.Lat || a.Lng != b.Lng {
					t.Fatalf("point %d/%d differs: %+v vs %+v", i, j, a, b)
				}
			}
		}
		if len(primary.Waypoints) != len(fb.Waypoints) {
			t.Fatalf("waypoint count differs")
		}
	}
}

type failingConverter struct{}

func (failingConverter) Convert([]byte) (*geojson.FeatureCollection, error) {
	return nil, errors.New("converter unavailable")
}

func TestParseFallsBackWhenConverterFails(t *testing.T) {
	p := NewParserWithConverter(failingConverter{}, nil)
	tr := mustParse(t, p, simpleDoc)
	if len(tr.Segments) != 2 {
		t.Fatalf("expected fallback result, got %+v", tr.Segments)
	}
}

type nilConverter struct{}

func (nilConverter) Convert([]byte) (*geojson.FeatureCollection, error) {
	return nil, nil
}

func TestParseFallsBackOnNilCollection(t *testing.T) {
	p := NewParserWithConverter(nilConverter{}, nil)
	tr := mustParse(t, p, routeDoc)
	if len(tr.Segments) != 1 {
		t.Fatalf("expected fallback result, got %+v", tr.Segments)
	}
}

func TestConverterEmitsMultiLineForMultiSegmentTrack(t *testing.T) {
	fc, err := XMLConverter{}.Convert([]byte(simpleDoc))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	var foundMulti bool
	for _, f := range fc.Features {
		if f.Geometry.Type == geojson.GeometryMultiLineString {
			foundMulti = true
			if len(f.Geometry.MultiLineString) != 2 {
				t.Fatalf("expected 2 lines, got %d", len(f.Geometry.MultiLineString))
			}
		}
	}
	if !foundMulti {
		t.Fatalf("expected a MultiLineString feature for the two-segment track")
	}
}

func TestExportRendersNormalizedModel(t *testing.T) {
	tr := mustParse(t, NewParser(nil), simpleDoc)
	out, err := Export(tr)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	s := string(out)
	if !strings.Contains(s, "<trkpt") || !strings.Contains(s, "Summit") {
		t.Fatalf("unexpected export output: %s", s)
	}

	// The export parses back to the same structure.
	again := mustParse(t, NewParser(nil), s)
	if len(again.Segments) != len(tr.Segments) || again.PointCount() != tr.PointCount() {
		t.Fatalf("export did not round trip structure")
	}
}
