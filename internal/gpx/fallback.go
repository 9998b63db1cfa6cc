package gpx

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/w2vasia/gps-track/internal/track"
)

// fallbackStrategy walks the XML token stream directly. It matches elements
// by local name only, so namespace prefixes never matter, and it tolerates
// everything short of ill-formed markup: a point with a missing or
// non-numeric coordinate is dropped, an unparsable elevation or timestamp
// is omitted from an otherwise valid point.
type fallbackStrategy struct {
	logger *zap.Logger
}

func (s fallbackStrategy) parse(doc []byte) (track.Track, error) {
	t, dropped, err := parseFallback(doc)
	if err == nil && dropped > 0 && s.logger != nil {
		s.logger.Debug("dropped invalid points", zap.Int("count", dropped))
	}
	return t, err
}

func parseFallback(doc []byte) (track.Track, int, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))

	var t track.Track
	var stack []string
	var current track.Segment
	inSegment := false
	sawElement := false
	dropped := 0
	docNameSet, docDescSet, docAuthorSet := false, false, false

	parent := func() string {
		if len(stack) == 0 {
			return ""
		}
		return stack[len(stack)-1]
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return track.Track{}, dropped, err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			sawElement = true
			switch el.Name.Local {
			case "trkseg", "rte":
				inSegment = true
				current = nil
				stack = append(stack, el.Name.Local)
			case "trkpt", "rtept":
				wp, ok, err := consumePoint(dec, el, false)
				if err != nil {
					return track.Track{}, dropped, err
				}
				if !ok {
					dropped++
				} else if inSegment {
					current = append(current, wp)
				}
			case "wpt":
				wp, ok, err := consumePoint(dec, el, true)
				if err != nil {
					return track.Track{}, dropped, err
				}
				if !ok {
					dropped++
				} else if len(stack) <= 1 {
					t.Waypoints = append(t.Waypoints, wp)
				}
			case "name", "desc":
				text, err := readText(dec)
				if err != nil {
					return track.Track{}, dropped, err
				}
				if p := parent(); p == "gpx" || p == "metadata" {
					if el.Name.Local == "name" && !docNameSet {
						t.Name = strings.TrimSpace(text)
						docNameSet = true
					}
					if el.Name.Local == "desc" && !docDescSet {
						t.Desc = strings.TrimSpace(text)
						docDescSet = true
					}
				}
			case "author":
				text, err := readAuthor(dec)
				if err != nil {
					return track.Track{}, dropped, err
				}
				if p := parent(); (p == "gpx" || p == "metadata") && !docAuthorSet {
					t.Author = text
					docAuthorSet = true
				}
			default:
				stack = append(stack, el.Name.Local)
			}
		case xml.EndElement:
			if el.Name.Local == "trkseg" || el.Name.Local == "rte" {
				if len(current) > 0 {
					t.Segments = append(t.Segments, current)
				}
				current = nil
				inSegment = false
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if !sawElement {
		return track.Track{}, dropped, errors.New("document contains no xml elements")
	}
	return t, dropped, nil
}

// consumePoint reads a whole point element including nested extensions.
// It reports ok=false when latitude or longitude is missing or not a finite
// number; the subtree is consumed either way.
func consumePoint(dec *xml.Decoder, start xml.StartElement, withName bool) (track.Waypoint, bool, error) {
	var latAttr, lonAttr *string
	for _, a := range start.Attr {
		v := a.Value
		switch a.Name.Local {
		case "lat":
			latAttr = &v
		case "lon":
			lonAttr = &v
		}
	}

	var eleText, timeText, nameText string
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return track.Waypoint{}, false, err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if depth == 1 {
				switch el.Name.Local {
				case "ele":
					if eleText, err = readText(dec); err != nil {
						return track.Waypoint{}, false, err
					}
					continue
				case "time":
					if timeText, err = readText(dec); err != nil {
						return track.Waypoint{}, false, err
					}
					continue
				case "name":
					if withName {
						if nameText, err = readText(dec); err != nil {
							return track.Waypoint{}, false, err
						}
						continue
					}
				}
			}
			depth++
		case xml.EndElement:
			depth--
		}
	}

	if latAttr == nil || lonAttr == nil {
		return track.Waypoint{}, false, nil
	}
	lat, okLat := finiteFloat(*latAttr)
	lng, okLng := finiteFloat(*lonAttr)
	if !okLat || !okLng {
		return track.Waypoint{}, false, nil
	}

	wp := track.Waypoint{Lat: lat, Lng: lng, Name: strings.TrimSpace(nameText)}
	if ele, ok := finiteFloat(eleText); ok {
		wp.Elevation = &ele
	}
	if ts, ok := parseInstant(timeText); ok {
		wp.Time = &ts
	}
	return wp, true, nil
}

// readText consumes the current element and returns the character data of
// the element itself, ignoring any nested children.
func readText(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 1 {
				sb.Write(el)
			}
		}
	}
	return sb.String(), nil
}

// readAuthor handles both GPX 1.0 (<author>text</author>) and GPX 1.1
// (<author><name>text</name>...</author>) shapes.
func readAuthor(dec *xml.Decoder) (string, error) {
	var direct, nested strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch el := tok.(type) {
		case xml.StartElement:
			if depth == 1 && el.Name.Local == "name" {
				text, err := readText(dec)
				if err != nil {
					return "", err
				}
				nested.WriteString(text)
				continue
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 1 {
				direct.Write(el)
			}
		}
	}
	if n := strings.TrimSpace(nested.String()); n != "" {
		return n, nil
	}
	return strings.TrimSpace(direct.String()), nil
}
