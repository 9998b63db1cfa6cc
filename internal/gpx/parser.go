package gpx

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/w2vasia/gps-track/internal/track"
)

// ErrMalformedDocument is returned when no strategy can make sense of the
// input, which happens only when the text is not well-formed XML at all.
// Per-point problems never surface here; bad points are dropped and a
// document left with zero valid points is an empty but valid Track.
var ErrMalformedDocument = errors.New("gpx: malformed document")

type strategy struct {
	name string
	run  func(doc []byte) (track.Track, error)
}

// Parser converts raw GPX text into the normalized track model. Strategies
// are tried in order: the conversion-backed path first, then the direct
// XML-walking fallback, which is the correctness backstop. A strategy
// failure is recovered silently; only the last strategy's failure is the
// caller's problem.
type Parser struct {
	logger     *zap.Logger
	strategies []strategy
}

// NewParser builds a parser with the default strategy order. A nil logger
// disables the debug signals.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewParserWithConverter(XMLConverter{}, logger)
}

// NewParserWithConverter swaps the conversion backend of the primary
// strategy; the fallback stays in place regardless.
func NewParserWithConverter(c Converter, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	geo := geojsonStrategy{converter: c}
	fb := fallbackStrategy{logger: logger}
	return &Parser{
		logger: logger,
		strategies: []strategy{
			{name: "geojson", run: geo.parse},
			{name: "fallback", run: fb.parse},
		},
	}
}

// Parse runs the strategies in order and returns the first success.
func (p *Parser) Parse(text string) (track.Track, error) {
	doc := []byte(text)
	var lastErr error
	for _, s := range p.strategies {
		t, err := s.run(doc)
		if err != nil {
			p.logger.Debug("parse strategy failed",
				zap.String("strategy", s.name),
				zap.Error(err))
			lastErr = err
			continue
		}
		return t, nil
	}
	return track.Track{}, fmt.Errorf("%w: %v", ErrMalformedDocument, lastErr)
}

// FallbackParse runs only the XML-walking strategy. The dispatch pool's
// workers use it directly because the conversion backend is not meaningful
// inside an isolated unit.
func FallbackParse(text string) (track.Track, error) {
	t, _, err := parseFallback([]byte(text))
	if err != nil {
		return track.Track{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return t, nil
}
