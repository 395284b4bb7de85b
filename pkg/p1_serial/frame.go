package p1_serial

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	OBIS_CLASS_ELECTRICITY = "1-0"

	UNIT_KWH = "kWh"
	UNIT_KW  = "kW"

	// MaxLineLength bounds a meter line; longer lines are noise.
	MaxLineLength = 1024
)

type obisField struct {
	name string
	unit string
}

// only the 1-0 class codes below are mapped, every other OBIS code is ignored
var obisFields = map[string]obisField{
	"1.8.1": {name: "pull_day", unit: UNIT_KWH},
	"1.8.2": {name: "pull_night", unit: UNIT_KWH},
	"2.8.1": {name: "push_day", unit: UNIT_KWH},
	"2.8.2": {name: "push_night", unit: UNIT_KWH},
	"1.7.0": {name: "pull_instant", unit: UNIT_KW},
	"2.7.0": {name: "push_instant", unit: UNIT_KW},
}

var (
	startMarker = regexp.MustCompile(`^/FLU5\\`)
	endMarker   = regexp.MustCompile(`^!`)
	dataLine    = regexp.MustCompile(`^(\d+-\d+):(\d+\.\d+\.\d+)(.*)$`)
	payloadKWh  = regexp.MustCompile(`^\((\d+\.\d*)\*kWh\)$`)
	payloadKW   = regexp.MustCompile(`^\((\d+\.\d*)\*kW\)$`)
)

// MeterFrame is one complete meter transmission. A field present with a nil
// value was sent by the meter with a payload that did not match its unit.
type MeterFrame struct {
	Time   time.Time
	Values map[string]*float64
}

// FramingError reports a start marker received while a frame was still open.
type FramingError struct {
	Line    string
	Dropped int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("new frame started while handling a previous frame (%d fields dropped): [%s]", e.Dropped, e.Line)
}

// ParseError reports a line inside a frame that matches no known pattern or
// exceeds MaxLineLength.
type ParseError struct {
	Line string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse frame line: [%s]", e.Line)
}

// FrameParser rebuilds meter frames from a line stream. It is not safe for
// concurrent use; feed it from a single goroutine.
type FrameParser struct {
	frameOpen bool
	current   MeterFrame
	now       func() time.Time
}

func NewFrameParser() *FrameParser {
	return &FrameParser{now: time.Now}
}

func NewFrameParserWithClock(now func() time.Time) *FrameParser {
	return &FrameParser{now: now}
}

func (p *FrameParser) FrameOpen() bool {
	return p.frameOpen
}

// Feed consumes one line. It returns the completed frame when the line closes one.
// FramingError and ParseError are informative: the parser stays usable.
func (p *FrameParser) Feed(line string) (*MeterFrame, error) {
	line = strings.TrimSuffix(line, "\r")

	if line == "" {
		return nil, nil
	}

	if len(line) > MaxLineLength {
		if !p.frameOpen {
			return nil, nil
		}
		return nil, &ParseError{Line: line[:32] + "..."}
	}

	if startMarker.MatchString(line) {
		var err error
		if p.frameOpen {
			err = &FramingError{Line: line, Dropped: len(p.current.Values)}
		}
		p.current = MeterFrame{
			Time:   p.now(),
			Values: map[string]*float64{},
		}
		p.frameOpen = true
		return nil, err
	}

	if !p.frameOpen {
		return nil, nil
	}

	if endMarker.MatchString(line) {
		frame := p.current
		p.current = MeterFrame{}
		p.frameOpen = false
		return &frame, nil
	}

	matches := dataLine.FindStringSubmatch(line)
	if matches == nil {
		return nil, &ParseError{Line: line}
	}
	if matches[1] != OBIS_CLASS_ELECTRICITY {
		return nil, nil
	}
	if field, ok := obisFields[matches[2]]; ok {
		p.current.Values[field.name] = extractValue(matches[3], field.unit)
	}
	return nil, nil
}

// extractValue parses "(000661.701*kWh)" style payloads, nil when the wrapper does not match.
func extractValue(payload string, unit string) *float64 {
	var re *regexp.Regexp
	switch unit {
	case UNIT_KWH:
		re = payloadKWh
	case UNIT_KW:
		re = payloadKW
	default:
		return nil
	}
	m := re.FindStringSubmatch(payload)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}
