package domain

import (
	"maps"
	"slices"
	"sort"
	"time"
)

type Source string

const (
	SOURCE_INVERTER     Source = "inverter"
	SOURCE_ENERGY_METER Source = "energy_meter"
)

var AllSources = []Source{SOURCE_ENERGY_METER, SOURCE_INVERTER}

const (
	FIELD_DEVICE_STATUS = "device_status"
	FIELD_STATE1        = "state1"
	FIELD_STATE2        = "state2"
	FIELD_STATE3        = "state3"
	FIELD_ALARM1        = "alarm1"
	FIELD_ALARM2        = "alarm2"
	FIELD_ALARM3        = "alarm3"
	FIELD_INSTANT_PROD  = "instant_prod"
	FIELD_DAILY_PROD    = "daily_prod"

	FIELD_PULL_INSTANT = "pull_instant"
	FIELD_PUSH_INSTANT = "push_instant"
	FIELD_PULL_DAY     = "pull_day"
	FIELD_PULL_NIGHT   = "pull_night"
	FIELD_PUSH_DAY     = "push_day"
	FIELD_PUSH_NIGHT   = "push_night"
)

// InverterFields and MeterFields are the scalar fields forwarded per source, in forwarding order.
var InverterFields = []string{
	FIELD_INSTANT_PROD,
	FIELD_DAILY_PROD,
	FIELD_DEVICE_STATUS,
	FIELD_STATE1,
	FIELD_STATE2,
	FIELD_STATE3,
	FIELD_ALARM1,
	FIELD_ALARM2,
	FIELD_ALARM3,
}

var MeterFields = []string{
	FIELD_PULL_INSTANT,
	FIELD_PUSH_INSTANT,
	FIELD_PULL_DAY,
	FIELD_PULL_NIGHT,
	FIELD_PUSH_DAY,
	FIELD_PUSH_NIGHT,
}

func FieldsOf(source Source) []string {
	switch source {
	case SOURCE_INVERTER:
		return InverterFields
	case SOURCE_ENERGY_METER:
		return MeterFields
	}
	return nil
}

func ParseSource(s string) (Source, bool) {
	for _, src := range AllSources {
		if string(src) == s {
			return src, true
		}
	}
	return "", false
}

// ReadingRecord is one complete reading of a source. It is immutable: the
// constructor copies its inputs and accessors never expose internal state.
type ReadingRecord struct {
	source Source
	time   time.Time
	values map[string]*float64
	bits   map[string][]uint8
}

func NewReadingRecord(source Source, t time.Time, values map[string]*float64, bits map[string][]uint8) ReadingRecord {
	rec := ReadingRecord{
		source: source,
		time:   t,
		values: make(map[string]*float64, len(values)),
		bits:   make(map[string][]uint8, len(bits)),
	}
	for k, v := range values {
		if v != nil {
			c := *v
			v = &c
		}
		rec.values[k] = v
	}
	for k, v := range bits {
		rec.bits[k] = slices.Clone(v)
	}
	return rec
}

func (r ReadingRecord) Source() Source {
	return r.source
}

func (r ReadingRecord) Time() time.Time {
	return r.time
}

func (r ReadingRecord) IsZero() bool {
	return r.source == ""
}

// Has reports whether the field was produced, even with a null value.
func (r ReadingRecord) Has(field string) bool {
	_, ok := r.values[field]
	return ok
}

// Value returns the field value, ok is false for absent or null fields.
func (r ReadingRecord) Value(field string) (float64, bool) {
	v, ok := r.values[field]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

func (r ReadingRecord) Bits(field string) []uint8 {
	return slices.Clone(r.bits[field])
}

// Fields lists the produced fields, known fields first in forwarding order.
func (r ReadingRecord) Fields() []string {
	var fields []string
	seen := map[string]bool{}
	for _, f := range FieldsOf(r.source) {
		if r.Has(f) {
			fields = append(fields, f)
			seen[f] = true
		}
	}
	var extra []string
	for f := range r.values {
		if !seen[f] {
			extra = append(extra, f)
		}
	}
	sort.Strings(extra)
	return append(fields, extra...)
}

func Float(v float64) *float64 {
	return &v
}

// Batch holds the latest reading of every enabled source.
type Batch map[Source]ReadingRecord

func (b Batch) Sources() []Source {
	var sources []Source
	for s := range b {
		sources = append(sources, s)
	}
	slices.Sort(sources)
	return sources
}

func (b Batch) Clone() Batch {
	return maps.Clone(b)
}
