package types

import "strconv"

// SampleKind says which of the Sample fields is meaningful.
type SampleKind int

const (
	SampleAbsent SampleKind = iota
	SampleNumber
	SampleFlag
)

// Sample is the value read for a SourceKey in one tick. Absence is a normal
// result, not an error.
type Sample struct {
	Kind   SampleKind
	Number float64
	Flag   bool
}

// Absent returns a Sample with no value.
func Absent() Sample {
	return Sample{}
}

// Number returns a numeric Sample.
func Number(v float64) Sample {
	return Sample{Kind: SampleNumber, Number: v}
}

// Flag returns a boolean Sample.
func Flag(b bool) Sample {
	return Sample{Kind: SampleFlag, Flag: b}
}

// Present reports whether the sample carries a value.
func (s Sample) Present() bool {
	return s.Kind != SampleAbsent
}

// Numeric returns the value of a numeric sample. Flags are not numbers.
func (s Sample) Numeric() (float64, bool) {
	if s.Kind != SampleNumber {
		return 0, false
	}
	return s.Number, true
}

// Float returns the sample as a number. Flags are 1 for on and 0 for off.
func (s Sample) Float() (float64, bool) {
	switch s.Kind {
	case SampleNumber:
		return s.Number, true
	case SampleFlag:
		if s.Flag {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (s Sample) String() string {
	switch s.Kind {
	case SampleNumber:
		return strconv.FormatFloat(s.Number, 'g', -1, 64)
	case SampleFlag:
		if s.Flag {
			return "on"
		}
		return "off"
	default:
		return "absent"
	}
}
