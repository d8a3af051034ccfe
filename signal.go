package strata

import (
	"fmt"
	"strings"
)

// SignalKind classifies a signal's temporal/structural shape. The kind fixes
// the index domain: Static and String signals hold one value per entity,
// time-dependent kinds are indexed by timestamp on a calendar increment, and
// depth-dependent kinds by a numeric depth on a depth increment.
type SignalKind string

const (
	KindStatic               SignalKind = "Static"
	KindString               SignalKind = "String"
	KindTimeDependent        SignalKind = "TimeDependent"
	KindDepthDependent       SignalKind = "DepthDependent"
	KindStringTimeDependent  SignalKind = "StringTimeDependent"
	KindStringDepthDependent SignalKind = "StringDepthDependent"
)

// indexDomain is the index vocabulary a kind is dispatched on.
type indexDomain int

const (
	domainNone indexDomain = iota
	domainTime
	domainDepth
)

func (k SignalKind) domain() indexDomain {
	switch k {
	case KindTimeDependent, KindStringTimeDependent:
		return domainTime
	case KindDepthDependent, KindStringDepthDependent:
		return domainDepth
	default:
		return domainNone
	}
}

// isText reports whether the kind carries string values rather than numbers.
func (k SignalKind) isText() bool {
	switch k {
	case KindString, KindStringTimeDependent, KindStringDepthDependent:
		return true
	}
	return false
}

// dataRoute returns the data endpoint family for the kind.
func (k SignalKind) dataRoute() string {
	switch k {
	case KindStatic:
		return "Data/Static"
	case KindString:
		return "Data/String"
	case KindTimeDependent:
		return "Data/Time"
	case KindDepthDependent:
		return "Data/Depth"
	case KindStringTimeDependent:
		return "Data/StringTime"
	case KindStringDepthDependent:
		return "Data/StringDepth"
	}
	return ""
}

// ParseSignalKind normalizes a kind name, accepting the short synonyms the
// platform's other clients use ("time", "depth", "timestring", ...).
func ParseSignalKind(s string) (SignalKind, error) {
	switch normalize(s) {
	case "static", "staticnumeric":
		return KindStatic, nil
	case "string", "staticstring":
		return KindString, nil
	case "time", "timenumeric", "timedependent":
		return KindTimeDependent, nil
	case "depth", "depthnumeric", "depthdependent":
		return KindDepthDependent, nil
	case "stringtime", "timestring", "stringtimedependent":
		return KindStringTimeDependent, nil
	case "stringdepth", "depthstring", "stringdepthdependent":
		return KindStringDepthDependent, nil
	}
	return "", fmt.Errorf("strata: unknown signal kind %q", s)
}

// TimeIncrement is the calendar step of a time-indexed window.
type TimeIncrement string

const (
	EverySecond         TimeIncrement = "EverySecond"
	EveryMinute         TimeIncrement = "EveryMinute"
	EveryFiveMinutes    TimeIncrement = "EveryFiveMinutes"
	EveryFifteenMinutes TimeIncrement = "EveryFifteenMinutes"
	Hourly              TimeIncrement = "Hourly"
	Daily               TimeIncrement = "Daily"
	Monthly             TimeIncrement = "Monthly"
	Quarterly           TimeIncrement = "Quarterly"
	Yearly              TimeIncrement = "Yearly"
)

// DepthIncrement is the depth step of a depth-indexed window.
type DepthIncrement string

const (
	TenthMeter  DepthIncrement = "TenthMeter"
	EighthMeter DepthIncrement = "EighthMeter"
	HalfFoot    DepthIncrement = "HalfFoot"
	Foot        DepthIncrement = "Foot"
	HalfMeter   DepthIncrement = "HalfMeter"
	Meter       DepthIncrement = "Meter"
)

// ParseTimeIncrement normalizes a time increment, accepting the canonical
// names and a small set of case-insensitive synonyms ("daily", "d", "1day").
func ParseTimeIncrement(s string) (TimeIncrement, error) {
	switch normalize(s) {
	case "everysecond", "s", "sec", "second", "1s", "1sec", "1second":
		return EverySecond, nil
	case "everyminute", "min", "minute", "1min", "1minute":
		return EveryMinute, nil
	case "everyfiveminutes", "everyfiveminute", "5min", "5minutes":
		return EveryFiveMinutes, nil
	case "everyfifteenminutes", "15min", "15minutes":
		return EveryFifteenMinutes, nil
	case "hourly", "h", "hr", "hour", "1h", "1hr", "1hour":
		return Hourly, nil
	case "daily", "d", "day", "1d", "1day":
		return Daily, nil
	case "monthly", "m", "month", "1m", "1month":
		return Monthly, nil
	case "quarterly", "q", "quarter", "3m", "3month":
		return Quarterly, nil
	case "yearly", "y", "year", "1y", "1year":
		return Yearly, nil
	}
	return "", fmt.Errorf("%w: unknown time increment %q", ErrInvalidRangeSpec, s)
}

// ParseDepthIncrement normalizes a depth increment, accepting the canonical
// names and common synonyms ("meter", "m", "ft", "0.5m").
func ParseDepthIncrement(s string) (DepthIncrement, error) {
	switch normalize(s) {
	case "meter", "m", "1meter", "1m":
		return Meter, nil
	case "halfmeter", "halfm", ".5meter", ".5m", "0.5meter", "0.5m":
		return HalfMeter, nil
	case "tenthmeter", ".1meter", ".1m", "0.1meter", "0.1m":
		return TenthMeter, nil
	case "eighthmeter", ".125meter", ".125m", "0.125meter", "0.125m":
		return EighthMeter, nil
	case "foot", "ft", "1foot", "1ft":
		return Foot, nil
	case "halffoot", "halfft", ".5foot", ".5ft", "0.5foot", "0.5ft":
		return HalfFoot, nil
	}
	return "", fmt.Errorf("%w: unknown depth increment %q", ErrInvalidRangeSpec, s)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Signal describes a named measurement channel. Descriptors are immutable for
// the duration of one synchronization call and re-fetched per call.
type Signal struct {
	Name        string     `json:"Name"`
	ShortName   string     `json:"ShortName,omitempty"`
	Kind        SignalKind `json:"SignalType"`
	Unit        string     `json:"StorageUnitName"`
	Measurement string     `json:"MeasurementName,omitempty"`
}
