package beatmap

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Generation identifies the schema of a difficulty document.
type Generation int

const (
	V2 Generation = 2
	V3 Generation = 3
)

func (g Generation) String() string {
	return "v" + strconv.Itoa(int(g))
}

// TimeKey is the per-record field holding the raw event time.
func (g Generation) TimeKey() string {
	if g == V3 {
		return "b"
	}
	return "_time"
}

var (
	v3ArrayKeys = []string{
		"bpmEvents",
		"rotationEvents",
		"colorNotes",
		"bombNotes",
		"obstacles",
		"burstSliders",
		"basicBeatmapEvents",
		"colorBoostBeatmapEvents",
	}
	v2ArrayKeys = []string{"_events", "_notes", "_obstacles"}
)

// ArrayKeys lists the event arrays scanned for this generation, in scan order.
func (g Generation) ArrayKeys() []string {
	if g == V3 {
		return append([]string(nil), v3ArrayKeys...)
	}
	return append([]string(nil), v2ArrayKeys...)
}

// DetectGeneration classifies a difficulty document. The v3 "version" key is
// consulted before the legacy "_version" key; a document is v3 when either
// parses to a value of at least 3. Missing or unparseable versions mean v2.
func DetectGeneration(doc []byte) Generation {
	for _, key := range []string{"version", "_version"} {
		if v, ok := versionNumber(gjson.GetBytes(doc, key)); ok && v >= 3 {
			return V3
		}
	}
	return V2
}

func versionNumber(res gjson.Result) (float64, bool) {
	switch res.Type {
	case gjson.Number:
		return res.Num, true
	case gjson.String:
		return leadingDecimal(res.Str)
	default:
		return 0, false
	}
}

// leadingDecimal parses the longest decimal prefix of s, so "3.2.0" yields 3.2.
func leadingDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := 0
	for end < len(s) && isDigit(s[end]) {
		end++
		digits++
	}
	if end < len(s) && s[end] == '.' {
		frac := end + 1
		for frac < len(s) && isDigit(s[frac]) {
			frac++
			digits++
		}
		end = frac
	}
	if digits == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s[:end], "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
