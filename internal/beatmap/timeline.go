package beatmap

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// EncodeTimeline stable-sorts events by time and renders every playable one
// as a line, joined by newlines with no trailing delimiter. Equal times keep
// their scan order. The input slice is not modified.
func EncodeTimeline(events []Event, bpm float64) string {
	ordered := append([]Event(nil), events...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Time() < ordered[j].Time()
	})

	bps := bpm / 60
	lines := make([]string, 0, len(ordered))
	for _, ev := range ordered {
		if l, ok := ev.line(bps); ok {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

// EncodeDocument runs normalization and encoding for one difficulty document.
func EncodeDocument(doc []byte, bpm float64) (string, error) {
	_, events, err := Normalize(doc)
	if err != nil {
		return "", err
	}
	return EncodeTimeline(events, bpm), nil
}

func (e Note) line(bps float64) (string, bool) {
	return row('N', e.At/bps, e.Col, e.Row, e.Color, e.Direction, e.Angle), true
}

func (e Obstacle) line(bps float64) (string, bool) {
	return row('O', e.At/bps, e.Col, e.Row, e.Width, e.Height, e.Duration/bps), true
}

func (e BurstSliderHead) line(bps float64) (string, bool) {
	return row('N', e.At/bps, e.Col, e.Row, e.Color, e.Direction, 0), true
}

func (e BurstSliderTail) line(bps float64) (string, bool) {
	return row('N', e.At/bps, e.Col, e.Row, e.Color, e.Direction, 0), true
}

func (Ignored) line(float64) (string, bool) { return "", false }

func row(kind byte, fields ...float64) string {
	var b strings.Builder
	b.WriteByte(kind)
	for _, f := range fields {
		b.WriteByte(',')
		b.WriteString(formatNumber(f))
	}
	return b.String()
}

// formatNumber renders the shortest decimal that round-trips, so whole
// values print without a fraction. Magnitudes of 1e21 and above or below
// 1e-6 switch to exponent form, written as 1e+21 and 1.5e-7.
func formatNumber(f float64) string {
	if f == 0 {
		return "0"
	}
	if abs := math.Abs(f); abs < 1e21 && abs >= 1e-6 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, exp, ok := strings.Cut(s, "e")
	if !ok {
		return s
	}
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mantissa + "e" + sign + digits
}
