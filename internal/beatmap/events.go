package beatmap

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidDocument marks a difficulty document that is not valid JSON.
var ErrInvalidDocument = errors.New("invalid difficulty document")

// Event is one normalized timeline entry. Time is the raw document time;
// encoding divides it by beats-per-second.
type Event interface {
	Time() float64
	line(bps float64) (string, bool)
}

// Note is a playable block. Bombs are notes with color 3.
type Note struct {
	At        float64
	Col       float64
	Row       float64
	Color     float64
	Direction float64
	Angle     float64
}

// Obstacle is a wall. Row and Height are already in v3 geometry.
type Obstacle struct {
	At       float64
	Col      float64
	Row      float64
	Width    float64
	Height   float64
	Duration float64
}

// BurstSliderHead is the starting point of a burst slider.
type BurstSliderHead struct {
	At        float64
	Col       float64
	Row       float64
	Color     float64
	Direction float64
}

// BurstSliderTail is the end point of a burst slider. Color and Direction
// are copied from its head.
type BurstSliderTail struct {
	At        float64
	Col       float64
	Row       float64
	Color     float64
	Direction float64
}

// Ignored is an entry with no timeline encoding (lighting, bpm changes,
// rotations). Tag is the singularized array key it came from.
type Ignored struct {
	At  float64
	Tag string
}

func (e Note) Time() float64            { return e.At }
func (e Obstacle) Time() float64        { return e.At }
func (e BurstSliderHead) Time() float64 { return e.At }
func (e BurstSliderTail) Time() float64 { return e.At }
func (e Ignored) Time() float64         { return e.At }

// Normalize flattens the event arrays of a difficulty document into a single
// sequence in scan order: array keys in generation order, entries in stored
// order, every burst slider as an adjacent head and tail pair. Missing or
// non-array keys are skipped.
func Normalize(doc []byte) (Generation, []Event, error) {
	if !gjson.ValidBytes(doc) {
		return V2, nil, ErrInvalidDocument
	}
	gen := DetectGeneration(doc)
	timeKey := gen.TimeKey()
	root := gjson.ParseBytes(doc)

	var events []Event
	for _, key := range gen.ArrayKeys() {
		arr := root.Get(key)
		if !arr.IsArray() {
			continue
		}
		arr.ForEach(func(_, entry gjson.Result) bool {
			events = append(events, normalizeEntry(key, timeKey, entry)...)
			return true
		})
	}
	return gen, events, nil
}

func normalizeEntry(key, timeKey string, e gjson.Result) []Event {
	at := e.Get(timeKey).Float()
	num := func(field string) float64 { return e.Get(field).Float() }

	switch key {
	case "_notes":
		return []Event{Note{
			At:        at,
			Col:       num("_lineIndex"),
			Row:       num("_lineLayer"),
			Color:     num("_type"),
			Direction: num("_cutDirection"),
		}}
	case "_obstacles":
		row := num("_type") * 2
		return []Event{Obstacle{
			At:       at,
			Col:      num("_lineIndex"),
			Row:      row,
			Width:    num("_width"),
			Height:   5 - row,
			Duration: num("_duration"),
		}}
	case "colorNotes":
		return []Event{Note{
			At:        at,
			Col:       num("x"),
			Row:       num("y"),
			Color:     num("c"),
			Direction: num("d"),
			Angle:     num("a"),
		}}
	case "bombNotes":
		return []Event{Note{At: at, Col: num("x"), Row: num("y"), Color: 3}}
	case "obstacles":
		return []Event{Obstacle{
			At:       at,
			Col:      num("x"),
			Row:      num("y"),
			Width:    num("w"),
			Height:   num("h"),
			Duration: num("d"),
		}}
	case "burstSliders":
		color, dir := num("c"), num("d")
		return []Event{
			BurstSliderHead{At: at, Col: num("x"), Row: num("y"), Color: color, Direction: dir},
			BurstSliderTail{At: num("tb"), Col: num("tx"), Row: num("ty"), Color: color, Direction: dir},
		}
	default:
		return []Event{Ignored{At: at, Tag: strings.TrimSuffix(key, "s")}}
	}
}
