package beatmap

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidInfo marks an info document that cannot drive a conversion.
var ErrInvalidInfo = errors.New("invalid info document")

// InfoFileName is the archive entry holding level metadata. Lookups are
// case-insensitive.
const InfoFileName = "info.dat"

// Info is the root metadata document of a level package.
type Info struct {
	SongName              string                 `json:"_songName"`
	BPM                   float64                `json:"_beatsPerMinute"`
	PreviewStart          float64                `json:"_previewStartTime"`
	PreviewDuration       float64                `json:"_previewDuration"`
	SongFilename          string                 `json:"_songFilename"`
	CoverImageFilename    string                 `json:"_coverImageFilename"`
	EnvironmentName       string                 `json:"_environmentName"`
	SongTimeOffset        float64                `json:"_songTimeOffset"`
	DifficultyBeatmapSets []DifficultyBeatmapSet `json:"_difficultyBeatmapSets"`
}

// DifficultyBeatmapSet groups the difficulties of one characteristic.
type DifficultyBeatmapSet struct {
	Characteristic string              `json:"_beatmapCharacteristicName"`
	Beatmaps       []DifficultyBeatmap `json:"_difficultyBeatmaps"`
}

// DifficultyBeatmap references one difficulty document inside the package.
type DifficultyBeatmap struct {
	Difficulty     string            `json:"_difficulty"`
	NoteJumpSpeed  float64           `json:"_noteJumpMovementSpeed"`
	NoteJumpOffset float64           `json:"_noteJumpStartBeatOffset"`
	Filename       string            `json:"_beatmapFilename"`
	CustomData     *BeatmapExtension `json:"_customData,omitempty"`
}

// BeatmapExtension carries the optional custom data block of a difficulty.
type BeatmapExtension struct {
	DifficultyLabel string `json:"_difficultyLabel,omitempty"`
}

// Label returns the custom difficulty label, or nil when none is set.
func (d DifficultyBeatmap) Label() *string {
	if d.CustomData == nil || d.CustomData.DifficultyLabel == "" {
		return nil
	}
	label := d.CustomData.DifficultyLabel
	return &label
}

// ParseInfo decodes an info document. A non-positive bpm is rejected since
// every beat-time is derived from it.
func ParseInfo(data []byte) (*Info, error) {
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInfo, err)
	}
	if info.BPM <= 0 {
		return nil, fmt.Errorf("%w: bpm must be positive, got %v", ErrInvalidInfo, info.BPM)
	}
	return &info, nil
}

// MapFile is the converted document served to the playback client.
type MapFile struct {
	MapID           string                                          `json:"mapID"`
	BPM             float64                                         `json:"bpm"`
	Name            string                                          `json:"name"`
	PreviewStart    float64                                         `json:"previewStart"`
	PreviewDuration float64                                         `json:"previewDuration"`
	SongFilename    string                                          `json:"songFilename"`
	CoverImage      string                                          `json:"coverImage"`
	Environment     string                                          `json:"environment"`
	TimeOffset      float64                                         `json:"timeOffset"`
	MapSets         map[Characteristic]map[Difficulty]DifficultyMap `json:"mapSets"`
}

// DifficultyMap is one playable difficulty with its encoded timeline.
type DifficultyMap struct {
	NJS            float64 `json:"njs"`
	NJSOffset      float64 `json:"njsOffset"`
	Label          *string `json:"label"`
	DifficultyFile string  `json:"difficultyFile"`
}

// DifficultyCount reports how many difficulties survived assembly.
func (m *MapFile) DifficultyCount() int {
	if m == nil {
		return 0
	}
	total := 0
	for _, diffs := range m.MapSets {
		total += len(diffs)
	}
	return total
}
