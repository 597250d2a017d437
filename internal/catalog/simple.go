package catalog

import "github.com/art0007i/bonk-sticks-map-converter/internal/beatmap"

// SimpleMapInfo is the reduced search result served to the playback client.
type SimpleMapInfo struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Metadata MapMetadata     `json:"metadata"`
	Upvotes  int             `json:"upvotes"`
	CoverURL string          `json:"coverURL"`
	Diffs    []SimpleMapDiff `json:"diffs"`
}

// SimpleMapDiff is one difficulty row of a SimpleMapInfo. Characteristic and
// Difficulty are omitted when the name is outside the known tables.
type SimpleMapDiff struct {
	NPS            float64                 `json:"nps"`
	Notes          int                     `json:"notes"`
	Obstacles      int                     `json:"obstacles"`
	Bombs          int                     `json:"bombs"`
	NJS            float64                 `json:"njs"`
	Offset         float64                 `json:"offset"`
	Seconds        float64                 `json:"seconds"`
	Label          string                  `json:"label,omitempty"`
	Characteristic *beatmap.Characteristic `json:"characteristic,omitempty"`
	Difficulty     *beatmap.Difficulty     `json:"difficulty,omitempty"`
}

// Simplify reduces a map document to its latest version's summary. Upvotes
// is the net score, upvotes minus downvotes.
func Simplify(m MapDetail) SimpleMapInfo {
	info := SimpleMapInfo{
		ID:       m.ID,
		Name:     m.Name,
		Metadata: m.Metadata,
		Upvotes:  m.Stats.Upvotes - m.Stats.Downvotes,
		Diffs:    []SimpleMapDiff{},
	}
	latest, ok := m.Latest()
	if !ok {
		return info
	}
	info.CoverURL = latest.CoverURL
	for _, d := range latest.Diffs {
		diff := SimpleMapDiff{
			NPS:       d.NPS,
			Notes:     d.Notes,
			Obstacles: d.Obstacles,
			Bombs:     d.Bombs,
			NJS:       d.NJS,
			Offset:    d.Offset,
			Seconds:   d.Seconds,
			Label:     d.Label,
		}
		if c, err := beatmap.ParseCharacteristic(d.Characteristic); err == nil {
			diff.Characteristic = &c
		}
		if v, err := beatmap.ParseDifficulty(d.Difficulty); err == nil {
			diff.Difficulty = &v
		}
		info.Diffs = append(info.Diffs, diff)
	}
	return info
}
