package catalog

// MapDetail is the BeatSaver map document.
type MapDetail struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Metadata    MapMetadata  `json:"metadata"`
	Stats       MapStats     `json:"stats"`
	Versions    []MapVersion `json:"versions"`
}

// MapMetadata describes the song behind a map.
type MapMetadata struct {
	BPM             float64 `json:"bpm"`
	Duration        int     `json:"duration"`
	SongName        string  `json:"songName"`
	SongSubName     string  `json:"songSubName"`
	SongAuthorName  string  `json:"songAuthorName"`
	LevelAuthorName string  `json:"levelAuthorName"`
}

// MapStats carries popularity counters.
type MapStats struct {
	Plays     int     `json:"plays"`
	Downloads int     `json:"downloads"`
	Upvotes   int     `json:"upvotes"`
	Downvotes int     `json:"downvotes"`
	Score     float64 `json:"score"`
}

// MapVersion is one uploaded revision of a map.
type MapVersion struct {
	Hash        string       `json:"hash"`
	State       string       `json:"state"`
	CreatedAt   string       `json:"createdAt"`
	DownloadURL string       `json:"downloadURL"`
	CoverURL    string       `json:"coverURL"`
	PreviewURL  string       `json:"previewURL"`
	Diffs       []MapDiffSum `json:"diffs"`
}

// MapDiffSum summarizes one difficulty of a version.
type MapDiffSum struct {
	NJS            float64 `json:"njs"`
	Offset         float64 `json:"offset"`
	Notes          int     `json:"notes"`
	Bombs          int     `json:"bombs"`
	Obstacles      int     `json:"obstacles"`
	NPS            float64 `json:"nps"`
	Length         float64 `json:"length"`
	Seconds        float64 `json:"seconds"`
	Characteristic string  `json:"characteristic"`
	Difficulty     string  `json:"difficulty"`
	Label          string  `json:"label,omitempty"`
}

// Latest returns the most recent version, if any.
func (m *MapDetail) Latest() (MapVersion, bool) {
	if m == nil || len(m.Versions) == 0 {
		return MapVersion{}, false
	}
	return m.Versions[0], true
}

// SearchResponse is a page of search results.
type SearchResponse struct {
	Docs []MapDetail `json:"docs"`
}
