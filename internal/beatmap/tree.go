package beatmap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/art0007i/bonk-sticks-map-converter/internal/logging"
)

// ErrMissingDifficulty marks a difficulty whose document is absent from the archive.
var ErrMissingDifficulty = errors.New("difficulty file not in archive")

// defaultNJS replaces a note jump speed of exactly zero.
const defaultNJS = 10

// FileSource resolves archive-relative paths to their contents.
type FileSource interface {
	Lookup(name string) ([]byte, bool)
}

// Build assembles the converted document for a level. Unrecognized
// characteristic or difficulty names, duplicates, and difficulty documents
// that are missing or unparseable are logged and skipped; the first
// occurrence of each characteristic and difficulty wins, even when that
// occurrence is then skipped.
func Build(ctx context.Context, id string, info *Info, files FileSource, logger *slog.Logger) *MapFile {
	logger = logging.NewComponentLogger(logger, "beatmap")
	ctx = logging.WithLevelID(ctx, id)

	out := &MapFile{
		MapID:           id,
		BPM:             info.BPM,
		Name:            info.SongName,
		PreviewStart:    info.PreviewStart,
		PreviewDuration: info.PreviewDuration,
		SongFilename:    info.SongFilename,
		CoverImage:      info.CoverImageFilename,
		Environment:     info.EnvironmentName,
		TimeOffset:      info.SongTimeOffset,
		MapSets:         make(map[Characteristic]map[Difficulty]DifficultyMap),
	}

	for _, set := range info.DifficultyBeatmapSets {
		characteristic, err := ParseCharacteristic(set.Characteristic)
		if err != nil {
			logging.WarnWithContext(ctx, logger, "skipping beatmap set", "unresolved_characteristic",
				logging.Error(err),
				logging.String(logging.FieldImpact, "characteristic omitted from converted map"),
				logging.String(logging.FieldErrorHint, "only the standard characteristic names are supported"),
			)
			continue
		}
		if _, dup := out.MapSets[characteristic]; dup {
			logging.WarnWithContext(ctx, logger, "duplicate characteristic ignored", "duplicate_characteristic",
				logging.String("characteristic", set.Characteristic),
				logging.String(logging.FieldImpact, "later beatmap set dropped, first occurrence kept"),
			)
			continue
		}

		diffs := make(map[Difficulty]DifficultyMap)
		seen := make(map[Difficulty]bool)
		for _, beatmap := range set.Beatmaps {
			difficulty, err := ParseDifficulty(beatmap.Difficulty)
			if err != nil {
				logging.WarnWithContext(ctx, logger, "skipping difficulty", "unresolved_difficulty",
					logging.Error(err),
					logging.String("characteristic", characteristic.String()),
					logging.String(logging.FieldImpact, "difficulty omitted from converted map"),
				)
				continue
			}
			if seen[difficulty] {
				logging.WarnWithContext(ctx, logger, "duplicate difficulty ignored", "duplicate_difficulty",
					logging.String("characteristic", characteristic.String()),
					logging.String("difficulty", beatmap.Difficulty),
					logging.String(logging.FieldImpact, "later difficulty dropped, first occurrence kept"),
				)
				continue
			}
			seen[difficulty] = true

			timeline, err := encodeBeatmap(files, beatmap.Filename, info.BPM)
			if err != nil {
				logging.WarnWithContext(ctx, logger, "skipping difficulty", "difficulty_unreadable",
					logging.Error(err),
					logging.String("characteristic", characteristic.String()),
					logging.String("difficulty", difficulty.String()),
					logging.String("file", beatmap.Filename),
					logging.String(logging.FieldImpact, "difficulty omitted from converted map"),
				)
				continue
			}

			njs := beatmap.NoteJumpSpeed
			if njs == 0 {
				njs = defaultNJS
			}
			diffs[difficulty] = DifficultyMap{
				NJS:            njs,
				NJSOffset:      beatmap.NoteJumpOffset,
				Label:          beatmap.Label(),
				DifficultyFile: timeline,
			}
		}
		out.MapSets[characteristic] = diffs
	}
	return out
}

func encodeBeatmap(files FileSource, name string, bpm float64) (string, error) {
	doc, ok := files.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingDifficulty, name)
	}
	return EncodeDocument(doc, bpm)
}
