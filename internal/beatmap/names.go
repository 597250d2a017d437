package beatmap

import (
	"errors"
	"fmt"
)

// ErrUnresolvedName marks a characteristic or difficulty name outside the
// canonical tables. Callers skip the entry and continue.
var ErrUnresolvedName = errors.New("unresolved name")

// Characteristic is a gameplay mode variant of a level.
type Characteristic int

const (
	Standard Characteristic = iota
	NoArrows
	OneSaber
	Degree360
	Degree90
	Lightshow
	Lawless
)

var characteristicNames = map[string]Characteristic{
	"Standard":  Standard,
	"NoArrows":  NoArrows,
	"OneSaber":  OneSaber,
	"Degree360": Degree360,
	"Degree90":  Degree90,
	"Lightshow": Lightshow,
	"Lawless":   Lawless,
}

var characteristicLabels = [...]string{"Standard", "NoArrows", "OneSaber", "Degree360", "Degree90", "Lightshow", "Lawless"}

// ParseCharacteristic resolves a characteristic name from an info document.
func ParseCharacteristic(name string) (Characteristic, error) {
	if c, ok := characteristicNames[name]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("%w: characteristic %q", ErrUnresolvedName, name)
}

func (c Characteristic) String() string {
	if c < 0 || int(c) >= len(characteristicLabels) {
		return fmt.Sprintf("Characteristic(%d)", int(c))
	}
	return characteristicLabels[c]
}

// Difficulty is a challenge tier within a characteristic.
type Difficulty int

const (
	Easy Difficulty = iota
	Normal
	Hard
	Expert
	ExpertPlus
)

var difficultyNames = map[string]Difficulty{
	"Easy":       Easy,
	"Normal":     Normal,
	"Hard":       Hard,
	"Expert":     Expert,
	"ExpertPlus": ExpertPlus,
}

var difficultyLabels = [...]string{"Easy", "Normal", "Hard", "Expert", "ExpertPlus"}

// ParseDifficulty resolves a difficulty name from an info document.
func ParseDifficulty(name string) (Difficulty, error) {
	if d, ok := difficultyNames[name]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("%w: difficulty %q", ErrUnresolvedName, name)
}

func (d Difficulty) String() string {
	if d < 0 || int(d) >= len(difficultyLabels) {
		return fmt.Sprintf("Difficulty(%d)", int(d))
	}
	return difficultyLabels[d]
}
