package model

import (
	"fmt"
	"strings"
)

// BodyType classifies a natural body.
type BodyType int

const (
	Star BodyType = iota + 1
	Planet
	DwarfPlanet
	Moon
	Asteroid
	Comet
)

var bodyTypeNames = map[BodyType]string{
	Star:        "star",
	Planet:      "planet",
	DwarfPlanet: "dwarf-planet",
	Moon:        "moon",
	Asteroid:    "asteroid",
	Comet:       "comet",
}

func (t BodyType) String() string {
	if name, ok := bodyTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("BodyType(%d)", int(t))
}

// ParseBodyType accepts the lower-case names returned by String.
func ParseBodyType(s string) (BodyType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range bodyTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown body type %q", s)
}
