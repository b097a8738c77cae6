// Package tile computes the visible layout of a single participant tile.
//
// The presentation state is never stored on its own: it is derived from the
// participant attributes every time they change, and the resulting Layout is
// diffed against the previous one to produce rendering directives. Exactly one
// layout group (the live video group or the placeholder group) is visible in
// every Layout the package produces.
package tile

import (
	"fmt"
	"strings"
)

// State is the mutually exclusive presentation state of a tile.
type State int

const (
	// StateVideo shows live frames on the full tile.
	StateVideo State = iota
	// StateNoVideo shows the placeholder avatar.
	StateNoVideo
	// StateSelected is the focused tile without video. Rendered like
	// StateNoVideo for now.
	StateSelected
	// StateSwitchedOff has a track but rendering is suspended, e.g. the tile
	// is off-screen. Rendered like StateVideo with a skip-decode hint.
	StateSwitchedOff
)

var stateNames = map[State]string{
	StateVideo:       "VIDEO",
	StateNoVideo:     "NO_VIDEO",
	StateSelected:    "SELECTED",
	StateSwitchedOff: "SWITCHED_OFF",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// ShowsVideo reports whether the state uses the video layout group.
func (s State) ShowsVideo() bool {
	return s == StateVideo || s == StateSwitchedOff
}

func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid tile state %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState accepts the state names case-insensitively. Unknown names are an
// error rather than a fallback.
func ParseState(raw string) (State, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	for s, n := range stateNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown tile state %q", raw)
}

// Derive is the transition function: a pure mapping from the attribute tuple
// to the presentation state.
func Derive(hasVideoTrack, selected, switchedOff bool) State {
	if hasVideoTrack {
		if switchedOff {
			return StateSwitchedOff
		}
		return StateVideo
	}
	if selected {
		return StateSelected
	}
	return StateNoVideo
}

// ScaleMode configures how frames fit into the video surface.
type ScaleMode int

const (
	ScaleFit ScaleMode = iota
	ScaleFill
	ScaleBalanced
)

var scaleNames = map[ScaleMode]string{
	ScaleFit:      "FIT",
	ScaleFill:     "FILL",
	ScaleBalanced: "BALANCED",
}

func (m ScaleMode) String() string {
	if name, ok := scaleNames[m]; ok {
		return name
	}
	return fmt.Sprintf("ScaleMode(%d)", int(m))
}

func (m ScaleMode) Valid() bool {
	_, ok := scaleNames[m]
	return ok
}

func (m ScaleMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid scale mode %d", int(m))
	}
	return []byte(m.String()), nil
}

func (m *ScaleMode) UnmarshalText(text []byte) error {
	parsed, err := ParseScaleMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseScaleMode accepts FIT, FILL and BALANCED, with or without an ASPECT_
// prefix.
func ParseScaleMode(raw string) (ScaleMode, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	name = strings.TrimPrefix(name, "ASPECT_")
	for m, n := range scaleNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown scale mode %q", raw)
}

// NetworkQualityLevel is the 0..5 connection quality reported by the media
// engine. Zero is the worst.
type NetworkQualityLevel int

const (
	NetworkQualityMin NetworkQualityLevel = 0
	NetworkQualityMax NetworkQualityLevel = 5
)

func (l NetworkQualityLevel) Valid() bool {
	return l >= NetworkQualityMin && l <= NetworkQualityMax
}

// ParseNetworkQuality validates a raw level from external input.
func ParseNetworkQuality(level int) (NetworkQualityLevel, error) {
	l := NetworkQualityLevel(level)
	if !l.Valid() {
		return 0, fmt.Errorf("network quality level %d out of range [%d, %d]", level, NetworkQualityMin, NetworkQualityMax)
	}
	return l, nil
}
