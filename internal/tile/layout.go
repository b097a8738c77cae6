package tile

import (
	"fmt"
	"strings"
)

// Group is one of the two mutually exclusive sets of tile elements.
type Group int

const (
	// GroupPlaceholder holds the stub avatar and the identity label over it.
	GroupPlaceholder Group = iota
	// GroupVideo holds the video surface and the identity label over it.
	GroupVideo
)

func (g Group) String() string {
	switch g {
	case GroupPlaceholder:
		return "placeholder"
	case GroupVideo:
		return "video"
	default:
		return fmt.Sprintf("Group(%d)", int(g))
	}
}

func (g Group) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

func (g *Group) UnmarshalText(text []byte) error {
	switch string(text) {
	case "placeholder":
		*g = GroupPlaceholder
	case "video":
		*g = GroupVideo
	default:
		return fmt.Errorf("unknown layout group %q", text)
	}
	return nil
}

// Attributes is the full attribute tuple of a participant as seen by its tile.
type Attributes struct {
	HasVideoTrack  bool
	Selected       bool
	SwitchedOff    bool
	Muted          bool
	Pinned         bool
	Mirror         bool
	ScaleMode      ScaleMode
	NetworkQuality *NetworkQualityLevel
}

// State derives the presentation state. Overlays do not take part.
func (a Attributes) State() State {
	return Derive(a.HasVideoTrack, a.Selected, a.SwitchedOff)
}

func (a Attributes) equal(b Attributes) bool {
	if a.HasVideoTrack != b.HasVideoTrack ||
		a.Selected != b.Selected ||
		a.SwitchedOff != b.SwitchedOff ||
		a.Muted != b.Muted ||
		a.Pinned != b.Pinned ||
		a.Mirror != b.Mirror ||
		a.ScaleMode != b.ScaleMode {
		return false
	}
	return sameLevel(a.NetworkQuality, b.NetworkQuality)
}

// Layout is the complete visual description of a tile.
type Layout struct {
	State          State                `json:"state"`
	Group          Group                `json:"group"`
	Identity       string               `json:"identity"`
	MuteBadge      bool                 `json:"mute_badge"`
	PinBadge       bool                 `json:"pin_badge"`
	Mirror         bool                 `json:"mirror"`
	ScaleMode      ScaleMode            `json:"scale_mode"`
	NetworkQuality *NetworkQualityLevel `json:"network_quality,omitempty"`
	SkipDecode     bool                 `json:"skip_decode"`
}

func (l Layout) VideoVisible() bool {
	return l.Group == GroupVideo
}

func (l Layout) PlaceholderVisible() bool {
	return l.Group == GroupPlaceholder
}

// Valid checks the invariants a renderer relies on: exactly one group is
// visible and it matches the state.
func (l Layout) Valid() bool {
	if !l.State.Valid() || !l.ScaleMode.Valid() {
		return false
	}
	if l.VideoVisible() == l.PlaceholderVisible() {
		return false
	}
	if l.State.ShowsVideo() != l.VideoVisible() {
		return false
	}
	if l.NetworkQuality != nil && !l.NetworkQuality.Valid() {
		return false
	}
	return true
}

// Render maps an identity label and attribute tuple to a layout. It is pure:
// the same inputs always give the same layout.
func Render(identity string, a Attributes) Layout {
	state := a.State()
	group := GroupPlaceholder
	if state.ShowsVideo() {
		group = GroupVideo
	}
	return Layout{
		State:          state,
		Group:          group,
		Identity:       identity,
		MuteBadge:      a.Muted,
		PinBadge:       a.Pinned,
		Mirror:         a.Mirror,
		ScaleMode:      a.ScaleMode,
		NetworkQuality: copyLevel(a.NetworkQuality),
		SkipDecode:     state == StateSwitchedOff,
	}
}

// DisplayIdentity is the label shown on a tile: "You" for the local
// participant, otherwise the identity up to the first "@".
func DisplayIdentity(identity string, local bool) string {
	if local {
		return "You"
	}
	if i := strings.Index(identity, "@"); i > 0 {
		return identity[:i]
	}
	return identity
}

// DirectiveKind names a rendering instruction.
type DirectiveKind string

const (
	// DirectiveShowGroup shows Group and hides the other group in one step.
	DirectiveShowGroup        DirectiveKind = "show_group"
	DirectiveSetIdentity      DirectiveKind = "set_identity"
	DirectiveMuteBadge        DirectiveKind = "mute_badge"
	DirectivePinBadge         DirectiveKind = "pin_badge"
	DirectiveConfigureSurface DirectiveKind = "configure_surface"
	DirectiveNetworkQuality   DirectiveKind = "network_quality"
	DirectiveDecodeHint       DirectiveKind = "decode_hint"
)

// Directive is a concrete visibility or geometry change for the renderer.
type Directive struct {
	Kind      DirectiveKind       `json:"kind"`
	Group     Group               `json:"group"`
	Text      string              `json:"text,omitempty"`
	Visible   bool                `json:"visible,omitempty"`
	Mirror    bool                `json:"mirror,omitempty"`
	ScaleMode ScaleMode           `json:"scale_mode"`
	Level     NetworkQualityLevel `json:"level"`
	Skip      bool                `json:"skip,omitempty"`
}

// Diff returns the directives that turn prev into next. A nil prev yields the
// full set needed to paint next from scratch. Equal layouts yield nothing.
func Diff(prev *Layout, next Layout) []Directive {
	full := prev == nil
	var out []Directive

	if full || prev.Group != next.Group {
		out = append(out, Directive{Kind: DirectiveShowGroup, Group: next.Group})
	}
	if full || prev.Identity != next.Identity {
		out = append(out, Directive{Kind: DirectiveSetIdentity, Text: next.Identity})
	}
	if full || prev.MuteBadge != next.MuteBadge {
		out = append(out, Directive{Kind: DirectiveMuteBadge, Visible: next.MuteBadge})
	}
	if full || prev.PinBadge != next.PinBadge {
		out = append(out, Directive{Kind: DirectivePinBadge, Visible: next.PinBadge})
	}
	if full || prev.Mirror != next.Mirror || prev.ScaleMode != next.ScaleMode {
		out = append(out, Directive{Kind: DirectiveConfigureSurface, Mirror: next.Mirror, ScaleMode: next.ScaleMode})
	}
	if full || !sameLevel(prev.NetworkQuality, next.NetworkQuality) {
		d := Directive{Kind: DirectiveNetworkQuality}
		if next.NetworkQuality != nil {
			d.Visible = true
			d.Level = *next.NetworkQuality
		}
		out = append(out, d)
	}
	if full || prev.SkipDecode != next.SkipDecode {
		out = append(out, Directive{Kind: DirectiveDecodeHint, Skip: next.SkipDecode})
	}
	return out
}

func sameLevel(a, b *NetworkQualityLevel) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func copyLevel(l *NetworkQualityLevel) *NetworkQualityLevel {
	if l == nil {
		return nil
	}
	v := *l
	return &v
}
