package tile

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/immxrtalbeast/videocall/internal/track"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(v bool) *bool { return &v }

func newTestMachine(t *testing.T, identity string) *Machine {
	t.Helper()
	cfg, err := NewConfig(identity).Build()
	require.NoError(t, err)
	return NewMachine(cfg, nil)
}

func TestDeriveTable(t *testing.T) {
	tests := []struct {
		hasVideo, selected, switchedOff bool
		want                            State
	}{
		{true, false, false, StateVideo},
		{true, true, false, StateVideo},
		{true, false, true, StateSwitchedOff},
		{true, true, true, StateSwitchedOff},
		{false, false, false, StateNoVideo},
		{false, false, true, StateNoVideo},
		{false, true, false, StateSelected},
		{false, true, true, StateSelected},
	}
	for _, tt := range tests {
		name := fmt.Sprintf("video=%v selected=%v off=%v", tt.hasVideo, tt.selected, tt.switchedOff)
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, Derive(tt.hasVideo, tt.selected, tt.switchedOff))
			assert.Equal(t, tt.want, Derive(tt.hasVideo, tt.selected, tt.switchedOff))
		})
	}
}

func TestRenderExactlyOneGroupVisible(t *testing.T) {
	for _, hasVideo := range []bool{false, true} {
		for _, selected := range []bool{false, true} {
			for _, off := range []bool{false, true} {
				for _, muted := range []bool{false, true} {
					a := Attributes{HasVideoTrack: hasVideo, Selected: selected, SwitchedOff: off, Muted: muted}
					l := Render("alice", a)
					assert.True(t, l.VideoVisible() != l.PlaceholderVisible(), "attrs %+v", a)
					assert.True(t, l.Valid(), "attrs %+v", a)
					assert.Equal(t, l, Render("alice", a))
				}
			}
		}
	}
}

func TestMachineDefaultsToNoVideo(t *testing.T) {
	m := newTestMachine(t, "alice")

	assert.Equal(t, StateNoVideo, m.State())
	assert.True(t, m.Layout().PlaceholderVisible())
	assert.Equal(t, ScaleFit, m.Layout().ScaleMode)
	assert.False(t, m.Layout().Mirror)
}

func TestMachineTrackAddedSwitchesToVideo(t *testing.T) {
	m := newTestMachine(t, "alice")

	directives, changed := m.Apply(Update{Patch: Patch{HasVideoTrack: boolPtr(true)}})

	require.True(t, changed)
	assert.Equal(t, StateVideo, m.State())
	require.NotEmpty(t, directives)
	assert.Equal(t, Directive{Kind: DirectiveShowGroup, Group: GroupVideo}, directives[0])
}

func TestMachineReapplyingSameTupleEmitsNothing(t *testing.T) {
	m := newTestMachine(t, "alice")
	patch := Patch{HasVideoTrack: boolPtr(true), Muted: boolPtr(true)}

	_, changed := m.Apply(Update{Patch: patch})
	require.True(t, changed)
	before := m.Layout()

	directives, changed := m.Apply(Update{Patch: patch})
	assert.False(t, changed)
	assert.Empty(t, directives)
	assert.Equal(t, before, m.Layout())
}

func TestMachineSelectedWithoutVideo(t *testing.T) {
	m := newTestMachine(t, "alice")

	_, changed := m.Apply(Update{Patch: Patch{Selected: boolPtr(true)}})

	require.True(t, changed)
	assert.Equal(t, StateSelected, m.State())
	assert.True(t, m.Layout().PlaceholderVisible())
}

func TestMachineSwitchedOffKeepsVideoLayout(t *testing.T) {
	m := newTestMachine(t, "alice")
	m.Apply(Update{Patch: Patch{HasVideoTrack: boolPtr(true)}})

	directives, changed := m.Apply(Update{Patch: Patch{SwitchedOff: boolPtr(true)}})

	require.True(t, changed)
	assert.Equal(t, StateSwitchedOff, m.State())
	assert.True(t, m.Layout().VideoVisible())
	assert.True(t, m.Layout().SkipDecode)
	assert.Equal(t, []Directive{{Kind: DirectiveDecodeHint, Skip: true}}, directives)
}

func TestMachineOverlaysNeverChangeState(t *testing.T) {
	level := NetworkQualityLevel(3)
	fill := ScaleFill
	overlays := []Patch{
		{Muted: boolPtr(true)},
		{Pinned: boolPtr(true)},
		{Mirror: boolPtr(true)},
		{ScaleMode: &fill},
		{NetworkQuality: &level},
		{ClearNetworkQuality: true},
	}
	for _, hasVideo := range []bool{false, true} {
		for _, selected := range []bool{false, true} {
			m := newTestMachine(t, "alice")
			m.Apply(Update{Patch: Patch{HasVideoTrack: boolPtr(hasVideo), Selected: boolPtr(selected)}})
			want := m.State()
			for _, p := range overlays {
				m.Apply(Update{Patch: p})
				assert.Equal(t, want, m.State())
			}
		}
	}
}

func TestMachineOverlayDirectives(t *testing.T) {
	m := newTestMachine(t, "alice")
	level := NetworkQualityLevel(4)

	directives, _ := m.Apply(Update{Patch: Patch{Muted: boolPtr(true)}})
	assert.Equal(t, []Directive{{Kind: DirectiveMuteBadge, Visible: true}}, directives)

	directives, _ = m.Apply(Update{Patch: Patch{Pinned: boolPtr(true)}})
	assert.Equal(t, []Directive{{Kind: DirectivePinBadge, Visible: true}}, directives)

	directives, _ = m.Apply(Update{Patch: Patch{Mirror: boolPtr(true)}})
	assert.Equal(t, []Directive{{Kind: DirectiveConfigureSurface, Mirror: true, ScaleMode: ScaleFit}}, directives)

	directives, _ = m.Apply(Update{Patch: Patch{NetworkQuality: &level}})
	assert.Equal(t, []Directive{{Kind: DirectiveNetworkQuality, Visible: true, Level: 4}}, directives)

	directives, _ = m.Apply(Update{Patch: Patch{ClearNetworkQuality: true}})
	assert.Equal(t, []Directive{{Kind: DirectiveNetworkQuality}}, directives)
}

func TestMachineDiscardsStaleRevision(t *testing.T) {
	m := newTestMachine(t, "alice")

	_, changed := m.Apply(Update{Revision: 5, Patch: Patch{HasVideoTrack: boolPtr(true)}})
	require.True(t, changed)

	// A "track removed" observed before revision 5 arrives late.
	directives, changed := m.Apply(Update{Revision: 4, Patch: Patch{HasVideoTrack: boolPtr(false)}})
	assert.False(t, changed)
	assert.Empty(t, directives)
	assert.Equal(t, StateVideo, m.State())
	assert.Equal(t, uint64(5), m.Revision())

	_, changed = m.Apply(Update{Revision: 5, Patch: Patch{HasVideoTrack: boolPtr(false)}})
	assert.False(t, changed)
	assert.Equal(t, StateVideo, m.State())
}

func TestMachineInvalidScaleModeKeepsPreviousLayout(t *testing.T) {
	m := newTestMachine(t, "alice")
	m.Apply(Update{Patch: Patch{HasVideoTrack: boolPtr(true)}})
	before := m.Layout()
	bad := ScaleMode(42)

	directives, changed := m.Apply(Update{Patch: Patch{ScaleMode: &bad, Muted: boolPtr(true)}})

	assert.False(t, changed)
	assert.Empty(t, directives)
	assert.Equal(t, before, m.Layout())
	assert.False(t, m.Attributes().Muted)
}

func TestMachineDisplayIdentity(t *testing.T) {
	cfg, err := NewConfig("bob@example.com").Build()
	require.NoError(t, err)
	assert.Equal(t, "bob", NewMachine(cfg, nil).Layout().Identity)

	cfg, err = NewConfig("me").Local(true).Build()
	require.NoError(t, err)
	assert.Equal(t, "You", NewMachine(cfg, nil).Layout().Identity)
}

func TestMachineBindsSinkOnlyWhileVideo(t *testing.T) {
	m := newTestMachine(t, "alice")
	b := track.NewBinding(nil)
	m.Attach(b, track.SinkFunc(func(*rtp.Packet) {}))
	assert.False(t, b.IsBound())

	m.Apply(Update{Patch: Patch{HasVideoTrack: boolPtr(true)}})
	assert.True(t, b.IsBound())

	m.Apply(Update{Patch: Patch{SwitchedOff: boolPtr(true)}})
	assert.False(t, b.IsBound())

	m.Apply(Update{Patch: Patch{SwitchedOff: boolPtr(false)}})
	assert.True(t, b.IsBound())

	m.Apply(Update{Patch: Patch{HasVideoTrack: boolPtr(false)}})
	assert.False(t, b.IsBound())

	m.Apply(Update{Patch: Patch{HasVideoTrack: boolPtr(true)}})
	m.Detach()
	assert.False(t, b.IsBound())
}

func TestDiffFromScratch(t *testing.T) {
	l := Render("alice", Attributes{})
	directives := Diff(nil, l)

	kinds := make([]DirectiveKind, 0, len(directives))
	for _, d := range directives {
		kinds = append(kinds, d.Kind)
	}
	assert.Equal(t, []DirectiveKind{
		DirectiveShowGroup,
		DirectiveSetIdentity,
		DirectiveMuteBadge,
		DirectivePinBadge,
		DirectiveConfigureSurface,
		DirectiveNetworkQuality,
		DirectiveDecodeHint,
	}, kinds)
	assert.Empty(t, Diff(&l, l))
}

func TestNetworkQualityDirectiveKeepsWorstLevelOnWire(t *testing.T) {
	m := newTestMachine(t, "bob")
	worst := NetworkQualityMin

	directives, ok := m.Apply(Update{Patch: Patch{NetworkQuality: &worst}})
	require.True(t, ok)
	require.Equal(t, []Directive{{Kind: DirectiveNetworkQuality, Visible: true, Level: 0}}, directives)

	raw, err := json.Marshal(directives[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"level":0`)
	assert.Contains(t, string(raw), `"visible":true`)
}
