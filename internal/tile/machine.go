package tile

import (
	"log/slog"

	"github.com/immxrtalbeast/videocall/internal/track"
)

// Patch carries the attributes an update changes. Nil fields are left as
// they are.
type Patch struct {
	HasVideoTrack       *bool                `json:"has_video_track,omitempty"`
	Selected            *bool                `json:"selected,omitempty"`
	SwitchedOff         *bool                `json:"switched_off,omitempty"`
	Muted               *bool                `json:"muted,omitempty"`
	Pinned              *bool                `json:"pinned,omitempty"`
	Mirror              *bool                `json:"mirror,omitempty"`
	ScaleMode           *ScaleMode           `json:"scale_mode,omitempty"`
	NetworkQuality      *NetworkQualityLevel `json:"network_quality,omitempty"`
	ClearNetworkQuality bool                 `json:"clear_network_quality,omitempty"`
}

func (p Patch) apply(a Attributes) Attributes {
	if p.HasVideoTrack != nil {
		a.HasVideoTrack = *p.HasVideoTrack
	}
	if p.Selected != nil {
		a.Selected = *p.Selected
	}
	if p.SwitchedOff != nil {
		a.SwitchedOff = *p.SwitchedOff
	}
	if p.Muted != nil {
		a.Muted = *p.Muted
	}
	if p.Pinned != nil {
		a.Pinned = *p.Pinned
	}
	if p.Mirror != nil {
		a.Mirror = *p.Mirror
	}
	if p.ScaleMode != nil {
		a.ScaleMode = *p.ScaleMode
	}
	switch {
	case p.ClearNetworkQuality:
		a.NetworkQuality = nil
	case p.NetworkQuality != nil:
		a.NetworkQuality = copyLevel(p.NetworkQuality)
	}
	return a
}

// Update is a revisioned attribute change for one participant.
type Update struct {
	Revision uint64 `json:"revision"`
	Patch    Patch  `json:"patch"`
}

// Machine is the presentation state machine of one participant tile. It is
// not safe for concurrent use; its owner serializes all calls.
type Machine struct {
	identity string
	label    string
	attrs    Attributes
	layout   Layout
	revision uint64

	binding *track.Binding
	sink    track.Sink

	log *slog.Logger
}

// NewMachine builds a machine from a validated Config.
func NewMachine(cfg Config, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	m := &Machine{
		identity: cfg.Identity,
		label:    DisplayIdentity(cfg.Identity, cfg.Local),
		attrs:    cfg.attributes(),
		log:      log.With(slog.String("participant", cfg.Identity)),
	}
	m.layout = Render(m.label, m.attrs)
	return m
}

func (m *Machine) Identity() string {
	return m.identity
}

func (m *Machine) State() State {
	return m.layout.State
}

func (m *Machine) Layout() Layout {
	l := m.layout
	l.NetworkQuality = copyLevel(l.NetworkQuality)
	return l
}

func (m *Machine) Attributes() Attributes {
	a := m.attrs
	a.NetworkQuality = copyLevel(a.NetworkQuality)
	return a
}

// Revision is the revision of the last applied update.
func (m *Machine) Revision() uint64 {
	return m.revision
}

// Attach gives the machine a reference to the participant's track binding
// and the sink that renders into its video surface. The binding stays owned
// by the media engine; the machine only binds and unbinds the sink.
func (m *Machine) Attach(binding *track.Binding, sink track.Sink) {
	if m.binding != nil && m.binding != binding {
		m.binding.Unbind()
	}
	m.binding = binding
	m.sink = sink
	m.syncBinding()
}

// Detach drops the binding reference, unbinding the sink first.
func (m *Machine) Detach() {
	if m.binding != nil {
		m.binding.Unbind()
	}
	m.binding = nil
	m.sink = nil
}

// Apply applies u and returns the directives that bring the rendered tile up
// to date. It reports false when the update was stale, changed nothing, or
// would have produced an invalid layout; in all three cases the previous
// layout stays in place.
func (m *Machine) Apply(u Update) ([]Directive, bool) {
	if u.Revision == 0 {
		u.Revision = m.revision + 1
	}
	if u.Revision <= m.revision {
		m.log.Debug("discarding stale update",
			slog.Uint64("revision", u.Revision),
			slog.Uint64("current", m.revision),
		)
		return nil, false
	}
	m.revision = u.Revision

	next := u.Patch.apply(m.attrs)
	if next.equal(m.attrs) {
		return nil, false
	}

	layout := Render(m.label, next)
	if !layout.Valid() {
		m.log.Error("rejecting update with invalid layout",
			slog.Uint64("revision", u.Revision),
			slog.String("state", layout.State.String()),
			slog.String("scale_mode", layout.ScaleMode.String()),
		)
		return nil, false
	}

	prev := m.layout
	m.attrs = next
	m.layout = layout
	if prev.State != layout.State {
		m.log.Debug("tile state changed",
			slog.String("from", prev.State.String()),
			slog.String("to", layout.State.String()),
		)
		m.syncBinding()
	}

	directives := Diff(&prev, layout)
	return directives, len(directives) > 0
}

// syncBinding binds the sink only while live frames are rendered.
func (m *Machine) syncBinding() {
	if m.binding == nil {
		return
	}
	if m.layout.State == StateVideo && m.sink != nil {
		m.binding.Bind(m.sink)
		return
	}
	m.binding.Unbind()
}
