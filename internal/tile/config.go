package tile

import (
	"errors"
	"strings"

	"github.com/immxrtalbeast/videocall/internal/domain"
)

// Config holds the declarative attributes a tile is constructed with.
type Config struct {
	Identity     string
	InitialState State
	Mirror       bool
	ScaleMode    ScaleMode
	Local        bool
}

func (c Config) attributes() Attributes {
	a := Attributes{Mirror: c.Mirror, ScaleMode: c.ScaleMode}
	switch c.InitialState {
	case StateVideo:
		a.HasVideoTrack = true
	case StateSwitchedOff:
		a.HasVideoTrack = true
		a.SwitchedOff = true
	case StateSelected:
		a.Selected = true
	}
	return a
}

// ConfigBuilder collects construction options and validates them all at
// once in Build. Raw string options are parsed here so bad external input
// never reaches a Machine.
type ConfigBuilder struct {
	cfg  Config
	errs []error
}

// NewConfig starts a builder with the defaults: NO_VIDEO, no mirroring, FIT.
func NewConfig(identity string) *ConfigBuilder {
	return &ConfigBuilder{
		cfg: Config{
			Identity:     strings.TrimSpace(identity),
			InitialState: StateNoVideo,
			ScaleMode:    ScaleFit,
		},
	}
}

func (b *ConfigBuilder) InitialState(s State) *ConfigBuilder {
	if !s.Valid() {
		b.errs = append(b.errs, errors.New("initial state "+s.String()+" is out of range"))
		return b
	}
	b.cfg.InitialState = s
	return b
}

// InitialStateName parses raw; an empty string keeps the default.
func (b *ConfigBuilder) InitialStateName(raw string) *ConfigBuilder {
	if strings.TrimSpace(raw) == "" {
		return b
	}
	s, err := ParseState(raw)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.cfg.InitialState = s
	return b
}

func (b *ConfigBuilder) Mirror(mirror bool) *ConfigBuilder {
	b.cfg.Mirror = mirror
	return b
}

func (b *ConfigBuilder) ScaleMode(m ScaleMode) *ConfigBuilder {
	if !m.Valid() {
		b.errs = append(b.errs, errors.New("scale mode "+m.String()+" is out of range"))
		return b
	}
	b.cfg.ScaleMode = m
	return b
}

// ScaleModeName parses raw; an empty string keeps the default.
func (b *ConfigBuilder) ScaleModeName(raw string) *ConfigBuilder {
	if strings.TrimSpace(raw) == "" {
		return b
	}
	m, err := ParseScaleMode(raw)
	if err != nil {
		b.errs = append(b.errs, err)
		return b
	}
	b.cfg.ScaleMode = m
	return b
}

// Local marks the tile as the local participant's own preview.
func (b *ConfigBuilder) Local(local bool) *ConfigBuilder {
	b.cfg.Local = local
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	errs := b.errs
	if b.cfg.Identity == "" {
		errs = append(errs, errors.New("identity is required"))
	}
	if len(errs) > 0 {
		return Config{}, domain.WrapError(domain.KindInvalidArgument, "invalid tile config", errors.Join(errs...))
	}
	return b.cfg, nil
}
