// Package track binds a participant's live video source to a frame sink.
//
// Frames are RTP packets and are passed through untouched; nothing here
// understands the codec.
package track

import (
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// Sink receives frames for rendering.
type Sink interface {
	OnFrame(pkt *rtp.Packet)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(pkt *rtp.Packet)

func (f SinkFunc) OnFrame(pkt *rtp.Packet) { f(pkt) }

// Source produces frames until it returns an error. Any error, io.EOF
// included, means the source is gone.
type Source interface {
	ReadRTP() (*rtp.Packet, error)
}

// AvailabilityFunc is told whenever a source appears or disappears.
type AvailabilityFunc func(available bool)

// Binding is the optional association between one participant and one live
// video source. The media engine owns its lifetime through SetSource,
// RemoveSource and Close; the participant's tile is the only caller of Bind
// and Unbind.
type Binding struct {
	// mu guards sink. Delivery holds the read lock for the duration of the
	// sink call, so once Bind or Unbind return no frame reaches the old sink.
	mu   sync.RWMutex
	sink Sink

	srcMu  sync.Mutex
	source Source
	gen    atomic.Uint64

	onAvailability AvailabilityFunc

	done      chan struct{}
	closeOnce sync.Once

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// NewBinding creates an empty binding. onAvailability may be nil; it is
// called with the source lock held and must not call SetSource or
// RemoveSource.
func NewBinding(onAvailability AvailabilityFunc) *Binding {
	if onAvailability == nil {
		onAvailability = func(bool) {}
	}
	return &Binding{
		onAvailability: onAvailability,
		done:           make(chan struct{}),
	}
}

// Bind attaches sink, replacing any prior sink in one step.
func (b *Binding) Bind(sink Sink) {
	b.mu.Lock()
	b.sink = sink
	b.mu.Unlock()
}

// Unbind detaches the current sink. Calling it twice is harmless.
func (b *Binding) Unbind() {
	b.mu.Lock()
	b.sink = nil
	b.mu.Unlock()
}

func (b *Binding) IsBound() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sink != nil
}

// Available reports whether a source is attached.
func (b *Binding) Available() bool {
	b.srcMu.Lock()
	defer b.srcMu.Unlock()
	return b.source != nil
}

// SetSource attaches src and starts pumping its frames to the bound sink.
// A previous source is abandoned; its frames are dropped from then on.
// Passing nil is the same as RemoveSource.
func (b *Binding) SetSource(src Source) {
	b.srcMu.Lock()
	defer b.srcMu.Unlock()

	if b.isClosed() || src == b.source {
		return
	}
	wasAvailable := b.source != nil
	b.source = src
	gen := b.gen.Add(1)
	if src != nil {
		go b.pump(src, gen)
	}
	if wasAvailable != (src != nil) {
		b.onAvailability(src != nil)
	}
}

// RemoveSource detaches the current source, e.g. when the participant
// turned their camera off.
func (b *Binding) RemoveSource() {
	b.SetSource(nil)
}

// Close invalidates the binding when the participant leaves. Pending frames
// are dropped and no further availability events are emitted.
func (b *Binding) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
		b.gen.Add(1)
	})
	b.Unbind()
}

func (b *Binding) isClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// Delivered is the number of frames handed to a sink.
func (b *Binding) Delivered() uint64 {
	return b.delivered.Load()
}

// Dropped is the number of frames that arrived with no current sink or from
// an abandoned source.
func (b *Binding) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Binding) pump(src Source, gen uint64) {
	for {
		pkt, err := src.ReadRTP()
		if err != nil {
			b.sourceEnded(src)
			return
		}
		if !b.deliver(pkt, gen) && b.gen.Load() != gen {
			return
		}
	}
}

func (b *Binding) deliver(pkt *rtp.Packet, gen uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.gen.Load() != gen || b.sink == nil {
		b.dropped.Add(1)
		return false
	}
	b.sink.OnFrame(pkt)
	b.delivered.Add(1)
	return true
}

func (b *Binding) sourceEnded(src Source) {
	b.srcMu.Lock()
	defer b.srcMu.Unlock()

	if b.isClosed() || b.source != src {
		return
	}
	b.source = nil
	b.gen.Add(1)
	b.onAvailability(false)
}

type remoteSource struct {
	track *webrtc.TrackRemote
}

// FromRemote adapts a pion remote track to Source.
func FromRemote(t *webrtc.TrackRemote) Source {
	return remoteSource{track: t}
}

func (s remoteSource) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := s.track.ReadRTP()
	return pkt, err
}
