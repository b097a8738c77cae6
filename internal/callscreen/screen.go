// Package callscreen hosts the live call screen: one presentation state
// machine per participant, fed by signaling events and track availability.
package callscreen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/immxrtalbeast/videocall/internal/domain"
	"github.com/immxrtalbeast/videocall/internal/tile"
	"github.com/immxrtalbeast/videocall/internal/track"
	"github.com/immxrtalbeast/videocall/lib/logger/sl"
)

var (
	ErrScreenClosed        = errors.New("call screen closed")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrParticipantExists   = errors.New("participant already on screen")
)

const (
	DefaultEventBuffer      = 64
	DefaultSubscriberBuffer = 32
)

type Options struct {
	EventBuffer      int
	SubscriberBuffer int
}

func (o Options) withDefaults() Options {
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.SubscriberBuffer <= 0 {
		o.SubscriberBuffer = DefaultSubscriberBuffer
	}
	return o
}

// Frame is what subscribers see of one participant after a batch: the final
// layout and the directives that lead there from the previously published
// one.
type Frame struct {
	Identity   string           `json:"identity"`
	Revision   uint64           `json:"revision"`
	Removed    bool             `json:"removed,omitempty"`
	Layout     *tile.Layout     `json:"layout,omitempty"`
	Directives []tile.Directive `json:"directives,omitempty"`
}

// View is a point-in-time description of one tile.
type View struct {
	Identity  string      `json:"identity"`
	Revision  uint64      `json:"revision"`
	Layout    tile.Layout `json:"layout"`
	Available bool        `json:"available"`
	Bound     bool        `json:"bound"`
	Frames    uint64      `json:"frames"`
	Primary   bool        `json:"primary"`
}

// feed is the media side of a participant. It may exist before the
// participant joins, when the track arrives first.
type feed struct {
	binding   *track.Binding
	surface   *Surface
	available atomic.Bool
}

// Screen is a running call screen. All tile state is owned by a single
// goroutine; every change reaches it as a batch, and only the layout at the
// end of a batch is published.
type Screen struct {
	id        uuid.UUID
	params    domain.StartParams
	opts      Options
	createdAt time.Time
	log       *slog.Logger

	events    chan batch
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	revMu     sync.Mutex
	revisions map[string]uint64

	feedMu      sync.Mutex
	feeds       map[string]*feed
	feedsClosed bool

	// owned by run
	tiles     map[string]*tile.Machine
	published map[string]tile.Layout
	pinned    string

	pubMu      sync.Mutex
	views      map[string]View
	order      []string
	subs       map[uint64]chan Frame
	nextSub    uint64
	subsClosed bool
	// pinned as last published
	pinnedView string
}

func newScreen(id uuid.UUID, params domain.StartParams, opts Options, log *slog.Logger) *Screen {
	if log == nil {
		log = slog.Default()
	}
	opts = opts.withDefaults()
	s := &Screen{
		id:        id,
		params:    params,
		opts:      opts,
		createdAt: time.Now().UTC(),
		log:       log.With(slog.String("screen_id", id.String()), slog.String("room", params.Room)),
		events:    make(chan batch, opts.EventBuffer),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		revisions: make(map[string]uint64),
		feeds:     make(map[string]*feed),
		tiles:     make(map[string]*tile.Machine),
		published: make(map[string]tile.Layout),
		views:     make(map[string]View),
		subs:      make(map[uint64]chan Frame),
	}
	go s.run()
	return s
}

func (s *Screen) ID() uuid.UUID {
	return s.id
}

func (s *Screen) Room() string {
	return s.params.Room
}

// LocalIdentity is the identity the screen was launched for.
func (s *Screen) LocalIdentity() string {
	return s.params.Identity
}

func (s *Screen) ClientID() string {
	return s.params.ClientID
}

func (s *Screen) CreatedAt() time.Time {
	return s.createdAt
}

// Done is closed once the screen starts shutting down.
func (s *Screen) Done() <-chan struct{} {
	return s.done
}

// Dispatch applies events as one batch and waits until they are applied.
// Events that could not be applied are reported in the joined error; the
// rest of the batch still takes effect.
func (s *Screen) Dispatch(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	b := batch{events: s.stampAll(events), result: make(chan error, 1)}

	select {
	case <-s.done:
		return ErrScreenClosed
	case <-ctx.Done():
		return ctx.Err()
	case s.events <- b:
	}

	select {
	case err := <-b.result:
		return err
	case <-s.stopped:
		return ErrScreenClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post enqueues events without waiting for them to be applied.
func (s *Screen) post(events ...Event) {
	b := batch{events: s.stampAll(events)}
	select {
	case <-s.done:
	case s.events <- b:
	}
}

// AttachSource gives identity's tile a live video source. The participant
// does not have to be on screen yet.
func (s *Screen) AttachSource(identity string, src track.Source) error {
	f, err := s.feedFor(identity)
	if err != nil {
		return err
	}
	f.binding.SetSource(src)
	return nil
}

// DetachSource removes identity's video source, if any.
func (s *Screen) DetachSource(identity string) {
	s.feedMu.Lock()
	f := s.feeds[identity]
	s.feedMu.Unlock()
	if f != nil {
		f.binding.RemoveSource()
	}
}

// Subscribe returns a channel of frames. The channel first carries one frame
// per tile currently on screen, then every published change. A subscriber
// that falls behind loses frames; each frame carries the full layout so it
// can resynchronise. The returned func unsubscribes.
func (s *Screen) Subscribe() (<-chan Frame, func()) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	ch := make(chan Frame, s.opts.SubscriberBuffer+len(s.order))
	if s.subsClosed {
		close(ch)
		return ch, func() {}
	}
	for _, identity := range s.order {
		v := s.views[identity]
		layout := v.Layout
		ch <- Frame{
			Identity:   identity,
			Revision:   v.Revision,
			Layout:     &layout,
			Directives: tile.Diff(nil, layout),
		}
	}

	s.nextSub++
	id := s.nextSub
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.pubMu.Lock()
			defer s.pubMu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

// Snapshot lists the tiles in join order.
func (s *Screen) Snapshot() []View {
	s.pubMu.Lock()
	views := make([]View, 0, len(s.order))
	primary := s.primaryLocked()
	for _, identity := range s.order {
		v := s.views[identity]
		v.Primary = identity == primary
		views = append(views, v)
	}
	s.pubMu.Unlock()

	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	for i := range views {
		if f := s.feeds[views[i].Identity]; f != nil {
			views[i].Available = f.available.Load()
			views[i].Bound = f.binding.IsBound()
			views[i].Frames = f.surface.Frames()
		}
	}
	return views
}

// Primary is the identity shown as the main tile: the pinned participant,
// otherwise the first remote participant to join, otherwise the local one.
// It is empty while the screen has no tiles.
func (s *Screen) Primary() string {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	return s.primaryLocked()
}

func (s *Screen) primaryLocked() string {
	if s.pinnedView != "" {
		return s.pinnedView
	}
	for _, identity := range s.order {
		if identity != s.params.Identity {
			return identity
		}
	}
	if len(s.order) > 0 {
		return s.order[0]
	}
	return ""
}

// Participant returns the view of one tile.
func (s *Screen) Participant(identity string) (View, error) {
	for _, v := range s.Snapshot() {
		if v.Identity == identity {
			return v, nil
		}
	}
	return View{}, fmt.Errorf("%w: %s", ErrParticipantNotFound, identity)
}

// Close stops the screen and waits for its goroutine to finish. Bindings
// are invalidated and subscriber channels closed.
func (s *Screen) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	<-s.stopped
}

// stampAll stamps updates in batch order. A leave restarts the identity's
// counter, matching the fresh machine a later join creates.
func (s *Screen) stampAll(events []Event) []Event {
	out := make([]Event, len(events))
	copy(out, events)

	s.revMu.Lock()
	defer s.revMu.Unlock()
	for i := range out {
		switch out[i].Kind {
		case EventUpdate:
			out[i].Update.Revision = s.stampLocked(out[i].Identity, out[i].Update.Revision)
		case EventLeave:
			delete(s.revisions, out[i].Identity)
		}
	}
	return out
}

// stamp assigns the next revision for identity when rev is zero and keeps
// the counter ahead of explicit revisions.
func (s *Screen) stamp(identity string, rev uint64) uint64 {
	s.revMu.Lock()
	defer s.revMu.Unlock()
	return s.stampLocked(identity, rev)
}

func (s *Screen) stampLocked(identity string, rev uint64) uint64 {
	last := s.revisions[identity]
	if rev == 0 {
		rev = last + 1
	}
	if rev > last {
		s.revisions[identity] = rev
	}
	return rev
}

func (s *Screen) feedFor(identity string) (*feed, error) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()

	if s.feedsClosed {
		return nil, ErrScreenClosed
	}
	if f, ok := s.feeds[identity]; ok {
		return f, nil
	}
	f := &feed{surface: &Surface{}}
	f.binding = track.NewBinding(func(available bool) {
		// Runs on a media goroutine with the binding's source lock held;
		// the owner goroutine reads f.available instead of the binding.
		f.available.Store(available)
		s.post(Change(identity, tile.Update{Patch: tile.Patch{HasVideoTrack: &available}}))
	})
	s.feeds[identity] = f
	return f, nil
}

func (s *Screen) releaseFeed(identity string) {
	s.feedMu.Lock()
	f := s.feeds[identity]
	delete(s.feeds, identity)
	s.feedMu.Unlock()

	if f != nil {
		f.binding.Close()
	}
}

func (s *Screen) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			s.shutdown()
			return
		case b := <-s.events:
			s.apply(s.drain(b))
		}
	}
}

// drain collects first and every batch already queued behind it, so a
// source removed and re-added in quick succession is published once.
func (s *Screen) drain(first batch) []batch {
	batches := []batch{first}
	for {
		select {
		case b := <-s.events:
			batches = append(batches, b)
		default:
			return batches
		}
	}
}

// apply applies the batches in order and then publishes every touched
// identity once. Each batch gets its own result.
func (s *Screen) apply(batches []batch) {
	var touched []string
	seen := make(map[string]bool)
	touch := func(identity string) {
		if !seen[identity] {
			seen[identity] = true
			touched = append(touched, identity)
		}
	}

	results := make([]error, len(batches))
	for i, b := range batches {
		var errs []error
		for _, e := range b.events {
			if err := s.applyEvent(e, touch); err != nil {
				errs = append(errs, err)
				continue
			}
			touch(e.Identity)
		}
		results[i] = errors.Join(errs...)
	}

	for _, identity := range touched {
		s.publish(identity)
	}
	s.pubMu.Lock()
	s.pinnedView = s.pinned
	s.pubMu.Unlock()

	for i, b := range batches {
		if b.result != nil {
			b.result <- results[i]
		} else if results[i] != nil {
			s.log.Debug("dropped events", sl.Err(results[i]))
		}
	}
}

// applyEvent applies e to its tile. touch records other identities the event
// changed on the way.
func (s *Screen) applyEvent(e Event, touch func(string)) error {
	switch e.Kind {
	case EventJoin:
		if _, ok := s.tiles[e.Identity]; ok {
			return fmt.Errorf("%w: %s", ErrParticipantExists, e.Identity)
		}
		f, err := s.feedFor(e.Identity)
		if err != nil {
			return err
		}
		m := tile.NewMachine(e.Config, s.log)
		m.Attach(f.binding, f.surface)
		if f.available.Load() && !m.Attributes().HasVideoTrack {
			available := true
			m.Apply(tile.Update{
				Revision: s.stamp(e.Identity, 0),
				Patch:    tile.Patch{HasVideoTrack: &available},
			})
		}
		s.tiles[e.Identity] = m
		s.log.Info("participant joined", slog.String("identity", e.Identity), slog.String("state", m.State().String()))

	case EventLeave:
		m, ok := s.tiles[e.Identity]
		if !ok {
			return fmt.Errorf("%w: %s", ErrParticipantNotFound, e.Identity)
		}
		m.Detach()
		delete(s.tiles, e.Identity)
		if s.pinned == e.Identity {
			s.pinned = ""
		}
		s.log.Info("participant left", slog.String("identity", e.Identity))

	case EventUpdate:
		m, ok := s.tiles[e.Identity]
		if !ok {
			return fmt.Errorf("%w: %s", ErrParticipantNotFound, e.Identity)
		}
		m.Apply(e.Update)
		if e.Update.Patch.Pinned != nil {
			s.repin(e.Identity, m.Attributes().Pinned, touch)
		}

	default:
		return fmt.Errorf("unknown event kind %d", int(e.Kind))
	}
	return nil
}

// repin keeps at most one tile pinned: pinning identity unpins the tile
// pinned before it.
func (s *Screen) repin(identity string, pinned bool, touch func(string)) {
	if !pinned {
		if s.pinned == identity {
			s.pinned = ""
		}
		return
	}
	if prev, ok := s.tiles[s.pinned]; ok && s.pinned != identity {
		unpin := false
		prev.Apply(tile.Update{
			Revision: s.stamp(s.pinned, 0),
			Patch:    tile.Patch{Pinned: &unpin},
		})
		touch(s.pinned)
		s.log.Info("participant unpinned", slog.String("identity", s.pinned))
	}
	s.pinned = identity
}

// publish compares identity's current layout with the one last published
// and sends the difference to subscribers.
func (s *Screen) publish(identity string) {
	m, present := s.tiles[identity]
	prev, wasPublished := s.published[identity]

	if !present {
		s.releaseFeed(identity)
		if !wasPublished {
			return
		}
		delete(s.published, identity)
		s.broadcast(Frame{Identity: identity, Removed: true}, func() {
			delete(s.views, identity)
			s.order = removeIdentity(s.order, identity)
		})
		return
	}

	layout := m.Layout()
	var from *tile.Layout
	if wasPublished {
		from = &prev
	}
	directives := tile.Diff(from, layout)
	s.published[identity] = layout

	view := View{Identity: identity, Revision: m.Revision(), Layout: layout}
	record := func() {
		if _, ok := s.views[identity]; !ok {
			s.order = append(s.order, identity)
		}
		s.views[identity] = view
	}
	if len(directives) == 0 {
		s.pubMu.Lock()
		record()
		s.pubMu.Unlock()
		return
	}
	s.broadcast(Frame{
		Identity:   identity,
		Revision:   m.Revision(),
		Layout:     &layout,
		Directives: directives,
	}, record)
}

// broadcast runs record and delivers f under the same lock, so a new
// subscriber sees either the old view and then f, or only the new view.
func (s *Screen) broadcast(f Frame, record func()) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	record()
	for id, ch := range s.subs {
		select {
		case ch <- f:
		default:
			s.log.Debug("dropping frame for slow subscriber",
				slog.Uint64("subscriber", id),
				slog.String("identity", f.Identity),
			)
		}
	}
}

func (s *Screen) shutdown() {
	for identity, m := range s.tiles {
		m.Detach()
		delete(s.tiles, identity)
	}

	s.feedMu.Lock()
	feeds := s.feeds
	s.feeds = make(map[string]*feed)
	s.feedsClosed = true
	s.feedMu.Unlock()
	for _, f := range feeds {
		f.binding.Close()
	}

	s.pubMu.Lock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.subsClosed = true
	s.pubMu.Unlock()

	s.log.Info("call screen closed")
}

func removeIdentity(order []string, identity string) []string {
	out := order[:0]
	for _, id := range order {
		if id != identity {
			out = append(out, id)
		}
	}
	return out
}
