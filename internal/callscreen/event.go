package callscreen

import (
	"github.com/immxrtalbeast/videocall/internal/tile"
)

type EventKind int

const (
	EventJoin EventKind = iota + 1
	EventLeave
	EventUpdate
)

func (k EventKind) String() string {
	switch k {
	case EventJoin:
		return "join"
	case EventLeave:
		return "leave"
	case EventUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Event is one change observed by the signaling or media layer.
type Event struct {
	Kind     EventKind
	Identity string
	Config   tile.Config
	Update   tile.Update
}

// Join adds a participant tile built from cfg.
func Join(cfg tile.Config) Event {
	return Event{Kind: EventJoin, Identity: cfg.Identity, Config: cfg}
}

// Leave removes a participant tile.
func Leave(identity string) Event {
	return Event{Kind: EventLeave, Identity: identity}
}

// Change updates a participant's attributes. A zero revision is stamped
// when the event is dispatched.
func Change(identity string, u tile.Update) Event {
	return Event{Kind: EventUpdate, Identity: identity, Update: u}
}

type batch struct {
	events []Event
	result chan error
}
