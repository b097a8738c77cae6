package callscreen

import (
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
)

// Surface is the render target of one tile. Decoding is out of scope, so it
// only keeps delivery statistics.
type Surface struct {
	frames  atomic.Uint64
	lastSeq atomic.Uint32
	lastAt  atomic.Int64
}

func (s *Surface) OnFrame(pkt *rtp.Packet) {
	s.frames.Add(1)
	s.lastSeq.Store(uint32(pkt.SequenceNumber))
	s.lastAt.Store(time.Now().UnixNano())
}

// Frames is the number of packets rendered so far.
func (s *Surface) Frames() uint64 {
	return s.frames.Load()
}

// LastFrameAt is zero until the first frame.
func (s *Surface) LastFrameAt() time.Time {
	ns := s.lastAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
