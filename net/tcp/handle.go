package tcp

import evnet "github.com/hsgames/evnet/net"

type arenaSlot struct {
	gen  uint32
	conn *conn
}

// arena maps ConnIDs to live connections. Slots are reused and their
// generation bumped on release, so old handles never reach a new conn.
type arena struct {
	slots []arenaSlot
	free  []uint32
	live  int
}

func (a *arena) alloc(c *conn) evnet.ConnID {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		idx = uint32(len(a.slots))
		a.slots = append(a.slots, arenaSlot{gen: 1})
	}
	a.slots[idx].conn = c
	a.live++
	return evnet.ConnID(uint64(a.slots[idx].gen)<<32 | uint64(idx+1))
}

func (a *arena) get(id evnet.ConnID) (*conn, bool) {
	slot := id.Slot()
	if slot == 0 || int(slot) > len(a.slots) {
		return nil, false
	}
	s := &a.slots[slot-1]
	if s.gen != id.Generation() || s.conn == nil {
		return nil, false
	}
	return s.conn, true
}

func (a *arena) release(id evnet.ConnID) bool {
	if _, ok := a.get(id); !ok {
		return false
	}
	idx := id.Slot() - 1
	s := &a.slots[idx]
	s.conn = nil
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	a.free = append(a.free, idx)
	a.live--
	return true
}

func (a *arena) each(f func(c *conn)) {
	for i := range a.slots {
		if c := a.slots[i].conn; c != nil {
			f(c)
		}
	}
}
