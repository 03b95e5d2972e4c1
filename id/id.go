package id

import (
	"sync/atomic"
)

// Serial hands out increasing non-zero ids from any goroutine.
type Serial struct {
	id atomic.Uint64
}

func (s *Serial) Next() uint64 {
	nid := s.id.Add(1)

	if nid == 0 {
		panic("id: serial id is overflow")
	}

	return nid
}

func (s *Serial) Last() uint64 {
	return s.id.Load()
}
