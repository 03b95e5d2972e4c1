package net

import "fmt"

// ConnID is an opaque connection handle. The zero value is never valid and
// a handle goes stale once its connection has closed.
type ConnID uint64

func (id ConnID) Slot() uint32 {
	return uint32(id)
}

func (id ConnID) Generation() uint32 {
	return uint32(id >> 32)
}

func (id ConnID) String() string {
	return fmt.Sprintf("%d:%d", id.Generation(), id.Slot())
}

type (
	ConnectFunc = func(id ConnID)
	DataFunc    = func(chunk string)
	EndFunc     = func()
	ErrorFunc   = func(id ConnID, err error)
)

type EndPoint interface {
	Name() string
	Addr() string
}
