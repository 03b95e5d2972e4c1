// Package callback keeps external callbacks reachable while the event loop
// may still invoke them. Every Register is paired with exactly one Release.
//
// A Registry and its Slots belong to the loop goroutine and are not safe for
// concurrent use.
package callback

import (
	"github.com/pkg/errors"
	"github.com/rs/xid"
)

var ErrNotRegistered = errors.New("callback: reference not registered")

// Ref identifies one registered callback.
type Ref struct {
	id xid.ID
}

func (r Ref) IsZero() bool {
	return r.id.IsNil()
}

func (r Ref) String() string {
	return r.id.String()
}

type Registry struct {
	refs       map[xid.ID]any
	registered uint64
	released   uint64
}

func NewRegistry() *Registry {
	return &Registry{refs: make(map[xid.ID]any)}
}

func (r *Registry) Register(fn any) Ref {
	ref := Ref{id: xid.New()}
	r.refs[ref.id] = fn
	r.registered++
	return ref
}

func (r *Registry) Release(ref Ref) error {
	if _, ok := r.refs[ref.id]; !ok {
		return errors.Wrapf(ErrNotRegistered, "callback: release %s", ref)
	}
	delete(r.refs, ref.id)
	r.released++
	return nil
}

// Live is the number of references registered and not yet released.
func (r *Registry) Live() int {
	return len(r.refs)
}

func (r *Registry) Registered() uint64 {
	return r.registered
}

func (r *Registry) Released() uint64 {
	return r.released
}
