// Package event fans lifecycle notifications out to listeners.
package event

import (
	stderrors "errors"
	"slices"

	"github.com/hsgames/evnet/safe"
	"github.com/pkg/errors"
)

type (
	Event   uint16
	Handler func(Event, any) error
)

type Listener struct {
	e Event
	h Handler
}

func (l *Listener) Event() Event {
	return l.e
}

// Manager is not safe for concurrent use. The zero value is ready.
type Manager struct {
	listeners map[Event][]*Listener
}

func (m *Manager) AddListener(e Event, handler Handler) *Listener {
	return m.add(&Listener{e: e, h: handler})
}

func (m *Manager) add(l *Listener) *Listener {
	if l.h == nil {
		panic("event: listener handler is nil")
	}
	if m.listeners == nil {
		m.listeners = make(map[Event][]*Listener)
	}
	m.listeners[l.e] = append(m.listeners[l.e], l)
	return l
}

// RemoveListener is a no-op for a listener already removed.
func (m *Manager) RemoveListener(l *Listener) {
	ls := m.listeners[l.e]
	i := slices.Index(ls, l)
	if i < 0 {
		return
	}
	ls = slices.Delete(slices.Clone(ls), i, i+1)
	if len(ls) == 0 {
		delete(m.listeners, l.e)
	} else {
		m.listeners[l.e] = ls
	}
}

func (m *Manager) Len(e Event) int {
	return len(m.listeners[e])
}

// Dispatch calls every listener of e in registration order. Listeners added
// or removed during a dispatch take effect from the next one. The errors and
// panics of all listeners are joined.
func (m *Manager) Dispatch(e Event, msg any) error {
	var errs []error
	for _, l := range m.listeners[e] {
		var err error
		if perr := safe.Call(func() { err = l.h(e, msg) }); perr != nil {
			err = perr
		}
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "event: dispatch %d", e))
		}
	}
	return stderrors.Join(errs...)
}
