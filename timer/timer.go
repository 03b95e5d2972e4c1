// Package timer keeps one-shot timers and tickers in a deadline heap that the
// owning goroutine fires by calling Run.
package timer

import (
	"container/heap"
	"fmt"
	"log/slog"
	"time"

	"github.com/hsgames/evnet/safe"
)

// ID identifies a timer within its Manager. Zero is never issued.
type ID uint64

type entry struct {
	f        func()
	id       ID
	end      time.Time
	interval time.Duration
	index    int
}

type deadlines []*entry

func (q deadlines) Len() int {
	return len(q)
}

func (q deadlines) Less(i, j int) bool {
	if q[i].end.Equal(q[j].end) {
		return q[i].id < q[j].id
	}
	return q[i].end.Before(q[j].end)
}

func (q deadlines) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *deadlines) Push(x any) {
	e := x.(*entry)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *deadlines) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

type Option func(*Manager)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// Manager is not safe for concurrent use; it belongs to the goroutine that
// calls Run.
type Manager struct {
	lastID ID
	q      deadlines
	byID   map[ID]*entry
	fired  []func()
	now    func() time.Time
	logger *slog.Logger
}

func New(opt ...Option) *Manager {
	m := &Manager{
		byID:   make(map[ID]*entry),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opt {
		o(m)
	}
	return m
}

// AddTimer fires f once after d.
func (m *Manager) AddTimer(d time.Duration, f func()) ID {
	return m.add(d, 0, f)
}

// AddTicker fires f every d. Missed periods are skipped, not replayed.
func (m *Manager) AddTicker(d time.Duration, f func()) ID {
	if d <= 0 {
		panic(fmt.Sprintf("timer: ticker interval %s <= 0", d))
	}
	return m.add(d, d, f)
}

func (m *Manager) add(d, interval time.Duration, f func()) ID {
	if f == nil {
		panic("timer: func is nil")
	}
	m.lastID++
	e := &entry{
		f:        f,
		id:       m.lastID,
		end:      m.now().Add(d),
		interval: interval,
	}
	heap.Push(&m.q, e)
	m.byID[e.id] = e
	return e.id
}

// Remove reports whether id was pending.
func (m *Manager) Remove(id ID) bool {
	e, ok := m.byID[id]
	if !ok {
		return false
	}
	delete(m.byID, id)
	heap.Remove(&m.q, e.index)
	return true
}

func (m *Manager) RemoveAll() {
	m.q = nil
	clear(m.byID)
}

func (m *Manager) Len() int {
	return len(m.q)
}

// Next is the earliest pending deadline.
func (m *Manager) Next() (time.Time, bool) {
	if len(m.q) == 0 {
		return time.Time{}, false
	}
	return m.q[0].end, true
}

// Run fires every expired timer, at most limit of them when limit > 0, and
// returns how many fired. A panicking func is logged and does not stop the
// others.
func (m *Manager) Run(limit int) int {
	now := m.now()
	for len(m.q) > 0 && (limit <= 0 || len(m.fired) < limit) {
		e := m.q[0]
		if e.end.After(now) {
			break
		}
		m.fired = append(m.fired, e.f)
		if e.interval > 0 {
			for !e.end.After(now) {
				e.end = e.end.Add(e.interval)
			}
			heap.Fix(&m.q, 0)
		} else {
			heap.Pop(&m.q)
			delete(m.byID, e.id)
		}
	}
	n := len(m.fired)
	for i, f := range m.fired {
		m.fired[i] = nil
		if err := safe.Call(f); err != nil {
			m.logger.Error("timer: func", slog.Any("error", err))
		}
	}
	m.fired = m.fired[:0]
	return n
}
