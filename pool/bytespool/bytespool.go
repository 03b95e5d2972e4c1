// Package bytespool recycles byte slices in fixed size classes.
package bytespool

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// Class serves capacities in (Min-1, Max] rounded up to a multiple of Step
// above Min-1.
type Class struct {
	Min, Max, Step int
}

// DefaultClasses suit socket reads of up to a few hundred KiB.
var DefaultClasses = []Class{
	{Min: 1, Max: 4096, Step: 512},
	{Min: 4097, Max: 40960, Step: 4096},
	{Min: 40961, Max: 417792, Step: 16384},
	{Min: 417793, Max: 1925120, Step: 65536},
}

type class struct {
	Class
	buckets []sync.Pool
}

func (c *class) size(idx int) int {
	return (c.Min - 1) + (idx+1)*c.Step
}

func (c *class) index(size int) (int, bool) {
	if size < c.Min {
		return 0, false
	}
	idx := (size - c.Min) / c.Step
	if idx >= len(c.buckets) {
		return 0, false
	}
	return idx, true
}

type Stats struct {
	Gets   uint64
	Puts   uint64
	Allocs uint64
	// Drops counts slices Put with a capacity no bucket owns.
	Drops  uint64
}

type Pool struct {
	classes []*class
	gets    atomic.Uint64
	puts    atomic.Uint64
	allocs  atomic.Uint64
	drops   atomic.Uint64
}

// New panics when the classes overlap or a class is malformed.
func New(classes ...Class) *Pool {
	cs := slices.Clone(classes)
	slices.SortFunc(cs, func(a, b Class) int { return a.Min - b.Min })
	p := &Pool{}
	prev := 0
	for _, c := range cs {
		if c.Min <= prev || c.Step <= 0 || c.Max < c.Min || (c.Max-c.Min+1)%c.Step != 0 {
			panic(fmt.Sprintf("bytespool: invalid class %+v", c))
		}
		prev = c.Max
		cl := &class{Class: c, buckets: make([]sync.Pool, (c.Max-c.Min+1)/c.Step)}
		for i := range cl.buckets {
			size := cl.size(i)
			cl.buckets[i].New = func() any {
				p.allocs.Add(1)
				return make([]byte, size)
			}
		}
		p.classes = append(p.classes, cl)
	}
	return p
}

// Get returns a slice of len size. Its contents are not zeroed.
func (p *Pool) Get(size int) []byte {
	if size <= 0 {
		return nil
	}
	p.gets.Add(1)
	for _, c := range p.classes {
		if idx, ok := c.index(size); ok {
			return c.buckets[idx].Get().([]byte)[:size]
		}
	}
	p.allocs.Add(1)
	return make([]byte, size)
}

// Put accepts only slices whose capacity is exactly a bucket size.
func (p *Pool) Put(b []byte) {
	if cap(b) == 0 {
		return
	}
	p.puts.Add(1)
	for _, c := range p.classes {
		if idx, ok := c.index(cap(b)); ok && c.size(idx) == cap(b) {
			c.buckets[idx].Put(b[:cap(b)])
			return
		}
	}
	p.drops.Add(1)
}

func (p *Pool) Stats() Stats {
	return Stats{
		Gets:   p.gets.Load(),
		Puts:   p.puts.Load(),
		Allocs: p.allocs.Load(),
		Drops:  p.drops.Load(),
	}
}

var std = New(DefaultClasses...)

func Default() *Pool {
	return std
}
