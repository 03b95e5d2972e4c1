package bytespool_test

import (
	"testing"

	"github.com/hsgames/evnet/pool/bytespool"
)

func TestGet(t *testing.T) {
	p := bytespool.Default()
	for _, size := range []int{1, 511, 512, 513, 4096, 4097, 65537, 1 << 20} {
		b := p.Get(size)
		if len(b) != size {
			t.Fatalf("Get(%d) len = %d", size, len(b))
		}
		if cap(b) < size {
			t.Fatalf("Get(%d) cap = %d", size, cap(b))
		}
		p.Put(b)
	}
	if b := p.Get(0); b != nil {
		t.Fatalf("Get(0) = %v", b)
	}
}

func TestPutForeign(t *testing.T) {
	p := bytespool.New(bytespool.DefaultClasses...)
	// capacity 600 sits between buckets and must not be pooled
	p.Put(make([]byte, 600))
	if st := p.Stats(); st.Drops != 1 {
		t.Fatalf("drops = %d", st.Drops)
	}
	for i := 0; i < 100; i++ {
		b := p.Get(1024)
		if len(b) != 1024 {
			t.Fatalf("len = %d", len(b))
		}
		p.Put(b)
	}
}

func TestPutSliced(t *testing.T) {
	p := bytespool.New(bytespool.Class{Min: 1, Max: 1024, Step: 512})
	b := p.Get(100)
	p.Put(b[:10])
	c := p.Get(512)
	if len(c) != 512 || cap(c) != 512 {
		t.Fatalf("len = %d, cap = %d", len(c), cap(c))
	}
	if st := p.Stats(); st.Gets != 2 || st.Puts != 1 || st.Drops != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestClasses(t *testing.T) {
	p := bytespool.New(
		bytespool.Class{Min: 1025, Max: 2048, Step: 1024},
		bytespool.Class{Min: 1, Max: 1024, Step: 256},
	)
	for size, want := range map[int]int{1: 256, 256: 256, 257: 512, 1024: 1024, 1025: 2048} {
		if b := p.Get(size); cap(b) != want {
			t.Fatalf("Get(%d) cap = %d, want %d", size, cap(b), want)
		}
	}
	if b := p.Get(4096); cap(b) != 4096 {
		t.Fatalf("oversized cap = %d", cap(b))
	}
}

func TestInvalidClass(t *testing.T) {
	for _, c := range []bytespool.Class{
		{Min: 0, Max: 10, Step: 1},
		{Min: 1, Max: 10, Step: 0},
		{Min: 1, Max: 10, Step: 3},
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("class %+v accepted", c)
				}
			}()
			bytespool.New(c)
		}()
	}
}
