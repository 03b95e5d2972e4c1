package tcp

import "testing"

func TestArena(t *testing.T) {
	var a arena
	c1, c2 := &conn{}, &conn{}
	id1 := a.alloc(c1)
	id2 := a.alloc(c2)
	if id1 == 0 || id2 == 0 || id1 == id2 {
		t.Fatalf("ids %s %s", id1, id2)
	}
	if got, ok := a.get(id1); !ok || got != c1 {
		t.Fatal("get id1")
	}
	if !a.release(id1) {
		t.Fatal("release id1")
	}
	if a.release(id1) {
		t.Fatal("double release")
	}
	if _, ok := a.get(id1); ok {
		t.Fatal("stale id resolved")
	}

	c3 := &conn{}
	id3 := a.alloc(c3)
	if id3.Slot() != id1.Slot() || id3.Generation() == id1.Generation() {
		t.Fatalf("id3 %s, id1 %s", id3, id1)
	}
	if got, _ := a.get(id1); got != nil {
		t.Fatal("old handle reaches new conn")
	}
	if a.live != 2 {
		t.Fatalf("live = %d", a.live)
	}

	n := 0
	a.each(func(*conn) { n++ })
	if n != 2 {
		t.Fatalf("each visited %d", n)
	}
	if _, ok := a.get(0); ok {
		t.Fatal("zero id resolved")
	}
}
