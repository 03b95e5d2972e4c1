package safe_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/hsgames/evnet/safe"
)

func TestCall(t *testing.T) {
	if err := safe.Call(func() {}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	err := safe.Call(func() { panic("boom") })
	var pe *safe.PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PanicError, got %v", err)
	}
	if pe.Value != "boom" {
		t.Fatalf("panic value %v != boom", pe.Value)
	}
	if pe.Stack == "" {
		t.Fatal("panic stack is empty")
	}
}

func TestRecoverError(t *testing.T) {
	f := func() (err error) {
		defer safe.RecoverError(&err)
		panic("boom")
	}
	if err := f(); err == nil {
		t.Fatal("expected error from recovered panic")
	}
}

func TestGo(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(2)
	safe.Go(func() {
		defer wg.Done()
		panic("recovered")
	})
	safe.Go(func() {
		defer wg.Done()
	})
	wg.Wait()
}
