package app_test

import (
	"errors"
	"testing"

	"github.com/hsgames/evnet/app"
)

type framework struct {
	calls   []string
	runErr  error
	initErr error
}

func (f *framework) Init() error {
	f.calls = append(f.calls, "init")
	return f.initErr
}

func (f *framework) Run() error {
	f.calls = append(f.calls, "run")
	return f.runErr
}

func (f *framework) Destroy() error {
	f.calls = append(f.calls, "destroy")
	return nil
}

func TestRunFramework(t *testing.T) {
	f := &framework{}
	if err := app.RunFramework(f); err != nil {
		t.Fatal(err)
	}
	if len(f.calls) != 3 {
		t.Fatalf("calls = %v", f.calls)
	}

	boom := errors.New("boom")
	f = &framework{initErr: boom}
	if err := app.RunFramework(f); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if len(f.calls) != 1 {
		t.Fatalf("calls = %v", f.calls)
	}
}
