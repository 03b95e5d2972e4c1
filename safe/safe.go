package safe

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/pkg/errors"
)

func Stack() string {
	buf := make([]byte, 2<<20)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

func Recover() {
	if r := recover(); r != nil {
		slog.Error("panic recover",
			slog.Any("value", r), slog.String("stack", Stack()))
	}
}

// RecoverError turns a recovered panic into *err. It must be deferred directly.
func RecoverError(err *error) {
	if r := recover(); r != nil {
		*err = errors.Errorf("panic [%v]\n%s", r, Stack())
	}
}

func Go(f func()) {
	go func() {
		defer Recover()
		f()
	}()
}

// Call runs f and reports a panic inside it as an error instead of unwinding
// the caller. The reactor uses it to invoke external callbacks.
func Call(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: Stack()}
		}
	}()
	f()
	return nil
}

type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("safe: callback panic [%v]", e.Value)
}
