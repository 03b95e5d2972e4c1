package callback

// Slot holds at most one live reference of type T.
type Slot[T any] struct {
	ref Ref
	fn  T
}

// Store registers fn, releasing the reference it replaces first.
func (s *Slot[T]) Store(r *Registry, fn T) error {
	if err := s.Release(r); err != nil {
		return err
	}
	s.ref = r.Register(fn)
	s.fn = fn
	return nil
}

func (s *Slot[T]) Load() (fn T, ok bool) {
	if s.ref.IsZero() {
		return fn, false
	}
	return s.fn, true
}

func (s *Slot[T]) IsSet() bool {
	return !s.ref.IsZero()
}

// Release drops the held reference. An empty slot is a no-op.
func (s *Slot[T]) Release(r *Registry) error {
	if s.ref.IsZero() {
		return nil
	}
	ref := s.ref
	var zero T
	s.ref, s.fn = Ref{}, zero
	return r.Release(ref)
}
