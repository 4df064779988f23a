// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gfx

import (
	"sync"
	"weak"
)

// liveSet tracks objects through weak references. It never keeps an object
// alive; collected objects are pruned on iteration.
type liveSet[T any] struct {
	mu   sync.Mutex
	refs []func() (T, bool)
}

// weakRef returns a resolver for p that reports false once p is collected.
func weakRef[P any, T any](p *P, as func(*P) T) func() (T, bool) {
	w := weak.Make(p)
	return func() (T, bool) {
		v := w.Value()
		if v == nil {
			var zero T
			return zero, false
		}
		return as(v), true
	}
}

func (s *liveSet[T]) add(ref func() (T, bool)) {
	s.mu.Lock()
	s.refs = append(s.refs, ref)
	s.mu.Unlock()
}

// snapshot returns the live objects and drops collected ones.
func (s *liveSet[T]) snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]T, 0, len(s.refs))
	kept := s.refs[:0]
	for _, ref := range s.refs {
		if v, ok := ref(); ok {
			kept = append(kept, ref)
			out = append(out, v)
		}
	}
	clear(s.refs[len(kept):])
	s.refs = kept
	return out
}

func (s *liveSet[T]) each(fn func(T)) {
	for _, v := range s.snapshot() {
		fn(v)
	}
}

func (s *liveSet[T]) len() int {
	return len(s.snapshot())
}
