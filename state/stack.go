// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package state provides the push/pop stack used for every piece of
// renderer state (viewport, scissor, projection, masking, depth).
//
// A Stack always holds at least one value. Every Push and Pop reports the
// new top of the stack to a change callback; whether that change results in
// backend work is decided by the callback, which usually compares the new
// effective value against the last value it applied.
package state

import (
	"errors"
	"fmt"
)

// ErrPrecondition is the base error for stack misuse.
var ErrPrecondition = errors.New("state: precondition violated")

// ErrPopLastValue is returned when Pop would remove the bottom value.
var ErrPopLastValue = fmt.Errorf("%w: cannot pop the last value", ErrPrecondition)

// ChangeFunc is invoked with the new top value after every Push and Pop.
// isPushing is true for Push and false for Pop.
type ChangeFunc[T any] func(value T, isPushing bool)

// Stack is an ordered stack of state values with a change callback.
//
// Stack is not safe for concurrent use; it belongs to the render goroutine.
type Stack[T any] struct {
	values   []T
	onChange ChangeFunc[T]
}

// New creates a stack holding initial as its bottom value.
// onChange may be nil. It is not invoked for the initial value.
func New[T any](initial T, onChange ChangeFunc[T]) *Stack[T] {
	s := &Stack[T]{onChange: onChange}
	s.values = append(s.values, initial)
	return s
}

// Push makes v the top value and invokes the change callback.
// The callback runs even when v equals the previous top.
func (s *Stack[T]) Push(v T) {
	s.values = append(s.values, v)
	if s.onChange != nil {
		s.onChange(v, true)
	}
}

// Pop removes the top value and reports the new top to the change callback.
// It returns the removed value, or ErrPopLastValue if the stack holds a
// single value.
func (s *Stack[T]) Pop() (T, error) {
	if len(s.values) <= 1 {
		var zero T
		return zero, ErrPopLastValue
	}

	last := len(s.values) - 1
	popped := s.values[last]
	var zero T
	s.values[last] = zero
	s.values = s.values[:last]

	if s.onChange != nil {
		s.onChange(s.values[last-1], false)
	}
	return popped, nil
}

// MustPop is like Pop but panics on a precondition violation.
func (s *Stack[T]) MustPop() T {
	v, err := s.Pop()
	if err != nil {
		panic(err)
	}
	return v
}

// Clear removes every value, leaving the stack empty until the next Push.
// It is used during a frame reset, immediately followed by pushing the
// default value. The change callback is not invoked.
func (s *Stack[T]) Clear() {
	clear(s.values)
	s.values = s.values[:0]
}

// Value returns the top value. It returns the zero value if the stack was
// cleared and nothing has been pushed since.
func (s *Stack[T]) Value() T {
	if len(s.values) == 0 {
		var zero T
		return zero
	}
	return s.values[len(s.values)-1]
}

// Parent returns the value below the top, or false if there is none.
func (s *Stack[T]) Parent() (T, bool) {
	if len(s.values) < 2 {
		var zero T
		return zero, false
	}
	return s.values[len(s.values)-2], true
}

// Depth returns the number of values on the stack.
func (s *Stack[T]) Depth() int {
	return len(s.values)
}

// Reset clears the stack and pushes v, invoking the change callback once.
func (s *Stack[T]) Reset(v T) {
	s.Clear()
	s.Push(v)
}
