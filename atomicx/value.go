/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package atomicx provides generic, lock-free containers used throughout
// the runtime to share state across goroutines without a mutex: a typed
// Value[T] wrapping sync/atomic.Value, and a typed MapTyped[K, V] wrapping
// sync.Map. Both are adapted from the teacher's atomic package, trimmed to
// the two generics this module exercises.
package atomicx

import (
	"sync/atomic"
)

// Value is a type-safe wrapper around sync/atomic.Value.
type Value[T any] struct {
	v atomic.Value
}

type box[T any] struct {
	val T
}

// NewValue returns an empty Value[T]; Load returns the zero value of T
// until the first Store.
func NewValue[T any]() *Value[T] {
	return &Value[T]{}
}

// Load returns the current value, or the zero value of T if never stored.
func (o *Value[T]) Load() T {
	v, _ := o.v.Load().(box[T])
	return v.val
}

// Store sets the value atomically.
func (o *Value[T]) Store(val T) {
	o.v.Store(box[T]{val: val})
}

// Swap atomically stores new and returns the previous value.
func (o *Value[T]) Swap(new T) (old T) {
	prev := o.v.Swap(box[T]{val: new})
	if b, ok := prev.(box[T]); ok {
		return b.val
	}
	var zero T
	return zero
}
