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

package atomicx

import (
	"sync"
)

// MapTyped is a type-safe wrapper around sync.Map for a fixed key/value
// pair, used for the connection registry and the active-request table
// where every caller already knows the concrete types.
type MapTyped[K comparable, V any] struct {
	m sync.Map
}

// NewMapTyped returns an empty MapTyped[K, V].
func NewMapTyped[K comparable, V any]() *MapTyped[K, V] {
	return &MapTyped[K, V]{}
}

// Load returns the value stored for key, and whether it was present.
func (m *MapTyped[K, V]) Load(key K) (value V, ok bool) {
	v, found := m.m.Load(key)
	if !found {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Store sets the value for key, overwriting any existing entry.
func (m *MapTyped[K, V]) Store(key K, value V) {
	m.m.Store(key, value)
}

// LoadOrStore returns the existing value for key if present; otherwise it
// stores and returns value.
func (m *MapTyped[K, V]) LoadOrStore(key K, value V) (actual V, loaded bool) {
	v, found := m.m.LoadOrStore(key, value)
	return v.(V), found
}

// LoadAndDelete removes key and returns its prior value, if present.
func (m *MapTyped[K, V]) LoadAndDelete(key K) (value V, loaded bool) {
	v, found := m.m.LoadAndDelete(key)
	if !found {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// Delete removes key if present.
func (m *MapTyped[K, V]) Delete(key K) {
	m.m.Delete(key)
}

// Len returns the number of entries currently stored. This walks the full
// map, matching sync.Map's lack of a native size accessor.
func (m *MapTyped[K, V]) Len() int {
	n := 0
	m.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Range calls f for each key/value pair in an unspecified order, stopping
// early if f returns false.
func (m *MapTyped[K, V]) Range(f func(key K, value V) bool) {
	m.m.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}
