// Package ffb implements the framed flat buffer: a typed, linear,
// non-ring append buffer used by the codec workers to stage PCM and
// BT-socket bytes between poll cycles.
//
// Unlike a ring buffer, FFB never wraps: Shift is the only reclaim
// primitive, and it memmoves the remaining bytes down to offset zero.
// Codec libraries assume contiguous buffers and emit variable-length
// frames; a ring would force a double copy to present a contiguous
// view, so the non-ring discipline is kept intentionally (see spec.md
// §4.1, §9 "FFB-as-linear-buffer, not ring").
package ffb

import "fmt"

// FFB is a typed linear buffer over a slice of T. Capacity is fixed at
// Init time. The readable region is always [0, headIn); writes append
// at headIn. There is no independent read cursor — Shift is the only
// way to retire consumed elements, matching the upstream C buffer this
// is modeled on.
type FFB[T any] struct {
	buf    []T
	headIn int
}

// New allocates an FFB with room for n elements of type T.
func New[T any](n int) *FFB[T] {
	f := &FFB[T]{}
	f.Init(n)
	return f
}

// Init (re)allocates the backing store for n elements and resets the head.
func (f *FFB[T]) Init(n int) {
	f.buf = make([]T, n)
	f.headIn = 0
}

// Cap returns the total element capacity.
func (f *FFB[T]) Cap() int {
	return len(f.buf)
}

// LenIn returns the number of writable elements remaining before the
// buffer is full.
func (f *FFB[T]) LenIn() int {
	return len(f.buf) - f.headIn
}

// LenOut returns the number of readable elements currently buffered.
func (f *FFB[T]) LenOut() int {
	return f.headIn
}

// TailIn returns the writable slice starting at the head, sized LenIn().
// Callers write into it directly, then call Seek with the count written.
func (f *FFB[T]) TailIn() []T {
	return f.buf[f.headIn:]
}

// Data returns the readable slice [0, headIn).
func (f *FFB[T]) Data() []T {
	return f.buf[:f.headIn]
}

// Seek advances the head by n elements after the caller has written n
// elements into TailIn(). It panics on overrun — callers must check
// LenIn() first, as upstream callers check the equivalent before writing.
func (f *FFB[T]) Seek(n int) {
	if n < 0 || f.headIn+n > len(f.buf) {
		panic(fmt.Sprintf("ffb: seek(%d) overruns buffer (headIn=%d cap=%d)", n, f.headIn, len(f.buf)))
	}
	f.headIn += n
}

// Append writes data at the head and advances it, returning the number
// of elements actually copied (may be less than len(data) if the buffer
// doesn't have room).
func (f *FFB[T]) Append(data []T) int {
	n := copy(f.TailIn(), data)
	f.Seek(n)
	return n
}

// Shift retires the first n elements of the readable region, memmoving
// the remainder down to offset zero. This is the only reclaim
// primitive; the buffer is not a ring. Shift(LenOut()) fully drains it.
func (f *FFB[T]) Shift(n int) {
	if n <= 0 {
		return
	}
	if n > f.headIn {
		n = f.headIn
	}
	copy(f.buf, f.buf[n:f.headIn])
	f.headIn -= n
}

// Rewind discards the readable region entirely without a memmove. Used
// when a worker knows the buffered bytes are stale, e.g. after an
// ESTALE-triggered codec reinit.
func (f *FFB[T]) Rewind() {
	f.headIn = 0
}

// Free releases the backing store. The FFB must not be used afterward
// without a fresh Init.
func (f *FFB[T]) Free() {
	f.buf = nil
	f.headIn = 0
}
