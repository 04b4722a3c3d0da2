package interop

import "sync/atomic"

var live atomic.Int64

// Buffer is an owned, length-explicit byte buffer crossing the native
// boundary. Zero bytes inside the payload are legal; the length is
// authoritative. A nil *Buffer behaves as an empty released buffer.
type Buffer struct {
	data     []byte
	released atomic.Bool
}

// FromString creates a buffer holding a copy of s.
func FromString(s string) *Buffer {
	live.Add(1)
	return &Buffer{data: []byte(s)}
}

// FromBytes creates a buffer holding a copy of b.
func FromBytes(b []byte) *Buffer {
	live.Add(1)
	data := make([]byte, len(b))
	copy(data, b)
	return &Buffer{data: data}
}

// Clone returns an independent deep copy. Cloning a released buffer
// yields a new empty buffer that still has to be released.
func (b *Buffer) Clone() *Buffer {
	if b == nil || b.released.Load() {
		return FromBytes(nil)
	}
	return FromBytes(b.data)
}

// Release drops the storage. The second and later calls are no-ops.
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	if b.released.CompareAndSwap(false, true) {
		b.data = nil
		live.Add(-1)
	}
}

// Bytes returns the payload. The slice aliases the buffer and is only
// valid until Release.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.released.Load() {
		return nil
	}
	return b.data
}

// Len returns the payload length, 0 after release.
func (b *Buffer) Len() int {
	return len(b.Bytes())
}

// String returns a copy of the payload as a string.
func (b *Buffer) String() string {
	return string(b.Bytes())
}

// Released reports whether Release has been called.
func (b *Buffer) Released() bool {
	return b == nil || b.released.Load()
}

// Live returns the number of buffers created and not yet released.
func Live() int64 {
	return live.Load()
}
