// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zinfo

// WindowSize is the deflate history window size.
//
// gzip streams are compressed with a 32 KiB window, so resuming decompression
// never needs more than the trailing WindowSize bytes of already-produced
// output.
const WindowSize = 32768

// Window is a fixed-capacity ring over the decompressed stream, used as the
// engine's sole output sink.
//
// The engine writes into Tail, the caller advances the cursor by the number
// of bytes produced, and rearms the ring from the start once the capacity is
// exhausted, overwriting the oldest bytes. Memory for decompressed history is
// therefore bounded at WindowSize regardless of stream length.
type Window struct {
	data [WindowSize]byte

	// write cursor, wraps via Rearm
	pos int
}

// Tail returns the writable remainder of the ring, from the write cursor to
// the end of the capacity.
func (w *Window) Tail() []byte {
	return w.data[w.pos:]
}

// Advance moves the write cursor forward by n bytes written into Tail.
func (w *Window) Advance(n int) {
	w.pos += n
}

// Remaining returns the writable space left before the ring must be rearmed.
func (w *Window) Remaining() int {
	return WindowSize - w.pos
}

// Rearm resets the write cursor to the start of the ring, so that subsequent
// writes overwrite the oldest bytes.
func (w *Window) Rearm() {
	w.pos = 0
}

// WriteCursor returns the current write position within the ring.
func (w *Window) WriteCursor() int {
	return w.pos
}

// Snapshot returns the ring contents normalized to decompression order:
// index 0 is the oldest retained byte and index WindowSize-1 is the byte
// written last.
//
// Before the ring wraps for the first time, the unwritten region is zero, so
// the snapshot comes out zero-padded at the front.
func (w *Window) Snapshot() [WindowSize]byte {
	var snap [WindowSize]byte

	n := copy(snap[:], w.data[w.pos:])
	copy(snap[n:], w.data[:w.pos])

	return snap
}
