// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zinfo

// Flags describes the engine state after a decompression step.
//
// The low 3 bits hold the number of unconsumed bits of the current input
// byte; the remaining bits are the Flag* values below.
type Flags uint32

const (
	// FlagBlockBoundary is set when the engine stopped at a deflate block
	// boundary, i.e. decompression may validly resume here given the
	// leftover bit count.
	FlagBlockBoundary Flags = 1 << 7

	// FlagDictRequired is set when the stream requests a preset dictionary.
	// Building an index over such a stream is not supported.
	FlagDictRequired Flags = 1 << 6
)

// Bits returns the number of unconsumed bits (0-7) of the current input byte.
func (f Flags) Bits() uint8 {
	return uint8(f & 7)
}

// Stats reports the engine's buffer state and flags after a step.
type Stats struct {
	// AvailIn is the number of fed compressed bytes not yet consumed.
	AvailIn int

	// AvailOut is the remaining space in the output sink.
	AvailOut int

	Flags Flags
}

// Engine is a step-wise inflate engine.
//
// Implementations wrap an inflate-capable decompressor configured for
// automatic gzip/zlib/raw stream detection with a 32 KiB window. The engine
// never allocates output storage itself: it writes into the caller-owned sink
// set with SetOutput. The zlib subpackage provides the production
// implementation; tests may substitute a fake.
type Engine interface {
	// Feed supplies the next compressed-input slice. The engine reads from it
	// until AvailIn reaches zero; the caller must not modify the slice before
	// that.
	Feed(p []byte)

	// SetOutput sets the output sink for subsequent steps, replacing any
	// previous sink and resetting AvailOut to len(p).
	SetOutput(p []byte)

	// Step advances decompression by one unit of work: it stops when output
	// space or input is exhausted, or, if stopAtBoundary is set, at the next
	// deflate block boundary. It returns true when the end of the stream has
	// been reached.
	Step(stopAtBoundary bool) (bool, error)

	// Stats returns the buffer and flag state after the last step.
	Stats() Stats

	// Close tears down the engine session. It is safe to call multiple times.
	Close() error
}
