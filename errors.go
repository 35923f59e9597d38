// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zinfo

import "errors"

// Errors returned while building an index.
//
// All of them are fatal: no partial index is ever returned, and the build is
// not retried internally.
var (
	// ErrStreamCorrupt indicates malformed compressed data or an inconsistent
	// engine stream state.
	ErrStreamCorrupt = errors.New("corrupt compressed stream")

	// ErrVersionMismatch indicates an incompatible engine library version.
	ErrVersionMismatch = errors.New("engine version mismatch")

	// ErrOutOfMemory indicates the engine failed to allocate memory.
	ErrOutOfMemory = errors.New("engine out of memory")

	// ErrBufferUnderrun indicates the engine needed more input or output
	// space than it was given.
	ErrBufferUnderrun = errors.New("engine buffer underrun")

	// ErrUnsupportedDictionary indicates the stream requires a preset
	// dictionary, which standard gzip input never does.
	ErrUnsupportedDictionary = errors.New("preset dictionary required")

	// ErrUnexpectedEOF indicates the input source was exhausted before the
	// engine signaled end of stream.
	ErrUnexpectedEOF = errors.New("unexpected end of input")

	// ErrUnknownEngine indicates an unrecognized engine status code.
	ErrUnknownEngine = errors.New("unknown engine error")
)
