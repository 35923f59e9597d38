// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package zlib implements the inflate engine on top of the system zlib
// library.
package zlib

/*
#cgo LDFLAGS: -lz

#include <stdint.h>
#include <stdlib.h>
#include <zlib.h>

extern voidpf zinfoAlloc(voidpf opaque, uInt items, uInt size);
extern void zinfoFree(voidpf opaque, voidpf address);

// zinfo_inflate_init wires the Go-side allocator hooks into the stream and
// runs inflateInit2 (a macro, so it has to be expanded from C).
static int zinfo_inflate_init(z_stream *strm, int window_bits, uintptr_t handle) {
	strm->zalloc = zinfoAlloc;
	strm->zfree = zinfoFree;
	strm->opaque = (voidpf)handle;
	strm->next_in = Z_NULL;
	strm->avail_in = 0;

	return inflateInit2(strm, window_bits);
}
*/
import "C"

import (
	"fmt"
	"runtime/cgo"
	"unsafe"

	"github.com/siderolabs/go-zinfo"
)

const (
	// 15-bit window plus automatic gzip/zlib header detection.
	autoWindowBits = 15 + 32

	// raw deflate, used when resuming from a checkpoint.
	rawWindowBits = -15

	// stagingSize is the size of the per-session C input and output staging
	// buffers. It matches the deflate window, so a full window snapshot or
	// output sink moves through in a single call.
	stagingSize = 32768
)

// Inflater is a step-wise inflate session backed by zlib.
//
// Inflater implements zinfo.Engine. It is not safe for concurrent use.
type Inflater struct {
	strm   *C.z_stream
	alloc  *Allocator
	handle cgo.Handle

	// C staging buffers for inflate I/O. The z_stream lives in C memory, so
	// it must never hold a pointer into the Go heap, not even across a
	// single inflate call; all input and output is copied through these.
	cin  unsafe.Pointer
	cout unsafe.Pointer

	in    []byte
	inPos int

	out    []byte
	outPos int

	flags zinfo.Flags
}

// NewInflater creates an inflate session with automatic gzip/zlib stream
// detection and a 32 KiB window, suitable for building an index.
func NewInflater() (*Inflater, error) {
	return newInflater(autoWindowBits)
}

// NewRawInflater creates a raw-deflate inflate session, suitable for resuming
// decompression from a checkpoint via Prime and SetDictionary.
func NewRawInflater() (*Inflater, error) {
	return newInflater(rawWindowBits)
}

func newInflater(windowBits int) (*Inflater, error) {
	strm := (*C.z_stream)(C.calloc(1, C.sizeof_z_stream))
	cin := C.malloc(stagingSize)
	cout := C.malloc(stagingSize)

	if strm == nil || cin == nil || cout == nil {
		C.free(unsafe.Pointer(strm))
		C.free(cin)
		C.free(cout)

		return nil, zinfo.ErrOutOfMemory
	}

	alloc := NewAllocator()
	handle := cgo.NewHandle(alloc)

	if ret := C.zinfo_inflate_init(strm, C.int(windowBits), C.uintptr_t(handle)); ret != C.Z_OK {
		err := statusError(ret, strm)

		handle.Delete()
		C.free(unsafe.Pointer(strm))
		C.free(cin)
		C.free(cout)

		return nil, err
	}

	return &Inflater{
		strm:   strm,
		alloc:  alloc,
		handle: handle,
		cin:    cin,
		cout:   cout,
	}, nil
}

// Feed supplies the next compressed-input slice.
func (inf *Inflater) Feed(p []byte) {
	inf.in = p
	inf.inPos = 0
}

// SetOutput sets the output sink for subsequent steps.
func (inf *Inflater) SetOutput(p []byte) {
	inf.out = p
	inf.outPos = 0
}

// Stats returns the buffer and flag state after the last step.
func (inf *Inflater) Stats() zinfo.Stats {
	return zinfo.Stats{
		AvailIn:  len(inf.in) - inf.inPos,
		AvailOut: len(inf.out) - inf.outPos,
		Flags:    inf.flags,
	}
}

// Step runs a single inflate call, stopping at the next deflate block
// boundary when stopAtBoundary is set. It returns true at the end of the
// stream.
func (inf *Inflater) Step(stopAtBoundary bool) (bool, error) {
	// A step processes at most stagingSize bytes each way: pending input is
	// copied into C memory before the call, produced output is copied back
	// out after it. Input staged but not consumed is simply re-staged from
	// the Go slice on the next call.
	feed := min(len(inf.in)-inf.inPos, stagingSize)
	if feed > 0 {
		copy(unsafe.Slice((*byte)(inf.cin), feed), inf.in[inf.inPos:])
	}

	space := min(len(inf.out)-inf.outPos, stagingSize)

	inf.strm.next_in = (*C.Bytef)(inf.cin)
	inf.strm.avail_in = C.uInt(feed)
	inf.strm.next_out = (*C.Bytef)(inf.cout)
	inf.strm.avail_out = C.uInt(space)

	flush := C.int(C.Z_NO_FLUSH)
	if stopAtBoundary {
		flush = C.Z_BLOCK
	}

	ret := C.inflate(inf.strm, flush)

	produced := space - int(inf.strm.avail_out)
	if produced > 0 {
		copy(inf.out[inf.outPos:], unsafe.Slice((*byte)(inf.cout), produced))
	}

	inf.inPos += feed - int(inf.strm.avail_in)
	inf.outPos += produced
	inf.flags = streamFlags(uint32(inf.strm.data_type))

	switch ret {
	case C.Z_OK:
		return false, nil
	case C.Z_STREAM_END:
		return true, nil
	case C.Z_NEED_DICT:
		inf.flags |= zinfo.FlagDictRequired

		return false, nil
	default:
		return false, statusError(ret, inf.strm)
	}
}

// Prime injects leftover bits into the session, so that decompression can
// resume at a block boundary that is not byte-aligned.
func (inf *Inflater) Prime(bits uint8, value byte) error {
	if ret := C.inflatePrime(inf.strm, C.int(bits), C.int(value)); ret != C.Z_OK {
		return statusError(ret, inf.strm)
	}

	return nil
}

// SetDictionary preloads the session's history window, normally with a
// checkpoint's window snapshot.
func (inf *Inflater) SetDictionary(dict []byte) error {
	if len(dict) == 0 {
		return nil
	}

	// only the trailing window-size bytes matter, and they fit the input
	// staging buffer exactly
	if len(dict) > stagingSize {
		dict = dict[len(dict)-stagingSize:]
	}

	copy(unsafe.Slice((*byte)(inf.cin), len(dict)), dict)

	if ret := C.inflateSetDictionary(inf.strm, (*C.Bytef)(inf.cin), C.uInt(len(dict))); ret != C.Z_OK {
		return statusError(ret, inf.strm)
	}

	return nil
}

// MemoryUsage reports the current and peak number of bytes the session's
// allocator holds on behalf of zlib.
func (inf *Inflater) MemoryUsage() (inUse, peak int64) {
	return inf.alloc.InUse(), inf.alloc.Peak()
}

// Close tears down the session and releases all engine allocations. It is
// safe to call multiple times.
func (inf *Inflater) Close() error {
	if inf.strm == nil {
		return nil
	}

	ret := C.inflateEnd(inf.strm)

	C.free(unsafe.Pointer(inf.strm))
	C.free(inf.cin)
	C.free(inf.cout)

	inf.strm = nil
	inf.cin = nil
	inf.cout = nil

	inf.handle.Delete()

	if ret != C.Z_OK {
		return statusError(ret, nil)
	}

	return nil
}

// streamFlags converts zlib's data_type word into zinfo.Flags.
//
// data_type bits 0-2 count the unconsumed bits of the current input byte,
// bit 128 is set when inflate stopped at a block boundary, and bit 64 when it
// is at the very end of the stream, where a checkpoint would be useless.
func streamFlags(dataType uint32) zinfo.Flags {
	flags := zinfo.Flags(dataType & 7)

	if dataType&128 != 0 && dataType&64 == 0 {
		flags |= zinfo.FlagBlockBoundary
	}

	return flags
}

// statusError maps a negative zlib status to the package error kinds,
// attaching the stream's message when zlib provides one.
func statusError(ret C.int, strm *C.z_stream) error {
	var kind error

	switch ret {
	case C.Z_STREAM_ERROR, C.Z_DATA_ERROR:
		kind = zinfo.ErrStreamCorrupt
	case C.Z_MEM_ERROR:
		kind = zinfo.ErrOutOfMemory
	case C.Z_BUF_ERROR:
		kind = zinfo.ErrBufferUnderrun
	case C.Z_VERSION_ERROR:
		kind = zinfo.ErrVersionMismatch
	default:
		kind = zinfo.ErrUnknownEngine
	}

	if strm != nil && strm.msg != nil {
		return fmt.Errorf("%w: %s", kind, C.GoString(strm.msg))
	}

	return fmt.Errorf("%w: zlib status %d", kind, int(ret))
}
