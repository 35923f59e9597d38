// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zlib

/*
#include <stdlib.h>
#include <zlib.h>
*/
import "C"

import (
	"runtime/cgo"
	"sync"
	"unsafe"
)

// Allocator tracks every allocation an inflate session makes, so that engine
// memory use is observable and every block is released with its exact size.
//
// zlib's zfree callback does not receive the allocation size; the C
// convention is to stash it in a hidden header in front of the returned
// pointer. An address-to-size map does the same job without pointer
// arithmetic.
type Allocator struct {
	sizes map[uintptr]int64

	mu    sync.Mutex
	inUse int64
	peak  int64
}

// NewAllocator creates an empty Allocator.
func NewAllocator() *Allocator {
	return &Allocator{
		sizes: map[uintptr]int64{},
	}
}

// allocate reserves items*size bytes of C memory, records the size, and
// returns the address, or nil on overflow or exhaustion.
func (a *Allocator) allocate(items, size uint32) unsafe.Pointer {
	total := uint64(items) * uint64(size)
	if total == 0 || total > uint64(1)<<62 {
		return nil
	}

	ptr := C.malloc(C.size_t(total))
	if ptr == nil {
		return nil
	}

	a.mu.Lock()

	a.sizes[uintptr(ptr)] = int64(total)
	a.inUse += int64(total)

	if a.inUse > a.peak {
		a.peak = a.inUse
	}

	a.mu.Unlock()

	return ptr
}

// release returns an address previously handed out by allocate, crediting
// back exactly the recorded size.
func (a *Allocator) release(ptr unsafe.Pointer) {
	a.mu.Lock()

	if size, ok := a.sizes[uintptr(ptr)]; ok {
		delete(a.sizes, uintptr(ptr))

		a.inUse -= size
	}

	a.mu.Unlock()

	C.free(ptr)
}

// InUse returns the number of bytes currently allocated for the engine.
func (a *Allocator) InUse() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.inUse
}

// Peak returns the largest number of bytes ever allocated at once.
func (a *Allocator) Peak() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.peak
}

//export zinfoAlloc
func zinfoAlloc(opaque C.voidpf, items, size C.uInt) C.voidpf {
	alloc, ok := cgo.Handle(uintptr(unsafe.Pointer(opaque))).Value().(*Allocator)
	if !ok {
		return nil
	}

	return C.voidpf(alloc.allocate(uint32(items), uint32(size)))
}

//export zinfoFree
func zinfoFree(opaque, address C.voidpf) {
	alloc, ok := cgo.Handle(uintptr(unsafe.Pointer(opaque))).Value().(*Allocator)
	if !ok {
		return
	}

	alloc.release(unsafe.Pointer(address))
}
