// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package zinfo builds a random-access index over a gzip-compressed stream.
//
// The index records periodic checkpoints of decompressor state (byte offsets,
// leftover bit position, 32 KiB history window) at deflate block boundaries,
// so that a consumer can resume decompression at an arbitrary point instead
// of inflating the whole stream from the start.
package zinfo

import (
	"crypto/sha256"
	"encoding/hex"
	"runtime"
	"sort"

	"github.com/siderolabs/gen/optional"
	"golang.org/x/sync/errgroup"
)

// Checkpoint records the decompressor state at a single deflate block boundary.
//
// Resuming decompression at a checkpoint requires seeking the compressed
// stream to In, re-injecting the Bits leftover bits, and priming the
// decompressor history with Window.
type Checkpoint struct {
	// In is the compressed byte offset of the boundary. When Bits is non-zero,
	// the boundary sits inside the byte at In-1.
	In int64

	// Out is the decompressed byte offset of the boundary.
	Out int64

	// Bits is the number of leftover bits (0-7) of the byte at In-1 that
	// belong to the next block.
	Bits uint8

	// Window holds the WindowSize bytes of decompressed history ending exactly
	// at Out, oldest byte first, zero-padded at the front while the stream has
	// produced fewer than WindowSize bytes.
	Window [WindowSize]byte
}

// Index is a random-access index over a gzip-compressed stream.
//
// An Index is built in one pass over the whole stream (see Build) and is
// immutable afterwards. Checkpoints are ordered, strictly increasing in both
// In and Out.
type Index struct {
	Checkpoints []Checkpoint

	// SpanSize is the target decompressed-byte spacing between checkpoints
	// the index was built with.
	SpanSize int64

	// TotalIn and TotalOut are the compressed and decompressed sizes of the
	// indexed stream.
	TotalIn  int64
	TotalOut int64

	// Version is the index format tag.
	Version int32
}

// CheckpointBefore returns the checkpoint with the largest Out not exceeding
// the given decompressed offset.
//
// This is the entry point for seeking: decompression resumes at the returned
// checkpoint and proceeds forward to the target offset.
func (idx *Index) CheckpointBefore(offset int64) optional.Optional[Checkpoint] {
	i := sort.Search(len(idx.Checkpoints), func(i int) bool {
		return idx.Checkpoints[i].Out > offset
	})

	if i == 0 {
		return optional.None[Checkpoint]()
	}

	return optional.Some(idx.Checkpoints[i-1])
}

// SpanDigests computes a sha256 digest of every checkpoint's window snapshot,
// in checkpoint order.
func (idx *Index) SpanDigests() ([]string, error) {
	digests := make([]string, len(idx.Checkpoints))

	var eg errgroup.Group

	eg.SetLimit(runtime.GOMAXPROCS(0))

	for i := range idx.Checkpoints {
		eg.Go(func() error {
			sum := sha256.Sum256(idx.Checkpoints[i].Window[:])
			digests[i] = "sha256:" + hex.EncodeToString(sum[:])

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return digests, nil
}
