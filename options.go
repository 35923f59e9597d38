// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zinfo

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	// DefaultSpanSize is the default target decompressed-byte spacing between
	// checkpoints (4 MiB).
	DefaultSpanSize = 1 << 22

	// DefaultChunkSize is the default read granularity for the compressed
	// input (16 KiB).
	DefaultChunkSize = 1 << 14
)

// Options defines settings for building an index.
type Options struct {
	Logger *zap.Logger

	SpanSize  int64
	ChunkSize int
}

// defaultOptions returns default initial values.
func defaultOptions() Options {
	return Options{
		SpanSize:  DefaultSpanSize,
		ChunkSize: DefaultChunkSize,
		Logger:    zap.NewNop(),
	}
}

// OptionFunc allows setting build options.
type OptionFunc func(*Options) error

// WithSpanSize sets the target decompressed-byte spacing between checkpoints.
//
// Smaller spans make seeking cheaper at the cost of a larger index: every
// checkpoint carries a WindowSize history snapshot.
func WithSpanSize(size int64) OptionFunc {
	return func(opt *Options) error {
		if size <= 0 {
			return fmt.Errorf("span size should be positive: %d", size)
		}

		opt.SpanSize = size

		return nil
	}
}

// WithChunkSize sets the read granularity for the compressed input.
func WithChunkSize(size int) OptionFunc {
	return func(opt *Options) error {
		if size <= 0 {
			return fmt.Errorf("chunk size should be positive: %d", size)
		}

		opt.ChunkSize = size

		return nil
	}
}

// WithLogger sets the logger for the build.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(opt *Options) error {
		opt.Logger = logger

		return nil
	}
}
