// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zinfo

import (
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// FormatVersion is the index format tag stored in every built Index.
const FormatVersion = 2

// Build reads the complete gzip stream from r through eng and returns an
// index of checkpoints spaced roughly SpanSize decompressed bytes apart.
//
// Build takes ownership of eng: the engine session is closed on every exit
// path, success or failure. The build is synchronous and single-threaded; a
// caller needing cancellation should wrap r in an abortable reader.
//
// On failure no partial index is returned.
//
//nolint:gocognit
func Build(r io.Reader, eng Engine, opts ...OptionFunc) (*Index, error) {
	defer eng.Close() //nolint:errcheck

	opt := defaultOptions()

	for _, o := range opts {
		if err := o(&opt); err != nil {
			return nil, err
		}
	}

	var (
		win     Window
		lastOut int64
	)

	idx := Index{
		Version:  FormatVersion,
		SpanSize: opt.SpanSize,
	}

	eng.SetOutput(win.Tail())

	chunk := make([]byte, opt.ChunkSize)

	for {
		n, err := r.Read(chunk)
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}

		if n == 0 {
			if err == nil {
				continue
			}

			return nil, fmt.Errorf("%w: compressed stream truncated at offset %d", ErrUnexpectedEOF, idx.TotalIn)
		}

		eng.Feed(chunk[:n])

		for {
			if win.Remaining() == 0 {
				win.Rearm()
				eng.SetOutput(win.Tail())
			}

			before := eng.Stats()

			done, err := eng.Step(true)
			if err != nil {
				return nil, err
			}

			after := eng.Stats()

			produced := before.AvailOut - after.AvailOut

			idx.TotalIn += int64(before.AvailIn - after.AvailIn)
			idx.TotalOut += int64(produced)
			win.Advance(produced)

			if after.Flags&FlagDictRequired != 0 {
				return nil, ErrUnsupportedDictionary
			}

			if done {
				// the last boundary of a stream can land exactly at the end
				// of the data, right before the closing empty block; a
				// checkpoint there has nothing left to seek to
				if n := len(idx.Checkpoints); n > 0 && idx.Checkpoints[n-1].Out == idx.TotalOut {
					idx.Checkpoints = idx.Checkpoints[:n-1]
				}

				opt.Logger.Debug("index complete",
					zap.Int("checkpoints", len(idx.Checkpoints)),
					zap.Int64("total_in", idx.TotalIn),
					zap.Int64("total_out", idx.TotalOut),
				)

				return &idx, nil
			}

			// A checkpoint is taken at the first block boundary of the stream,
			// and after that at the first boundary past SpanSize decompressed
			// bytes since the previous checkpoint.
			if after.Flags&FlagBlockBoundary != 0 &&
				(idx.TotalOut == 0 || idx.TotalOut-lastOut > opt.SpanSize) {
				idx.Checkpoints = append(idx.Checkpoints, Checkpoint{
					In:     idx.TotalIn,
					Out:    idx.TotalOut,
					Bits:   after.Flags.Bits(),
					Window: win.Snapshot(),
				})

				lastOut = idx.TotalOut

				opt.Logger.Debug("checkpoint",
					zap.Int64("in", idx.TotalIn),
					zap.Int64("out", idx.TotalOut),
					zap.Uint8("bits", after.Flags.Bits()),
				)
			}

			if after.AvailIn == 0 {
				break
			}
		}
	}
}
