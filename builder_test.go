// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package zinfo_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/siderolabs/go-zinfo"
)

// fakeStep describes the outcome of a single scripted decompression unit:
// consume input bytes and produce output bytes, then report flags.
type fakeStep struct {
	err     error
	consume int
	produce int
	flags   zinfo.Flags
	done    bool
}

// fakeEngine is a scripted zinfo.Engine. Like a real engine it never writes
// past the output sink: when a step produces more than the available space,
// the remainder is carried over to subsequent Step calls, and the step's
// flags and done signal are only reported once the output is fully drained.
//
// Produced bytes follow an incrementing pattern starting at 1 and are also
// recorded flat in produced, so that tests can compute the expected window
// snapshot for any checkpoint.
type fakeEngine struct {
	steps []fakeStep
	pos   int

	in     []byte
	inPos  int
	out    []byte
	outPos int

	pending    int
	flagsAfter zinfo.Flags
	doneAfter  bool

	flags zinfo.Flags
	next  byte

	produced []byte

	closed int
}

func newFakeEngine(steps ...fakeStep) *fakeEngine {
	return &fakeEngine{
		steps: steps,
		next:  1,
	}
}

func (e *fakeEngine) Feed(p []byte) {
	e.in = p
	e.inPos = 0
}

func (e *fakeEngine) SetOutput(p []byte) {
	e.out = p
	e.outPos = 0
}

func (e *fakeEngine) Stats() zinfo.Stats {
	return zinfo.Stats{
		AvailIn:  len(e.in) - e.inPos,
		AvailOut: len(e.out) - e.outPos,
		Flags:    e.flags,
	}
}

func (e *fakeEngine) Step(_ bool) (bool, error) {
	if e.pending == 0 {
		step := e.steps[e.pos]
		e.pos++

		if step.err != nil {
			return false, step.err
		}

		e.inPos += step.consume
		e.pending = step.produce
		e.flagsAfter = step.flags
		e.doneAfter = step.done
	}

	e.emit()

	if e.pending > 0 {
		e.flags = 0

		return false, nil
	}

	e.flags = e.flagsAfter

	return e.doneAfter, nil
}

func (e *fakeEngine) emit() {
	n := min(e.pending, len(e.out)-e.outPos)

	for range n {
		e.out[e.outPos] = e.next
		e.outPos++

		e.produced = append(e.produced, e.next)
		e.next++
	}

	e.pending -= n
}

func (e *fakeEngine) Close() error {
	e.closed++

	return nil
}

// expectedWindow returns the window snapshot a checkpoint at decompressed
// offset out should carry, given the flat stream of produced bytes.
func expectedWindow(produced []byte, out int64) [zinfo.WindowSize]byte {
	var win [zinfo.WindowSize]byte

	start := out - zinfo.WindowSize
	if start < 0 {
		start = 0
	}

	copy(win[zinfo.WindowSize-(out-start):], produced[start:out])

	return win
}

func TestBuildCheckpoints(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	eng := newFakeEngine(
		// header consumed, boundary before any output: first checkpoint at out 0
		fakeStep{consume: 2, produce: 0, flags: zinfo.FlagBlockBoundary},
		// past the span since the last checkpoint
		fakeStep{consume: 6, produce: 120, flags: zinfo.FlagBlockBoundary | 3},
		// boundary within the span: skipped
		fakeStep{consume: 4, produce: 90, flags: zinfo.FlagBlockBoundary | 7},
		fakeStep{consume: 2, produce: 50, flags: zinfo.FlagBlockBoundary | 1},
		fakeStep{consume: 2, produce: 10, done: true},
	)

	idx, err := zinfo.Build(bytes.NewReader(make([]byte, 16)), eng,
		zinfo.WithSpanSize(100),
		zinfo.WithChunkSize(8),
		zinfo.WithLogger(zaptest.NewLogger(t)),
	)
	req.NoError(err)

	req.EqualValues(zinfo.FormatVersion, idx.Version)
	req.EqualValues(100, idx.SpanSize)
	req.EqualValues(16, idx.TotalIn)
	req.EqualValues(270, idx.TotalOut)

	req.Len(idx.Checkpoints, 3)

	req.EqualValues(2, idx.Checkpoints[0].In)
	req.EqualValues(0, idx.Checkpoints[0].Out)
	req.EqualValues(0, idx.Checkpoints[0].Bits)

	req.EqualValues(8, idx.Checkpoints[1].In)
	req.EqualValues(120, idx.Checkpoints[1].Out)
	req.EqualValues(3, idx.Checkpoints[1].Bits)

	req.EqualValues(14, idx.Checkpoints[2].In)
	req.EqualValues(260, idx.Checkpoints[2].Out)
	req.EqualValues(1, idx.Checkpoints[2].Bits)

	for _, cp := range idx.Checkpoints {
		assert.Equal(t, expectedWindow(eng.produced, cp.Out), cp.Window)
		assert.LessOrEqual(t, cp.Bits, uint8(7))
	}

	req.Equal(1, eng.closed)
}

func TestBuildWindowWrap(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	eng := newFakeEngine(
		// more than two full window laps in one burst, forcing rearms
		fakeStep{consume: 1, produce: 2*zinfo.WindowSize + 300},
		fakeStep{consume: 1, produce: 100, flags: zinfo.FlagBlockBoundary},
		fakeStep{consume: 1, produce: 50, done: true},
	)

	idx, err := zinfo.Build(bytes.NewReader(make([]byte, 3)), eng,
		zinfo.WithSpanSize(1024),
		zinfo.WithChunkSize(4),
	)
	req.NoError(err)

	req.EqualValues(2*zinfo.WindowSize+450, idx.TotalOut)
	req.Len(idx.Checkpoints, 1)

	cp := idx.Checkpoints[0]
	req.EqualValues(2*zinfo.WindowSize+400, cp.Out)
	req.Equal(expectedWindow(eng.produced, cp.Out), cp.Window)
}

func TestBuildTrailingBoundary(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	eng := newFakeEngine(
		fakeStep{consume: 2, produce: 0, flags: zinfo.FlagBlockBoundary},
		fakeStep{consume: 6, produce: 150, flags: zinfo.FlagBlockBoundary | 2},
		// this boundary sits right before the closing empty block, at the
		// very end of the data: it must not survive as a checkpoint
		fakeStep{consume: 4, produce: 150, flags: zinfo.FlagBlockBoundary | 5},
		fakeStep{consume: 4, produce: 0, done: true},
	)

	idx, err := zinfo.Build(bytes.NewReader(make([]byte, 16)), eng,
		zinfo.WithSpanSize(100),
		zinfo.WithChunkSize(16),
	)
	req.NoError(err)

	req.EqualValues(300, idx.TotalOut)

	req.Len(idx.Checkpoints, 2)
	req.EqualValues(0, idx.Checkpoints[0].Out)
	req.EqualValues(150, idx.Checkpoints[1].Out)

	for _, cp := range idx.Checkpoints {
		req.Less(cp.Out, idx.TotalOut)
	}
}

func TestBuildMonotonic(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	steps := []fakeStep{
		{consume: 1, produce: 0, flags: zinfo.FlagBlockBoundary},
	}

	for range 63 {
		steps = append(steps, fakeStep{consume: 1, produce: 700, flags: zinfo.FlagBlockBoundary | 2})
	}

	steps = append(steps, fakeStep{consume: 1, produce: 0, done: true})

	idx, err := zinfo.Build(bytes.NewReader(make([]byte, 65)), newFakeEngine(steps...),
		zinfo.WithSpanSize(1000),
		zinfo.WithChunkSize(128),
	)
	req.NoError(err)

	req.NotEmpty(idx.Checkpoints)
	req.EqualValues(63*700, idx.TotalOut)

	for i := 1; i < len(idx.Checkpoints); i++ {
		prev, cur := idx.Checkpoints[i-1], idx.Checkpoints[i]

		req.Greater(cur.In, prev.In)
		req.Greater(cur.Out, prev.Out)

		if i > 1 {
			req.GreaterOrEqual(cur.Out-prev.Out, idx.SpanSize)
		}
	}
}

func TestBuildUnexpectedEOF(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	eng := newFakeEngine(
		fakeStep{consume: 8, produce: 100, flags: zinfo.FlagBlockBoundary},
	)

	idx, err := zinfo.Build(bytes.NewReader(make([]byte, 8)), eng,
		zinfo.WithChunkSize(8),
	)
	req.ErrorIs(err, zinfo.ErrUnexpectedEOF)
	req.Nil(idx)

	req.Equal(1, eng.closed)
}

func TestBuildDictRequired(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	eng := newFakeEngine(
		fakeStep{consume: 4, produce: 10, flags: zinfo.FlagDictRequired | zinfo.FlagBlockBoundary},
	)

	idx, err := zinfo.Build(bytes.NewReader(make([]byte, 8)), eng)
	req.ErrorIs(err, zinfo.ErrUnsupportedDictionary)
	req.Nil(idx)

	req.Equal(1, eng.closed)
}

func TestBuildEngineError(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	errBoom := errors.New("boom")

	eng := newFakeEngine(
		fakeStep{consume: 4, produce: 10},
		fakeStep{err: errBoom},
	)

	idx, err := zinfo.Build(bytes.NewReader(make([]byte, 8)), eng)
	req.ErrorIs(err, errBoom)
	req.Nil(idx)

	req.Equal(1, eng.closed)
}

// sputteringReader returns (0, nil) every other call; the build should retry
// rather than treat it as truncation.
type sputteringReader struct {
	r       io.Reader
	sputter bool
}

func (s *sputteringReader) Read(p []byte) (int, error) {
	s.sputter = !s.sputter
	if s.sputter {
		return 0, nil
	}

	return s.r.Read(p)
}

func TestBuildSputteringReader(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	eng := newFakeEngine(
		fakeStep{consume: 8, produce: 50, flags: zinfo.FlagBlockBoundary},
		fakeStep{consume: 8, produce: 0, done: true},
	)

	idx, err := zinfo.Build(&sputteringReader{r: bytes.NewReader(make([]byte, 16))}, eng,
		zinfo.WithChunkSize(8),
	)
	req.NoError(err)
	req.EqualValues(16, idx.TotalIn)
	req.EqualValues(50, idx.TotalOut)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
