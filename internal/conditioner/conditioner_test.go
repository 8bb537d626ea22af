// Copyright (c) 2024-2026 The AleaMaris Authors
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package conditioner

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajaniramon/aleamaris"
	"github.com/ajaniramon/aleamaris/internal/videosource"
)

// fakeSeekableSource is a fixed-size in-memory seekable source for tests.
type fakeSeekableSource struct {
	frames   []videosource.Frame
	released int
}

func newFakeSeekableSource(n int) *fakeSeekableSource {
	f := &fakeSeekableSource{}
	for i := 0; i < n; i++ {
		pix := make([]byte, 4*4*3)
		for j := range pix {
			pix[j] = byte(i + j)
		}
		f.frames = append(f.frames, videosource.Frame{Width: 4, Height: 4, Pix: pix})
	}
	return f
}

func (f *fakeSeekableSource) Read() (videosource.Frame, bool) { return videosource.Frame{}, false }
func (f *fakeSeekableSource) Rewind()                         {}
func (f *fakeSeekableSource) Release()                        { f.released++ }
func (f *fakeSeekableSource) Seekable() bool                  { return true }
func (f *fakeSeekableSource) FrameCount() int                 { return len(f.frames) }
func (f *fakeSeekableSource) ReadAt(i int) (videosource.Frame, bool) {
	if i < 0 || i >= len(f.frames) {
		return videosource.Frame{}, false
	}
	return f.frames[i], true
}

// fakeLinearSource cycles through a small set of frames a bounded number
// of times before reporting permanent exhaustion, for testing the linear
// rewind-then-fail path.
type fakeLinearSource struct {
	frames     []videosource.Frame
	pos        int
	rewinds    int
	maxRewinds int
	released   int
}

func (f *fakeLinearSource) Read() (videosource.Frame, bool) {
	if f.pos >= len(f.frames) {
		return videosource.Frame{}, false
	}
	fr := f.frames[f.pos]
	f.pos++
	return fr, true
}

func (f *fakeLinearSource) Rewind() {
	f.rewinds++
	if f.rewinds <= f.maxRewinds {
		f.pos = 0
	}
}
func (f *fakeLinearSource) Release()       { f.released++ }
func (f *fakeLinearSource) Seekable() bool { return false }

func newFakeLinearSource(n, maxRewinds int) *fakeLinearSource {
	f := &fakeLinearSource{maxRewinds: maxRewinds}
	for i := 0; i < n; i++ {
		pix := make([]byte, 4*4*3)
		for j := range pix {
			pix[j] = byte(i + j)
		}
		f.frames = append(f.frames, videosource.Frame{Width: 4, Height: 4, Pix: pix})
	}
	return f
}

func TestConditioner_SeekablePath_ExactLength(t *testing.T) {
	src := newFakeSeekableSource(10)
	c := New(src, Config{Resize: 4})

	out, err := c.Produce(100)
	require.NoError(t, err)
	assert.Len(t, out, 100)
	assert.Equal(t, 1, src.released)
}

func TestConditioner_SeekablePath_WrapsAroundPermutation(t *testing.T) {
	// Only 3 frames of 32 bytes each (digestSize) = 96 bytes per pass;
	// requesting more forces a second pass with a new permutation.
	src := newFakeSeekableSource(3)
	c := New(src, Config{Resize: 4})

	out, err := c.Produce(200)
	require.NoError(t, err)
	assert.Len(t, out, 200)
}

func TestConditioner_LinearPath_ExactLength(t *testing.T) {
	src := newFakeLinearSource(5, 10)
	c := New(src, Config{Resize: 4})

	out, err := c.Produce(64)
	require.NoError(t, err)
	assert.Len(t, out, 64)
	assert.Equal(t, 1, src.released)
}

func TestConditioner_LinearPath_ExhaustedAfterRetryFails(t *testing.T) {
	// maxRewinds=0 means every Rewind() call is a no-op, so after the
	// initial 2 frames are consumed the source never produces again.
	src := newFakeLinearSource(2, 0)
	c := New(src, Config{Resize: 4})

	_, err := c.Produce(1 << 20)
	require.Error(t, err)
	assert.True(t, errors.Is(err, aleamaris.ErrEntropyExhausted))
	assert.Equal(t, 1, src.released)
}

func TestConditioner_Stride_SkipsFrames(t *testing.T) {
	src := newFakeLinearSource(20, 10)
	c := New(src, Config{Resize: 4, Stride: 4})

	out, err := c.Produce(32)
	require.NoError(t, err)
	assert.Len(t, out, 32)
}

func TestConditioner_KeyRotation_DoesNotAffectOutputLength(t *testing.T) {
	src := newFakeSeekableSource(50)
	c := New(src, Config{Resize: 4, KeyReseedIntervalFrames: 3})

	out, err := c.Produce(500)
	require.NoError(t, err)
	assert.Len(t, out, 500)
}
