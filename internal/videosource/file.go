// Copyright (c) 2024-2026 The AleaMaris Authors
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package videosource

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ajaniramon/aleamaris"
)

// fileMagic identifies an AleaMaris raw-frame container: a fixed-size
// sequence of BGR frames with no per-frame framing, chosen so ReadAt can
// seek in O(1) without an index scan. No video-decode library appears in
// any example repo's go.mod (the codec files under _examples/other_examples
// are standalone, dependency-less files, not buildable modules), so file
// ingestion here is a from-scratch container rather than a wrapped decoder.
var fileMagic = [4]byte{'A', 'M', 'V', '1'}

const fileHeaderSize = 4 + 4 + 4 + 4 // magic + width + height + frameCount

// FileSource is a seekable Source backed by an AleaMaris raw-frame
// container file. Safe for concurrent use; Read/ReadAt/Rewind/Release all
// serialise on an internal mutex, since sixafter/nanoid's convention is to
// keep single-owner state simple rather than lock-free for I/O-bound paths.
type FileSource struct {
	mu sync.Mutex

	f      *os.File
	width  int
	height int
	count  int

	frameSize int64
	pos       int
	closed    bool
}

// OpenFile opens path as an AleaMaris raw-frame container. Returns
// aleamaris.ErrSourceUnavailable (wrapped) if the file cannot be opened or
// its header is malformed.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("videosource: %w: %v", aleamaris.ErrSourceUnavailable, err)
	}

	header := make([]byte, fileHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("videosource: %w: reading header: %v", aleamaris.ErrSourceUnavailable, err)
	}
	if [4]byte(header[:4]) != fileMagic {
		f.Close()
		return nil, fmt.Errorf("videosource: %w: bad magic", aleamaris.ErrSourceUnavailable)
	}

	width := int(binary.LittleEndian.Uint32(header[4:8]))
	height := int(binary.LittleEndian.Uint32(header[8:12]))
	count := int(binary.LittleEndian.Uint32(header[12:16]))
	if width <= 0 || height <= 0 || count < 0 {
		f.Close()
		return nil, fmt.Errorf("videosource: %w: invalid dimensions", aleamaris.ErrSourceUnavailable)
	}

	return &FileSource{
		f:         f,
		width:     width,
		height:    height,
		count:     count,
		frameSize: int64(width) * int64(height) * 3,
	}, nil
}

// Seekable always returns true for FileSource.
func (s *FileSource) Seekable() bool { return true }

// FrameCount returns the number of frames recorded in the container
// header.
func (s *FileSource) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Read returns the next frame in sequence, advancing the internal linear
// cursor. Used by the Conditioner's linear path when the container reports
// a non-positive frame count (never the case for FileSource, but kept
// consistent with the Source contract for callers that don't special-case
// seekable sources).
func (s *FileSource) Read() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.pos >= s.count {
		return Frame{}, false
	}
	frame, ok := s.readAtLocked(s.pos)
	if ok {
		s.pos++
	}
	return frame, ok
}

// ReadAt seeks to frame index i and reads it, without disturbing the
// linear cursor used by Read.
func (s *FileSource) ReadAt(i int) (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Frame{}, false
	}
	return s.readAtLocked(i)
}

func (s *FileSource) readAtLocked(i int) (Frame, bool) {
	if i < 0 || i >= s.count {
		return Frame{}, false
	}
	offset := int64(fileHeaderSize) + int64(i)*s.frameSize
	buf := make([]byte, s.frameSize)
	if _, err := s.f.ReadAt(buf, offset); err != nil {
		return Frame{}, false
	}
	return Frame{Width: s.width, Height: s.height, Pix: buf}, true
}

// Rewind resets the linear read cursor to the first frame.
func (s *FileSource) Rewind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = 0
}

// Release closes the underlying file. Idempotent.
func (s *FileSource) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.f.Close()
}
