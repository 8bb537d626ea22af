// Copyright (c) 2024-2026 The AleaMaris Authors
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Package conditioner implements the Conditioner / Generator (§4.3): it
// turns a stream of video frames into a sequence of non-replayable,
// keyed-whitened digest bytes, preferring a random-permutation walk over
// seekable sources and falling back to a linear read-rewind loop otherwise.
package conditioner

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"

	"golang.org/x/crypto/blake2b"

	"github.com/ajaniramon/aleamaris"
	"github.com/ajaniramon/aleamaris/internal/feature"
	"github.com/ajaniramon/aleamaris/internal/videosource"
	"github.com/ajaniramon/aleamaris/x/crypto/chachadrbg"
)

const (
	digestSize               = 32
	recentDigestCap          = 4096
	defaultKeyReseedInterval = 512
)

// Config mirrors §3's GenConfig: immutable per produce() session.
type Config struct {
	Resize  int  // N for the downscaled feature matrix. Default 64.
	Stride  int  // frame_idx gating; only every Stride-th frame is used. Default 1.
	UseDiff bool // include the temporal diff segment in features.

	// KeyReseedIntervalFrames overrides the default 512-frame key rotation
	// cadence (§3 ConditionerState).
	KeyReseedIntervalFrames int
}

func (c Config) withDefaults() Config {
	if c.Resize <= 0 {
		c.Resize = 64
	}
	if c.Stride <= 0 {
		c.Stride = 1
	}
	if c.KeyReseedIntervalFrames <= 0 {
		c.KeyReseedIntervalFrames = defaultKeyReseedInterval
	}
	return c
}

// state is the §3 ConditionerState: per-session, not reused across
// produce() calls, matching the reference generator's single-use
// instantiation per request.
type state struct {
	epochSalt [32]byte
	passCtr   uint32
	globalCtr uint32

	key                 [32]byte
	framesSinceRotation int

	recent     map[[digestSize]byte]struct{}
	recentFIFO [][digestSize]byte
}

func newState() (*state, error) {
	s := &state{recent: make(map[[digestSize]byte]struct{}, recentDigestCap)}
	if err := randomFill(s.epochSalt[:]); err != nil {
		return nil, err
	}
	if err := randomFill(s.key[:]); err != nil {
		return nil, err
	}
	return s, nil
}

func randomFill(b []byte) error {
	_, err := rand.Read(b)
	return err
}

// recentAddAndCheck records digest in the repetition-observation FIFO,
// reports whether it was already present, and evicts the oldest entry once
// the FIFO exceeds its capacity. Observation only: a repetition is never
// treated as an error (§4.3 step 4).
func (s *state) recentAddAndCheck(digest [digestSize]byte) bool {
	_, seen := s.recent[digest]
	if !seen {
		s.recent[digest] = struct{}{}
		s.recentFIFO = append(s.recentFIFO, digest)
		if len(s.recentFIFO) > recentDigestCap {
			oldest := s.recentFIFO[0]
			s.recentFIFO = s.recentFIFO[1:]
			delete(s.recent, oldest)
		}
	}
	return seen
}

func (s *state) rotateKey(dgst [digestSize]byte) {
	var fresh [32]byte
	randomFill(fresh[:])

	data := make([]byte, 0, digestSize+32+8)
	data = append(data, dgst[:]...)
	data = append(data, fresh[:]...)
	data = appendBE32(data, s.passCtr)
	data = appendBE32(data, s.globalCtr)

	rotated := chachadrbg.HKDFMix(s.key[:], data, 32)
	copy(s.key[:], rotated)
	s.framesSinceRotation = 0
}

func appendBE32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

// Conditioner drives §4.3's produce() contract over a single video
// source. One Conditioner is constructed per production session; it is not
// safe for concurrent use.
type Conditioner struct {
	source videosource.Source
	cfg    Config
}

// New constructs a Conditioner over source with the given configuration.
func New(source videosource.Source, cfg Config) *Conditioner {
	return &Conditioner{source: source, cfg: cfg.withDefaults()}
}

// Produce returns exactly bytesTotal bytes of conditioned output (§4.3
// Contract; a bytesTotal below 1 is treated as 1), choosing the seekable
// permutation path when the source reports a positive frame count and the
// linear path otherwise. release()
// is called on the source exactly once, on every exit path.
func (c *Conditioner) Produce(bytesTotal int) ([]byte, error) {
	if bytesTotal < 1 {
		bytesTotal = 1
	}
	defer c.source.Release()

	st, err := newState()
	if err != nil {
		return nil, fmt.Errorf("conditioner: %w: %v", aleamaris.ErrEntropyExhausted, err)
	}

	if seekable, ok := c.source.(videosource.Seekable); ok && seekable.FrameCount() > 0 {
		return c.produceSeekable(seekable, st, bytesTotal)
	}
	return c.produceLinear(st, bytesTotal)
}

func (c *Conditioner) produceSeekable(src videosource.Seekable, st *state, bytesTotal int) ([]byte, error) {
	out := make([]byte, 0, bytesTotal)
	var prevGray []byte
	frameIdx := 0

	total := src.FrameCount()
	indices, err := permuteIndices(total, c.cfg.Stride)
	if err != nil {
		return nil, err
	}
	p := 0

	for len(out) < bytesTotal {
		if p >= len(indices) {
			st.passCtr++
			if err := randomFill(st.epochSalt[:]); err != nil {
				return nil, fmt.Errorf("conditioner: %w: %v", aleamaris.ErrEntropyExhausted, err)
			}
			indices, err = permuteIndices(total, c.cfg.Stride)
			if err != nil {
				return nil, err
			}
			p = 0
			prevGray = nil
		}

		i := indices[p]
		p++

		frame, ok := src.ReadAt(i)
		if !ok {
			continue
		}

		dgst, gray := c.processFrame(st, frame, prevGray, frameIdx)
		out = appendTruncated(out, dgst[:], bytesTotal)
		prevGray = gray
		frameIdx++
	}
	return out, nil
}

func (c *Conditioner) produceLinear(st *state, bytesTotal int) ([]byte, error) {
	out := make([]byte, 0, bytesTotal)
	var prevGray []byte
	frameIdx := 0
	rewoundWithoutProgress := false

	for len(out) < bytesTotal {
		frame, ok := c.source.Read()
		if !ok {
			if rewoundWithoutProgress {
				return nil, aleamaris.ErrEntropyExhausted
			}
			c.source.Rewind()
			rewoundWithoutProgress = true
			prevGray = nil
			st.passCtr++
			if err := randomFill(st.epochSalt[:]); err != nil {
				return nil, fmt.Errorf("conditioner: %w: %v", aleamaris.ErrEntropyExhausted, err)
			}
			continue
		}
		rewoundWithoutProgress = false

		if frameIdx%c.cfg.Stride != 0 {
			frameIdx++
			continue
		}

		dgst, gray := c.processFrame(st, frame, prevGray, frameIdx)
		out = appendTruncated(out, dgst[:], bytesTotal)
		prevGray = gray
		frameIdx++
	}
	return out, nil
}

// processFrame runs the §4.3 per-frame step: feature extraction, keyed
// digest, the global/rotation counter increments, repetition observation,
// and opportunistic key rotation (which mixes in the post-increment
// global counter, per §4.3 step 5 preceding step 6's rotation check).
func (c *Conditioner) processFrame(st *state, frame videosource.Frame, prevGray []byte, frameIdx int) ([digestSize]byte, []byte) {
	gray := feature.ToGraySmall(frame, c.cfg.Resize)
	feats := feature.Features(gray, prevGray, c.cfg.UseDiff)

	header := make([]byte, 0, 32+12)
	header = append(header, st.epochSalt[:]...)
	header = appendBE32(header, st.passCtr)
	header = appendBE32(header, st.globalCtr)
	header = appendBE32(header, uint32(frameIdx))

	dgst := blake2bKeyed(st.key[:], header, feats)

	st.globalCtr++
	st.framesSinceRotation++

	st.recentAddAndCheck(dgst)

	if st.framesSinceRotation >= c.cfg.KeyReseedIntervalFrames {
		st.rotateKey(dgst)
	}

	return dgst, gray
}

// blake2bKeyed computes a keyed BLAKE2b-256 digest over the concatenation
// of parts.
func blake2bKeyed(key []byte, parts ...[]byte) [digestSize]byte {
	h, err := blake2b.New256(key)
	if err != nil {
		// Only fails for oversized keys; key is always 32 bytes here.
		panic(fmt.Sprintf("conditioner: blake2b: %v", err))
	}
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		h.Write(p)
	}
	var out [digestSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// appendTruncated appends src to out, truncating src so out never exceeds
// limit.
func appendTruncated(out []byte, src []byte, limit int) []byte {
	need := limit - len(out)
	if need >= len(src) {
		return append(out, src...)
	}
	return append(out, src[:need]...)
}

// permuteIndices builds a Fisher-Yates shuffle of [0, n) strided by
// stride, using crypto/rand for swaps (§4.3 seekable path).
func permuteIndices(n, stride int) ([]int, error) {
	idx := make([]int, 0, (n+stride-1)/stride)
	for i := 0; i < n; i += stride {
		idx = append(idx, i)
	}
	for i := len(idx) - 1; i > 0; i-- {
		j, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return nil, fmt.Errorf("conditioner: %w: %v", aleamaris.ErrEntropyExhausted, err)
		}
		r := int(j.Int64())
		idx[i], idx[r] = idx[r], idx[i]
	}
	return idx, nil
}
