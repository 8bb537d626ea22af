// Copyright (c) 2024-2026 The AleaMaris Authors
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Package rng implements the AleaMaris RNG (§4.6): a buffered consumer of
// chachadrbg output with unbiased integer sampling via rejection sampling.
// Unlike sixafter/nanoid's prng/ctrdrbg packages, which pool many
// interchangeable generators behind atomic state for lock-free concurrent
// reads, a single AleaMaris instance is the unit of reseed ordering the
// spec requires (§5: "all methods serialised under a single lock"), so
// this package uses one mutex-protected instance rather than a
// sync.Pool of readers.
package rng

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ajaniramon/aleamaris"
	"github.com/ajaniramon/aleamaris/x/crypto/chachadrbg"
)

// SeedProvider supplies n bytes of fresh entropy on demand: the queue when
// it has enough, falling back to the Conditioner or OS entropy per the
// orchestrator's policy (§4.7). It may return fewer than n bytes (even
// zero) if no entropy is currently available.
type SeedProvider func(n int) []byte

// defaultBufChunk is the RNGBuffer slab size (§3): 4 MiB.
const defaultBufChunk = 4 << 20

// defaultReseedIntervalBytes is how many bytes may be served before an
// opportunistic reseed is attempted (§3 RNGCounters).
const defaultReseedIntervalBytes = 1_000_000

// RNG is the AleaMaris high-level random source: a DRBG plus a bulk read
// buffer and unbiased sampling helpers. The zero value is not usable;
// construct with New. Safe for concurrent use — every exported method
// holds a single internal mutex for its duration.
type RNG struct {
	mu sync.Mutex

	drbg *chachadrbg.DRBG

	buf       []byte
	pos       int
	bufChunk  int
	generated uint64

	reseedIntervalBytes uint64
	seedProvider        SeedProvider
}

// Option customizes RNG construction, following sixafter/nanoid's
// functional options shape (ctrdrbg.Option, prng.Option).
type Option func(*RNG)

// WithBufChunk overrides the RNGBuffer slab size. Defaults to 4 MiB.
func WithBufChunk(n int) Option {
	return func(r *RNG) { r.bufChunk = n }
}

// WithReseedIntervalBytes overrides the opportunistic-reseed threshold.
// Defaults to 1,000,000 bytes.
func WithReseedIntervalBytes(n uint64) Option {
	return func(r *RNG) { r.reseedIntervalBytes = n }
}

// New constructs an RNG, requesting 48 bytes of seed material from
// provider (§4.6 Construction). Returns aleamaris's ErrInsufficientSeed
// (wrapped) if fewer than 32 bytes come back.
func New(provider SeedProvider, opts ...Option) (*RNG, error) {
	r := &RNG{
		bufChunk:            defaultBufChunk,
		reseedIntervalBytes: defaultReseedIntervalBytes,
		seedProvider:        provider,
	}
	for _, opt := range opts {
		opt(r)
	}

	seed := provider(48)
	if len(seed) < chachadrbg.SeedSize {
		return nil, fmt.Errorf("rng: %w: got %d bytes, need >= %d", aleamaris.ErrInsufficientSeed, len(seed), chachadrbg.SeedSize)
	}

	d, err := chachadrbg.New(seed)
	if err != nil {
		return nil, fmt.Errorf("rng: %w", err)
	}
	r.drbg = d
	return r, nil
}

// RandomBytes returns n cryptographically strong random bytes, served from
// the internal buffer and refilled from the DRBG as needed (§4.6
// random_bytes). Opportunistic reseed is checked on exit.
func (r *RNG) RandomBytes(n int) []byte {
	if n <= 0 {
		return []byte{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, n)
	filled := 0
	for filled < n {
		if r.pos >= len(r.buf) {
			r.refillLocked(n - filled)
		}
		avail := len(r.buf) - r.pos
		take := n - filled
		if take > avail {
			take = avail
		}
		copy(out[filled:filled+take], r.buf[r.pos:r.pos+take])
		r.pos += take
		filled += take
	}

	r.generated += uint64(n)
	r.maybeReseedLocked()
	return out
}

// refillLocked replaces the buffer with at least need bytes of fresh
// keystream, drawing max(need, bufChunk) bytes from the DRBG in one call
// so request sizes larger than bufChunk are still served in a single
// refill. Caller must hold r.mu.
func (r *RNG) refillLocked(need int) {
	want := need
	if want < r.bufChunk {
		want = r.bufChunk
	}
	r.buf = r.drbg.Generate(want)
	r.pos = 0
}

// maybeReseedLocked triggers a reseed once generated has crossed the
// configured threshold (§3 RNGCounters, §4.6 maybe_reseed). Caller must
// hold r.mu.
func (r *RNG) maybeReseedLocked() {
	if r.generated < r.reseedIntervalBytes {
		return
	}
	material := r.seedProvider(32)
	if len(material) > 0 {
		r.drbg.Reseed(material)
	}
	r.generated = 0
}

// Reseed forwards entropy to the underlying DRBG (§4.6 reseed). It does
// not reset the generated counter unless entropy is non-empty, matching
// the reference implementation: an empty reseed is a pure no-op.
func (r *RNG) Reseed(entropy []byte) {
	if len(entropy) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drbg.Reseed(entropy)
	r.generated = 0
}

// RandU32 returns a uniformly random uint32, decoded big-endian from 4
// fresh random bytes (§4.6 rand_u32).
func (r *RNG) RandU32() uint32 {
	return binary.BigEndian.Uint32(r.RandomBytes(4))
}

// RandRange returns a uniformly random integer in [0, n) via rejection
// sampling, with bias <= 0 by construction (§4.6 randrange, §8 invariant
// 5). Panics if n == 0: callers (RandInt, HTTP handlers) are expected to
// validate n first.
//
// limit is computed in uint64 because 2^32 itself overflows uint32.
func (r *RNG) RandRange(n uint32) uint32 {
	if n == 0 {
		panic("rng: RandRange requires n > 0")
	}
	limit := (uint64(1) << 32) - (uint64(1)<<32)%uint64(n)
	for {
		x := r.RandU32()
		if uint64(x) < limit {
			return x % n
		}
	}
}

// RandInt returns a uniformly random integer in [a, b] inclusive (§4.6
// randint). Returns aleamaris's ErrInvalidRange (wrapped) when a > b.
func (r *RNG) RandInt(a, b int64) (int64, error) {
	if a > b {
		return 0, fmt.Errorf("rng: %w: a=%d b=%d", aleamaris.ErrInvalidRange, a, b)
	}
	span := uint64(b - a + 1)
	if span > uint64(^uint32(0)) {
		// Spans this large exceed what a single rejection-sampled uint32
		// can index; §4.6 does not define behavior beyond uint32 range, so
		// this clamps to the largest representable span rather than
		// silently wrapping.
		span = uint64(^uint32(0))
	}
	return a + int64(r.RandRange(uint32(span))), nil
}
