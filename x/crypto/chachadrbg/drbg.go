// Copyright (c) 2024-2026 The AleaMaris Authors
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Package chachadrbg is a FIPS-shaped, HKDF-reseedable ChaCha20 keystream
// DRBG (§4.5). It follows the same "independent cryptographic primitive
// under x/" layout as sixafter/nanoid's x/crypto/ctrdrbg and x/crypto/prng,
// but trades their sync.Pool-of-anonymous-readers design for a single
// explicitly-reseedable instance: §5 requires observable, ordered
// reseed semantics ("reseed operations are totally ordered"), which a
// pool of interchangeable readers cannot express.
//
// All cryptographic primitives come from golang.org/x/crypto, the same
// module family sixafter/nanoid already depends on for its own ChaCha20
// PRNG.
package chachadrbg

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// DRBG is a ChaCha20 keystream generator reseeded via HKDF (§4.5). The zero
// value is not usable; construct with New. Not safe for concurrent use by
// itself: callers (rng.RNG) serialise access under their own lock, per §5
// ("DRBG: not independently shared; always accessed through AleaMaris
// lock").
type DRBG struct {
	key     [keySize]byte
	nonce   [nonceSize]byte
	counter uint64
}

// New constructs a DRBG from seed, which must be at least SeedSize (32)
// bytes. Per §4.5: material = HKDF-mix(zero32, seed, 44); key =
// material[0:32]; nonce = material[32:44]; counter = 0.
func New(seed []byte) (*DRBG, error) {
	if len(seed) < SeedSize {
		return nil, fmt.Errorf("chachadrbg: seed must be >= %d bytes, got %d", SeedSize, len(seed))
	}

	var zero [keySize]byte
	material := HKDFMix(zero[:], seed, materialSize)

	d := &DRBG{}
	copy(d.key[:], material[:keySize])
	copy(d.nonce[:], material[keySize:materialSize])
	return d, nil
}

// Generate returns n bytes of ChaCha20 keystream from the DRBG's current
// position, advancing the internal 64-bit block counter by ceil(n/64).
// Calling Generate(a) then Generate(b), each at a 64-byte-aligned a,
// produces the same bytes as a single Generate(a+b) call (§8 invariant 3);
// a non-aligned call discards the unused tail of its final block, matching
// the reference implementation this package was ported from.
//
// The low 32 bits of the counter are the IETF block counter passed to the
// underlying cipher; the high 32 bits extend it by folding into the nonce,
// per §4.5 ("the high 32 bits advance the nonce-equivalent via internal
// counter extension"). A fresh *chacha20.Cipher is constructed per segment
// so SetCounter always starts a call at a block boundary.
func (d *DRBG) Generate(n int) []byte {
	out := make([]byte, n)
	produced := 0
	for produced < n {
		low := uint32(d.counter)
		high := uint32(d.counter >> 32)

		nonce := d.nonce
		var highBytes [4]byte
		binary.BigEndian.PutUint32(highBytes[:], high)
		for i := 0; i < 4; i++ {
			nonce[nonceSize-4+i] ^= highBytes[i]
		}

		cipher, err := chacha20.NewUnauthenticatedCipher(d.key[:], nonce[:])
		if err != nil {
			// Only possible if key/nonce lengths are wrong, which New's
			// construction guarantees they are not.
			panic(fmt.Sprintf("chachadrbg: invalid cipher state: %v", err))
		}
		cipher.SetCounter(low)

		// segmentBlocks is how many blocks remain before the 32-bit
		// counter would wrap and the nonce extension would need to change.
		segmentBlocks := uint64(^uint32(0)-low) + 1
		segmentBytes := segmentBlocks * 64
		remaining := uint64(n - produced)
		take := remaining
		if take > segmentBytes {
			take = segmentBytes
		}

		zero := make([]byte, take)
		cipher.XORKeyStream(out[produced:produced+int(take)], zero)

		produced += int(take)
		d.counter += (take + 63) / 64
	}
	return out
}

// Reseed mixes entropy into the DRBG's state (§4.5). A call with empty
// entropy is a no-op. Otherwise: material = HKDF-mix(key, entropy ||
// le64(counter), 44); key and nonce are replaced and counter reset to 0,
// so the next output is independent of the pre-reseed keystream (§8
// invariant 4).
func (d *DRBG) Reseed(entropy []byte) {
	if len(entropy) == 0 {
		return
	}

	var counterLE [8]byte
	binary.LittleEndian.PutUint64(counterLE[:], d.counter)

	data := make([]byte, 0, len(entropy)+8)
	data = append(data, entropy...)
	data = append(data, counterLE[:]...)

	material := HKDFMix(d.key[:], data, materialSize)
	copy(d.key[:], material[:keySize])
	copy(d.nonce[:], material[keySize:materialSize])
	d.counter = 0
}

// HKDFMix implements the §4.5 HKDF-mix primitive: prk = HMAC-SHA256(key,
// data); expand by T_i = HMAC-SHA256(prk, T_{i-1} || be8(i)), T_0 = empty,
// truncated to l bytes. This is exactly golang.org/x/crypto/hkdf's
// extract-then-expand construction with an empty info string (matching the
// reference implementation's no-op info field), so it is implemented
// directly on top of that package rather than hand-rolled.
func HKDFMix(key, data []byte, l int) []byte {
	r := hkdf.New(sha256.New, data, key, nil)
	out := make([]byte, l)
	if _, err := io.ReadFull(r, out); err != nil {
		// hkdf.Expand only errors when the requested length exceeds
		// 255*hash size; l is always 32 or 44 in this package.
		panic(fmt.Sprintf("chachadrbg: HKDF-mix: %v", err))
	}
	return out
}
