// Copyright (c) 2024-2026 The AleaMaris Authors
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package chachadrbg

// SeedSize is the minimum seed length accepted by New: 32 bytes of entropy,
// matching §4.5 Initialisation.
const SeedSize = 32

// keySize and nonceSize are the ChaCha20 key/nonce lengths this DRBG derives
// via HKDFMix: 32-byte key plus the 12-byte IETF nonce (44 bytes total).
const (
	keySize      = 32
	nonceSize    = 12
	materialSize = keySize + nonceSize
)
