// Copyright (c) 2024-2026 The AleaMaris Authors
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Package aleamaris is the root of the AleaMaris entropy service: a
// camera/video-fed conditioning pipeline feeding a bounded byte pool and a
// ChaCha20 DRBG. The root package holds only the error vocabulary shared
// across every subsystem; the subsystems themselves live under internal/,
// x/crypto/chachadrbg and rng.
package aleamaris

import "errors"

// Sentinel errors shared across the pipeline. Each maps to §7 of the
// specification; callers should use errors.Is rather than comparing error
// strings, since wrapped variants (fmt.Errorf("...: %w", err)) are common.
var (
	// ErrSourceUnavailable means a video/camera source could not be opened.
	// Fatal at boot; swallowed (logged and retried) at runtime by the filler.
	ErrSourceUnavailable = errors.New("aleamaris: video source unavailable")

	// ErrNoEntropySource means boot produced zero bytes and the urandom
	// fallback is disabled. Fatal: the process must not accept traffic.
	ErrNoEntropySource = errors.New("aleamaris: no entropy source available at boot")

	// ErrInsufficientSeed means fewer than 32 bytes of seed material were
	// available to initialize the DRBG.
	ErrInsufficientSeed = errors.New("aleamaris: insufficient seed material")

	// ErrEntropyExhausted means the Conditioner cannot produce more bytes
	// from the current source (permanently unreadable).
	ErrEntropyExhausted = errors.New("aleamaris: entropy source exhausted")

	// ErrInvalidRange means a caller requested randint(a, b) with a > b.
	ErrInvalidRange = errors.New("aleamaris: invalid range, a > b")

	// ErrUnauthorized means an ingest request carried a missing or
	// incorrect X-API-Key.
	ErrUnauthorized = errors.New("aleamaris: unauthorized")

	// ErrRequestTooLarge means a requested count exceeded an endpoint's
	// documented maximum and the endpoint chose to reject rather than clamp.
	ErrRequestTooLarge = errors.New("aleamaris: requested count too large")
)
