// Copyright (c) 2024-2026 The AleaMaris Authors
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Package config loads the §6 environment-variable table into an immutable
// Config value. There is no process-wide mutable configuration: Config is
// constructed once at boot and injected into the orchestrator and HTTP
// layer, the same "parse options into a plain struct" shape sixafter/nanoid
// uses for nanoid.ConfigOptions.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the immutable, fully-resolved runtime configuration for an
// AleaMaris process. All fields come from the environment table in §6.
type Config struct {
	// RawCap is the byte-queue ceiling (ALEAMARIS_RAW_CAP).
	RawCap int

	// BootBytes is the initial fill target at boot (ALEAMARIS_BOOT_BYTES).
	BootBytes int

	// AllowURandomBoot permits falling back to OS entropy when the
	// Conditioner cannot supply bytes (ALEAMARIS_ALLOW_URANDOM).
	AllowURandomBoot bool

	// VideoPath is the path to a seekable video file (ALEAMARIS_VIDEO).
	// Empty means no file source is configured.
	VideoPath string

	// CameraIndex is the camera device index (ALEAMARIS_CAM). It is parsed
	// here but not consulted elsewhere in this module.
	CameraIndex int

	// UseCamera enables the camera fallback source (ALEAMARIS_USE_CAM).
	UseCamera bool

	// LowWatermark and HighWatermark drive refill (ALEAMARIS_RAW_LOW_WM /
	// ALEAMARIS_RAW_HIGH_WM).
	LowWatermark  int
	HighWatermark int

	// FillInterval is the filler task's tick period (ALEAMARIS_FILL_INTERVAL_MS).
	FillInterval time.Duration

	// FillChunkBytes bounds a single fill attempt (ALEAMARIS_FILL_CHUNK).
	FillChunkBytes int

	// ReseedPeriod is the reseed task's tick period (ALEAMARIS_RESEED_PERIOD).
	ReseedPeriod time.Duration

	// ReseedBytes is how many bytes the reseed task drains from the queue
	// (ALEAMARIS_RESEED_BYTES).
	ReseedBytes int

	// ReseedIntervalBytes is the AleaMaris RNG's opportunistic-reseed
	// threshold (ALEAMARIS_RESEED_INTERVAL_BYTES).
	ReseedIntervalBytes uint64

	// APIKey, when non-empty, is required via X-API-Key on /trng/ingest
	// (ALEAMARIS_API_KEY).
	APIKey string
}

// Default values for every §6 environment variable.
const (
	defaultRawCap              = 100_000_000
	defaultBootBytes           = 4096
	defaultLowWatermark        = 2000
	defaultHighWatermark       = 5000
	defaultFillIntervalMS      = 200
	defaultFillChunkBytes      = 500
	defaultReseedPeriodSeconds = 120
	defaultReseedBytes         = 64
	defaultReseedIntervalBytes = 1_000_000
)

// FromEnvironment reads the ALEAMARIS_* environment variables, applying the
// §6 defaults for anything unset, and returns a validated Config.
func FromEnvironment() (Config, error) {
	cfg := Config{
		RawCap:              defaultRawCap,
		BootBytes:           defaultBootBytes,
		AllowURandomBoot:    false,
		LowWatermark:        defaultLowWatermark,
		HighWatermark:       defaultHighWatermark,
		FillInterval:        defaultFillIntervalMS * time.Millisecond,
		FillChunkBytes:      defaultFillChunkBytes,
		ReseedPeriod:        defaultReseedPeriodSeconds * time.Second,
		ReseedBytes:         defaultReseedBytes,
		ReseedIntervalBytes: defaultReseedIntervalBytes,
	}

	var err error
	if cfg.RawCap, err = intEnv("ALEAMARIS_RAW_CAP", cfg.RawCap); err != nil {
		return Config{}, err
	}
	if cfg.BootBytes, err = intEnv("ALEAMARIS_BOOT_BYTES", cfg.BootBytes); err != nil {
		return Config{}, err
	}
	if cfg.AllowURandomBoot, err = boolEnv("ALEAMARIS_ALLOW_URANDOM", cfg.AllowURandomBoot); err != nil {
		return Config{}, err
	}
	cfg.VideoPath = os.Getenv("ALEAMARIS_VIDEO")
	if cfg.CameraIndex, err = intEnv("ALEAMARIS_CAM", 0); err != nil {
		return Config{}, err
	}
	if cfg.UseCamera, err = boolEnv("ALEAMARIS_USE_CAM", false); err != nil {
		return Config{}, err
	}
	if cfg.LowWatermark, err = intEnv("ALEAMARIS_RAW_LOW_WM", cfg.LowWatermark); err != nil {
		return Config{}, err
	}
	if cfg.HighWatermark, err = intEnv("ALEAMARIS_RAW_HIGH_WM", cfg.HighWatermark); err != nil {
		return Config{}, err
	}
	fillMS, err := intEnv("ALEAMARIS_FILL_INTERVAL_MS", defaultFillIntervalMS)
	if err != nil {
		return Config{}, err
	}
	cfg.FillInterval = time.Duration(fillMS) * time.Millisecond
	if cfg.FillChunkBytes, err = intEnv("ALEAMARIS_FILL_CHUNK", cfg.FillChunkBytes); err != nil {
		return Config{}, err
	}
	reseedSec, err := intEnv("ALEAMARIS_RESEED_PERIOD", defaultReseedPeriodSeconds)
	if err != nil {
		return Config{}, err
	}
	cfg.ReseedPeriod = time.Duration(reseedSec) * time.Second
	if cfg.ReseedBytes, err = intEnv("ALEAMARIS_RESEED_BYTES", cfg.ReseedBytes); err != nil {
		return Config{}, err
	}
	interval, err := intEnv("ALEAMARIS_RESEED_INTERVAL_BYTES", int(cfg.ReseedIntervalBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.ReseedIntervalBytes = uint64(interval)
	cfg.APIKey = os.Getenv("ALEAMARIS_API_KEY")

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.RawCap <= 0 {
		return fmt.Errorf("config: ALEAMARIS_RAW_CAP must be > 0, got %d", c.RawCap)
	}
	if c.LowWatermark < 0 || c.HighWatermark < c.LowWatermark {
		return fmt.Errorf("config: watermarks invalid (low=%d high=%d)", c.LowWatermark, c.HighWatermark)
	}
	if c.FillChunkBytes <= 0 {
		return fmt.Errorf("config: ALEAMARIS_FILL_CHUNK must be > 0, got %d", c.FillChunkBytes)
	}
	if c.FillInterval <= 0 {
		return fmt.Errorf("config: ALEAMARIS_FILL_INTERVAL_MS must be > 0")
	}
	return nil
}

func intEnv(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", name, err)
	}
	return n, nil
}

func boolEnv(name string, def bool) (bool, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	switch v {
	case "1", "true", "TRUE", "True":
		return true, nil
	case "0", "false", "FALSE", "False":
		return false, nil
	default:
		return false, fmt.Errorf("config: %s: invalid boolean %q", name, v)
	}
}
