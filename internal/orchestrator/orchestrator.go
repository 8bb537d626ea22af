// Copyright (c) 2024-2026 The AleaMaris Authors
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Package orchestrator implements the Pipeline Orchestrator (§4.7): boot,
// the filler task, the reseed task, and the seed provider that bridges the
// Conditioner/queue pair to the AleaMaris RNG. Its background tasks follow
// the ticker-plus-context-cancellation shape common to Go ingestion
// pipelines (ticker per tick, select on ctx.Done, never block the loop on
// a slow downstream).
package orchestrator

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ajaniramon/aleamaris"
	"github.com/ajaniramon/aleamaris/internal/conditioner"
	"github.com/ajaniramon/aleamaris/internal/config"
	"github.com/ajaniramon/aleamaris/internal/queue"
	"github.com/ajaniramon/aleamaris/internal/videosource"
	"github.com/ajaniramon/aleamaris/rng"
)

// SourceFactory builds a fresh video source for one Conditioner production
// session. The orchestrator calls it anew each time the Conditioner needs
// to run, since a Conditioner consumes (and releases) its source exactly
// once per Produce call.
type SourceFactory func() (videosource.Source, error)

// Orchestrator owns the byte queue, the background filler and reseed
// tasks, and the seed-provider bridge the AleaMaris RNG is constructed
// with.
type Orchestrator struct {
	cfg       config.Config
	queue     *queue.ByteQueue
	newSource SourceFactory
	genCfg    conditioner.Config
	log       *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu  sync.Mutex
	rng *rng.RNG
}

// New constructs an Orchestrator. It does not start background tasks or
// boot the queue; call Boot for that.
func New(cfg config.Config, newSource SourceFactory, genCfg conditioner.Config, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		cfg:       cfg,
		queue:     queue.New(cfg.RawCap),
		newSource: newSource,
		genCfg:    genCfg,
		log:       log,
	}
}

// Boot produces cfg.BootBytes (§4.7 Boot), constructs the AleaMaris RNG
// from the seed provider, and then fills the queue with the boot bytes, so
// the RNG's seed is not drawn out of them. On total Conditioner failure it
// falls back to OS entropy when ALEAMARIS_ALLOW_URANDOM is set, otherwise
// fails with ErrNoEntropySource.
func (o *Orchestrator) Boot(ctx context.Context) error {
	produced, err := o.runConditioner(o.cfg.BootBytes)
	if err != nil || len(produced) == 0 {
		if !o.cfg.AllowURandomBoot {
			return fmt.Errorf("orchestrator: %w: %v", aleamaris.ErrNoEntropySource, err)
		}
		o.log.Warn("boot: conditioner unavailable, falling back to OS entropy", "error", err)
		produced = osBytes(o.cfg.BootBytes)
		if len(produced) == 0 {
			return fmt.Errorf("orchestrator: %w: OS entropy also unavailable", aleamaris.ErrNoEntropySource)
		}
	}
	r, err := rng.New(o.seedProvider, rng.WithReseedIntervalBytes(o.cfg.ReseedIntervalBytes))
	if err != nil {
		return fmt.Errorf("orchestrator: %w", err)
	}
	o.queue.Offer(produced)

	o.mu.Lock()
	o.rng = r
	o.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.wg.Add(2)
	go o.fillerLoop(runCtx)
	go o.reseedLoop(runCtx)

	o.log.Info("boot complete", "queued_bytes", o.queue.Available())
	return nil
}

// Shutdown cancels both background tasks and waits for them to exit
// (§4.7 Shutdown). Cancellation is cooperative: tasks observe it at their
// next tick boundary.
func (o *Orchestrator) Shutdown() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
}

// Queue exposes the byte queue for the raw-bytes HTTP handlers.
func (o *Orchestrator) Queue() *queue.ByteQueue { return o.queue }

// RNG exposes the AleaMaris RNG for the /rng/* HTTP handlers. Only valid
// after Boot returns successfully.
func (o *Orchestrator) RNG() *rng.RNG {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rng
}

// ReseedBytes exposes the configured per-reseed queue pull size
// (ALEAMARIS_RESEED_BYTES), so HTTP handlers honoring reseed=true pull the
// same amount the background reseed task does rather than a fixed guess.
func (o *Orchestrator) ReseedBytes() int { return o.cfg.ReseedBytes }

// fillerLoop implements the §4.7 filler task: every FillInterval, top the
// queue up toward HighWatermark once it drops below LowWatermark.
func (o *Orchestrator) fillerLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.FillInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.fillOnce()
		}
	}
}

func (o *Orchestrator) fillOnce() {
	available := o.queue.Available()
	if available >= o.cfg.LowWatermark {
		return
	}

	want := o.cfg.HighWatermark - available
	if want > o.cfg.FillChunkBytes {
		want = o.cfg.FillChunkBytes
	}
	if want <= 0 {
		return
	}

	produced, err := o.runConditioner(want)
	if err != nil || len(produced) == 0 {
		if o.cfg.AllowURandomBoot {
			produced = osBytes(want)
		} else {
			o.log.Debug("filler: conditioner unavailable, skipping this tick", "error", err)
			return
		}
	}
	o.queue.Offer(produced)
}

// reseedLoop implements the §4.7 reseed task: every ReseedPeriod, drain up
// to ReseedBytes from the queue and reseed the RNG.
func (o *Orchestrator) reseedLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.cfg.ReseedPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.reseedOnce()
		}
	}
}

func (o *Orchestrator) reseedOnce() {
	material := o.queue.Poll(o.cfg.ReseedBytes)
	if len(material) == 0 {
		if !o.cfg.AllowURandomBoot {
			return
		}
		material = osBytes(o.cfg.ReseedBytes)
	}
	if len(material) == 0 {
		return
	}
	o.RNG().Reseed(material)
}

// seedProvider implements the §4.7 seed-provider contract: prefer the
// queue, fall back to a fresh Conditioner run, then OS entropy if allowed.
func (o *Orchestrator) seedProvider(n int) []byte {
	if o.queue.Available() >= n {
		return o.queue.Poll(n)
	}

	produced, err := o.runConditioner(n)
	if err != nil {
		produced = nil
	}
	if len(produced) >= n {
		return produced[:n]
	}
	if o.cfg.AllowURandomBoot {
		out := make([]byte, n)
		copy(out, produced)
		copy(out[len(produced):], osBytes(n-len(produced)))
		return out
	}
	return produced
}

// runConditioner constructs a fresh video source and runs the Conditioner
// over it for want bytes. A SourceUnavailable error from the factory is
// treated the same as a Conditioner failure: callers fall back per policy.
func (o *Orchestrator) runConditioner(want int) ([]byte, error) {
	src, err := o.newSource()
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	c := conditioner.New(src, o.genCfg)
	return c.Produce(want)
}

// osBytes returns n bytes of OS-provided entropy, or an empty slice if the
// OS source itself fails (treated as total entropy failure upstream).
func osBytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil
	}
	return b
}
