// Copyright (c) 2024-2026 The AleaMaris Authors
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Package httpapi implements the §6 Service Boundary (C8): the HTTP
// surface over the byte queue and AleaMaris RNG owned by an
// orchestrator.Orchestrator. This module has no HTTP router or framework
// dependency, so routing here is net/http's ServeMux, the same choice the
// standard library itself makes for this shape of small, flat route table.
package httpapi

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ajaniramon/aleamaris"
	"github.com/ajaniramon/aleamaris/internal/orchestrator"
)

const (
	maxTRNGCount  = 4096
	maxRNGBytes   = 1 << 20
	maxRNGInts    = 100_000
	maxU32Bin     = 25_000_000
	maxU32JSONL   = 2_000_000
	maxIngestBody = 64 << 20
)

// Server wires HTTP handlers to an Orchestrator.
type Server struct {
	orc    *orchestrator.Orchestrator
	apiKey string
	log    *slog.Logger
}

// New constructs a Server. apiKey, when non-empty, is required via
// X-API-Key on POST /trng/ingest.
func New(orc *orchestrator.Orchestrator, apiKey string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{orc: orc, apiKey: apiKey, log: log}
}

// Handler builds the full route table as an http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /trng/ingest", s.handleIngest)
	mux.HandleFunc("GET /trng/bytes", s.handleRawBytes)
	mux.HandleFunc("GET /trng/raw", s.handleRawBytes)
	mux.HandleFunc("GET /trng/health", s.handleHealth)
	mux.HandleFunc("GET /trng/stats", s.handleTRNGStats)
	mux.HandleFunc("GET /rng/bytes", s.handleRNGBytes)
	mux.HandleFunc("GET /rng/ints", s.handleRNGInts)
	mux.HandleFunc("GET /rng/u32.bin", s.handleU32Bin)
	mux.HandleFunc("GET /rng/u32.jsonl", s.handleU32JSONL)
	mux.HandleFunc("POST /rng/reseed", s.handleReseed)
	mux.HandleFunc("GET /rng/stats", s.handleRNGStats)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt parses a query parameter as an int, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func queryBool(r *http.Request, name string, def bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	return v == "1" || v == "true"
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// handleIngest implements POST /trng/ingest (§6): accepts a raw byte body
// and offers it to the queue, rejecting with 401 when an API key is
// configured and missing/wrong.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}

	written := s.orc.Queue().Offer(body)
	dropped := len(body) - written
	writeJSON(w, http.StatusOK, map[string]int{
		"received":  written,
		"dropped":   dropped,
		"available": s.orc.Queue().Available(),
	})
}

// handleRawBytes implements GET /trng/bytes and /trng/raw (§6): returns up
// to count raw queue bytes as an octet-stream.
func (s *Server) handleRawBytes(w http.ResponseWriter, r *http.Request) {
	count, err := queryInt(r, "count", 256)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid count")
		return
	}
	count = clamp(count, 1, maxTRNGCount)

	out := s.orc.Queue().Poll(count)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Available-After", strconv.Itoa(s.orc.Queue().Available()))
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// handleHealth implements GET /trng/health (§6).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"available": s.orc.Queue().Available(),
		"status":    "ok",
	})
}

// handleTRNGStats implements the supplemented /trng/stats endpoint, a
// diagnostic counter set for the byte queue side of the pipeline.
func (s *Server) handleTRNGStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"available": s.orc.Queue().Available(),
		"capacity":  s.orc.Queue().Capacity(),
	})
}

// handleRNGBytes implements GET /rng/bytes (§6).
func (s *Server) handleRNGBytes(w http.ResponseWriter, r *http.Request) {
	count, err := queryInt(r, "count", 256)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid count")
		return
	}
	count = clamp(count, 1, maxRNGBytes)

	if queryBool(r, "reseed", false) {
		s.forceReseed()
	}

	out := s.orc.RNG().RandomBytes(count)
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Count", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// handleRNGInts implements GET /rng/ints (§6): min/max inclusive integer
// sampling, JSON or packed little-endian binary.
func (s *Server) handleRNGInts(w http.ResponseWriter, r *http.Request) {
	lo, err := queryInt(r, "min", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid min")
		return
	}
	hi, err := queryInt(r, "max", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid max")
		return
	}
	if lo > hi {
		writeError(w, http.StatusBadRequest, "min>max")
		return
	}
	count, err := queryInt(r, "count", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid count")
		return
	}
	count = clamp(count, 1, maxRNGInts)

	if queryBool(r, "reseed", false) {
		s.forceReseed()
	}

	values := make([]int64, count)
	for i := range values {
		v, err := s.orc.RNG().RandInt(int64(lo), int64(hi))
		if err != nil {
			if errors.Is(err, aleamaris.ErrInvalidRange) {
				writeError(w, http.StatusBadRequest, "min>max")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		values[i] = v
	}

	if r.URL.Query().Get("fmt") == "bin" {
		buf := make([]byte, 0, count*4)
		for _, v := range values {
			var tmp [4]byte
			binary.LittleEndian.PutUint32(tmp[:], uint32(v))
			buf = append(buf, tmp[:]...)
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		w.Write(buf)
		return
	}

	writeJSON(w, http.StatusOK, values)
}

// handleU32Bin implements GET /rng/u32.bin (§6): a raw stream of
// consecutive 4-byte integers, no framing.
func (s *Server) handleU32Bin(w http.ResponseWriter, r *http.Request) {
	count, err := queryInt(r, "count", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid count")
		return
	}
	count = clamp(count, 1, maxU32Bin)

	if queryBool(r, "reseed", false) {
		s.forceReseed()
	}

	endian := r.URL.Query().Get("endian")
	bigEndian := endian == "be"

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, 4*1024)
	written := 0
	for written < count {
		batch := clamp(count-written, 1, len(buf)/4)
		for i := 0; i < batch; i++ {
			v := s.orc.RNG().RandU32()
			if bigEndian {
				binary.BigEndian.PutUint32(buf[i*4:i*4+4], v)
			} else {
				binary.LittleEndian.PutUint32(buf[i*4:i*4+4], v)
			}
		}
		w.Write(buf[:batch*4])
		written += batch
	}
}

// handleU32JSONL implements GET /rng/u32.jsonl (§6): newline-delimited
// decimal integers.
func (s *Server) handleU32JSONL(w http.ResponseWriter, r *http.Request) {
	count, err := queryInt(r, "count", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid count")
		return
	}
	count = clamp(count, 1, maxU32JSONL)

	if queryBool(r, "reseed", false) {
		s.forceReseed()
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	for i := 0; i < count; i++ {
		v := s.orc.RNG().RandU32()
		io.WriteString(w, strconv.FormatUint(uint64(v), 10))
		io.WriteString(w, "\n")
	}
}

// handleReseed implements POST /rng/reseed (§6): raw body bytes are
// forwarded directly to the RNG as reseed entropy.
func (s *Server) handleReseed(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxIngestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	s.orc.RNG().Reseed(body)
	writeJSON(w, http.StatusOK, map[string]any{
		"received": len(body),
		"status":   "ok",
	})
}

// handleRNGStats implements GET /rng/stats (§6): it reports the byte
// queue's occupancy and capacity, the pool the RNG is seeded from. No
// RNG-internal counters (bytes generated, reseed times) are included.
func (s *Server) handleRNGStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"queue_available": s.orc.Queue().Available(),
		"queue_capacity":  s.orc.Queue().Capacity(),
	})
}

// forceReseed implements the reseed=true query semantics: pull up to the
// configured ALEAMARIS_RESEED_BYTES from the queue (the seed provider's
// Conditioner/OS fallback is not re-triggered here; a direct queue drain
// matches §6's "pulls up to RESEED_BYTES from the queue" wording).
func (s *Server) forceReseed() {
	material := s.orc.Queue().Poll(s.orc.ReseedBytes())
	if len(material) > 0 {
		s.orc.RNG().Reseed(material)
	}
}
