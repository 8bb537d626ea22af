// Copyright (c) 2024-2026 The AleaMaris Authors
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajaniramon/aleamaris/internal/conditioner"
	"github.com/ajaniramon/aleamaris/internal/config"
	"github.com/ajaniramon/aleamaris/internal/orchestrator"
	"github.com/ajaniramon/aleamaris/internal/videosource"
)

type fakeSource struct{ frames []videosource.Frame }

func newFakeSource(n int) *fakeSource {
	f := &fakeSource{}
	for i := 0; i < n; i++ {
		pix := make([]byte, 4*4*3)
		for j := range pix {
			pix[j] = byte(i + j)
		}
		f.frames = append(f.frames, videosource.Frame{Width: 4, Height: 4, Pix: pix})
	}
	return f
}

func (f *fakeSource) Read() (videosource.Frame, bool) { return videosource.Frame{}, false }
func (f *fakeSource) Rewind()                         {}
func (f *fakeSource) Release()                        {}
func (f *fakeSource) Seekable() bool                  { return true }
func (f *fakeSource) FrameCount() int                 { return len(f.frames) }
func (f *fakeSource) ReadAt(i int) (videosource.Frame, bool) {
	if i < 0 || i >= len(f.frames) {
		return videosource.Frame{}, false
	}
	return f.frames[i], true
}

func newTestServer(t *testing.T, apiKey string) (*Server, *orchestrator.Orchestrator) {
	t.Helper()
	cfg := config.Config{
		RawCap:              1 << 20,
		BootBytes:           2000,
		LowWatermark:        100,
		HighWatermark:       300,
		FillInterval:        time.Hour,
		FillChunkBytes:      200,
		ReseedPeriod:        time.Hour,
		ReseedBytes:         32,
		ReseedIntervalBytes: 1_000_000,
	}
	orc := orchestrator.New(cfg, func() (videosource.Source, error) { return newFakeSource(50), nil }, conditioner.Config{Resize: 4}, nil)
	require.NoError(t, orc.Boot(context.Background()))
	t.Cleanup(orc.Shutdown)

	return New(orc, apiKey, nil), orc
}

func TestHandleIngest_AndDrain(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Handler()

	body := strings.Repeat("x", 1000)
	req := httptest.NewRequest(http.MethodPost, "/trng/ingest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1000, resp["received"])
	assert.Equal(t, 0, resp["dropped"])

	req2 := httptest.NewRequest(http.MethodGet, "/trng/bytes?count=400", nil)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req2)

	assert.Equal(t, http.StatusOK, rec2.Code)
	assert.Len(t, rec2.Body.Bytes(), 400)
}

func TestHandleIngest_Unauthorized(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/trng/ingest", strings.NewReader("data"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleIngest_AuthorizedWithKey(t *testing.T) {
	srv, _ := newTestServer(t, "secret")
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/trng/ingest", strings.NewReader("data"))
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/trng/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestHandleRNGBytes(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/rng/bytes?count=64", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "64", rec.Header().Get("X-Count"))
	assert.Len(t, rec.Body.Bytes(), 64)
}

func TestHandleRNGInts_MinGreaterThanMax(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/rng/ints?min=10&max=5&count=3", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "min>max")
}

func TestHandleRNGInts_Bounds(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/rng/ints?min=0&max=36&count=500", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var values []int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &values))
	assert.Len(t, values, 500)
	for _, v := range values {
		assert.GreaterOrEqual(t, v, int64(0))
		assert.LessOrEqual(t, v, int64(36))
	}
}

func TestHandleU32Bin_ByteLength(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/rng/u32.bin?count=10", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Body.Bytes(), 40)
}

func TestHandleU32JSONL_LineCount(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/rng/u32.jsonl?count=5", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	assert.Len(t, lines, 5)
}

func TestHandleReseed(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/rng/reseed", strings.NewReader(strings.Repeat("k", 64)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(64), resp["received"])
}

func TestCORSHeaderPresent(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Handler()

	req := httptest.NewRequest(http.MethodGet, "/trng/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
