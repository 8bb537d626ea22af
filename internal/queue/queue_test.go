// Copyright (c) 2024-2026 The AleaMaris Authors
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

package queue

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestByteQueue_OfferPoll_FIFO verifies invariant 2 of §8: the concatenation
// of polled bytes is a prefix of the concatenation of offered bytes.
func TestByteQueue_OfferPoll_FIFO(t *testing.T) {
	is := assert.New(t)
	q := New(1000)

	is.Equal(3, q.Offer([]byte("abc")))
	is.Equal(3, q.Offer([]byte("def")))
	is.Equal(6, q.Available())

	got := q.Poll(4)
	is.Equal("abcd", string(got))
	is.Equal(2, q.Available())

	rest := q.Poll(100)
	is.Equal("ef", string(rest))
	is.Equal(0, q.Available())
}

// TestByteQueue_OfferTruncates verifies the overflow scenario from §8
// scenario 4: offering more than the remaining room truncates and reports
// the correct written length.
func TestByteQueue_OfferTruncates(t *testing.T) {
	is := assert.New(t)
	q := New(1500)

	written := q.Offer(make([]byte, 2000))
	is.Equal(1500, written)
	is.Equal(1500, q.Available())

	// Queue is now full; a further offer writes nothing.
	is.Equal(0, q.Offer([]byte("x")))
}

// TestByteQueue_ZeroLengthOfferIsNoop covers §4.4's "zero-length offers are
// no-ops" clause.
func TestByteQueue_ZeroLengthOfferIsNoop(t *testing.T) {
	q := New(10)
	require.Equal(t, 0, q.Offer(nil))
	require.Equal(t, 0, q.Available())
}

// TestByteQueue_PollMoreThanAvailable checks that Poll never returns more
// than is available and never blocks.
func TestByteQueue_PollMoreThanAvailable(t *testing.T) {
	is := assert.New(t)
	q := New(10)
	q.Offer([]byte("hi"))

	got := q.Poll(1000)
	is.Equal("hi", string(got))
	is.Empty(q.Poll(1000))
}

// TestByteQueue_Invariant_NeverExceedsCap runs a fixed sequence of offers
// and polls and checks invariant 1 of §8 holds after every step.
func TestByteQueue_Invariant_NeverExceedsCap(t *testing.T) {
	q := New(64)
	var offered, polled bytes.Buffer

	ops := []struct {
		offer []byte
		poll  int
	}{
		{offer: bytes.Repeat([]byte{1}, 20)},
		{poll: 5},
		{offer: bytes.Repeat([]byte{2}, 60)},
		{poll: 100},
		{poll: 0},
	}

	for _, op := range ops {
		if op.offer != nil {
			n := q.Offer(op.offer)
			offered.Write(op.offer[:n])
		}
		if op.poll > 0 {
			got := q.Poll(op.poll)
			polled.Write(got)
		}
		avail := q.Available()
		require.GreaterOrEqual(t, avail, 0)
		require.LessOrEqual(t, avail, q.Capacity())
		require.Equal(t, offered.Len()-polled.Len(), avail)
	}

	require.True(t, bytes.HasPrefix(offered.Bytes(), polled.Bytes()))
}

// FuzzByteQueue fuzzes a single offer followed by a single poll to check
// the queue never panics and never reports negative or over-capacity
// availability.
func FuzzByteQueue(f *testing.F) {
	f.Add(10, 5, 3)
	f.Fuzz(func(t *testing.T, capacity, offerLen, pollLen int) {
		if capacity <= 0 || capacity > 1<<20 {
			t.Skip()
		}
		if offerLen < 0 || offerLen > 1<<16 || pollLen < 0 || pollLen > 1<<16 {
			t.Skip()
		}

		q := New(capacity)
		block := bytes.Repeat([]byte{0xAB}, offerLen)
		written := q.Offer(block)
		if written > len(block) || written < 0 {
			t.Fatalf("offer wrote %d bytes for input of length %d", written, len(block))
		}

		got := q.Poll(pollLen)
		if len(got) > pollLen {
			t.Fatalf("poll returned more bytes than requested")
		}

		avail := q.Available()
		if avail < 0 || avail > capacity {
			t.Fatalf("available() out of bounds: %d (cap=%d)", avail, capacity)
		}
	})
}
