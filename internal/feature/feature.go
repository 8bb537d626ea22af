// Copyright (c) 2024-2026 The AleaMaris Authors
//
// This source code is licensed under the Apache 2.0 License found in the
// LICENSE file in the root directory of this source tree.

// Package feature implements the Feature Extractor (§4.2): a pure function
// from a BGR frame (plus optional previous luminance matrix) to a
// downscaled grayscale matrix and a concatenated feature byte buffer,
// deterministic given the same inputs. No dependency in this module's
// go.mod does image processing (the closest candidate, standard library
// image/color, is a type conversion helper, not a resize/convolution
// library), so downscale and edge detection are implemented directly
// against image.Gray/image.RGBA-shaped byte slices using BT.601 luminance,
// area-average resize, and a 3-tap Laplacian.
package feature

import "github.com/ajaniramon/aleamaris/internal/videosource"

// ToGraySmall converts frame to an N x N grayscale matrix. Luminance uses
// the BT.601 coefficients (0.299 R + 0.587 G + 0.114 B); downscale uses
// area averaging, matching cv2.resize's INTER_AREA behavior for
// downscaling, since the reference implementation this package replaces
// used OpenCV for both steps.
func ToGraySmall(frame videosource.Frame, n int) []byte {
	gray := toGrayFull(frame)
	return resizeAreaAverage(gray, frame.Width, frame.Height, n)
}

// toGrayFull converts an interleaved BGR frame to a full-resolution
// row-major 8-bit luminance matrix.
func toGrayFull(frame videosource.Frame) []byte {
	out := make([]byte, frame.Width*frame.Height)
	for i := 0; i < frame.Width*frame.Height; i++ {
		b := int(frame.Pix[i*3+0])
		g := int(frame.Pix[i*3+1])
		r := int(frame.Pix[i*3+2])
		// BT.601: Y = 0.299R + 0.587G + 0.114B, fixed-point with a rounding
		// half-bias, scaled by 1000 to stay in integer arithmetic.
		y := (299*r + 587*g + 114*b + 500) / 1000
		out[i] = byte(clampInt(y, 0, 255))
	}
	return out
}

// resizeAreaAverage downsamples src (w x h, row-major 8-bit) to an n x n
// matrix by averaging each destination cell's corresponding source region,
// the same box-filter behavior as OpenCV's INTER_AREA for downscaling.
func resizeAreaAverage(src []byte, w, h, n int) []byte {
	out := make([]byte, n*n)
	for dy := 0; dy < n; dy++ {
		y0 := dy * h / n
		y1 := (dy + 1) * h / n
		if y1 <= y0 {
			y1 = y0 + 1
		}
		if y1 > h {
			y1 = h
		}
		for dx := 0; dx < n; dx++ {
			x0 := dx * w / n
			x1 := (dx + 1) * w / n
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if x1 > w {
				x1 = w
			}

			sum := 0
			count := 0
			for y := y0; y < y1; y++ {
				row := y * w
				for x := x0; x < x1; x++ {
					sum += int(src[row+x])
					count++
				}
			}
			if count == 0 {
				count = 1
			}
			out[dy*n+dx] = byte(sum / count)
		}
	}
	return out
}

// LaplacianEdges applies a 3-tap Laplacian kernel to an n x n grayscale
// matrix on a 16-bit signed accumulator, then takes abs(lap) >> 1
// saturated to 8-bit, per §4.2. Border pixels use replicated edge
// sampling so the output is always n x n.
func LaplacianEdges(gray []byte, n int) []byte {
	out := make([]byte, n*n)
	at := func(x, y int) int {
		if x < 0 {
			x = 0
		}
		if x >= n {
			x = n - 1
		}
		if y < 0 {
			y = 0
		}
		if y >= n {
			y = n - 1
		}
		return int(gray[y*n+x])
	}

	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			center := at(x, y)
			lap := int16(-4*center + at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1))
			abs := lap
			if abs < 0 {
				abs = -abs
			}
			edge := int(abs) >> 1
			out[y*n+x] = byte(clampInt(edge, 0, 255))
		}
	}
	return out
}

// AbsDiff computes the elementwise absolute difference between two equally
// sized byte matrices.
func AbsDiff(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		out[i] = byte(d)
	}
	return out
}

// Features builds the §4.2 feature buffer: gray || edges || (diff if
// useDiff and prev is present). prev may be nil, in which case the diff
// segment is omitted regardless of useDiff.
func Features(gray []byte, prev []byte, useDiff bool) []byte {
	edges := LaplacianEdges(gray, isqrt(len(gray)))

	out := make([]byte, 0, len(gray)*3)
	out = append(out, gray...)
	out = append(out, edges...)
	if useDiff && prev != nil {
		out = append(out, AbsDiff(gray, prev)...)
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// isqrt recovers N from an N*N-length slice. Feature matrices are always
// square, so this avoids threading N through every call site that already
// holds the matrix.
func isqrt(area int) int {
	n := 0
	for n*n < area {
		n++
	}
	return n
}
