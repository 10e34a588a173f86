// Package phash computes coarse perceptual fingerprints of images for
// approximate duplicate detection. Hashes are resolution-independent bit
// strings; two images with identical hashes are treated as duplicates. This
// is a similarity heuristic, not a cryptographic digest.
package phash

import (
	"errors"
	"fmt"
	"image"
	"strings"

	xdraw "golang.org/x/image/draw"
)

// Supported algorithm names.
const (
	AlgorithmAverage    = "average"
	AlgorithmDifference = "difference"
)

// DefaultPrecision is the grid edge length used when Options.Precision is
// zero. An 8x8 grid yields a 64-bit hash.
const DefaultPrecision = 8

// ErrUnsupportedAlgorithm is returned for unknown algorithm names. It is
// fatal to the single hash request only, never to the session.
var ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")

// Options selects the hashing algorithm and grid precision.
type Options struct {
	Algorithm string
	Precision int
}

// DefaultOptions returns the default hash configuration.
func DefaultOptions() Options {
	return Options{
		Algorithm: AlgorithmAverage,
		Precision: DefaultPrecision,
	}
}

// Hash computes the perceptual hash of img and returns it as a string of '0'
// and '1' runes. Both algorithms produce precision*precision bits.
func Hash(img image.Image, opts Options) (string, error) {
	if img == nil {
		return "", fmt.Errorf("phash: nil image")
	}
	if opts.Algorithm == "" {
		opts.Algorithm = AlgorithmAverage
	}
	if opts.Precision <= 0 {
		opts.Precision = DefaultPrecision
	}

	switch opts.Algorithm {
	case AlgorithmAverage:
		return averageHash(img, opts.Precision), nil
	case AlgorithmDifference:
		return differenceHash(img, opts.Precision), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, opts.Algorithm)
	}
}

// averageHash downscales to an n x n grayscale grid, computes the mean sample
// value, and emits one bit per sample: 1 if the sample exceeds the mean.
func averageHash(img image.Image, n int) string {
	samples := graySamples(img, n, n)

	var sum float64
	for _, v := range samples {
		sum += v
	}
	mean := sum / float64(len(samples))

	var b strings.Builder
	b.Grow(len(samples))
	for _, v := range samples {
		if v > mean {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// differenceHash downscales to an (n+1) x n grid and emits one bit per
// row-adjacent pixel pair: 1 if the left sample is brighter than its right
// neighbor.
func differenceHash(img image.Image, n int) string {
	width := n + 1
	samples := graySamples(img, width, n)

	var b strings.Builder
	b.Grow(n * n)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			left := samples[row*width+col]
			right := samples[row*width+col+1]
			if left > right {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		}
	}
	return b.String()
}

// graySamples resizes img to w x h with nearest-neighbor sampling and returns
// luma values in row-major order. Grayscale conversion uses the Rec. 601 luma
// weights 0.299R + 0.587G + 0.114B.
func graySamples(img image.Image, w, h int) []float64 {
	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.NearestNeighbor.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Src, nil)

	samples := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := scaled.PixOffset(x, y)
			r := float64(scaled.Pix[off])
			g := float64(scaled.Pix[off+1])
			b := float64(scaled.Pix[off+2])
			samples = append(samples, 0.299*r+0.587*g+0.114*b)
		}
	}
	return samples
}

// HammingDistance counts differing bit positions between two equal-length
// hashes. Exposed for similarity-threshold matching; duplicate detection in
// the pipeline uses exact string equality.
func HammingDistance(a, b string) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("phash: hash lengths differ (%d vs %d)", len(a), len(b))
	}
	dist := 0
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			dist++
		}
	}
	return dist, nil
}
