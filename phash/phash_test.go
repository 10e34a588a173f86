package phash

import (
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
)

// checkerboard builds a test image with alternating bright/dark blocks.
func checkerboard(w, h, block int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if ((x/block)+(y/block))%2 == 0 {
				img.Set(x, y, color.RGBA{240, 240, 240, 255})
			} else {
				img.Set(x, y, color.RGBA{20, 20, 20, 255})
			}
		}
	}
	return img
}

// gradient builds an image brightening left to right.
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(255 * x / w)
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func TestHashDeterministic(t *testing.T) {
	img := checkerboard(64, 64, 8)

	for _, algo := range []string{AlgorithmAverage, AlgorithmDifference} {
		opts := Options{Algorithm: algo, Precision: 8}
		first, err := Hash(img, opts)
		if err != nil {
			t.Fatalf("Hash(%s) failed: %v", algo, err)
		}
		second, err := Hash(img, opts)
		if err != nil {
			t.Fatalf("Hash(%s) failed on second call: %v", algo, err)
		}
		if first != second {
			t.Errorf("%s hash not deterministic: %q vs %q", algo, first, second)
		}
	}
}

func TestHashLength(t *testing.T) {
	img := checkerboard(100, 80, 10)

	tests := []struct {
		algorithm string
		precision int
		wantBits  int
	}{
		{AlgorithmAverage, 8, 64},
		{AlgorithmAverage, 16, 256},
		{AlgorithmDifference, 8, 64},
		{AlgorithmDifference, 4, 16},
	}

	for _, tt := range tests {
		got, err := Hash(img, Options{Algorithm: tt.algorithm, Precision: tt.precision})
		if err != nil {
			t.Fatalf("Hash(%s, %d) failed: %v", tt.algorithm, tt.precision, err)
		}
		if len(got) != tt.wantBits {
			t.Errorf("Hash(%s, %d) length = %d, want %d", tt.algorithm, tt.precision, len(got), tt.wantBits)
		}
		if strings.Trim(got, "01") != "" {
			t.Errorf("hash contains non-bit characters: %q", got)
		}
	}
}

func TestHashResolutionIndependent(t *testing.T) {
	// The same checkerboard pattern at different resolutions should hash
	// identically because sampling happens on the fixed grid.
	small := checkerboard(32, 32, 4)
	large := checkerboard(256, 256, 32)

	opts := DefaultOptions()
	hSmall, err := Hash(small, opts)
	if err != nil {
		t.Fatal(err)
	}
	hLarge, err := Hash(large, opts)
	if err != nil {
		t.Fatal(err)
	}
	if hSmall != hLarge {
		t.Errorf("hashes differ across resolutions: %q vs %q", hSmall, hLarge)
	}
}

func TestDifferenceHashGradient(t *testing.T) {
	// A left-to-right brightening gradient means the left sample is always
	// darker, so every difference bit should be 0.
	img := gradient(90, 90)

	got, err := Hash(img, Options{Algorithm: AlgorithmDifference, Precision: 8})
	if err != nil {
		t.Fatal(err)
	}
	if got != strings.Repeat("0", 64) {
		t.Errorf("gradient difference hash = %q, want all zeros", got)
	}
}

func TestHashUnsupportedAlgorithm(t *testing.T) {
	_, err := Hash(checkerboard(16, 16, 4), Options{Algorithm: "md5", Precision: 8})
	if !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"0000", "0000", 0},
		{"1111", "0000", 4},
		{"1010", "1000", 1},
	}
	for _, tt := range tests {
		got, err := HammingDistance(tt.a, tt.b)
		if err != nil {
			t.Fatalf("HammingDistance(%q, %q) failed: %v", tt.a, tt.b, err)
		}
		if got != tt.want {
			t.Errorf("HammingDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}

	if _, err := HammingDistance("10", "100"); err == nil {
		t.Error("expected error for mismatched lengths")
	}
}
