// Package fingerprint computes perceptual hashes of submitted person crops.
// The hashes catch the same photograph being ingested twice; they say nothing
// about whether two different photos show the same person.
package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"math/bits"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// HashResult holds both perceptual hashes of one image. The hex strings are
// what gets persisted; the raw bits are kept for distance computations.
type HashResult struct {
	PHash     string `json:"phash"`
	DHash     string `json:"dhash"`
	PHashBits uint64 `json:"-"`
	DHashBits uint64 `json:"-"`
}

// ComputeHashes decodes an image and derives its perceptual (DCT) and
// difference hashes. JPEG, PNG, GIF and BMP inputs are accepted.
func ComputeHashes(imageData []byte) (*HashResult, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	p := perceptualHash(img)
	d := differenceHash(img)

	return &HashResult{
		PHash:     fmt.Sprintf("%016x", p),
		DHash:     fmt.Sprintf("%016x", d),
		PHashBits: p,
		DHashBits: d,
	}, nil
}

// HammingDistance counts differing bits between two 64-bit hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// perceptualHash derives a 64-bit hash from the low-frequency DCT
// coefficients of a 32x32 grayscale rendition of the image.
func perceptualHash(img image.Image) uint64 {
	gray := luminance(scale(img, 32, 32))
	freq := dct2d(gray)

	// Low frequencies live in the top-left 8x8 block. The DC term dwarfs
	// everything else, so the median is taken over the other 63.
	block := make([]float64, 0, 64)
	for u := range 8 {
		for v := range 8 {
			block = append(block, freq[u][v])
		}
	}
	med := median(block[1:])

	var hash uint64
	for i, c := range block {
		if c > med {
			hash |= 1 << (63 - i)
		}
	}
	return hash
}

// differenceHash derives a 64-bit hash from horizontal brightness gradients
// on a 9x8 grayscale rendition: one bit per adjacent pixel pair.
func differenceHash(img image.Image) uint64 {
	gray := luminance(scale(img, 9, 8))

	var hash uint64
	bit := 63
	for y := range 8 {
		for x := range 8 {
			if gray[y][x] > gray[y][x+1] {
				hash |= 1 << bit
			}
			bit--
		}
	}
	return hash
}

// scale resamples an image to the given dimensions with bilinear filtering.
func scale(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// luminance converts an image to a row-major grid of luma values (0-255)
// using the ITU-R BT.601 weights.
func luminance(img *image.RGBA) [][]float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	rows := make([][]float64, h)
	for y := range h {
		rows[y] = make([]float64, w)
		for x := range w {
			r, g, bl, _ := img.At(x, y).RGBA()
			rows[y][x] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
		}
	}
	return rows
}

// dct2d computes a two dimensional DCT-II of a square grid by running the
// one dimensional transform over rows, then over columns of the result.
func dct2d(grid [][]float64) [][]float64 {
	n := len(grid)
	cos := cosTable(n)

	rows := make([][]float64, n)
	for y := range n {
		rows[y] = dct1d(grid[y], cos)
	}

	out := make([][]float64, n)
	for u := range n {
		out[u] = make([]float64, n)
	}
	col := make([]float64, n)
	for v := range n {
		for y := range n {
			col[y] = rows[y][v]
		}
		t := dct1d(col, cos)
		for u := range n {
			out[u][v] = t[u]
		}
	}
	return out
}

func dct1d(in []float64, cos [][]float64) []float64 {
	n := len(in)
	out := make([]float64, n)
	for k := range n {
		var sum float64
		for i := range n {
			sum += in[i] * cos[k][i]
		}
		out[k] = sum
	}
	return out
}

func cosTable(n int) [][]float64 {
	table := make([][]float64, n)
	for k := range table {
		table[k] = make([]float64, n)
		for i := range n {
			table[k][i] = math.Cos(math.Pi * float64(k) * (2*float64(i) + 1) / (2 * float64(n)))
		}
	}
	return table
}

// median returns the middle value of a slice without mutating it.
func median(values []float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	if n := len(s); n%2 == 0 {
		return (s[n/2-1] + s[n/2]) / 2
	}
	return s[len(s)/2]
}
