package fingerprint

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func TestHammingDistance(t *testing.T) {
	cases := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xDEADBEEF, 0xDEADBEEF, 0},
		{"one bit", 0x0, 0x8000000000000000, 1},
		{"low nibble", 0x0, 0xF, 4},
		{"upper half", 0xFFFFFFFF00000000, 0x0, 32},
		{"all bits", 0xFFFFFFFFFFFFFFFF, 0x0, 64},
		{"alternating", 0xAAAAAAAAAAAAAAAA, 0x5555555555555555, 64},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HammingDistance(tc.a, tc.b); got != tc.want {
				t.Errorf("HammingDistance(%x, %x) = %d, want %d", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestComputeHashes(t *testing.T) {
	data := encodeJPEG(gradientImage(120, 120), 90)

	result, err := ComputeHashes(data)
	if err != nil {
		t.Fatalf("ComputeHashes: %v", err)
	}

	if len(result.PHash) != 16 {
		t.Errorf("pHash %q is not 16 hex characters", result.PHash)
	}
	if len(result.DHash) != 16 {
		t.Errorf("dHash %q is not 16 hex characters", result.DHash)
	}
	if result.PHashBits == 0 && result.DHashBits == 0 {
		t.Error("gradient image should produce non-zero hashes")
	}
}

func TestComputeHashesDeterministic(t *testing.T) {
	data := encodeJPEG(gradientImage(100, 100), 90)

	first, err := ComputeHashes(data)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	second, err := ComputeHashes(data)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if first.PHash != second.PHash || first.DHash != second.DHash {
		t.Errorf("hashes differ across runs: %s/%s vs %s/%s",
			first.PHash, first.DHash, second.PHash, second.DHash)
	}
}

func TestComputeHashesSurvivesRecompression(t *testing.T) {
	// The same photograph saved at a different JPEG quality must still
	// register as a near duplicate.
	img := gradientImage(100, 100)

	crisp, err := ComputeHashes(encodeJPEG(img, 90))
	if err != nil {
		t.Fatalf("quality 90: %v", err)
	}
	rough, err := ComputeHashes(encodeJPEG(img, 70))
	if err != nil {
		t.Fatalf("quality 70: %v", err)
	}

	if !NearDuplicate(crisp.Encoded(), rough, 10) {
		t.Errorf("recompressed image not detected as duplicate: %s vs %s",
			crisp.Encoded(), rough.Encoded())
	}
}

func TestComputeHashesRejectsGarbage(t *testing.T) {
	if _, err := ComputeHashes([]byte("definitely not pixels")); err == nil {
		t.Error("expected an error for undecodable input")
	}
}

func TestScale(t *testing.T) {
	resized := scale(solidImage(100, 60, color.White), 32, 32)

	if b := resized.Bounds(); b.Dx() != 32 || b.Dy() != 32 {
		t.Errorf("scaled to %dx%d, want 32x32", b.Dx(), b.Dy())
	}
}

func TestLuminance(t *testing.T) {
	gray := luminance(solidImage(6, 4, color.RGBA{255, 0, 0, 255}))

	if len(gray) != 4 || len(gray[0]) != 6 {
		t.Fatalf("grid is %dx%d rows x cols, want 4x6", len(gray), len(gray[0]))
	}

	// Pure red under BT.601 weights: 0.299 * 255.
	want := 0.299 * 255
	if got := gray[2][3]; got < want-1 || got > want+1 {
		t.Errorf("red luma = %.2f, want ~%.2f", got, want)
	}
}

func TestMedian(t *testing.T) {
	cases := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"odd count", []float64{9, 1, 5, 3, 7}, 5},
		{"even count", []float64{4, 1, 3, 2}, 2.5},
		{"single", []float64{-6}, -6},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := append([]float64(nil), tc.values...)
			if got := median(in); got != tc.want {
				t.Errorf("median(%v) = %v, want %v", tc.values, got, tc.want)
			}
			for i := range in {
				if in[i] != tc.values[i] {
					t.Fatalf("median mutated its input: %v", in)
				}
			}
		})
	}
}

func TestEncodedRoundTrip(t *testing.T) {
	result := &HashResult{
		PHash:     "00000000000003ff",
		DHash:     "ff00000000000000",
		PHashBits: 0x3FF,
		DHashBits: 0xFF00000000000000,
	}

	encoded := result.Encoded()
	if encoded != "00000000000003ff:ff00000000000000" {
		t.Fatalf("unexpected encoded form: %s", encoded)
	}

	pHash, dHash, err := DecodeHashes(encoded)
	if err != nil {
		t.Fatalf("DecodeHashes: %v", err)
	}
	if pHash != result.PHashBits || dHash != result.DHashBits {
		t.Errorf("round trip lost bits: %x/%x", pHash, dHash)
	}
}

func TestDecodeHashesInvalid(t *testing.T) {
	cases := []struct {
		name    string
		encoded string
	}{
		{"no separator", "00000000000003ff"},
		{"bad pHash hex", "zzzz:ff00000000000000"},
		{"bad dHash hex", "00000000000003ff:zzzz"},
		{"empty", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := DecodeHashes(tc.encoded); err == nil {
				t.Errorf("DecodeHashes(%q) should fail", tc.encoded)
			}
		})
	}
}

func TestNearDuplicate(t *testing.T) {
	fresh := &HashResult{PHashBits: 0x0, DHashBits: 0xFFFFFFFFFFFFFFFF}

	cases := []struct {
		name   string
		stored string
		want   bool
	}{
		{"identical", "0000000000000000:ffffffffffffffff", true},
		{"pHash within threshold", "00000000000003ff:0000000000000000", true},
		{"dHash within threshold", "ffffffffffffffff:fffffffffffffc00", true},
		{"both beyond threshold", "00000000000007ff:0000000000000000", false},
		{"malformed stored hash", "not-a-hash", false},
		{"empty stored hash", "", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NearDuplicate(tc.stored, fresh, 10); got != tc.want {
				t.Errorf("NearDuplicate(%q) = %v, want %v", tc.stored, got, tc.want)
			}
		})
	}
}

func TestNearDuplicateNilResult(t *testing.T) {
	if NearDuplicate("0000000000000000:0000000000000000", nil, 10) {
		t.Error("nil fresh hashes must never match")
	}
}

func solidImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func gradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8((x + y) * 255 / (width + height))
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func encodeJPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	return buf.Bytes()
}
