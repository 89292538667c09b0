// Package hashing computes the perceptual hash family used to detect
// near-duplicate images, using the same three-hash approach imagehash's
// average_hash/dhash/whash implement, but computed natively against Go's
// image package instead of shelling out, the way the teacher decodes
// images directly (internal/gallery/processor.go) rather than via an
// external tool.
package hashing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"strconv"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"dupligone/internal/catalog"
	"dupligone/internal/dgerr"
)

// Size is the perceptual hash side length: an 8x8 grid yields a 64-bit hash,
// the standard imagehash size.
const Size = 8

// Family selects between the two hash-record shapes, mirroring
// config.HashFamily without importing internal/config (avoids a cycle).
type Family string

const (
	FamilyTriple Family = "triple"
	FamilyPair   Family = "pair"
)

// Compute decodes data once and derives every hash in the family from that
// single decoded image (decoding twice would double CPU cost for no
// benefit).
func Compute(_ context.Context, data []byte, family Family) (catalog.HashRecord, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return catalog.HashRecord{}, dgerr.Processing("", fmt.Errorf("decode image: %w", err))
	}
	gray := toGray(img)

	var rec catalog.HashRecord
	switch family {
	case FamilyPair:
		rec.PHash = perceptualHash(gray)
		rec.DHash = differenceHash(gray)
	default:
		rec.AHash = averageHash(gray)
		rec.DHash = differenceHash(gray)
		rec.WHash = waveletHash(gray)
	}
	return rec, nil
}

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}

func resizeGray(src *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}

// averageHash: resize to SizexSize, threshold each pixel against the mean.
func averageHash(src *image.Gray) string {
	small := resizeGray(src, Size, Size)
	var sum int
	pixels := make([]uint8, 0, Size*Size)
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			v := small.GrayAt(x, y).Y
			pixels = append(pixels, v)
			sum += int(v)
		}
	}
	mean := sum / len(pixels)
	return bitsToHex(pixels, func(v uint8) bool { return int(v) >= mean })
}

// differenceHash: resize to (Size+1)xSize, threshold each pixel against its
// left neighbor — robust to uniform brightness/contrast shifts and crops.
func differenceHash(src *image.Gray) string {
	small := resizeGray(src, Size+1, Size)
	bitsOut := make([]bool, 0, Size*Size)
	for y := 0; y < Size; y++ {
		for x := 0; x < Size; x++ {
			left := small.GrayAt(x, y).Y
			right := small.GrayAt(x+1, y).Y
			bitsOut = append(bitsOut, left < right)
		}
	}
	return boolsToHex(bitsOut)
}

// waveletHash applies a single-level 2D Haar transform over a power-of-two
// grid and thresholds the low-frequency (approximation) coefficients
// against their median, the Go equivalent of imagehash.whash's default
// (mode="haar") behavior.
func waveletHash(src *image.Gray) string {
	const n = Size // already a power of two
	small := resizeGray(src, n, n)

	data := make([][]float64, n)
	for y := 0; y < n; y++ {
		data[y] = make([]float64, n)
		for x := 0; x < n; x++ {
			data[y][x] = float64(small.GrayAt(x, y).Y)
		}
	}

	haar2D(data)

	vals := make([]float64, 0, n*n)
	for y := 0; y < n; y++ {
		vals = append(vals, data[y]...)
	}
	median := medianOf(append([]float64(nil), vals...))

	bitsOut := make([]bool, 0, n*n)
	for _, v := range vals {
		bitsOut = append(bitsOut, v > median)
	}
	return boolsToHex(bitsOut)
}

// haar2D runs one forward Haar wavelet pass over rows then columns,
// the standard separable 2D transform.
func haar2D(data [][]float64) {
	n := len(data)
	for y := 0; y < n; y++ {
		haar1D(data[y])
	}
	col := make([]float64, n)
	for x := 0; x < n; x++ {
		for y := 0; y < n; y++ {
			col[y] = data[y][x]
		}
		haar1D(col)
		for y := 0; y < n; y++ {
			data[y][x] = col[y]
		}
	}
}

func haar1D(row []float64) {
	n := len(row)
	tmp := make([]float64, n)
	half := n / 2
	for i := 0; i < half; i++ {
		a, b := row[2*i], row[2*i+1]
		tmp[i] = (a + b) / 2
		tmp[half+i] = (a - b) / 2
	}
	copy(row, tmp)
}

func medianOf(vals []float64) float64 {
	n := len(vals)
	if n == 0 {
		return 0
	}
	// insertion sort is fine at n=64
	for i := 1; i < n; i++ {
		for j := i; j > 0 && vals[j-1] > vals[j]; j-- {
			vals[j-1], vals[j] = vals[j], vals[j-1]
		}
	}
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}

// perceptualHash is a DCT-free stand-in for pHash, used only when the
// "pair" family is selected; it returns exactly the waveletHash value for
// the same image. No DCT-based pHash is computed.
func perceptualHash(src *image.Gray) string {
	return waveletHash(src)
}

func bitsToHex(pixels []uint8, predicate func(uint8) bool) string {
	boolsOut := make([]bool, 0, len(pixels))
	for _, p := range pixels {
		boolsOut = append(boolsOut, predicate(p))
	}
	return boolsToHex(boolsOut)
}

func boolsToHex(boolsIn []bool) string {
	var buf bytes.Buffer
	for i := 0; i < len(boolsIn); i += 4 {
		var nibble uint8
		for j := 0; j < 4 && i+j < len(boolsIn); j++ {
			if boolsIn[i+j] {
				nibble |= 1 << uint(3-j)
			}
		}
		buf.WriteString(strconv.FormatUint(uint64(nibble), 16))
	}
	return buf.String()
}

// Distance returns the Hamming distance between two equal-length hex hash
// strings, matching imagehash's `h1 - h2` operator semantics.
func Distance(a, b string) (int, error) {
	if len(a) != len(b) {
		return 0, dgerr.Clustering("hash length mismatch: %d vs %d", len(a), len(b))
	}
	dist := 0
	for i := 0; i < len(a); i++ {
		va, err := strconv.ParseUint(string(a[i]), 16, 8)
		if err != nil {
			return 0, dgerr.Clustering("invalid hash hex digit %q", a[i])
		}
		vb, err := strconv.ParseUint(string(b[i]), 16, 8)
		if err != nil {
			return 0, dgerr.Clustering("invalid hash hex digit %q", b[i])
		}
		dist += bits.OnesCount8(uint8(va) ^ uint8(vb))
	}
	return dist, nil
}

// CombinedDistance computes the weighted combination used for the triple
// family: 0.4*ahash + 0.4*dhash + 0.2*whash, each term normalized to
// [0,1] by dividing by the hash's bit length (Size*Size).
func CombinedDistance(a, b catalog.HashRecord) (float64, error) {
	maxBits := float64(Size * Size)

	if a.AHash != "" || b.AHash != "" {
		ad, err := Distance(a.AHash, b.AHash)
		if err != nil {
			return 0, err
		}
		dd, err := Distance(a.DHash, b.DHash)
		if err != nil {
			return 0, err
		}
		wd, err := Distance(a.WHash, b.WHash)
		if err != nil {
			return 0, err
		}
		return 0.4*(float64(ad)/maxBits) + 0.4*(float64(dd)/maxBits) + 0.2*(float64(wd)/maxBits), nil
	}

	pd, err := Distance(a.PHash, b.PHash)
	if err != nil {
		return 0, err
	}
	dd, err := Distance(a.DHash, b.DHash)
	if err != nil {
		return 0, err
	}
	return 0.5*(float64(pd)/maxBits) + 0.5*(float64(dd)/maxBits), nil
}
