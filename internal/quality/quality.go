// Package quality scores a decoded image on sharpness, exposure, contrast,
// and faces using a Laplacian-variance/histogram pipeline plus a pluggable
// face detector (no cascade classifier is built in), expressed natively in
// Go against the standard image package instead of opencv-python.
package quality

import (
	"context"
	"image"
	"math"

	"dupligone/internal/catalog"
	"dupligone/internal/config"
)

// sharpnessDivisor normalizes Laplacian variance into [0,1].
const sharpnessDivisor = 100.0

// FaceDetector abstracts face detection so the engine can run with or
// without a cascade classifier wired in. No Haar-cascade implementation
// exists anywhere in the example corpus (see DESIGN.md), so the default
// detector always reports zero faces; a real deployment supplies one.
type FaceDetector interface {
	// Detect returns the bounding boxes of every face found in img.
	Detect(ctx context.Context, img image.Image) ([]image.Rectangle, error)
}

// NoFaceDetector is the zero-faces default.
type NoFaceDetector struct{}

func (NoFaceDetector) Detect(context.Context, image.Image) ([]image.Rectangle, error) {
	return nil, nil
}

type Engine struct {
	faces FaceDetector
}

func NewEngine(detector FaceDetector) *Engine {
	if detector == nil {
		detector = NoFaceDetector{}
	}
	return &Engine{faces: detector}
}

// Assess computes every quality signal for a decoded image and combines
// them per the formula selected in cfg.QualityFormula.
func (e *Engine) Assess(ctx context.Context, img image.Image, cfg config.Config) (catalog.Quality, error) {
	gray := toGrayValues(img)

	sharpness := sharpnessScore(gray)
	exposure, contrast := exposureAndContrast(gray)

	faces, err := e.faces.Detect(ctx, img)
	if err != nil {
		faces = nil
	}
	faceCount, faceScore := faceScore(faces, img.Bounds())

	q := catalog.Quality{
		Sharpness: sharpness,
		Exposure:  exposure,
		Contrast:  contrast,
		FaceCount: faceCount,
		FaceScore: faceScore,
	}

	switch cfg.QualityFormula {
	case config.QualityFormulaWeightedContrast:
		faceBonus := 0.0
		if faceCount > 0 {
			faceBonus = 1.0
		}
		q.Overall = 0.4*sharpness + 0.2*exposure + 0.2*contrast + 0.2*faceBonus
	default:
		q.Overall = sharpness*cfg.QualityWeightSharp + exposure*cfg.QualityWeightExp + faceScore*cfg.QualityWeightFaces
	}
	return q, nil
}

func toGrayValues(img image.Image) [][]float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([][]float64, h)
	for y := 0; y < h; y++ {
		out[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			// Rec. 601 luma, matching cv2.cvtColor(..., COLOR_BGR2GRAY)'s weights.
			out[y][x] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
		}
	}
	return out
}

// sharpnessScore is the normalized variance of the discrete Laplacian,
// mirroring cv2.Laplacian(gray, cv2.CV_64F).var().
func sharpnessScore(gray [][]float64) float64 {
	h := len(gray)
	if h < 3 {
		return 0
	}
	w := len(gray[0])
	if w < 3 {
		return 0
	}

	var values []float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			lap := -4*gray[y][x] + gray[y-1][x] + gray[y+1][x] + gray[y][x-1] + gray[y][x+1]
			values = append(values, lap)
		}
	}
	if len(values) == 0 {
		return 0
	}

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))

	return clamp01(variance / sharpnessDivisor)
}

// exposureAndContrast computes both the histogram-based exposure score
// (mean brightness distance from mid-gray, penalized for clipping) and the
// brightness standard deviation used as the contrast signal.
func exposureAndContrast(gray [][]float64) (exposure, contrast float64) {
	var hist [256]int
	total := 0
	sum := 0.0
	for _, row := range gray {
		for _, v := range row {
			bucket := int(clampFloat(v, 0, 255))
			hist[bucket]++
			total++
			sum += v
		}
	}
	if total == 0 {
		return 0, 0
	}

	mean := sum / float64(total)

	varSum := 0.0
	for _, row := range gray {
		for _, v := range row {
			d := v - mean
			varSum += d * d
		}
	}
	stdev := math.Sqrt(varSum / float64(total))
	contrast = clamp01(stdev / 50.0)

	exposureScore := 1.0 - math.Abs(mean-128)/128.0

	blackClip := float64(hist[0]) / float64(total)
	whiteClip := float64(hist[255]) / float64(total)
	clippingPenalty := (blackClip + whiteClip) * 2

	exposure = math.Max(0.0, exposureScore-clippingPenalty)
	return exposure, contrast
}

// faceScore mirrors original_source's face-ratio scoring: faces covering
// 5-30% of the frame score 1.0, smaller faces scale down linearly, larger
// faces are penalized but floor at 0.3.
func faceScore(faces []image.Rectangle, bounds image.Rectangle) (count int, score float64) {
	count = len(faces)
	if count == 0 {
		return 0, 0
	}

	imgArea := float64(bounds.Dx() * bounds.Dy())
	if imgArea <= 0 {
		return count, 0
	}

	totalFaceArea := 0.0
	for _, f := range faces {
		totalFaceArea += float64(f.Dx() * f.Dy())
	}
	ratio := totalFaceArea / imgArea

	switch {
	case ratio >= 0.05 && ratio <= 0.3:
		score = 1.0
	case ratio < 0.05:
		score = ratio / 0.05
	default:
		score = math.Max(0.3, 1.0-(ratio-0.3)/0.7)
	}
	return count, score
}

func clamp01(v float64) float64 {
	return clampFloat(v, 0, 1)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
