package quality_test

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"

	"dupligone/internal/config"
	"dupligone/internal/quality"
)

func solidGray(w, h int, v uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func checkerboard(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(0)
			if (x+y)%2 == 0 {
				v = 255
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func defaultCfg() config.Config {
	return config.Config{
		QualityFormula:     config.QualityFormulaWeightedFaces,
		QualityWeightSharp: 0.4,
		QualityWeightExp:   0.3,
		QualityWeightFaces: 0.3,
	}
}

func TestAssessFlatImageHasNoSharpness(t *testing.T) {
	engine := quality.NewEngine(nil)
	q, err := engine.Assess(context.Background(), solidGray(32, 32, 128), defaultCfg())
	require.NoError(t, err)
	require.Zero(t, q.Sharpness)
	require.Zero(t, q.Contrast)
	require.Equal(t, 0, q.FaceCount)
}

func TestAssessCheckerboardHasSharpnessAndContrast(t *testing.T) {
	engine := quality.NewEngine(nil)
	flat, err := engine.Assess(context.Background(), solidGray(32, 32, 128), defaultCfg())
	require.NoError(t, err)
	sharp, err := engine.Assess(context.Background(), checkerboard(32, 32), defaultCfg())
	require.NoError(t, err)

	require.Greater(t, sharp.Sharpness, flat.Sharpness)
	require.Greater(t, sharp.Contrast, flat.Contrast)
}

func TestAssessScoresAreClamped(t *testing.T) {
	engine := quality.NewEngine(nil)
	for _, v := range []uint8{0, 1, 128, 254, 255} {
		q, err := engine.Assess(context.Background(), solidGray(16, 16, v), defaultCfg())
		require.NoError(t, err)
		require.GreaterOrEqual(t, q.Sharpness, 0.0)
		require.LessOrEqual(t, q.Sharpness, 1.0)
		require.GreaterOrEqual(t, q.Exposure, 0.0)
		require.LessOrEqual(t, q.Exposure, 1.0)
		require.GreaterOrEqual(t, q.Contrast, 0.0)
		require.LessOrEqual(t, q.Contrast, 1.0)
	}
}

func TestAssessMidGrayHasBestExposure(t *testing.T) {
	engine := quality.NewEngine(nil)
	mid, err := engine.Assess(context.Background(), solidGray(16, 16, 128), defaultCfg())
	require.NoError(t, err)
	black, err := engine.Assess(context.Background(), solidGray(16, 16, 0), defaultCfg())
	require.NoError(t, err)

	require.Greater(t, mid.Exposure, black.Exposure)
}

func TestAssessWeightedContrastFormula(t *testing.T) {
	engine := quality.NewEngine(nil)
	cfg := defaultCfg()
	cfg.QualityFormula = config.QualityFormulaWeightedContrast

	q, err := engine.Assess(context.Background(), checkerboard(32, 32), cfg)
	require.NoError(t, err)
	require.GreaterOrEqual(t, q.Overall, 0.0)
}

func TestNoFaceDetectorAlwaysReportsZeroFaces(t *testing.T) {
	var d quality.NoFaceDetector
	faces, err := d.Detect(context.Background(), solidGray(8, 8, 100))
	require.NoError(t, err)
	require.Empty(t, faces)
}
