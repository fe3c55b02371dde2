package renderer

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/bobarin/podclip/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidArtwork() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRasterizeFrameIsDeterministic(t *testing.T) {
	podcast := models.Podcast{Title: "A Very Long Episode Title That Wraps Across Lines", PodcastName: "Show Name"}
	captions := []models.CaptionChunk{{Text: "hello world", StartMs: 0, EndMs: 5000}}
	art := solidArtwork()

	spec := buildFrameSpec(30, 20.0, captions)
	frame1 := rasterizeFrame(spec, podcast, art)
	frame2 := rasterizeFrame(spec, podcast, art)

	assert.Equal(t, encodePNG(t, frame1), encodePNG(t, frame2))
}

func TestBuildFrameSpecProgressClampedToUnitInterval(t *testing.T) {
	spec := buildFrameSpec(0, 10.0, nil)
	assert.Equal(t, 0.0, spec.Progress)

	spec = buildFrameSpec(1000, 10.0, nil)
	assert.Equal(t, 1.0, spec.Progress)
}

func TestSelectCaptionHonorsVisibilityWindow(t *testing.T) {
	chunks := []models.CaptionChunk{
		{Text: "first", StartMs: 0, EndMs: 1000},
		{Text: "second", StartMs: 1000, EndMs: 2000},
	}
	assert.Equal(t, "first", selectCaption(chunks, 500))
	assert.Equal(t, "second", selectCaption(chunks, 1000))
	assert.Equal(t, "", selectCaption(chunks, 2500))
}

func TestDancingBarsFormulaMatchesSpec(t *testing.T) {
	spec := buildFrameSpec(7, 10.0, nil)
	for i, h := range spec.BarHeights {
		expected := barBaseHeight * (barOscBaseline + barOscAmplitude*math.Sin(barOscFreqFrame*7+barOscFreqIndex*float64(i)))
		assert.InDelta(t, expected, h, 0.0001)
	}
}

func TestFrameCountRoundsFPSTimesDuration(t *testing.T) {
	assert.Equal(t, 120, FrameCount(10.0))
	assert.Equal(t, 12, FrameCount(1.0))
}

func TestWrapTextRespectsLineAndCharBudget(t *testing.T) {
	lines := wrapText("this is a moderately long episode title used to test wrapping", 20, 3)
	require.NotEmpty(t, lines)
	for _, l := range lines {
		assert.LessOrEqual(t, len(l), 20+15) // a single overlong word may exceed; normal words shouldn't push it far
	}
	assert.LessOrEqual(t, len(lines), 3)
}
