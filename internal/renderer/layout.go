// Package renderer implements the Frame Renderer (C6): deterministic
// per-frame PNG rasterization from a templated vector layout — background,
// centered artwork, progress bar, animated watermark, caption overlay
// (§4.4). Given identical inputs, two renders of the same frame must be
// byte-identical (§4.4 Determinism contract, §8).
package renderer

import (
	"math"
	"strings"

	"github.com/bobarin/podclip/internal/models"
)

const (
	// Canvas is the one canonical output size the spec defines (§1 Non-goals).
	CanvasWidth  = 1080
	CanvasHeight = 1920

	// FPS is the fixed target frame rate (§4.4).
	FPS = 12

	sideMarginPct = 0.08 // 8% side margin (§4.4 step 2)

	artworkSize       = 760
	titleLineChars    = 35 // episode title wraps at 35 chars/line (§4.4)
	titleMaxLines     = 3
	progressBarGapPx  = 15 // added to a fixed 40px spacer below the podcast-name line; the bar is not placed directly 15px under the title
	progressBarHeight = 10
	progressBarInset  = 0 // uses the same side margin as everything else

	barCount        = 5 // "dancing bars" watermark (§4.4 step 3, glossary)
	barBaseHeight   = 48.0
	barOscAmplitude = 0.4
	barOscBaseline  = 0.6
	barOscFreqFrame = 0.1 // 0.1·i term
	barOscFreqIndex = 0.3 // 0.3·barIndex term
	barWidth        = 36
	barGap          = 18
)

// sideMargin returns the fixed 8%-of-width side margin in pixels.
func sideMargin() int {
	return int(float64(CanvasWidth) * sideMarginPct)
}

// buildFrameSpec computes every positioned, time-varying element of one
// frame from pure inputs — no clock, no randomness, no global state, so the
// same (frameIndex, durationSec, captions) always yields the same spec.
func buildFrameSpec(frameIndex int, durationSec float64, captions []models.CaptionChunk) models.FrameSpec {
	t := float64(frameIndex) / FPS
	progress := 0.0
	if durationSec > 0 {
		progress = t / durationSec
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	var bars [5]float64
	for b := 0; b < barCount; b++ {
		osc := barOscBaseline + barOscAmplitude*math.Sin(barOscFreqFrame*float64(frameIndex)+barOscFreqIndex*float64(b))
		bars[b] = barBaseHeight * osc
	}

	tMs := int(t * 1000)
	caption := selectCaption(captions, tMs)

	return models.FrameSpec{
		Width:      CanvasWidth,
		Height:     CanvasHeight,
		FrameIndex: frameIndex,
		Progress:   progress,
		BarHeights: bars,
		Caption:    caption,
	}
}

// selectCaption picks the caption chunk whose visibility window contains
// tMs, using the same half-open [startMs, endMs) convention the caption
// pipeline used to derive those windows (§4.4 step 4).
func selectCaption(chunks []models.CaptionChunk, tMs int) string {
	for _, c := range chunks {
		if tMs >= c.StartMs && tMs < c.EndMs {
			return c.Text
		}
	}
	return ""
}

// wrapText breaks s into at most maxLines lines of at most maxChars each,
// breaking on word boundaries. Used for both the episode title and the
// caption overlay (§4.4 steps 2 and 4).
func wrapText(s string, maxChars, maxLines int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	var current string
	for _, w := range words {
		candidate := w
		if current != "" {
			candidate = current + " " + w
		}
		if len(candidate) > maxChars && current != "" {
			lines = append(lines, current)
			current = w
			if len(lines) == maxLines {
				return lines
			}
		} else {
			current = candidate
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	return lines
}

// FrameCount returns the total number of frames for a clip of durationSec
// at the fixed FPS — round(fps × duration) per §4.4.
func FrameCount(durationSec float64) int {
	return int(math.Round(FPS * durationSec))
}
