package renderer

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/bobarin/podclip/internal/models"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	backgroundColor = color.RGBA{R: 0x12, G: 0x12, B: 0x16, A: 0xff}
	accentColor     = color.RGBA{R: 0xff, G: 0x4d, B: 0x6d, A: 0xff}
	trackColor      = color.RGBA{R: 0x2e, G: 0x2e, B: 0x36, A: 0xff}
	titleColor      = color.RGBA{R: 0xf5, G: 0xf5, B: 0xf7, A: 0xff}
	podcastColor    = color.RGBA{R: 0xa0, G: 0xa0, B: 0xaa, A: 0xff}
	captionBgColor  = color.RGBA{R: 0x00, G: 0x00, B: 0x00, A: 0xb0}
	captionFgColor  = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

	titleFace   = basicfont.Face7x13
	captionFace = basicfont.Face7x13
)

// rasterizeFrame paints one FrameSpec into an RGBA image. It touches only
// its arguments — no package-level mutable state — which is what makes the
// determinism contract (§4.4) hold.
func rasterizeFrame(spec models.FrameSpec, podcast models.Podcast, artwork image.Image) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, spec.Width, spec.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: backgroundColor}, image.Point{}, draw.Src)

	margin := sideMargin()
	contentWidth := spec.Width - 2*margin

	artworkY := margin + 120
	if artwork != nil {
		drawRoundedArtwork(img, artwork, (spec.Width-artworkSize)/2, artworkY, artworkSize, 32)
	}

	titleY := artworkY + artworkSize + 72
	titleLines := wrapText(podcast.Title, titleLineChars, titleMaxLines)
	titleY = drawLines(img, titleLines, margin, titleY, titleColor, titleFace, 28)

	podcastY := titleY + 12
	drawText(img, podcast.PodcastName, margin, podcastY, podcastColor, captionFace)

	barY := podcastY + progressBarGapPx + 40
	drawProgressBar(img, margin, barY, contentWidth, progressBarHeight, spec.Progress)

	watermarkY := barY + progressBarHeight + 40
	drawDancingBars(img, margin, watermarkY, spec.BarHeights)

	if spec.Caption != "" {
		drawCaptionOverlay(img, spec.Caption, spec.Width, spec.Height)
	}

	return img
}

// drawRoundedArtwork scales artwork to size×size and composites it at
// (x, y) through a rounded-rectangle alpha mask.
func drawRoundedArtwork(dst *image.RGBA, artwork image.Image, x, y, size, radius int) {
	scaled := scaleImage(artwork, size, size)
	mask := roundedRectMask(size, size, radius)
	dstRect := image.Rect(x, y, x+size, y+size)
	draw.DrawMask(dst, dstRect, scaled, image.Point{}, mask, image.Point{}, draw.Over)
}

// scaleImage performs deterministic nearest-neighbor scaling — no
// floating-point filter kernels whose result could vary by platform, which
// would break the byte-identical determinism contract (§4.4).
func scaleImage(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	sb := src.Bounds()
	sw, sh := sb.Dx(), sb.Dy()
	if sw == 0 || sh == 0 {
		return dst
	}
	for y := 0; y < h; y++ {
		sy := sb.Min.Y + y*sh/h
		for x := 0; x < w; x++ {
			sx := sb.Min.X + x*sw/w
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

// roundedRectMask builds a w×h alpha mask that is opaque inside a
// rounded-rectangle of the given corner radius and transparent outside it.
func roundedRectMask(w, h, radius int) *image.Alpha {
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	r2 := radius * radius
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if insideRoundedRect(x, y, w, h, radius, r2) {
				mask.SetAlpha(x, y, color.Alpha{A: 0xff})
			}
		}
	}
	return mask
}

func insideRoundedRect(x, y, w, h, radius, r2 int) bool {
	cx, cy := x, y
	switch {
	case x < radius && y < radius:
		cx, cy = radius, radius
	case x >= w-radius && y < radius:
		cx, cy = w-radius-1, radius
	case x < radius && y >= h-radius:
		cx, cy = radius, h-radius-1
	case x >= w-radius && y >= h-radius:
		cx, cy = w-radius-1, h-radius-1
	default:
		return true // not in a corner region at all
	}
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= r2
}

// drawProgressBar renders the track plus the filled portion up to progress.
func drawProgressBar(img *image.RGBA, x, y, width, height int, progress float64) {
	track := image.Rect(x, y, x+width, y+height)
	draw.Draw(img, track, &image.Uniform{C: trackColor}, image.Point{}, draw.Src)

	fillWidth := int(float64(width) * progress)
	if fillWidth > 0 {
		fill := image.Rect(x, y, x+fillWidth, y+height)
		draw.Draw(img, fill, &image.Uniform{C: accentColor}, image.Point{}, draw.Src)
	}
}

// drawDancingBars renders the five-bar animated watermark whose heights
// were already computed by buildFrameSpec using the brand's oscillation
// formula (§4.4 step 3, glossary "Dancing bars").
func drawDancingBars(img *image.RGBA, x, baselineY int, heights [5]float64) {
	for i, h := range heights {
		barX := x + i*(barWidth+barGap)
		barH := int(h)
		top := baselineY - barH
		rect := image.Rect(barX, top, barX+barWidth, baselineY)
		draw.Draw(img, rect, &image.Uniform{C: accentColor}, image.Point{}, draw.Src)
	}
}

// drawCaptionOverlay renders up to 3 lines of caption text centered near
// the bottom of the frame on a translucent backing plate (§4.4 step 4).
func drawCaptionOverlay(img *image.RGBA, text string, width, height int) {
	lines := wrapText(text, 40, 3)
	if len(lines) == 0 {
		return
	}

	lineHeight := 28
	plateHeight := len(lines)*lineHeight + 24
	plateY := height - 260
	plate := image.Rect(40, plateY, width-40, plateY+plateHeight)
	draw.Draw(img, plate, &image.Uniform{C: captionBgColor}, image.Point{}, draw.Over)

	y := plateY + 20
	for _, line := range lines {
		drawCenteredText(img, line, width, y, captionFgColor, captionFace)
		y += lineHeight
	}
}

// drawLines draws each line left-aligned starting at (x, y) and returns the
// y coordinate immediately after the last line drawn.
func drawLines(img *image.RGBA, lines []string, x, y int, c color.Color, face font.Face, lineHeight int) int {
	for _, line := range lines {
		drawText(img, line, x, y, c, face)
		y += lineHeight
	}
	return y
}

func drawText(img *image.RGBA, text string, x, y int, c color.Color, face font.Face) {
	if text == "" {
		return
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func drawCenteredText(img *image.RGBA, text string, width, y int, c color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
	}
	textWidth := d.MeasureString(text).Ceil()
	x := (width - textWidth) / 2
	if x < 0 {
		x = 0
	}
	d.Dot = fixed.P(x, y)
	d.DrawString(text)
}
