package renderer

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bobarin/podclip/internal/jobkind"
	"github.com/bobarin/podclip/internal/models"
	"github.com/cenkalti/backoff/v4"
)

const (
	artworkFetchTimeout = 10 * time.Second
	maxArtworkRetries   = 3
)

// Renderer produces a deterministic PNG sequence for one job's clip. It
// holds no state shared across jobs — every method call is a pure function
// of its arguments plus the filesystem path it's told to write to.
type Renderer struct {
	httpClient *http.Client
}

func New() *Renderer {
	return &Renderer{
		httpClient: &http.Client{Timeout: artworkFetchTimeout},
	}
}

// FetchArtwork downloads and decodes the podcast artwork once per job — the
// spec requires it be fetched a single time and reused for every frame
// (§4.4 Inputs).
func (r *Renderer) FetchArtwork(ctx context.Context, url string) (image.Image, error) {
	if url == "" {
		return nil, nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxArtworkRetries), ctx)

	var img image.Image
	op := func() error {
		fetchCtx, cancel := context.WithTimeout(ctx, artworkFetchTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(jobkind.New(jobkind.InvalidRequest, err))
		}
		resp, err := r.httpClient.Do(req)
		if err != nil {
			return jobkind.New(jobkind.SourceTransient5xx, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(jobkind.New(jobkind.SourceUnavailable4xx, fmt.Errorf("artwork fetch returned %d", resp.StatusCode)))
		}
		if resp.StatusCode >= 500 {
			return jobkind.New(jobkind.SourceTransient5xx, fmt.Errorf("artwork fetch returned %d", resp.StatusCode))
		}

		decoded, _, err := image.Decode(resp.Body)
		if err != nil {
			return backoff.Permanent(jobkind.New(jobkind.MediaProcessingFatal, fmt.Errorf("decode artwork: %w", err)))
		}
		img = decoded
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return img, nil
}

// Render rasterizes every frame of the clip into outDir as
// frame_000000.png, frame_000001.png, ... — lexicographically sortable so
// the muxer's image2 demuxer picks them up in order (§4.5 Inputs).
func (r *Renderer) Render(ctx context.Context, outDir string, durationSec float64, podcast models.Podcast, artwork image.Image, captions []models.CaptionChunk) (int, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return 0, fmt.Errorf("create frame directory: %w", err)
	}

	frameCount := FrameCount(durationSec)
	for i := 0; i < frameCount; i++ {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		spec := buildFrameSpec(i, durationSec, captions)
		frame := rasterizeFrame(spec, podcast, artwork)

		path := filepath.Join(outDir, fmt.Sprintf("frame_%06d.png", i))
		f, err := os.Create(path)
		if err != nil {
			return 0, jobkind.New(jobkind.MediaProcessingFatal, fmt.Errorf("create frame file: %w", err))
		}
		err = png.Encode(f, frame)
		closeErr := f.Close()
		if err != nil {
			return 0, jobkind.New(jobkind.MediaProcessingFatal, fmt.Errorf("encode frame png: %w", err))
		}
		if closeErr != nil {
			return 0, jobkind.New(jobkind.MediaProcessingFatal, fmt.Errorf("close frame file: %w", closeErr))
		}
	}

	return frameCount, nil
}
