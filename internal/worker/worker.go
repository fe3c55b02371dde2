// Package worker implements the Pipeline (scheduler.Pipeline) that drives
// one job through every stage: clip, caption, render, mux, and place the
// result in the video store. It is the only component that knows the full
// C4->C5->C6->C7 order; every stage itself stays ignorant of its neighbors.
package worker

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bobarin/podclip/internal/captions"
	"github.com/bobarin/podclip/internal/clipper"
	"github.com/bobarin/podclip/internal/jobkind"
	"github.com/bobarin/podclip/internal/models"
	"github.com/bobarin/podclip/internal/muxer"
	"github.com/bobarin/podclip/internal/renderer"
	"github.com/bobarin/podclip/internal/videostore"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// overallTimeoutBase and overallTimeoutPerClipSec bound the wall-clock
	// budget for one job (§5): a job exceeding it fails with a non-retriable
	// Timeout kind rather than tying up a worker slot indefinitely.
	overallTimeoutBase       = 60 * time.Second
	overallTimeoutPerClipSec = 10 * time.Second
)

// Pipeline wires the clipper, caption client, renderer, muxer, and video
// store into the single Run method scheduler.Scheduler calls. It holds no
// per-job state — every field is a stateless collaborator shared across
// concurrent runs.
type Pipeline struct {
	tempDir       string
	clipper       *clipper.Clipper
	captions      *captions.Client
	renderer      *renderer.Renderer
	muxer         *muxer.Muxer
	videoStore    *videostore.Store
	debugCaptions bool
	log           *slog.Logger
}

func New(tempDir string, c *clipper.Clipper, cap *captions.Client, r *renderer.Renderer, m *muxer.Muxer, vs *videostore.Store, debugCaptions bool, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		tempDir:       tempDir,
		clipper:       c,
		captions:      cap,
		renderer:      r,
		muxer:         m,
		videoStore:    vs,
		debugCaptions: debugCaptions,
		log:           logger.With("component", "worker"),
	}
}

// Run executes every stage for one job and returns the fields the scheduler
// needs to persist completion. ProcessingTimeMs and CostBreakdown are filled
// in by the caller after Run returns (§4.1) — Run only owns the pipeline's
// own outputs.
func (p *Pipeline) Run(ctx context.Context, job *models.Job) (models.Result, error) {
	clipDurationSec := float64(job.Request.ClipEndMs-job.Request.ClipStartMs) / 1000.0
	budget := overallTimeoutBase + time.Duration(clipDurationSec*float64(overallTimeoutPerClipSec))
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	framesDir := filepath.Join(p.tempDir, "frames_"+job.ID.String())
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return models.Result{}, jobkind.New(jobkind.MediaProcessingFatal, fmt.Errorf("create frames dir: %w", err))
	}

	var cleanupPaths []string
	defer func() {
		p.clipper.Cleanup(cleanupPaths...)
		os.RemoveAll(framesDir)
	}()

	result, err := p.run(runCtx, job, framesDir, &cleanupPaths)
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return models.Result{}, jobkind.New(jobkind.Timeout, fmt.Errorf("job exceeded wall-clock budget of %s: %w", budget, err))
		}
		return models.Result{}, err
	}
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, job *models.Job, framesDir string, cleanupPaths *[]string) (models.Result, error) {
	req := job.Request
	jobID := job.ID.String()

	srcPath, err := p.clipper.Download(ctx, jobID, req.AudioURL)
	if err != nil {
		return models.Result{}, err
	}
	*cleanupPaths = append(*cleanupPaths, srcPath)

	clipPath, err := p.clipper.Trim(ctx, jobID, srcPath, req.ClipStartMs, req.ClipEndMs)
	if err != nil {
		return models.Result{}, err
	}
	*cleanupPaths = append(*cleanupPaths, clipPath)

	durationSec, err := p.clipper.Probe(ctx, clipPath)
	if err != nil {
		return models.Result{}, err
	}

	// Caption generation and artwork fetch are independent network round
	// trips — run them concurrently rather than serially (§5 worker budget).
	var captionChunks []models.CaptionChunk
	var artwork image.Image
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		captionChunks = p.buildCaptions(ctx, job.ID, clipPath, req)
		return nil
	})
	g.Go(func() error {
		var err error
		artwork, err = p.renderer.FetchArtwork(gctx, req.Podcast.Artwork)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Result{}, err
	}

	if _, err := p.renderer.Render(ctx, framesDir, durationSec, req.Podcast, artwork, captionChunks); err != nil {
		return models.Result{}, err
	}

	muxedPath := filepath.Join(p.tempDir, fmt.Sprintf("muxed_%s.mp4", jobID))
	*cleanupPaths = append(*cleanupPaths, muxedPath)
	if err := p.muxer.Mux(ctx, framesDir, clipPath, muxedPath, durationSec); err != nil {
		return models.Result{}, err
	}
	requestedSec := float64(req.ClipEndMs-req.ClipStartMs) / 1000.0
	if err := p.muxer.Validate(ctx, muxedPath, requestedSec); err != nil {
		return models.Result{}, err
	}

	_, sizeBytes, err := p.videoStore.Place(job.ID, muxedPath)
	if err != nil {
		return models.Result{}, jobkind.New(jobkind.MediaProcessingFatal, err)
	}

	return models.Result{
		VideoURL:      p.videoStore.VideoURL(job.ID),
		DownloadURL:   p.videoStore.DownloadURL(job.ID),
		FileSizeBytes: sizeBytes,
		DurationSec:   durationSec,
	}, nil
}

// buildCaptions runs the caption pipeline and demotes any failure to "no
// captions" rather than failing the job (§4.3, §7): the caption
// provider is an optional enrichment, never a hard dependency of a
// completed video.
func (p *Pipeline) buildCaptions(ctx context.Context, jobID uuid.UUID, clipPath string, req models.Request) []models.CaptionChunk {
	if !req.CaptionsEnabled {
		return nil
	}

	chunks, err := p.captions.Build(ctx, clipPath, captions.Options{
		Style:               req.CaptionStyle,
		EnableSmartFeatures: req.EnableSmartFeatures,
	})
	if err != nil {
		p.log.Warn("captions failed, continuing without", "jobId", jobID, "error", err)
		return nil
	}
	return chunks
}
