// Package clipper implements the Audio Clipper (C4): download the source
// audio, then trim it to the requested clip window with ffmpeg.
package clipper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/bobarin/podclip/internal/jobkind"
	"github.com/cenkalti/backoff/v4"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

const (
	downloadTimeout = 60 * time.Second
	maxDownloadRetries = 3
)

// Clipper downloads source audio and trims it with ffmpeg inside one shared
// scratch directory; every file name carries the job ID so concurrent jobs
// never collide on filenames.
type Clipper struct {
	tempDir string
	client  *http.Client
}

func New(tempDir string) *Clipper {
	return &Clipper{
		tempDir: tempDir,
		client: &http.Client{
			Timeout: downloadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Download fetches audioURL into a temp file, retrying transient failures
// with exponential backoff and classifying 4xx responses as non-retriable
// per §7's error taxonomy.
func (c *Clipper) Download(ctx context.Context, jobID, audioURL string) (string, error) {
	dest := filepath.Join(c.tempDir, fmt.Sprintf("src_%s%s", jobID, filepath.Ext(audioURL)))

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxDownloadRetries), ctx)

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
		if err != nil {
			return backoff.Permanent(jobkind.New(jobkind.InvalidRequest, err))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(jobkind.New(jobkind.SourceTimeout, err))
			}
			return jobkind.New(jobkind.SourceTransient5xx, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return backoff.Permanent(jobkind.New(jobkind.SourceUnavailable4xx, fmt.Errorf("source returned %d", resp.StatusCode)))
		case resp.StatusCode >= 500:
			return jobkind.New(jobkind.SourceTransient5xx, fmt.Errorf("source returned %d", resp.StatusCode))
		}

		f, err := os.Create(dest)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create temp file: %w", err))
		}
		defer f.Close()

		if _, err := io.Copy(f, resp.Body); err != nil {
			return jobkind.New(jobkind.SourceTransient5xx, fmt.Errorf("failed writing downloaded audio: %w", err))
		}
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return "", err
	}
	return dest, nil
}

// Trim cuts [startMs, endMs) from srcPath and re-encodes to AAC, producing
// an accurate-seek clip (input seek after -i, not a keyframe-snapped seek).
func (c *Clipper) Trim(ctx context.Context, jobID, srcPath string, startMs, endMs int) (string, error) {
	dest := filepath.Join(c.tempDir, fmt.Sprintf("clip_%s.m4a", jobID))

	startSec := float64(startMs) / 1000.0
	durSec := float64(endMs-startMs) / 1000.0

	args := []string{
		"-i", srcPath,
		"-ss", fmt.Sprintf("%.3f", startSec),
		"-t", fmt.Sprintf("%.3f", durSec),
		"-c:a", "aac",
		"-b:a", "192k",
		"-y",
		dest,
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return "", jobkind.New(jobkind.MediaProcessingTransient, fmt.Errorf("ffmpeg trim failed: %w", err))
	}
	return dest, nil
}

// Probe returns the actual duration of the trimmed clip in seconds —
// ffmpeg's requested -t is a target, not a guarantee, so the renderer needs
// ground truth before it can compute per-frame timing.
func (c *Clipper) Probe(ctx context.Context, path string) (float64, error) {
	data, err := ffprobe.ProbeURL(ctx, path)
	if err != nil {
		return 0, jobkind.New(jobkind.MediaProcessingFatal, fmt.Errorf("ffprobe failed: %w", err))
	}
	return data.Format.DurationSeconds, nil
}

// Cleanup removes the temp files produced for one job.
func (c *Clipper) Cleanup(paths ...string) {
	for _, p := range paths {
		os.Remove(p)
	}
}
