// Package muxer implements the Muxer (C7): combine a PNG frame sequence
// and a clipped audio file into a playable MP4 via an FFmpeg subprocess,
// then validate the result with ffprobe (§4.5).
package muxer

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/bobarin/podclip/internal/jobkind"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

const (
	fps                  = 12
	durationToleranceSec = 0.2 // ±200ms (§4.5 Post-conditions)
	wallClockMultiplier  = 5   // bounded by 5x clip duration (§5)
)

// Muxer invokes ffmpeg against a frame directory + clipped audio and
// validates the output.
type Muxer struct{}

func New() *Muxer {
	return &Muxer{}
}

// Mux combines the lexicographically sorted frame_*.png files in framesDir
// with the audio at audioPath into outputPath: image2 demuxer at 12fps,
// H.264 (yuv420p) video, AAC audio, -shortest, +faststart (§4.5 Operation).
func (m *Muxer) Mux(ctx context.Context, framesDir, audioPath, outputPath string, clipDurationSec float64) error {
	timeout := time.Duration(math.Max(clipDurationSec*wallClockMultiplier, 30)) * time.Second
	muxCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pattern := filepath.Join(framesDir, "frame_%06d.png")

	args := []string{
		"-y",
		"-framerate", fmt.Sprintf("%d", fps),
		"-i", pattern,
		"-i", audioPath,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-profile:v", "main",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		"-movflags", "+faststart",
		outputPath,
	}

	cmd := exec.CommandContext(muxCtx, "ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if muxCtx.Err() == context.DeadlineExceeded {
			return jobkind.New(jobkind.Timeout, fmt.Errorf("mux exceeded wall-clock budget %v", timeout))
		}
		return jobkind.New(jobkind.MuxFailed, fmt.Errorf("ffmpeg mux failed: %w: %s", err, truncate(string(output), 500)))
	}
	return nil
}

// Validate probes outputPath and confirms exactly one video + one audio
// stream, duration within tolerance of the requested clip window, and
// non-zero file size (§4.5 Post-conditions).
func (m *Muxer) Validate(ctx context.Context, outputPath string, expectedDurationSec float64) error {
	info, err := os.Stat(outputPath)
	if err != nil {
		return jobkind.New(jobkind.OutputInvalid, fmt.Errorf("stat mux output: %w", err))
	}
	if info.Size() == 0 {
		return jobkind.New(jobkind.OutputInvalid, fmt.Errorf("mux output is empty"))
	}

	data, err := ffprobe.ProbeURL(ctx, outputPath)
	if err != nil {
		return jobkind.New(jobkind.OutputInvalid, fmt.Errorf("probe mux output: %w", err))
	}

	var videoStreams, audioStreams int
	for _, s := range data.Streams {
		switch s.CodecType {
		case "video":
			videoStreams++
		case "audio":
			audioStreams++
		}
	}
	if videoStreams != 1 || audioStreams != 1 {
		return jobkind.New(jobkind.OutputInvalid, fmt.Errorf("expected 1 video + 1 audio stream, got %d video, %d audio", videoStreams, audioStreams))
	}

	actual := data.Format.DurationSeconds
	if math.Abs(actual-expectedDurationSec) > durationToleranceSec {
		return jobkind.New(jobkind.OutputInvalid, fmt.Errorf("duration %.3fs outside ±%.1fs of expected %.3fs", actual, durationToleranceSec, expectedDurationSec))
	}

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
