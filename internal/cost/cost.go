// Package cost implements the estimation formula used at admission time and
// the realized-cost breakdown attached to a completed job's Result (§4.1,
// §3 CostBreakdown). enableSmartFeatures is deliberately NOT charged here —
// see the Open Questions resolution in DESIGN.md.
package cost

import "github.com/bobarin/podclip/internal/models"

// Per-unit rates. These are flat approximations of third-party usage costs
// (transcription minutes, compute time, egress) rather than a metered
// pass-through — nothing in the spec ties them to a live billing API.
const (
	perAudioMinuteUSD  = 0.006 // download + transcode, scaled by clip length
	flatComposeUSD     = 0.01  // frame render + mux, independent of length
	flatStorageUSD     = 0.002 // local disk write + retention window
	perCaptionMinuteUSD = 0.004 // AssemblyAI-shaped transcription, only if enabled
)

// Estimate computes the pre-admission cost projection for a Request. It is
// intentionally conservative — it must never undercount, since the budget
// tracker reserves against this number before the job has actually run.
func Estimate(req models.Request) models.CostBreakdown {
	clipMinutes := float64(req.ClipEndMs-req.ClipStartMs) / 1000.0 / 60.0
	if clipMinutes < 0 {
		clipMinutes = 0
	}

	b := models.CostBreakdown{
		DownloadUSD: perAudioMinuteUSD * clipMinutes,
		FrameGenUSD: flatComposeUSD / 2,
		ComposeUSD:  flatComposeUSD / 2,
		StorageUSD:  flatStorageUSD,
	}
	if req.CaptionsEnabled {
		b.CaptionsUSD = perCaptionMinuteUSD * clipMinutes
	}
	b.TotalUSD = b.DownloadUSD + b.FrameGenUSD + b.ComposeUSD + b.StorageUSD + b.CaptionsUSD
	return b
}

// EstimateTimeSec returns the estimatedTimeSec surfaced in the status
// response (§3) — a rough linear model, not a scheduling guarantee.
func EstimateTimeSec(req models.Request) int {
	clipSec := float64(req.ClipEndMs-req.ClipStartMs) / 1000.0
	if clipSec < 0 {
		clipSec = 0
	}
	base := 8.0 + clipSec*0.9 // fixed startup cost + per-second render cost
	if req.CaptionsEnabled {
		base += clipSec * 0.4 // transcription round-trip adds proportional latency
	}
	return int(base)
}

// Realize recomputes the breakdown from what the pipeline actually observed
// (measured download bytes are not modeled; this stays a time-based
// approximation like Estimate, but using the actual rendered duration
// rather than the requested clip window).
func Realize(req models.Request, actualDurationSec float64) models.CostBreakdown {
	minutes := actualDurationSec / 60.0
	b := models.CostBreakdown{
		DownloadUSD: perAudioMinuteUSD * minutes,
		FrameGenUSD: flatComposeUSD / 2,
		ComposeUSD:  flatComposeUSD / 2,
		StorageUSD:  flatStorageUSD,
	}
	if req.CaptionsEnabled {
		b.CaptionsUSD = perCaptionMinuteUSD * minutes
	}
	b.TotalUSD = b.DownloadUSD + b.FrameGenUSD + b.ComposeUSD + b.StorageUSD + b.CaptionsUSD
	return b
}
