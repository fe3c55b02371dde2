package cost

import (
	"testing"

	"github.com/bobarin/podclip/internal/models"
)

func TestEstimateScalesWithClipLength(t *testing.T) {
	short := models.Request{ClipStartMs: 0, ClipEndMs: 10_000}
	long := models.Request{ClipStartMs: 0, ClipEndMs: 60_000}

	shortCost := Estimate(short)
	longCost := Estimate(long)

	if longCost.TotalUSD <= shortCost.TotalUSD {
		t.Errorf("expected longer clip to cost more: short=%v long=%v", shortCost.TotalUSD, longCost.TotalUSD)
	}
}

func TestEstimateCaptionsAddCost(t *testing.T) {
	req := models.Request{ClipStartMs: 0, ClipEndMs: 30_000}
	withCaptions := req
	withCaptions.CaptionsEnabled = true

	plain := Estimate(req)
	captioned := Estimate(withCaptions)

	if captioned.CaptionsUSD <= 0 {
		t.Error("expected non-zero captions cost when captions enabled")
	}
	if plain.CaptionsUSD != 0 {
		t.Error("expected zero captions cost when captions disabled")
	}
	if captioned.TotalUSD <= plain.TotalUSD {
		t.Error("expected captioned total to exceed plain total")
	}
}

func TestEstimateSmartFeaturesNotCharged(t *testing.T) {
	req := models.Request{ClipStartMs: 0, ClipEndMs: 30_000}
	smart := req
	smart.EnableSmartFeatures = true

	if Estimate(req).TotalUSD != Estimate(smart).TotalUSD {
		t.Error("enableSmartFeatures must not change estimated cost")
	}
}

func TestEstimateNegativeClipClampsToZero(t *testing.T) {
	req := models.Request{ClipStartMs: 5000, ClipEndMs: 1000}
	b := Estimate(req)
	if b.DownloadUSD != 0 {
		t.Errorf("expected zero download cost for inverted clip window, got %v", b.DownloadUSD)
	}
}
