// Package models holds the job record and its derived value objects.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JSONB is a PostgreSQL JSONB column backing for arbitrary structured data,
// stored as a generic map via json.Marshal/Unmarshal in Value/Scan. The jobs
// table's request/result columns do not go through this type: internal/db
// marshals the Request and Result structs with encoding/json directly.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(b, j)
}

// Status is the Job state machine: queued -> processing -> {completed|failed},
// with processing -> queued permitted on a retriable failure.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// CaptionStyle is the casing transform applied to chunk display text.
type CaptionStyle string

const (
	CaptionStyleNormal    CaptionStyle = "normal"
	CaptionStyleUppercase CaptionStyle = "uppercase"
	CaptionStyleLowercase CaptionStyle = "lowercase"
	CaptionStyleTitle     CaptionStyle = "title"
)

// Podcast is the display metadata bound into every rendered frame.
type Podcast struct {
	Title       string `json:"title"`
	Artwork     string `json:"artwork"`
	PodcastName string `json:"podcastName"`
}

// Request is the immutable submission body. Never mutated after admission.
type Request struct {
	AudioURL            string       `json:"audioUrl"`
	ClipStartMs         int          `json:"clipStart"`
	ClipEndMs           int          `json:"clipEnd"`
	Podcast             Podcast      `json:"podcast"`
	CaptionsEnabled     bool         `json:"captionsEnabled"`
	CaptionStyle        CaptionStyle `json:"captionStyle"`
	DeviceToken         string       `json:"deviceToken,omitempty"`
	EnableSmartFeatures bool         `json:"enableSmartFeatures"`
}

// CostBreakdown itemizes estimated or realized cost by pipeline stage.
type CostBreakdown struct {
	DownloadUSD  float64 `json:"download"`
	FrameGenUSD  float64 `json:"frameGeneration"`
	ComposeUSD   float64 `json:"composition"`
	StorageUSD   float64 `json:"storage"`
	CaptionsUSD  float64 `json:"captions"`
	TotalUSD     float64 `json:"total"`
}

// Result holds the success payload attached when status transitions to completed.
type Result struct {
	VideoURL         string        `json:"videoUrl"`
	DownloadURL      string        `json:"downloadUrl"`
	FileSizeBytes    int64         `json:"fileSizeBytes"`
	DurationSec      float64       `json:"durationSec"`
	ProcessingTimeMs int64         `json:"processingTimeMs"`
	CostBreakdown    CostBreakdown `json:"costBreakdown"`
}

// Job is the central entity. It is created at admission and mutated only by
// the scheduler and the worker that owns it; it is never destroyed.
type Job struct {
	ID          uuid.UUID  `json:"jobId"`
	Status      Status     `json:"status"`
	Request     Request    `json:"request"`
	EstimatedCost     float64    `json:"estimatedCost"`
	EstimatedTimeSec  int        `json:"estimatedTimeSec"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
	Retries     int        `json:"retries"`
	MaxRetries  int        `json:"maxRetries"`
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Clone returns a deep-enough copy safe to hand to callers outside the
// store's own lock — mutating the returned Job never affects the mirror.
func (j *Job) Clone() *Job {
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.FailedAt != nil {
		t := *j.FailedAt
		cp.FailedAt = &t
	}
	if j.Result != nil {
		r := *j.Result
		cp.Result = &r
	}
	return &cp
}

// Word is a single transcript token with clip-relative timing.
type Word struct {
	Text    string `json:"text"`
	StartMs int     `json:"startMs"`
	EndMs   int     `json:"endMs"`
}

// CaptionChunk is a derived, ephemeral-per-job display unit produced by the
// caption pipeline (C5) and consumed by the frame renderer (C6).
type CaptionChunk struct {
	Text                      string `json:"text"`
	StartMs                   int    `json:"startMs"`
	EndMs                     int    `json:"endMs"`
	Words                     []Word `json:"words"`
	LastWordIndexInTranscript int    `json:"lastWordIndexInTranscript"`
}

// FrameSpec is a derived, ephemeral-per-frame value object containing
// everything C6 needs to rasterize one PNG with no access to global state.
type FrameSpec struct {
	Width, Height int
	FrameIndex    int
	Progress      float64 // t / duration, in [0,1]
	BarHeights    [5]float64
	Caption       string // empty when no chunk is visible at this instant
}
