package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bobarin/podclip/internal/jobkind"
	"github.com/bobarin/podclip/internal/models"
	"github.com/bobarin/podclip/internal/scheduler"
	"github.com/bobarin/podclip/internal/videostore"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const transcriptProxyTimeout = 30 * time.Second

// Handler implements the HTTP Surface (C9): a thin layer over the
// scheduler, the video store, and the transcription provider proxy.
type Handler struct {
	scheduler *scheduler.Scheduler
	videos    *videostore.Store

	transcriptBaseURL string
	transcriptAPIKey  string
	httpClient        *http.Client
}

func NewHandler(s *scheduler.Scheduler, videos *videostore.Store, transcriptBaseURL, transcriptAPIKey string) *Handler {
	return &Handler{
		scheduler:         s,
		videos:            videos,
		transcriptBaseURL: transcriptBaseURL,
		transcriptAPIKey:  transcriptAPIKey,
		httpClient:        &http.Client{Timeout: transcriptProxyTimeout},
	}
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// createVideoRequest mirrors the wire shape in §6.1 exactly; models.Request
// is the internal representation the scheduler persists.
type createVideoRequest struct {
	AudioURL            string              `json:"audioUrl"`
	ClipStart           int                 `json:"clipStart"`
	ClipEnd             int                 `json:"clipEnd"`
	Podcast             models.Podcast      `json:"podcast"`
	CaptionsEnabled     bool                `json:"captionsEnabled"`
	CaptionStyle        models.CaptionStyle `json:"captionStyle"`
	DeviceToken         string              `json:"deviceToken"`
	EnableSmartFeatures bool                `json:"enableSmartFeatures"`
}

// CreateVideo handles POST /api/create-video.
func (h *Handler) CreateVideo(w http.ResponseWriter, r *http.Request) {
	var body createVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondCreateVideoError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body")
		return
	}

	style := body.CaptionStyle
	if style == "" {
		style = models.CaptionStyleNormal
	}

	req := models.Request{
		AudioURL:            body.AudioURL,
		ClipStartMs:         body.ClipStart,
		ClipEndMs:           body.ClipEnd,
		Podcast:             body.Podcast,
		CaptionsEnabled:     body.CaptionsEnabled,
		CaptionStyle:        style,
		DeviceToken:         body.DeviceToken,
		EnableSmartFeatures: body.EnableSmartFeatures,
	}

	result, err := h.scheduler.Submit(r.Context(), req)
	if err != nil {
		status, code := submitErrorStatus(jobkind.KindOf(err))
		respondCreateVideoError(w, status, code, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"jobId":         result.JobID.String(),
		"estimatedTime": result.EstimatedTimeSec,
		"message":       "video generation queued",
	})
}

func submitErrorStatus(kind jobkind.Kind) (int, string) {
	switch kind {
	case jobkind.FeatureDisabled:
		return http.StatusServiceUnavailable, "FEATURE_DISABLED"
	case jobkind.QueueFull:
		return http.StatusTooManyRequests, "QUEUE_FULL"
	case jobkind.BudgetExceeded:
		return http.StatusPaymentRequired, "BUDGET_EXCEEDED"
	default:
		return http.StatusBadRequest, "INVALID_REQUEST"
	}
}

func respondCreateVideoError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

// VideoStatus handles GET /api/video-status/{jobId}.
func (h *Handler) VideoStatus(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid jobId")
		return
	}

	status, ok := h.scheduler.GetStatus(jobID)
	if !ok {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"job":           status.Job,
		"queuePosition": status.QueuePosition,
		"activeJobs":    status.ActiveJobs,
	})
}

// DownloadVideo handles GET /api/download-video/{jobId}.
func (h *Handler) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid jobId")
		return
	}

	f, size, err := h.videos.Open(jobID)
	if err != nil {
		respondError(w, http.StatusNotFound, "video not found or expired")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}

// CreateTranscript handles POST /api/transcript — a thin proxy to the
// transcription provider for the legacy on-device client caption path
// (§4.8); it shares the server-held provider credential rather than
// exposing it to clients.
func (h *Handler) CreateTranscript(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	h.proxyTranscript(w, r, http.MethodPost, h.transcriptBaseURL+"/v2/transcript", body)
}

// GetTranscript handles GET /api/transcript/{id}.
func (h *Handler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.proxyTranscript(w, r, http.MethodGet, h.transcriptBaseURL+"/v2/transcript/"+id, nil)
}

func (h *Handler) proxyTranscript(w http.ResponseWriter, r *http.Request, method, url string, body []byte) {
	req, err := http.NewRequestWithContext(r.Context(), method, url, bytes.NewReader(body))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build provider request")
		return
	}
	req.Header.Set("Authorization", h.transcriptAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		respondError(w, http.StatusGatewayTimeout, "transcription provider unreachable")
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		respondError(w, http.StatusBadGateway, "failed to read provider response")
		return
	}

	status, retryAfterSec := mapTranscriptProviderStatus(resp.StatusCode)
	if retryAfterSec > 0 {
		var payload map[string]interface{}
		if err := json.Unmarshal(respBody, &payload); err != nil || payload == nil {
			payload = map[string]interface{}{}
		}
		payload["retryAfterSec"] = retryAfterSec
		respondJSON(w, status, payload)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(respBody)
}

// mapTranscriptProviderStatus applies §6.1's provider error code mapping:
// 401/403 -> 502, 429 -> 429 (with retryAfterSec), 5xx -> 504, everything
// else passes through verbatim.
func mapTranscriptProviderStatus(providerStatus int) (status int, retryAfterSec int) {
	switch {
	case providerStatus == http.StatusUnauthorized || providerStatus == http.StatusForbidden:
		return http.StatusBadGateway, 0
	case providerStatus == http.StatusTooManyRequests:
		return http.StatusTooManyRequests, 30
	case providerStatus >= 500:
		return http.StatusGatewayTimeout, 0
	default:
		return providerStatus, 0
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
