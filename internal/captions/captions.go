// Package captions implements the Caption Pipeline (C5): upload the
// byte-accurate clip to the transcription provider, poll for completion,
// then chunk the transcript into display-ready caption chunks using
// text-first word matching with a position cursor (§4.3).
package captions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bobarin/podclip/internal/jobkind"
	"github.com/bobarin/podclip/internal/models"
	"github.com/cenkalti/backoff/v4"
)

const (
	defaultBaseURL  = "https://api.assemblyai.com"
	uploadTimeout   = 60 * time.Second
	pollInterval    = 5 * time.Second
	pollMaxWait     = 2 * time.Minute
	maxUploadRetry  = 3
	maxLinesPerChunk = 3
	maxCharsPerLine  = 40
	matchWindowMs    = 5_000 // §4.3 Step E.3: ±5s around the chunk's nominal mid-time
)

// Client is a plain net/http client against the transcription provider's
// upload+poll REST API, in the same hand-rolled idiom as every other
// external client in this codebase — the provider has no published Go SDK.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
	debug      bool
}

// New builds a Client with a "component":"captions" child logger (§10.1).
// DEBUG_CAPTIONS turns on this component's verbose log lines only — every
// verbose call site below is gated on the debug flag and logged at Info, so
// it shows up without lowering the rest of the service's configured level.
func New(apiKey string, debug bool, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: uploadTimeout,
		},
		log:   logger.With("component", "captions"),
		debug: debug,
	}
}

// Options controls one transcription run. Style sets the casing of the
// chunk text (§4.3 Step F). EnableSmartFeatures adds the extra provider
// analyses of §4.3 Step B to the transcript request; their results are not
// parsed or logged and do not affect rendered output.
type Options struct {
	Style               models.CaptionStyle
	EnableSmartFeatures bool
}

// Word is a single transcript token with clip-relative absolute timing, as
// returned by the provider. Because C4 hands us an already-clipped file,
// these timestamps are clip-relative by construction (§4.3 Step D) — no
// subtraction of clipStart is ever performed here.
type Word struct {
	Text    string
	StartMs int
	EndMs   int
}

type utterance struct {
	Speaker string
	Words   []Word
}

// transcriptResponse mirrors the subset of the provider's poll response this
// pipeline consumes.
type transcriptResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Error      string `json:"error"`
	Words      []struct {
		Text  string `json:"text"`
		Start int    `json:"start"`
		End   int    `json:"end"`
	} `json:"words"`
	Utterances []struct {
		Speaker string `json:"speaker"`
		Start   int    `json:"start"`
		End     int    `json:"end"`
		Words   []struct {
			Text  string `json:"text"`
			Start int    `json:"start"`
			End   int    `json:"end"`
		} `json:"words"`
	} `json:"utterances"`
}

// Build runs the full caption pipeline for one clip: upload, transcribe,
// poll, and chunk. Any error here is meant to be caught by the caller and
// demoted to "no captions" per §4.3's graceful-degradation contract — this
// function itself never decides that; it just reports a classified error.
func (c *Client) Build(ctx context.Context, clipPath string, opts Options) ([]models.CaptionChunk, error) {
	uploadURL, err := c.upload(ctx, clipPath)
	if err != nil {
		return nil, err
	}

	transcriptID, err := c.createTranscript(ctx, uploadURL, opts)
	if err != nil {
		return nil, err
	}

	resp, err := c.poll(ctx, transcriptID)
	if err != nil {
		return nil, err
	}

	utterances, words := normalize(resp)
	if c.debug {
		c.log.Info("transcript normalized", "transcriptId", transcriptID, "words", len(words), "utterances", len(utterances))
	}

	return chunk(utterances, words, opts.Style), nil
}

// upload POSTs the clipped audio file to the provider's files endpoint.
func (c *Client) upload(ctx context.Context, path string) (string, error) {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxUploadRetry), ctx)

	var uploadURL string
	op := func() error {
		f, err := os.Open(path)
		if err != nil {
			return backoff.Permanent(jobkind.New(jobkind.CaptionProviderError, fmt.Errorf("open clip for upload: %w", err)))
		}
		defer f.Close()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/upload", f)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", c.apiKey)
		req.Header.Set("Content-Type", "application/octet-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return jobkind.New(jobkind.CaptionProviderError, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			body, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(jobkind.New(jobkind.CaptionAuthFailure, fmt.Errorf("upload auth failed: %s", body)))
		}
		if resp.StatusCode >= 500 {
			return jobkind.New(jobkind.CaptionProviderError, fmt.Errorf("upload returned %d", resp.StatusCode))
		}
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(jobkind.New(jobkind.CaptionProviderError, fmt.Errorf("upload rejected: %s", body)))
		}

		var parsed struct {
			UploadURL string `json:"upload_url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return backoff.Permanent(jobkind.New(jobkind.CaptionProviderError, fmt.Errorf("decode upload response: %w", err)))
		}
		uploadURL = parsed.UploadURL
		return nil
	}

	if err := backoff.Retry(op, bo); err != nil {
		return "", err
	}
	return uploadURL, nil
}

// createTranscript requests a transcription of the uploaded audio with the
// flags named in §4.3 Step B.
func (c *Client) createTranscript(ctx context.Context, uploadURL string, opts Options) (string, error) {
	body := map[string]interface{}{
		"audio_url":         uploadURL,
		"speaker_labels":    true,
		"speakers_expected": 2,
		"format_text":       true,
		"punctuate":         true,
	}
	if opts.EnableSmartFeatures {
		body["auto_highlights"] = true
		body["sentiment_analysis"] = true
		body["entity_detection"] = true
		body["iab_categories"] = true
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal transcript request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", jobkind.New(jobkind.CaptionProviderError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", jobkind.New(jobkind.CaptionAuthFailure, fmt.Errorf("transcript request auth failed"))
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		return "", jobkind.New(jobkind.CaptionProviderError, fmt.Errorf("transcript request rejected: %s", b))
	}

	var parsed transcriptResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", jobkind.New(jobkind.CaptionProviderError, fmt.Errorf("decode transcript response: %w", err))
	}
	return parsed.ID, nil
}

// poll implements the bounded poll loop of §4.3 Step C: 5s interval, up to
// ~2 minutes wall clock, terminal statuses completed/error.
func (c *Client) poll(ctx context.Context, id string) (*transcriptResponse, error) {
	deadline := time.Now().Add(pollMaxWait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, jobkind.New(jobkind.CaptionTimeout, ctx.Err())
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			return nil, jobkind.New(jobkind.CaptionTimeout, fmt.Errorf("transcript %s did not complete within %v", id, pollMaxWait))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/transcript/"+id, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			continue // transient; keep polling until the deadline
		}

		var parsed transcriptResponse
		decodeErr := json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if decodeErr != nil {
			continue
		}

		switch parsed.Status {
		case "completed":
			return &parsed, nil
		case "error":
			return nil, jobkind.New(jobkind.CaptionProviderError, fmt.Errorf("transcription error: %s", parsed.Error))
		default:
			// queued / processing — keep polling
		}
	}
}

// normalize flattens the provider's nested word lists into a single global
// word list plus a parallel utterance list carrying speaker boundaries —
// chunk() never merges across a speaker change (§4.3 Step E.1).
func normalize(resp *transcriptResponse) ([]utterance, []Word) {
	var words []Word
	var utterances []utterance

	if len(resp.Utterances) > 0 {
		for _, u := range resp.Utterances {
			uw := make([]Word, 0, len(u.Words))
			for _, w := range u.Words {
				word := Word{Text: w.Text, StartMs: w.Start, EndMs: w.End}
				uw = append(uw, word)
				words = append(words, word)
			}
			utterances = append(utterances, utterance{Speaker: u.Speaker, Words: uw})
		}
		return utterances, words
	}

	// No speaker-labeled utterances returned — treat the whole transcript
	// as a single utterance so chunking still has something to split.
	for _, w := range resp.Words {
		words = append(words, Word{Text: w.Text, StartMs: w.Start, EndMs: w.End})
	}
	if len(words) > 0 {
		utterances = append(utterances, utterance{Words: words})
	}
	return utterances, words
}

// chunk applies the §4.3 Step E chunking rules: utterance boundaries first,
// then a line-budget split within each utterance, then text-first matching
// against the global word list with a position cursor to resolve duplicate
// phrases correctly.
func chunk(utterances []utterance, globalWords []Word, style models.CaptionStyle) []models.CaptionChunk {
	var chunks []models.CaptionChunk
	lastWordIndexUsed := -1

	for _, u := range utterances {
		for _, group := range splitByLineBudget(u.Words) {
			if len(group) == 0 {
				continue
			}
			nominalMidMs := (group[0].StartMs + group[len(group)-1].EndMs) / 2

			matched, matchedEndIdx, ok := matchWords(globalWords, lastWordIndexUsed+1, group, nominalMidMs)
			if !ok {
				// No confident match — fall back to the utterance-local
				// timestamps rather than dropping the chunk entirely.
				matched = group
				matchedEndIdx = lastWordIndexUsed
			} else {
				lastWordIndexUsed = matchedEndIdx
			}

			chunks = append(chunks, buildChunk(matched, matchedEndIdx, style))
		}
	}
	return chunks
}

// splitByLineBudget groups an utterance's words so that the resulting
// display text never exceeds maxLinesPerChunk lines of maxCharsPerLine
// characters (§4.3 Step E.2), without ever crossing a speaker boundary
// since callers only ever pass one utterance's words at a time.
func splitByLineBudget(words []Word) [][]Word {
	budget := maxLinesPerChunk * maxCharsPerLine
	var groups [][]Word
	var current []Word
	currentLen := 0

	for _, w := range words {
		addLen := len(w.Text)
		if currentLen > 0 {
			addLen++ // separating space
		}
		if currentLen+addLen > budget && len(current) > 0 {
			groups = append(groups, current)
			current = nil
			currentLen = 0
			addLen = len(w.Text)
		}
		current = append(current, w)
		currentLen += addLen
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

// matchWords searches globalWords starting at startIdx for the first
// contiguous run of tokens whose normalized text equals target's, anchored
// within ±matchWindowMs of nominalMidMs (§4.3 Step E.3). The returned index
// is the global index of the run's last word — the next chunk's search
// cursor (§3 Caption Chunk, "lastWordIndexInTranscript").
func matchWords(globalWords []Word, startIdx int, target []Word, nominalMidMs int) ([]Word, int, bool) {
	if startIdx < 0 {
		startIdx = 0
	}
	n := len(target)
	if n == 0 || startIdx >= len(globalWords) {
		return nil, 0, false
	}

	for i := startIdx; i+n <= len(globalWords); i++ {
		candidate := globalWords[i : i+n]
		mid := (candidate[0].StartMs + candidate[n-1].EndMs) / 2
		if abs(mid-nominalMidMs) > matchWindowMs {
			// Once we're scanning well past the expected window with no
			// match, stop rather than walking the whole rest of the
			// transcript — keeps this O(window), not O(n^2) worst case.
			if mid > nominalMidMs+matchWindowMs*4 {
				break
			}
			continue
		}
		if sameText(candidate, target) {
			return candidate, i + n - 1, true
		}
	}
	return nil, 0, false
}

func sameText(a, b []Word) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if normalizeToken(a[i].Text) != normalizeToken(b[i].Text) {
			return false
		}
	}
	return true
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.TrimFunc(s, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// buildChunk derives startMs/endMs from the actual matched words (§4.3 Step
// E.4 — never proportional division) and applies the caption style casing.
func buildChunk(words []Word, lastIdx int, style models.CaptionStyle) models.CaptionChunk {
	modelWords := make([]models.Word, 0, len(words))
	texts := make([]string, 0, len(words))
	for _, w := range words {
		modelWords = append(modelWords, models.Word{Text: w.Text, StartMs: w.StartMs, EndMs: w.EndMs})
		texts = append(texts, w.Text)
	}

	text := strings.Join(texts, " ")
	return models.CaptionChunk{
		Text:                      applyStyle(text, style),
		StartMs:                   words[0].StartMs,
		EndMs:                     words[len(words)-1].EndMs,
		Words:                     modelWords,
		LastWordIndexInTranscript: lastIdx,
	}
}

// applyStyle implements §4.3 Step F. normal leaves the provider's
// AI-formatted text untouched; the other three are simple case folds.
// Word timestamps are never affected by this transform.
func applyStyle(text string, style models.CaptionStyle) string {
	switch style {
	case models.CaptionStyleUppercase:
		return strings.ToUpper(text)
	case models.CaptionStyleLowercase:
		return strings.ToLower(text)
	case models.CaptionStyleTitle:
		return titleCase(text)
	default:
		return text
	}
}

func titleCase(text string) string {
	words := strings.Fields(strings.ToLower(text))
	for i, w := range words {
		r := []rune(w)
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
