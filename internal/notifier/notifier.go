// Package notifier implements the Notifier (C8): best-effort push to the
// end user on completion, and a best-effort operator chat message when a
// job starts, completes or fails (§4.7); a retry requeue sends no message.
// Neither channel ever fails a job — failures
// are logged and swallowed.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const sendTimeout = 10 * time.Second

// Notifier sends push notifications to end users and operational summaries
// to a chat channel. Both clients are plain net/http REST callers — no
// APNs/FCM or Telegram SDK exists anywhere in the retrieved corpus, so this
// follows the codebase's own idiom for every other external collaborator
// (hand-rolled HTTP client, not a generated SDK).
type Notifier struct {
	httpClient *http.Client
	log        *slog.Logger

	pushURL string
	pushKey string

	telegramEnabled bool
	telegramToken   string
	telegramChatID  string
}

type Config struct {
	PushProviderURL string
	PushProviderKey string

	TelegramEnabled bool
	TelegramToken   string
	TelegramChatID  string
}

func New(cfg Config, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		httpClient:      &http.Client{Timeout: sendTimeout},
		log:             log,
		pushURL:         cfg.PushProviderURL,
		pushKey:         cfg.PushProviderKey,
		telegramEnabled: cfg.TelegramEnabled,
		telegramToken:   cfg.TelegramToken,
		telegramChatID:  cfg.TelegramChatID,
	}
}

// PushCompleted sends a user-facing push notification when a job finishes
// successfully. It is a no-op when deviceToken is empty, and its failure is
// only ever logged (§4.7 "push failures are logged but never fail the job").
func (n *Notifier) PushCompleted(ctx context.Context, jobID uuid.UUID, deviceToken, podcastName, episodeTitle string) {
	if deviceToken == "" || n.pushURL == "" {
		return
	}

	body := map[string]interface{}{
		"deviceToken": deviceToken,
		"title":       podcastName,
		"body":        fmt.Sprintf("Your clip from \"%s\" is ready to watch", episodeTitle),
		"data": map[string]string{
			"jobId": jobID.String(),
			"type":  "video_ready",
		},
	}

	if err := n.post(ctx, n.pushURL, n.pushKey, body); err != nil {
		n.log.Warn("push notification failed", "jobId", jobID, "error", err)
	}
}

// Note: §7 "User-visible behavior on failure" — push is NOT sent on
// failure by default; the client polls and surfaces the failure itself.
// There is deliberately no PushFailed method here for that reason.

// ChatStarted, ChatCompleted, and ChatFailed send best-effort operator
// summaries to a configured chat channel (§4.7). None of these are ever
// retried — they are pure observability.
func (n *Notifier) ChatStarted(ctx context.Context, jobID uuid.UUID) {
	n.sendChat(ctx, fmt.Sprintf("▶️ job %s started", jobID))
}

func (n *Notifier) ChatCompleted(ctx context.Context, jobID uuid.UUID, estimatedUSD, realizedUSD float64, processingTimeMs int64) {
	n.sendChat(ctx, fmt.Sprintf("✅ job %s completed — est $%.4f / realized $%.4f, %dms", jobID, estimatedUSD, realizedUSD, processingTimeMs))
}

func (n *Notifier) ChatFailed(ctx context.Context, jobID uuid.UUID, reason string) {
	n.sendChat(ctx, fmt.Sprintf("❌ job %s failed: %s", jobID, reason))
}

func (n *Notifier) sendChat(ctx context.Context, text string) {
	if !n.telegramEnabled || n.telegramToken == "" || n.telegramChatID == "" {
		return
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", n.telegramToken)
	body := map[string]string{
		"chat_id": n.telegramChatID,
		"text":    text,
	}

	if err := n.post(ctx, url, "", body); err != nil {
		n.log.Warn("chat notification failed", "error", err)
	}
}

func (n *Notifier) post(ctx context.Context, url, bearer string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}
