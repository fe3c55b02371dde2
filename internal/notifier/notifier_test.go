package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPushCompletedNoopWithoutDeviceToken(t *testing.T) {
	var called int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&called, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{PushProviderURL: srv.URL}, nil)
	n.PushCompleted(context.Background(), uuid.New(), "", "Show", "Episode")

	assert.Zero(t, atomic.LoadInt32(&called))
}

func TestPushCompletedSendsWhenConfigured(t *testing.T) {
	var called int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&called, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{PushProviderURL: srv.URL}, nil)
	n.PushCompleted(context.Background(), uuid.New(), "device-token", "Show", "Episode")

	assert.Equal(t, int32(1), atomic.LoadInt32(&called))
}

func TestChatNotificationsNoopWhenDisabled(t *testing.T) {
	n := New(Config{TelegramEnabled: false, TelegramToken: "x", TelegramChatID: "y"}, nil)
	// Must not panic or block even with no real Telegram endpoint reachable.
	n.ChatStarted(context.Background(), uuid.New())
	n.ChatCompleted(context.Background(), uuid.New(), 0.01, 0.009, 1000)
	n.ChatFailed(context.Background(), uuid.New(), "boom")
}
