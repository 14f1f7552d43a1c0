package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSender(t *testing.T, handler http.HandlerFunc) *Sender {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s := NewSender("test-token", "42", 3, time.Millisecond)
	s.baseURL = srv.URL
	return s
}

func TestSendPostsHTMLMessage(t *testing.T) {
	var got map[string]interface{}
	s := testSender(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, s.Send(context.Background(), "<b>hello</b>"))

	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "<b>hello</b>", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, true, got["disable_web_page_preview"])
}

func TestSendRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	s := testSender(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, s.Send(context.Background(), "retry me"))
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	s := testSender(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"ok":false,"description":"chat not found"}`, http.StatusBadRequest)
	})

	err := s.Send(context.Background(), "doomed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "chat not found")
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendHonorsContextCancellation(t *testing.T) {
	s := testSender(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, s.Send(ctx, "never"))
}
