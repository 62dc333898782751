package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBotAPI struct {
	mu      sync.Mutex
	offsets []string
	sent    []map[string]interface{}
	served  bool
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.HasSuffix(r.URL.Path, "/botTOKEN/getUpdates"):
		f.offsets = append(f.offsets, r.URL.Query().Get("offset"))
		if f.served {
			w.Write([]byte(`{"ok":true,"result":[]}`))
			return
		}
		f.served = true
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":41,"message":{"date":1700000000,"text":"/restart_slot","chat":{"id":5}}},
			{"update_id":42},
			{"update_id":43,"message":{"date":1700000001,"text":"/status@pool_bot","chat":{"id":5}}}
		]}`))
	case strings.HasSuffix(r.URL.Path, "/botTOKEN/sendMessage"):
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if body["chat_id"] == float64(0) {
			w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
			return
		}
		f.sent = append(f.sent, body)
		w.Write([]byte(`{"ok":true,"result":{}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"ok":false,"description":"Not Found"}`))
	}
}

func TestTelegram_UpdatesAdvanceOffset(t *testing.T) {
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	tg := NewTelegram("TOKEN", WithBaseURL(srv.URL), WithPollTimeout(0), WithRetryDelay(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := tg.Updates(ctx)
	first := <-updates
	second := <-updates
	assert.Equal(t, "restart-slot", first.Name)
	assert.Equal(t, int64(5), first.ChannelID)
	assert.Equal(t, time.Unix(1700000000, 0), first.ReceivedAt)
	assert.Equal(t, "status", second.Name)

	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return len(api.offsets) >= 2
	}, time.Second, 5*time.Millisecond)
	api.mu.Lock()
	assert.Equal(t, []string{"0", "44"}, api.offsets[:2])
	api.mu.Unlock()
}

func TestTelegram_Reply(t *testing.T) {
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	tg := NewTelegram("TOKEN", WithBaseURL(srv.URL))
	require.NoError(t, tg.Reply(context.Background(), 5, strings.Repeat("x", 5000)))

	api.mu.Lock()
	require.Len(t, api.sent, 1)
	text := api.sent[0]["text"].(string)
	api.mu.Unlock()
	assert.Len(t, text, maxMessageBytes)
	assert.True(t, strings.HasSuffix(text, "..."))

	err := tg.Reply(context.Background(), 0, "hi")
	assert.ErrorIs(t, err, ErrTelegramAPI)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegram_ReplyTruncatesOnRuneBoundary(t *testing.T) {
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	tg := NewTelegram("TOKEN", WithBaseURL(srv.URL))
	require.NoError(t, tg.Reply(context.Background(), 5, strings.Repeat("é", 3000)))

	api.mu.Lock()
	require.Len(t, api.sent, 1)
	text := api.sent[0]["text"].(string)
	api.mu.Unlock()
	assert.True(t, utf8.ValidString(text))
	assert.NotContains(t, text, "\uFFFD")
	assert.LessOrEqual(t, len(text), maxMessageBytes)
	assert.Equal(t, strings.Repeat("é", 2046)+"...", text)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmn", 10))
	// "日" is three bytes; a cut at byte 7 lands mid-rune
	assert.Equal(t, "日日...", truncate("日日日日", 10))
}

func TestTelegram_TransportErrorsHideToken(t *testing.T) {
	srv := httptest.NewServer(&fakeBotAPI{})
	srv.Close()

	const token = "123456:SECRET-bot-token"
	tg := NewTelegram(token, WithBaseURL(srv.URL), WithPollTimeout(0))

	err := tg.Reply(context.Background(), 5, "hi")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), token)
	assert.Contains(t, err.Error(), "bot<redacted>/sendMessage")

	_, err = tg.poll(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), token)
}

func TestToken_RoundTrip(t *testing.T) {
	token, err := IssueToken("s3cret", 77, time.Hour)
	require.NoError(t, err)

	id, err := ParseToken("s3cret", token)
	require.NoError(t, err)
	assert.Equal(t, int64(77), id)

	_, err = ParseToken("other", token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	expired, err := IssueToken("s3cret", 77, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken("s3cret", expired)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = IssueToken("", 1, time.Hour)
	assert.Error(t, err)
}

func TestWebSocket_RejectsMissingToken(t *testing.T) {
	ws := NewWebSocket("s3cret", nil)
	srv := httptest.NewServer(ws)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_CommandsAndReplies(t *testing.T) {
	ws := NewWebSocket("s3cret", nil)
	srv := httptest.NewServer(ws)
	defer srv.Close()

	token, err := IssueToken("s3cret", 9, time.Hour)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return ws.Connected() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := ws.Updates(ctx)

	require.NoError(t, conn.WriteJSON(wsMessage{Type: "command", Text: "restart 2"}))
	select {
	case cmd := <-updates:
		assert.Equal(t, "restart", cmd.Name)
		assert.Equal(t, []string{"2"}, cmd.Args)
		assert.Equal(t, int64(9), cmd.ChannelID)
	case <-time.After(2 * time.Second):
		t.Fatal("command not delivered")
	}

	require.NoError(t, ws.Reply(ctx, 9, "Restarting slot 2"))
	require.NoError(t, ws.Reply(ctx, 10, "nobody listening"))

	var msg wsMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, wsMessage{Type: "reply", Text: "Restarting slot 2"}, msg)

	conn.Close()
	require.Eventually(t, func() bool { return ws.Connected() == 0 }, time.Second, 5*time.Millisecond)
}
