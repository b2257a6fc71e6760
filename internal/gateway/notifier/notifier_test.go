package notifier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderMarkdown(t *testing.T) {
	msg := StructuredMessage{
		Icon:  "🛑",
		Title: "风控熔断",
		Sections: []MessageSection{
			{Title: "stop", Lines: []string{"  losses 3 ", "", "code ``` fence"}},
			{Title: "empty", Lines: []string{" "}},
		},
		Footer:    "loop-1",
		Timestamp: time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
	}
	out := msg.RenderMarkdown()
	assert.True(t, strings.HasPrefix(out, "*🛑 风控熔断*"))
	assert.Contains(t, out, "- losses 3\n")
	assert.Contains(t, out, "code ''' fence")
	assert.NotContains(t, out, "empty")
	assert.Contains(t, out, "`loop-1`")
	assert.True(t, strings.HasSuffix(out, "2026-03-10 15:00:00 UTC"))

	long := StructuredMessage{Sections: []MessageSection{{Lines: []string{strings.Repeat("x", 5000)}}}}
	assert.LessOrEqual(t, len(long.RenderMarkdown()), maxStructuredMessageLen+3)
	assert.True(t, StructuredMessage{Sections: []MessageSection{{Title: "x"}}}.Empty())
}

func TestTelegramSend(t *testing.T) {
	var got map[string]any
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := newTelegram(srv.URL, "token", "42")
	require.NoError(t, tg.SendStructured(StructuredMessage{Title: "成交"}))
	assert.Equal(t, 2, calls)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "Markdown", got["parse_mode"])

	assert.NoError(t, tg.SendStructured(StructuredMessage{}))
	assert.Equal(t, 2, calls)

	assert.Error(t, NewTelegram("", "").SendText("x"))
}
