package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"arbiter/internal/agent/sentiment"
)

type mockChat struct{ mock.Mock }

func (m *mockChat) Call(ctx context.Context, p ChatPayload) (string, error) {
	args := m.Called(ctx, p)
	return args.String(0), args.Error(1)
}

func TestMoodClassifierParse(t *testing.T) {
	cases := []struct {
		name    string
		reply   string
		want    sentiment.Psychology
		wantErr bool
	}{
		{name: "plain", reply: `{"mood":"FOMO","confidence":0.8,"reasoning":"rally talk"}`, want: sentiment.PsychFOMO},
		{name: "fenced", reply: "```json\n{\"mood\":\"FEAR\",\"confidence\":0.7}\n```", want: sentiment.PsychFear},
		{name: "unknown label", reply: `{"mood":"EUPHORIA","confidence":0.8}`, wantErr: true},
		{name: "confidence out of range", reply: `{"mood":"MIXED","confidence":3}`, wantErr: true},
		{name: "prose", reply: "I think it is fear.", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chat := &mockChat{}
			chat.On("Call", mock.Anything, mock.MatchedBy(func(p ChatPayload) bool {
				return p.ExpectJSON && p.System != ""
			})).Return(tc.reply, nil)
			c, err := NewMoodClassifier(chat)
			require.NoError(t, err)
			mood, err := c.Classify(context.Background(), []string{"IBM surges"})
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, mood.Label)
			chat.AssertExpectations(t)
		})
	}
}

func TestMoodClassifierPropagatesModelError(t *testing.T) {
	chat := &mockChat{}
	chat.On("Call", mock.Anything, mock.Anything).Return("", errors.New("boom"))
	c, err := NewMoodClassifier(chat)
	require.NoError(t, err)
	_, err = c.Classify(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "boom")

	mood, err := c.Classify(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, sentiment.PsychNeutral, mood.Label)
}

func TestOpenAIChatClientRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"mood\":\"NEUTRAL\",\"confidence\":0.5}"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIChatClient(srv.URL+"/v1/chat/completions", "sk-test", "gpt-4o-mini", 5*time.Second)
	out, err := client.Call(context.Background(), ChatPayload{User: "hi", ExpectJSON: true})
	require.NoError(t, err)
	assert.Contains(t, out, "NEUTRAL")
	assert.Equal(t, 2, calls)
}

func TestOpenAIChatClientSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()
	client := NewOpenAIChatClient(srv.URL, "x", "m", time.Second)
	_, err := client.Call(context.Background(), ChatPayload{User: "hi"})
	assert.ErrorContains(t, err, "status=401: bad key")
}

func TestBuildMoodClassifier(t *testing.T) {
	c, err := BuildMoodClassifier(MoodConfig{Provider: "keyword"})
	require.NoError(t, err)
	assert.IsType(t, sentiment.KeywordClassifier{}, c)

	c, err = BuildMoodClassifier(MoodConfig{Provider: "OpenAI", APIURL: "http://localhost", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &MoodClassifier{}, c)
}
