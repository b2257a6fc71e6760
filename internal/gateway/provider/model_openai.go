package provider

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"arbiter/internal/logger"
)

// ChatPayload 是一次聊天补全请求。
type ChatPayload struct {
	System     string
	User       string
	ExpectJSON bool
	MaxTokens  int
}

// OpenAIChatClient 兼容 OpenAI / DeepSeek / Qwen 的 /chat/completions 接口。
type OpenAIChatClient struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	// 429/5xx 的重试次数，0 表示默认 2 次
	MaxRetries   int
	ExtraHeaders map[string]string

	http *resty.Client
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func NewOpenAIChatClient(baseURL, apiKey, model string, timeout time.Duration) *OpenAIChatClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIChatClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Timeout: timeout,
		http:    resty.New().SetTimeout(timeout),
	}
}

func (c *OpenAIChatClient) endpoint() string {
	url := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if url == "" {
		url = "https://api.openai.com/v1"
	}
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

// Call 发送一次补全请求，对 429/5xx 做有限重试并尊重 Retry-After。
func (c *OpenAIChatClient) Call(ctx context.Context, payload ChatPayload) (string, error) {
	if c.http == nil {
		c.http = resty.New().SetTimeout(c.Timeout)
	}
	maxRetries := c.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	messages := make([]map[string]string, 0, 2)
	if payload.System != "" {
		messages = append(messages, map[string]string{"role": "system", "content": payload.System})
	}
	messages = append(messages, map[string]string{"role": "user", "content": payload.User})
	body := map[string]any{"model": c.Model, "messages": messages, "temperature": 0.2}
	if payload.ExpectJSON {
		body["response_format"] = map[string]string{"type": "json_object"}
	}
	if payload.MaxTokens > 0 {
		body["max_tokens"] = payload.MaxTokens
	}
	url := c.endpoint()
	logger.Debugf("[AI] 请求: POST %s model=%s key=%s", url, c.Model, maskKey(c.APIKey))

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		var ok chatResponse
		var fail chatError
		req := c.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetHeaders(c.ExtraHeaders).
			SetBody(body).
			SetResult(&ok).
			SetError(&fail)
		if c.APIKey != "" {
			req.SetAuthToken(c.APIKey)
		}
		resp, err := req.Post(url)
		if err != nil {
			return "", err
		}
		if resp.IsSuccess() {
			if len(ok.Choices) == 0 {
				return "", fmt.Errorf("empty choices")
			}
			return ok.Choices[0].Message.Content, nil
		}
		msg := strings.TrimSpace(fail.Error.Message)
		if msg == "" {
			msg = resp.Status()
		}
		lastErr = fmt.Errorf("status=%d: %s", resp.StatusCode(), msg)
		if !retryable(resp.StatusCode()) || attempt == maxRetries {
			break
		}
		wait := backoff(attempt, resp.Header().Get("Retry-After"))
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", lastErr
}

func retryable(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// backoff 优先使用 Retry-After，否则 0.8s 起指数退避，上限 8s。
func backoff(attempt int, retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	wait := (800 * time.Millisecond) << attempt
	if wait > 8*time.Second {
		wait = 8 * time.Second
	}
	return wait
}

func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) > 4 {
		return "****" + key[len(key)-4:]
	}
	return "****"
}
