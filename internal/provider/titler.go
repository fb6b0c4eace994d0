package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"pixelforge/internal/config"

	"github.com/sirupsen/logrus"
)

const (
	titleRequestTimeout = 15 * time.Second
	titleMaxRunes       = 40
)

// Titler 调用 OpenAI 协议的对话接口为作品生成简短标题。
// 接口不可用时退回到基于提示词截断的标题，标题生成永不报错。
type Titler struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewTitler creates a work-title generator. Returns nil when no API key
// is configured; callers treat a nil Titler as fallback-only.
func NewTitler(cfg config.Config) *Titler {
	apiKey := strings.TrimSpace(cfg.TitleAPIKey)
	if apiKey == "" {
		return nil
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.TitleBaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(cfg.TitleModel)
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Titler{
		apiKey:     apiKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: titleRequestTimeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// GenerateTitle 依据提示词生成标题，失败时返回截断的提示词。
func (t *Titler) GenerateTitle(ctx context.Context, prompt string) string {
	fallback := FallbackTitle(prompt)
	if t == nil {
		return fallback
	}

	reqBody := chatCompletionRequest{
		Model: t.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You name AI-generated artworks. Reply with a short title only, at most six words, no quotes."},
			{Role: "user", Content: prompt},
		},
		MaxTokens: 32,
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return fallback
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return fallback
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		logrus.WithError(err).Warn("title generation request failed")
		return fallback
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fallback
	}
	if resp.StatusCode != http.StatusOK {
		logrus.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(body),
		}).Warn("title generation http error")
		return fallback
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return fallback
	}
	if len(parsed.Choices) == 0 {
		return fallback
	}

	title := strings.Trim(strings.TrimSpace(parsed.Choices[0].Message.Content), `"'`)
	if title == "" {
		return fallback
	}
	return truncateRunes(title, titleMaxRunes)
}

// FallbackTitle 从提示词派生标题：取第一行并截断。
func FallbackTitle(prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return fmt.Sprintf("Untitled %s", time.Now().UTC().Format("2006-01-02"))
	}
	if idx := strings.IndexAny(trimmed, "\r\n"); idx >= 0 {
		trimmed = strings.TrimSpace(trimmed[:idx])
	}
	return truncateRunes(trimmed, titleMaxRunes)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
