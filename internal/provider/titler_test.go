package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"pixelforge/internal/config"
)

func TestFallbackTitle(t *testing.T) {
	tests := []struct {
		name     string
		prompt   string
		expected string
	}{
		{
			name:     "普通提示词",
			prompt:   "a cat wearing a space helmet",
			expected: "a cat wearing a space helmet",
		},
		{
			name:     "取第一行",
			prompt:   "sunset over mountains\nultra detailed, 8k",
			expected: "sunset over mountains",
		},
		{
			name:     "两侧空白被去除",
			prompt:   "  misty forest  ",
			expected: "misty forest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FallbackTitle(tt.prompt)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}

	t.Run("空提示词使用日期占位", func(t *testing.T) {
		result := FallbackTitle("")
		if !strings.HasPrefix(result, "Untitled ") {
			t.Errorf("expected Untitled prefix, got %q", result)
		}
	})

	t.Run("超长提示词被截断", func(t *testing.T) {
		prompt := strings.Repeat("very long prompt ", 10)
		result := FallbackTitle(prompt)
		if utf8.RuneCountInString(result) > titleMaxRunes+1 {
			t.Errorf("expected at most %d runes plus ellipsis, got %d",
				titleMaxRunes, utf8.RuneCountInString(result))
		}
		if !strings.HasSuffix(result, "…") {
			t.Errorf("expected ellipsis suffix, got %q", result)
		}
	})
}

func TestTitlerGenerateTitle(t *testing.T) {
	t.Run("nil Titler 退回到提示词", func(t *testing.T) {
		var titler *Titler
		result := titler.GenerateTitle(context.Background(), "red panda portrait")
		if result != "red panda portrait" {
			t.Errorf("expected fallback title, got %q", result)
		}
	})

	t.Run("接口返回标题", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" {
				t.Errorf("unexpected path %q", r.URL.Path)
			}
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"\"Cosmic Cat\""}}]}`))
		}))
		defer server.Close()

		titler := NewTitler(config.Config{
			TitleAPIKey:  "key",
			TitleBaseURL: server.URL,
		})
		if titler == nil {
			t.Fatal("expected titler to be created")
		}

		result := titler.GenerateTitle(context.Background(), "a cat in space")
		if result != "Cosmic Cat" {
			t.Errorf("expected Cosmic Cat, got %q", result)
		}
	})

	t.Run("接口出错时退回到提示词", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		titler := NewTitler(config.Config{
			TitleAPIKey:  "key",
			TitleBaseURL: server.URL,
		})

		result := titler.GenerateTitle(context.Background(), "a cat in space")
		if result != "a cat in space" {
			t.Errorf("expected fallback title, got %q", result)
		}
	})

	t.Run("接口返回空内容时退回", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer server.Close()

		titler := NewTitler(config.Config{
			TitleAPIKey:  "key",
			TitleBaseURL: server.URL,
		})

		result := titler.GenerateTitle(context.Background(), "a cat in space")
		if result != "a cat in space" {
			t.Errorf("expected fallback title, got %q", result)
		}
	})
}

func TestNewTitler(t *testing.T) {
	t.Run("缺少密钥返回 nil", func(t *testing.T) {
		if titler := NewTitler(config.Config{}); titler != nil {
			t.Error("expected nil titler without api key")
		}
	})

	t.Run("默认模型与基础地址", func(t *testing.T) {
		titler := NewTitler(config.Config{TitleAPIKey: "key"})
		if titler == nil {
			t.Fatal("expected titler to be created")
		}
		if titler.model != "gpt-4o-mini" {
			t.Errorf("unexpected default model %q", titler.model)
		}
		if titler.baseURL != "https://api.openai.com/v1" {
			t.Errorf("unexpected default base url %q", titler.baseURL)
		}
	})
}
