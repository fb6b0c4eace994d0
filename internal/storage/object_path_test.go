package storage

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{name: "小写字母数字保留", value: "abc123", expected: "abc123"},
		{name: "大写转小写", value: "ABC-123", expected: "abc-123"},
		{name: "非法字符剔除", value: "a/b\\c..d", expected: "abcd"},
		{name: "下划线保留", value: "a_b-c", expected: "a_b-c"},
		{name: "空白", value: "   ", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeToken(tt.value)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestNormalizeExtension(t *testing.T) {
	tests := []struct {
		name     string
		ext      string
		expected string
	}{
		{name: "普通扩展名", ext: "png", expected: "png"},
		{name: "带点", ext: ".jpg", expected: "jpg"},
		{name: "空值回退 bin", ext: "", expected: "bin"},
		{name: "大写转小写", ext: "WEBP", expected: "webp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := normalizeExtension(tt.ext)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestBuildObjectPath(t *testing.T) {
	t.Run("完整路径结构", func(t *testing.T) {
		now := time.Now().UTC()
		datedir := fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day())

		result := buildObjectPath("text-to-image", "pred-1_0", "png")

		expected := "text-to-image/" + datedir + "/pred-1_0.png"
		if result != expected {
			t.Errorf("expected %q, got %q", expected, result)
		}
	})

	t.Run("空分类回退 misc", func(t *testing.T) {
		result := buildObjectPath("", "base", "png")
		if !strings.HasPrefix(result, "misc/") {
			t.Errorf("expected misc prefix, got %q", result)
		}
	})

	t.Run("空基础名使用时间戳", func(t *testing.T) {
		result := buildObjectPath("works", "", "jpg")
		if !strings.HasSuffix(result, ".jpg") {
			t.Errorf("expected .jpg suffix, got %q", result)
		}
		parts := strings.Split(result, "/")
		if len(parts) != 5 {
			t.Errorf("expected 5 path segments, got %q", result)
		}
	})
}

func TestJoinPrefix(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		key      string
		expected string
	}{
		{name: "无前缀", prefix: "", key: "a/b.png", expected: "a/b.png"},
		{name: "普通前缀", prefix: "uploads", key: "a/b.png", expected: "uploads/a/b.png"},
		{name: "前缀两侧斜杠被去除", prefix: "/uploads/", key: "/a/b.png", expected: "uploads/a/b.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := joinPrefix(tt.prefix, tt.key)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestSanitizeFileBase(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{name: "空格转横线", value: "my file", expected: "my-file"},
		{name: "两侧分隔符去除", value: "-_file_-", expected: "file"},
		{name: "路径穿越被剔除", value: "../../etc/passwd", expected: "etcpasswd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sanitizeFileBase(tt.value)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name     string
		ext      string
		expected string
	}{
		{name: "png", ext: "png", expected: "image/png"},
		{name: "未知类型回退二进制", ext: "weird", expected: "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := detectContentType(tt.ext)
			if !strings.HasPrefix(result, tt.expected) {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}
