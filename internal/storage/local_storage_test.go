package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorageSave(t *testing.T) {
	t.Run("写入并返回相对路径", func(t *testing.T) {
		baseDir := t.TempDir()
		store, err := NewLocalStorage(baseDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		relPath, err := store.Save(context.Background(), []byte("image-bytes"), SaveOptions{
			Category:  "text-to-image",
			Extension: "png",
			BaseName:  "pred-1_0",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !strings.HasPrefix(relPath, "text-to-image/") {
			t.Errorf("expected category prefix, got %q", relPath)
		}
		if !strings.HasSuffix(relPath, "pred-1_0.png") {
			t.Errorf("expected file name suffix, got %q", relPath)
		}

		absPath := filepath.Join(baseDir, filepath.FromSlash(relPath))
		data, err := os.ReadFile(absPath)
		if err != nil {
			t.Fatalf("failed to read saved file: %v", err)
		}
		if string(data) != "image-bytes" {
			t.Errorf("unexpected file content %q", string(data))
		}
	})

	t.Run("SkipIfExists 不覆盖已有文件", func(t *testing.T) {
		baseDir := t.TempDir()
		store, err := NewLocalStorage(baseDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		opts := SaveOptions{Category: "works", Extension: "png", BaseName: "same"}
		relPath, err := store.Save(context.Background(), []byte("first"), opts)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		opts.SkipIfExists = true
		if _, err := store.Save(context.Background(), []byte("second"), opts); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		data, err := os.ReadFile(filepath.Join(baseDir, filepath.FromSlash(relPath)))
		if err != nil {
			t.Fatalf("failed to read saved file: %v", err)
		}
		if string(data) != "first" {
			t.Errorf("expected original content to survive, got %q", string(data))
		}
	})

	t.Run("空数据被拒绝", func(t *testing.T) {
		store, err := NewLocalStorage(t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if _, err := store.Save(context.Background(), nil, SaveOptions{Extension: "png"}); err == nil {
			t.Error("expected error for empty payload")
		}
	})

	t.Run("已取消的上下文", func(t *testing.T) {
		store, err := NewLocalStorage(t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := store.Save(ctx, []byte("data"), SaveOptions{Extension: "png"}); err == nil {
			t.Error("expected error for canceled context")
		}
	})
}
