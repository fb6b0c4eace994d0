package service

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"pixelforge/internal/entity"
	"pixelforge/internal/provider"
	"pixelforge/internal/storage"
)

type stubProviderClient struct{}

func (stubProviderClient) CreatePrediction(ctx context.Context, req provider.CreateRequest) (*provider.Prediction, error) {
	return nil, errors.New("not implemented")
}

func (stubProviderClient) GetPrediction(ctx context.Context, id string) (*provider.Prediction, error) {
	return nil, provider.ErrPredictionNotFound
}

func (stubProviderClient) CancelPrediction(ctx context.Context, id string) error {
	return nil
}

// flakyStorage 先失败 failures 次，之后按可预测的键保存成功。
type flakyStorage struct {
	failures int
	saves    int
}

func (f *flakyStorage) Save(ctx context.Context, data []byte, opts storage.SaveOptions) (string, error) {
	if f.failures > 0 {
		f.failures--
		return "", errors.New("storage unavailable")
	}
	f.saves++
	return opts.Category + "/" + opts.BaseName + "." + opts.Extension, nil
}

func TestBuildOutputBaseName(t *testing.T) {
	tests := []struct {
		name         string
		predictionID string
		idx          int
		expected     string
	}{
		{
			name:         "正常任务 ID",
			predictionID: "pred-abc123",
			idx:          0,
			expected:     "pred-abc123_0",
		},
		{
			name:         "大写被转小写",
			predictionID: "PRED-XYZ",
			idx:          1,
			expected:     "pred-xyz_1",
		},
		{
			name:         "非法字符被剔除",
			predictionID: "pred/../etc",
			idx:          2,
			expected:     "predetc_2",
		},
		{
			name:         "空 ID 使用占位名",
			predictionID: "",
			idx:          0,
			expected:     "prediction_0",
		},
		{
			name:         "超长 ID 截断到 32 字符",
			predictionID: "abcdefghijklmnopqrstuvwxyz0123456789",
			idx:          3,
			expected:     "abcdefghijklmnopqrstuvwxyz012345_3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := buildOutputBaseName(tt.predictionID, tt.idx)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestNewPredictionService(t *testing.T) {
	svc := NewPredictionService(nil, nil, nil, nil)

	if svc == nil {
		t.Fatal("expected service to be created")
	}
	if svc.notifyFunc != nil {
		t.Error("expected notifyFunc to be nil")
	}
}

func TestNotifyComplete(t *testing.T) {
	t.Run("有通知函数且有 clientID", func(t *testing.T) {
		svc := NewPredictionService(nil, nil, nil, nil)

		var (
			notified     bool
			gotClient    string
			gotID        string
			gotStatus    string
			gotErrorText string
		)
		svc.SetNotifyFunc(func(clientID, predictionID, status, errMsg string) {
			notified = true
			gotClient = clientID
			gotID = predictionID
			gotStatus = status
			gotErrorText = errMsg
		})

		svc.notifyComplete("client-1", "pred-1", "succeeded", "")

		if !notified {
			t.Fatal("expected notification")
		}
		if gotClient != "client-1" || gotID != "pred-1" || gotStatus != "succeeded" || gotErrorText != "" {
			t.Errorf("unexpected notification payload: %q %q %q %q",
				gotClient, gotID, gotStatus, gotErrorText)
		}
	})

	t.Run("空 clientID 不通知", func(t *testing.T) {
		svc := NewPredictionService(nil, nil, nil, nil)

		notified := false
		svc.SetNotifyFunc(func(clientID, predictionID, status, errMsg string) {
			notified = true
		})

		svc.notifyComplete("", "pred-1", "failed", "boom")
		svc.notifyComplete("   ", "pred-1", "failed", "boom")

		if notified {
			t.Error("expected no notification for empty clientID")
		}
	})

	t.Run("无通知函数时不崩溃", func(t *testing.T) {
		svc := NewPredictionService(nil, nil, nil, nil)
		svc.notifyComplete("client-1", "pred-1", "succeeded", "")
	})
}

func TestFinalizeSuccessRetriesAfterStorageFailure(t *testing.T) {
	repo := newRedeemTestRepo(t)
	user := createRedeemTestUser(t, repo, 100)

	record := &entity.DbPrediction{
		ID:         "pred-flaky-1",
		UserID:     user.ID,
		Kind:       entity.WorkKindTextToImage,
		Model:      "black-forest-labs/flux-schnell",
		Input:      entity.JSONMap{"prompt": "a cat in space"},
		PointsCost: 15,
		Status:     entity.PredictionStatusStarting,
	}
	if _, err := repo.SubmitPrediction(context.Background(), record); err != nil {
		t.Fatalf("failed to submit prediction: %v", err)
	}

	store := &flakyStorage{failures: 1}
	svc := NewPredictionService(repo, stubProviderClient{}, store, nil)

	payload := base64.StdEncoding.EncodeToString([]byte("fake-image-bytes"))
	remote := &provider.Prediction{
		ID:     "pred-flaky-1",
		Status: provider.StatusSucceeded,
		Output: []string{"data:image/png;base64," + payload},
	}

	// 存储不可用：落账失败，记录保持非终态，不退款也不建档
	if err := svc.HandleRemoteUpdate(context.Background(), remote); err == nil {
		t.Fatal("expected error while storage is unavailable")
	}

	loaded, err := repo.GetPrediction(context.Background(), "pred-flaky-1")
	if err != nil {
		t.Fatalf("failed to load prediction: %v", err)
	}
	if loaded.Status != entity.PredictionStatusStarting {
		t.Errorf("expected status to stay starting, got %q", loaded.Status)
	}
	if _, meta, err := repo.ListWorks(context.Background(),
		&entity.WorkQuery{UserID: user.ID}); err != nil {
		t.Fatalf("failed to list works: %v", err)
	} else if meta.Total != 0 {
		t.Errorf("expected no works before retry, got %d", meta.Total)
	}
	if balance, err := repo.GetBalance(context.Background(), user.ID); err != nil {
		t.Fatalf("failed to load balance: %v", err)
	} else if balance != 85 {
		t.Errorf("expected balance 85, got %d", balance)
	}

	// 存储恢复：重复投递同一终态，成功落账
	if err := svc.HandleRemoteUpdate(context.Background(), remote); err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}

	loaded, err = repo.GetPrediction(context.Background(), "pred-flaky-1")
	if err != nil {
		t.Fatalf("failed to load prediction: %v", err)
	}
	if loaded.Status != entity.PredictionStatusSucceeded {
		t.Errorf("expected status succeeded, got %q", loaded.Status)
	}
	if len(loaded.Output) != 1 || loaded.Output[0] != "text-to-image/pred-flaky-1_0.png" {
		t.Errorf("unexpected stored output: %v", loaded.Output)
	}

	works, meta, err := repo.ListWorks(context.Background(),
		&entity.WorkQuery{UserID: user.ID})
	if err != nil {
		t.Fatalf("failed to list works: %v", err)
	}
	if meta.Total != 1 {
		t.Fatalf("expected exactly 1 work, got %d", meta.Total)
	}
	if works[0].PredictionID != "pred-flaky-1" {
		t.Errorf("expected work for pred-flaky-1, got %q", works[0].PredictionID)
	}

	// 成功路径不退款
	if _, meta, err := repo.ListTransactions(context.Background(),
		&entity.TransactionQuery{UserID: user.ID, Type: entity.TransactionTypeRefund}); err != nil {
		t.Fatalf("failed to list transactions: %v", err)
	} else if meta.Total != 0 {
		t.Errorf("expected no refund transactions, got %d", meta.Total)
	}
	if balance, err := repo.GetBalance(context.Background(), user.ID); err != nil {
		t.Fatalf("failed to load balance: %v", err)
	} else if balance != 85 {
		t.Errorf("expected balance to stay 85, got %d", balance)
	}

	// 第三次投递：终态后的重复回调是幂等 no-op
	if err := svc.HandleRemoteUpdate(context.Background(), remote); err != nil {
		t.Fatalf("unexpected error on duplicate delivery: %v", err)
	}
	if store.saves != 1 {
		t.Errorf("expected storage save to run once, got %d", store.saves)
	}
	if _, meta, err := repo.ListWorks(context.Background(),
		&entity.WorkQuery{UserID: user.ID}); err != nil {
		t.Fatalf("failed to list works: %v", err)
	} else if meta.Total != 1 {
		t.Errorf("expected 1 work after duplicate delivery, got %d", meta.Total)
	}
}

func TestSubmitValidation(t *testing.T) {
	t.Run("未初始化的服务", func(t *testing.T) {
		var svc *PredictionService
		if _, _, err := svc.Submit(context.Background(), SubmitParams{}); err == nil {
			t.Error("expected error for nil service")
		}
	})
}
