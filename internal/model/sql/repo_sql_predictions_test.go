package sql

import (
	"context"
	"errors"
	"testing"
	"time"

	"pixelforge/internal/entity"

	"gorm.io/gorm"
)

func submitTestPrediction(t *testing.T, repo *GormRepository, userID uint, id string, cost int64) *entity.DbTransaction {
	t.Helper()

	prediction := &entity.DbPrediction{
		ID:         id,
		UserID:     userID,
		Kind:       entity.WorkKindTextToImage,
		Model:      "flux-schnell",
		Input:      entity.JSONMap{"prompt": "a cat"},
		PointsCost: cost,
		Status:     entity.PredictionStatusStarting,
	}
	txn, err := repo.SubmitPrediction(context.Background(), prediction)
	if err != nil {
		t.Fatalf("failed to submit prediction: %v", err)
	}
	return txn
}

func TestSubmitPrediction(t *testing.T) {
	t.Run("扣减积分并写入流水", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 100)

		txn := submitTestPrediction(t, repo, user.ID, "pred-1", 15)

		if txn.Amount != -15 {
			t.Errorf("expected amount -15, got %d", txn.Amount)
		}
		if txn.BalanceBefore != 100 || txn.BalanceAfter != 85 {
			t.Errorf("expected snapshot 100 -> 85, got %d -> %d",
				txn.BalanceBefore, txn.BalanceAfter)
		}
		if txn.Type != entity.TransactionTypePayment {
			t.Errorf("expected type payment, got %q", txn.Type)
		}
		if txn.PredictionID == nil || *txn.PredictionID != "pred-1" {
			t.Error("expected transaction to reference the prediction")
		}

		if balance := mustBalance(t, repo, user.ID); balance != 85 {
			t.Errorf("expected balance 85, got %d", balance)
		}

		prediction, err := repo.GetPrediction(context.Background(), "pred-1")
		if err != nil {
			t.Fatalf("failed to load prediction: %v", err)
		}
		if prediction.Status != entity.PredictionStatusStarting {
			t.Errorf("expected status starting, got %q", prediction.Status)
		}
	})

	t.Run("余额不足时整个事务回滚", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 10)

		prediction := &entity.DbPrediction{
			ID:         "pred-2",
			UserID:     user.ID,
			Kind:       entity.WorkKindTextToImage,
			PointsCost: 15,
		}
		_, err := repo.SubmitPrediction(context.Background(), prediction)
		if !errors.Is(err, entity.ErrInsufficientBalance) {
			t.Fatalf("expected ErrInsufficientBalance, got %v", err)
		}

		if balance := mustBalance(t, repo, user.ID); balance != 10 {
			t.Errorf("expected balance unchanged at 10, got %d", balance)
		}
		if _, err := repo.GetPrediction(context.Background(), "pred-2"); !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Errorf("expected no prediction row, got %v", err)
		}
		if count := countTransactions(t, repo, user.ID, entity.TransactionTypePayment); count != 0 {
			t.Errorf("expected no payment transaction, got %d", count)
		}
	})

	t.Run("非法参数被拒绝", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 100)

		if _, err := repo.SubmitPrediction(context.Background(), nil); err == nil {
			t.Error("expected error for nil prediction")
		}
		if _, err := repo.SubmitPrediction(context.Background(),
			&entity.DbPrediction{ID: "", UserID: user.ID, PointsCost: 10}); err == nil {
			t.Error("expected error for empty id")
		}
		if _, err := repo.SubmitPrediction(context.Background(),
			&entity.DbPrediction{ID: "pred-3", UserID: user.ID, PointsCost: 0}); err == nil {
			t.Error("expected error for non-positive cost")
		}
	})
}

func TestUpdatePrediction(t *testing.T) {
	t.Run("非终态转换", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 100)
		submitTestPrediction(t, repo, user.ID, "pred-1", 15)

		status := entity.PredictionStatusProcessing
		startedAt := time.Now().UTC()
		err := repo.UpdatePrediction(context.Background(), "pred-1", entity.PredictionUpdates{
			Status:    &status,
			StartedAt: &startedAt,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		prediction, err := repo.GetPrediction(context.Background(), "pred-1")
		if err != nil {
			t.Fatalf("failed to load prediction: %v", err)
		}
		if prediction.Status != entity.PredictionStatusProcessing {
			t.Errorf("expected status processing, got %q", prediction.Status)
		}
		if prediction.StartedAt == nil {
			t.Error("expected started_at to be set")
		}
	})

	t.Run("终态必须走 finalize", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 100)
		submitTestPrediction(t, repo, user.ID, "pred-1", 15)

		status := entity.PredictionStatusSucceeded
		err := repo.UpdatePrediction(context.Background(), "pred-1",
			entity.PredictionUpdates{Status: &status})
		if err == nil {
			t.Fatal("expected error for terminal status update")
		}
	})
}

func TestFinalizePredictionFailure(t *testing.T) {
	t.Run("退款恰好一次", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 100)
		submitTestPrediction(t, repo, user.ID, "pred-1", 15)

		status := entity.PredictionStatusFailed
		errMsg := "NSFW content detected"
		completedAt := time.Now().UTC()
		updates := entity.PredictionUpdates{
			Status:       &status,
			ErrorMessage: &errMsg,
			CompletedAt:  &completedAt,
		}

		applied, err := repo.FinalizePredictionFailure(context.Background(), "pred-1", updates)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !applied {
			t.Fatal("expected first finalize to apply")
		}

		if balance := mustBalance(t, repo, user.ID); balance != 100 {
			t.Errorf("expected refunded balance 100, got %d", balance)
		}
		if count := countTransactions(t, repo, user.ID, entity.TransactionTypeRefund); count != 1 {
			t.Errorf("expected 1 refund transaction, got %d", count)
		}

		// 重复投递：条件更新不命中，不再退款
		applied, err = repo.FinalizePredictionFailure(context.Background(), "pred-1", updates)
		if err != nil {
			t.Fatalf("unexpected error on duplicate finalize: %v", err)
		}
		if applied {
			t.Error("expected duplicate finalize to be a no-op")
		}
		if balance := mustBalance(t, repo, user.ID); balance != 100 {
			t.Errorf("expected balance still 100, got %d", balance)
		}
		if count := countTransactions(t, repo, user.ID, entity.TransactionTypeRefund); count != 1 {
			t.Errorf("expected refund count still 1, got %d", count)
		}

		prediction, err := repo.GetPrediction(context.Background(), "pred-1")
		if err != nil {
			t.Fatalf("failed to load prediction: %v", err)
		}
		if prediction.Status != entity.PredictionStatusFailed {
			t.Errorf("expected status failed, got %q", prediction.Status)
		}
		if prediction.ErrorMessage != errMsg {
			t.Errorf("expected error message %q, got %q", errMsg, prediction.ErrorMessage)
		}
	})

	t.Run("取消同样触发退款", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 50)
		submitTestPrediction(t, repo, user.ID, "pred-1", 20)

		status := entity.PredictionStatusCanceled
		applied, err := repo.FinalizePredictionFailure(context.Background(), "pred-1",
			entity.PredictionUpdates{Status: &status})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !applied {
			t.Fatal("expected finalize to apply")
		}
		if balance := mustBalance(t, repo, user.ID); balance != 50 {
			t.Errorf("expected balance 50 after refund, got %d", balance)
		}
	})

	t.Run("非失败状态被拒绝", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 100)
		submitTestPrediction(t, repo, user.ID, "pred-1", 15)

		status := entity.PredictionStatusSucceeded
		if _, err := repo.FinalizePredictionFailure(context.Background(), "pred-1",
			entity.PredictionUpdates{Status: &status}); err == nil {
			t.Error("expected error for succeeded status")
		}
	})
}

func TestFinalizePredictionSuccess(t *testing.T) {
	t.Run("创建作品恰好一次且不退款", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 100)
		submitTestPrediction(t, repo, user.ID, "pred-1", 15)

		status := entity.PredictionStatusSucceeded
		output := entity.StringArray{"https://cdn.example.com/out.png"}
		completedAt := time.Now().UTC()
		updates := entity.PredictionUpdates{
			Status:      &status,
			Output:      &output,
			CompletedAt: &completedAt,
		}
		work := &entity.DbWork{
			UserID:         user.ID,
			Title:          "Sunset Cat",
			Kind:           entity.WorkKindTextToImage,
			ProcessedImage: "https://cdn.example.com/out.png",
			Status:         entity.WorkStatusVisible,
			PointsCost:     15,
			CompletedAt:    &completedAt,
		}

		applied, err := repo.FinalizePredictionSuccess(context.Background(), "pred-1", updates, work)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !applied {
			t.Fatal("expected first finalize to apply")
		}
		if work.PredictionID != "pred-1" {
			t.Errorf("expected work to reference prediction, got %q", work.PredictionID)
		}

		// 成功不退款，扣减即消费
		if balance := mustBalance(t, repo, user.ID); balance != 85 {
			t.Errorf("expected balance 85, got %d", balance)
		}
		if count := countTransactions(t, repo, user.ID, entity.TransactionTypeRefund); count != 0 {
			t.Errorf("expected no refund transaction, got %d", count)
		}

		// 重复投递不再创建作品
		duplicate := &entity.DbWork{
			UserID:     user.ID,
			Kind:       entity.WorkKindTextToImage,
			PointsCost: 15,
		}
		applied, err = repo.FinalizePredictionSuccess(context.Background(), "pred-1", updates, duplicate)
		if err != nil {
			t.Fatalf("unexpected error on duplicate finalize: %v", err)
		}
		if applied {
			t.Error("expected duplicate finalize to be a no-op")
		}

		var workCount int64
		if err := repo.db.Model(&entity.DbWork{}).
			Where("prediction_id = ?", "pred-1").Count(&workCount).Error; err != nil {
			t.Fatalf("failed to count works: %v", err)
		}
		if workCount != 1 {
			t.Errorf("expected exactly 1 work, got %d", workCount)
		}

		prediction, err := repo.GetPrediction(context.Background(), "pred-1")
		if err != nil {
			t.Fatalf("failed to load prediction: %v", err)
		}
		if prediction.Status != entity.PredictionStatusSucceeded {
			t.Errorf("expected status succeeded, got %q", prediction.Status)
		}
		if prediction.Output.First() != "https://cdn.example.com/out.png" {
			t.Errorf("unexpected output: %v", prediction.Output)
		}
	})

	t.Run("失败终态之后不可再成功", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 100)
		submitTestPrediction(t, repo, user.ID, "pred-1", 15)

		failed := entity.PredictionStatusFailed
		if _, err := repo.FinalizePredictionFailure(context.Background(), "pred-1",
			entity.PredictionUpdates{Status: &failed}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		succeeded := entity.PredictionStatusSucceeded
		applied, err := repo.FinalizePredictionSuccess(context.Background(), "pred-1",
			entity.PredictionUpdates{Status: &succeeded},
			&entity.DbWork{UserID: user.ID, Kind: entity.WorkKindTextToImage})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if applied {
			t.Error("expected success finalize after failure to be a no-op")
		}
	})

	t.Run("缺少作品被拒绝", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 100)
		submitTestPrediction(t, repo, user.ID, "pred-1", 15)

		status := entity.PredictionStatusSucceeded
		if _, err := repo.FinalizePredictionSuccess(context.Background(), "pred-1",
			entity.PredictionUpdates{Status: &status}, nil); err == nil {
			t.Error("expected error for nil work")
		}
	})
}

func TestListPredictions(t *testing.T) {
	repo := newTestRepository(t)
	user := createTestUser(t, repo, 1000)
	submitTestPrediction(t, repo, user.ID, "pred-1", 10)
	submitTestPrediction(t, repo, user.ID, "pred-2", 10)

	failed := entity.PredictionStatusFailed
	if _, err := repo.FinalizePredictionFailure(context.Background(), "pred-2",
		entity.PredictionUpdates{Status: &failed}); err != nil {
		t.Fatalf("failed to finalize: %v", err)
	}

	t.Run("按状态过滤", func(t *testing.T) {
		predictions, meta, err := repo.ListPredictions(context.Background(),
			&entity.PredictionQuery{UserID: user.ID, Status: entity.PredictionStatusFailed})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if meta.Total != 1 {
			t.Errorf("expected total 1, got %d", meta.Total)
		}
		if len(predictions) != 1 || predictions[0].ID != "pred-2" {
			t.Errorf("unexpected predictions: %+v", predictions)
		}
	})

	t.Run("全部", func(t *testing.T) {
		_, meta, err := repo.ListPredictions(context.Background(),
			&entity.PredictionQuery{UserID: user.ID})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if meta.Total != 2 {
			t.Errorf("expected total 2, got %d", meta.Total)
		}
	})
}
