package sql

import (
	"context"
	"errors"
	"testing"
	"time"

	"pixelforge/internal/entity"

	"gorm.io/gorm"
)

func TestAdjustPoints(t *testing.T) {
	t.Run("充值写入流水且余额快照一致", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 100)

		txn, err := repo.AdjustPoints(context.Background(), user.ID, 50,
			entity.TransactionTypeGrant, nil, entity.JSONMap{"reason": "test"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if txn.Amount != 50 {
			t.Errorf("expected amount 50, got %d", txn.Amount)
		}
		if txn.BalanceBefore != 100 {
			t.Errorf("expected balance_before 100, got %d", txn.BalanceBefore)
		}
		if txn.BalanceAfter != 150 {
			t.Errorf("expected balance_after 150, got %d", txn.BalanceAfter)
		}
		if txn.BalanceAfter != txn.BalanceBefore+txn.Amount {
			t.Errorf("balance snapshot mismatch: %d != %d + %d",
				txn.BalanceAfter, txn.BalanceBefore, txn.Amount)
		}
		if txn.Status != entity.TransactionStatusCompleted {
			t.Errorf("expected status completed, got %q", txn.Status)
		}

		if balance := mustBalance(t, repo, user.ID); balance != 150 {
			t.Errorf("expected balance 150, got %d", balance)
		}
	})

	t.Run("负金额扣减并写入流水", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 100)

		txn, err := repo.AdjustPoints(context.Background(), user.ID, -30,
			entity.TransactionTypeGrant, nil, entity.JSONMap{"reason": "correction"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if txn.Amount != -30 {
			t.Errorf("expected amount -30, got %d", txn.Amount)
		}
		if txn.BalanceBefore != 100 || txn.BalanceAfter != 70 {
			t.Errorf("unexpected snapshots: before %d after %d",
				txn.BalanceBefore, txn.BalanceAfter)
		}
		if balance := mustBalance(t, repo, user.ID); balance != 70 {
			t.Errorf("expected balance 70, got %d", balance)
		}
	})

	t.Run("扣减超过余额返回余额不足", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 20)

		_, err := repo.AdjustPoints(context.Background(), user.ID, -30,
			entity.TransactionTypeGrant, nil, nil)
		if !errors.Is(err, entity.ErrInsufficientBalance) {
			t.Fatalf("expected ErrInsufficientBalance, got %v", err)
		}

		if balance := mustBalance(t, repo, user.ID); balance != 20 {
			t.Errorf("expected balance untouched at 20, got %d", balance)
		}
		if count := countTransactions(t, repo, user.ID, entity.TransactionTypeGrant); count != 0 {
			t.Errorf("expected no transaction rows, got %d", count)
		}
	})

	t.Run("零金额被拒绝", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 100)

		if _, err := repo.AdjustPoints(context.Background(), user.ID, 0,
			entity.TransactionTypeGrant, nil, nil); err == nil {
			t.Error("expected error for zero amount")
		}
	})

	t.Run("用户不存在", func(t *testing.T) {
		repo := newTestRepository(t)

		_, err := repo.AdjustPoints(context.Background(), 9999, 50,
			entity.TransactionTypeGrant, nil, nil)
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}

		_, err = repo.AdjustPoints(context.Background(), 9999, -50,
			entity.TransactionTypeGrant, nil, nil)
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound for deduction, got %v", err)
		}
	})
}

func TestApplyUpgrade(t *testing.T) {
	t.Run("套餐变更写入零金额流水", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 80)

		expireAt := time.Now().UTC().AddDate(0, 0, 30)
		if err := repo.ApplyUpgrade(context.Background(), user.ID, entity.PlanPro, &expireAt); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		updated, err := repo.GetUserByID(context.Background(), user.ID)
		if err != nil {
			t.Fatalf("failed to load user: %v", err)
		}
		if updated.Plan != entity.PlanPro {
			t.Errorf("expected plan pro, got %q", updated.Plan)
		}
		if updated.PlanExpireAt == nil {
			t.Fatal("expected plan_expire_at to be set")
		}
		if updated.Points != 80 {
			t.Errorf("upgrade must not touch the balance, got %d", updated.Points)
		}

		if count := countTransactions(t, repo, user.ID, entity.TransactionTypeUpgrade); count != 1 {
			t.Errorf("expected 1 upgrade transaction, got %d", count)
		}
	})

	t.Run("用户不存在", func(t *testing.T) {
		repo := newTestRepository(t)

		err := repo.ApplyUpgrade(context.Background(), 9999, entity.PlanPro, nil)
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound, got %v", err)
		}
	})
}

func TestListTransactions(t *testing.T) {
	repo := newTestRepository(t)
	user := createTestUser(t, repo, 0)
	other := createTestUser(t, repo, 0)

	for i := 0; i < 3; i++ {
		if _, err := repo.AdjustPoints(context.Background(), user.ID, 10,
			entity.TransactionTypeGrant, nil, nil); err != nil {
			t.Fatalf("failed to seed transactions: %v", err)
		}
	}
	if _, err := repo.AdjustPoints(context.Background(), other.ID, 10,
		entity.TransactionTypeGrant, nil, nil); err != nil {
		t.Fatalf("failed to seed transactions: %v", err)
	}

	t.Run("按用户过滤", func(t *testing.T) {
		transactions, meta, err := repo.ListTransactions(context.Background(),
			&entity.TransactionQuery{UserID: user.ID})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if meta.Total != 3 {
			t.Errorf("expected total 3, got %d", meta.Total)
		}
		for _, txn := range transactions {
			if txn.UserID != user.ID {
				t.Errorf("expected user_id %d, got %d", user.ID, txn.UserID)
			}
		}
	})

	t.Run("分页", func(t *testing.T) {
		params := &entity.TransactionQuery{UserID: user.ID}
		params.Page = 1
		params.PageSize = 2

		transactions, meta, err := repo.ListTransactions(context.Background(), params)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(transactions) != 2 {
			t.Errorf("expected 2 rows, got %d", len(transactions))
		}
		if meta.Total != 3 {
			t.Errorf("expected total 3, got %d", meta.Total)
		}
	})
}
