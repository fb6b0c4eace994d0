package sql

import (
	"context"
	"errors"
	"testing"
	"time"

	"pixelforge/internal/entity"
)

func TestCreateRedeemCode(t *testing.T) {
	t.Run("重复码返回 ErrDuplicateCode", func(t *testing.T) {
		repo := newTestRepository(t)

		code := &entity.DbRedeemCode{
			Code:       "WELCOME-100",
			Type:       entity.RedeemCodeTypePoints,
			Points:     100,
			UsageLimit: 1,
		}
		if err := repo.CreateRedeemCode(context.Background(), code); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		duplicate := &entity.DbRedeemCode{
			Code:       "WELCOME-100",
			Type:       entity.RedeemCodeTypePoints,
			Points:     50,
			UsageLimit: 1,
		}
		err := repo.CreateRedeemCode(context.Background(), duplicate)
		if !errors.Is(err, entity.ErrDuplicateCode) {
			t.Errorf("expected ErrDuplicateCode, got %v", err)
		}
	})

	t.Run("空码被拒绝", func(t *testing.T) {
		repo := newTestRepository(t)

		if err := repo.CreateRedeemCode(context.Background(), &entity.DbRedeemCode{Code: "  "}); err == nil {
			t.Error("expected error for empty code")
		}
	})
}

func TestRedeemCodePoints(t *testing.T) {
	t.Run("积分入账且次数用尽后不可再兑换", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 20)

		code := &entity.DbRedeemCode{
			Code:       "BONUS-30",
			Type:       entity.RedeemCodeTypePoints,
			Points:     30,
			UsageLimit: 1,
		}
		if err := repo.CreateRedeemCode(context.Background(), code); err != nil {
			t.Fatalf("failed to create code: %v", err)
		}

		now := time.Now().UTC()
		outcome, err := repo.RedeemCode(context.Background(), "BONUS-30", user.ID, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if outcome.PointsAdded != 30 {
			t.Errorf("expected 30 points added, got %d", outcome.PointsAdded)
		}
		if outcome.Balance != 50 {
			t.Errorf("expected balance 50, got %d", outcome.Balance)
		}
		if count := countTransactions(t, repo, user.ID, entity.TransactionTypeRedeem); count != 1 {
			t.Errorf("expected 1 redeem transaction, got %d", count)
		}

		// 次数已用尽
		_, err = repo.RedeemCode(context.Background(), "BONUS-30", user.ID, now)
		if !errors.Is(err, entity.ErrUsageLimitExceeded) {
			t.Errorf("expected ErrUsageLimitExceeded, got %v", err)
		}
		if balance := mustBalance(t, repo, user.ID); balance != 50 {
			t.Errorf("expected balance still 50, got %d", balance)
		}
	})

	t.Run("多次使用额度", func(t *testing.T) {
		repo := newTestRepository(t)
		first := createTestUser(t, repo, 0)
		second := createTestUser(t, repo, 0)

		code := &entity.DbRedeemCode{
			Code:       "SHARED-10",
			Type:       entity.RedeemCodeTypePoints,
			Points:     10,
			UsageLimit: 2,
		}
		if err := repo.CreateRedeemCode(context.Background(), code); err != nil {
			t.Fatalf("failed to create code: %v", err)
		}

		now := time.Now().UTC()
		if _, err := repo.RedeemCode(context.Background(), "SHARED-10", first.ID, now); err != nil {
			t.Fatalf("first redeem failed: %v", err)
		}
		if _, err := repo.RedeemCode(context.Background(), "SHARED-10", second.ID, now); err != nil {
			t.Fatalf("second redeem failed: %v", err)
		}
		if _, err := repo.RedeemCode(context.Background(), "SHARED-10", first.ID, now); !errors.Is(err, entity.ErrUsageLimitExceeded) {
			t.Errorf("expected ErrUsageLimitExceeded, got %v", err)
		}
	})
}

func TestRedeemCodeErrors(t *testing.T) {
	t.Run("码不存在", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 0)

		_, err := repo.RedeemCode(context.Background(), "NO-SUCH-CODE", user.ID, time.Now().UTC())
		if !errors.Is(err, entity.ErrCodeNotFound) {
			t.Errorf("expected ErrCodeNotFound, got %v", err)
		}
	})

	t.Run("码已过期", func(t *testing.T) {
		repo := newTestRepository(t)
		user := createTestUser(t, repo, 0)

		expired := time.Now().UTC().Add(-time.Hour)
		code := &entity.DbRedeemCode{
			Code:       "OLD-CODE",
			Type:       entity.RedeemCodeTypePoints,
			Points:     10,
			UsageLimit: 1,
			ExpireAt:   &expired,
		}
		if err := repo.CreateRedeemCode(context.Background(), code); err != nil {
			t.Fatalf("failed to create code: %v", err)
		}

		_, err := repo.RedeemCode(context.Background(), "OLD-CODE", user.ID, time.Now().UTC())
		if !errors.Is(err, entity.ErrCodeExpired) {
			t.Errorf("expected ErrCodeExpired, got %v", err)
		}

		// 过期失败不得消耗使用次数
		record, loadErr := repo.GetRedeemCodeByCode(context.Background(), "OLD-CODE")
		if loadErr != nil {
			t.Fatalf("failed to load code: %v", loadErr)
		}
		if record.UsedCount != 0 {
			t.Errorf("expected used_count 0, got %d", record.UsedCount)
		}
	})
}

func TestRedeemCodePlan(t *testing.T) {
	repo := newTestRepository(t)
	user := createTestUser(t, repo, 40)

	code := &entity.DbRedeemCode{
		Code:       "PRO-7D",
		Type:       entity.RedeemCodeTypePlanPro,
		PlanDays:   7,
		UsageLimit: 1,
	}
	if err := repo.CreateRedeemCode(context.Background(), code); err != nil {
		t.Fatalf("failed to create code: %v", err)
	}

	now := time.Now().UTC()
	outcome, err := repo.RedeemCode(context.Background(), "PRO-7D", user.ID, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Plan != entity.PlanPro {
		t.Errorf("expected plan pro, got %q", outcome.Plan)
	}
	if outcome.PlanExpireAt == nil {
		t.Fatal("expected plan expire time")
	}
	wantExpire := now.AddDate(0, 0, 7)
	if !outcome.PlanExpireAt.Equal(wantExpire) {
		t.Errorf("expected expire %v, got %v", wantExpire, outcome.PlanExpireAt)
	}

	updated, err := repo.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("failed to load user: %v", err)
	}
	if updated.Plan != entity.PlanPro {
		t.Errorf("expected user plan pro, got %q", updated.Plan)
	}
	if updated.Points != 40 {
		t.Errorf("plan redeem must not touch points, got %d", updated.Points)
	}

	// 套餐兑换也要留痕：零金额流水
	if count := countTransactions(t, repo, user.ID, entity.TransactionTypeRedeem); count != 1 {
		t.Errorf("expected 1 redeem transaction, got %d", count)
	}
}

func TestCreateRedeemBatch(t *testing.T) {
	repo := newTestRepository(t)

	batch := &entity.DbRedeemBatch{
		ID:         "batch-1",
		Prefix:     "VIP",
		Count:      3,
		CodeLength: 8,
		CreatedBy:  1,
		Note:       "launch campaign",
	}
	codes := []entity.DbRedeemCode{
		{Code: "VIP-AAAAAAAA", Type: entity.RedeemCodeTypePoints, Points: 10, UsageLimit: 1},
		{Code: "VIP-BBBBBBBB", Type: entity.RedeemCodeTypePoints, Points: 10, UsageLimit: 1},
		{Code: "VIP-CCCCCCCC", Type: entity.RedeemCodeTypePoints, Points: 10, UsageLimit: 1},
	}

	if err := repo.CreateRedeemBatch(context.Background(), batch, codes); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	listed, meta, err := repo.ListRedeemCodes(context.Background(),
		&entity.RedeemCodeQuery{BatchID: "batch-1"})
	if err != nil {
		t.Fatalf("failed to list codes: %v", err)
	}
	if meta.Total != 3 {
		t.Errorf("expected 3 codes in batch, got %d", meta.Total)
	}
	for _, code := range listed {
		if code.BatchID != "batch-1" {
			t.Errorf("expected batch_id batch-1, got %q", code.BatchID)
		}
	}
}
