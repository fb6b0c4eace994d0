package sql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pixelforge/internal/entity"

	"gorm.io/gorm"
)

// applyPointsTx 在给定事务内变更用户余额并写入审计流水。
// 负数为扣减、正数为充值。扣减通过带余额条件的原子 UPDATE 实现，
// 不依赖行级锁，三种方言下行为一致；余额不足时整个事务回滚。
func applyPointsTx(tx *gorm.DB, userID uint, amount int64, txType string, predictionID *string, meta entity.JSONMap) (*entity.DbTransaction, error) {
	if userID == 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if amount == 0 {
		return nil, fmt.Errorf("amount must not be zero")
	}

	var result *gorm.DB
	if amount < 0 {
		result = tx.Model(&entity.DbUser{}).
			Where("id = ? AND points >= ?", userID, -amount).
			Update("points", gorm.Expr("points - ?", -amount))
	} else {
		result = tx.Model(&entity.DbUser{}).
			Where("id = ?", userID).
			Update("points", gorm.Expr("points + ?", amount))
	}
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if amount >= 0 {
			return nil, gorm.ErrRecordNotFound
		}
		// 区分用户不存在与余额不足
		var count int64
		if err := tx.Model(&entity.DbUser{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, gorm.ErrRecordNotFound
		}
		return nil, entity.ErrInsufficientBalance
	}

	var user entity.DbUser
	if err := tx.First(&user, userID).Error; err != nil {
		return nil, err
	}

	txn := &entity.DbTransaction{
		UserID:        userID,
		Amount:        amount,
		Type:          txType,
		Status:        entity.TransactionStatusCompleted,
		BalanceBefore: user.Points - amount,
		BalanceAfter:  user.Points,
		PredictionID:  predictionID,
		Metadata:      meta,
	}
	if err := tx.Create(txn).Error; err != nil {
		return nil, err
	}
	return txn, nil
}

// GetBalance returns the current point balance of a user.
func (r *GormRepository) GetBalance(ctx context.Context, userID uint) (int64, error) {
	if r == nil || r.db == nil {
		return 0, fmt.Errorf("repository not initialised")
	}
	var user entity.DbUser
	if err := r.db.WithContext(ctx).Select("id", "points").First(&user, userID).Error; err != nil {
		return 0, err
	}
	return user.Points, nil
}

// AdjustPoints applies a signed balance change and records the audit row in one
// transaction. Negative amounts go through the balance guard and fail with
// ErrInsufficientBalance when the user cannot cover the deduction.
func (r *GormRepository) AdjustPoints(ctx context.Context, userID uint, amount int64, txType string, predictionID *string, meta entity.JSONMap) (*entity.DbTransaction, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if amount == 0 {
		return nil, fmt.Errorf("amount must not be zero")
	}

	var txn *entity.DbTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := applyPointsTx(tx, userID, amount, txType, predictionID, meta)
		if err != nil {
			return err
		}
		txn = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ListTransactions retrieves paginated ledger entries.
func (r *GormRepository) ListTransactions(ctx context.Context, params *entity.TransactionQuery) ([]entity.DbTransaction, *entity.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbTransaction{})
	if params != nil {
		if params.UserID > 0 {
			query = query.Where("user_id = ?", params.UserID)
		}
		if trimmed := strings.TrimSpace(params.Type); trimmed != "" {
			query = query.Where("type = ?", trimmed)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, nil, err
	}

	var page, pageSize int
	if params != nil {
		page, pageSize = normalizePage(&params.BaseParams)
	} else {
		page, pageSize = normalizePage(nil)
	}

	offset := (page - 1) * pageSize
	if offset < 0 {
		offset = 0
	}

	var transactions []entity.DbTransaction
	if err := query.Order("id DESC").Offset(offset).Limit(pageSize).Find(&transactions).Error; err != nil {
		return nil, nil, err
	}

	meta := r.calculatePagination(total, page, pageSize)
	return transactions, meta, nil
}

// ApplyUpgrade switches a user's plan and records a zero-amount upgrade entry
// so plan changes show up in the same audit trail as point mutations.
func (r *GormRepository) ApplyUpgrade(ctx context.Context, userID uint, plan string, expireAt *time.Time) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if userID == 0 {
		return fmt.Errorf("invalid user id")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		values := map[string]interface{}{"plan": plan}
		if expireAt != nil {
			values["plan_expire_at"] = *expireAt
		}
		result := tx.Model(&entity.DbUser{}).Where("id = ?", userID).Updates(values)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		var user entity.DbUser
		if err := tx.First(&user, userID).Error; err != nil {
			return err
		}

		meta := entity.JSONMap{"plan": plan}
		if expireAt != nil {
			meta["plan_expire_at"] = expireAt.UTC().Format(time.RFC3339)
		}
		txn := &entity.DbTransaction{
			UserID:        userID,
			Amount:        0,
			Type:          entity.TransactionTypeUpgrade,
			Status:        entity.TransactionStatusCompleted,
			BalanceBefore: user.Points,
			BalanceAfter:  user.Points,
			Metadata:      meta,
		}
		return tx.Create(txn).Error
	})
}
