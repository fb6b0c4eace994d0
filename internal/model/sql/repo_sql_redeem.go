package sql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pixelforge/internal/entity"

	"gorm.io/gorm"
)

// CreateRedeemCode inserts a single redeem code.
func (r *GormRepository) CreateRedeemCode(ctx context.Context, code *entity.DbRedeemCode) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if code == nil || strings.TrimSpace(code.Code) == "" {
		return fmt.Errorf("code is empty")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&entity.DbRedeemCode{}).Where("code = ?", code.Code).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return entity.ErrDuplicateCode
		}
		return tx.Create(code).Error
	})
}

// CreateRedeemBatch inserts a batch record together with its codes.
func (r *GormRepository) CreateRedeemBatch(ctx context.Context, batch *entity.DbRedeemBatch, codes []entity.DbRedeemCode) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if batch == nil || strings.TrimSpace(batch.ID) == "" {
		return fmt.Errorf("batch id is empty")
	}
	if len(codes) == 0 {
		return fmt.Errorf("no codes to insert")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(batch).Error; err != nil {
			return err
		}
		for i := range codes {
			codes[i].BatchID = batch.ID
		}
		return tx.Create(&codes).Error
	})
}

// GetRedeemCodeByCode loads a redeem code by its code string.
func (r *GormRepository) GetRedeemCodeByCode(ctx context.Context, code string) (*entity.DbRedeemCode, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, fmt.Errorf("code is empty")
	}

	var record entity.DbRedeemCode
	if err := r.db.WithContext(ctx).Where("code = ?", trimmed).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, entity.ErrCodeNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ListRedeemCodes retrieves paginated redeem codes.
func (r *GormRepository) ListRedeemCodes(ctx context.Context, params *entity.RedeemCodeQuery) ([]entity.DbRedeemCode, *entity.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbRedeemCode{})
	if params != nil {
		if trimmed := strings.TrimSpace(params.BatchID); trimmed != "" {
			query = query.Where("batch_id = ?", trimmed)
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

	var codes []entity.DbRedeemCode
	if err := query.Order("id DESC").Offset(offset).Limit(pageSize).Find(&codes).Error; err != nil {
		return nil, nil, err
	}

	meta := r.calculatePagination(total, page, pageSize)
	return codes, meta, nil
}

// RedeemCode 执行一次兑换：校验存在性与有效期，原子递增使用次数，
// 应用奖励（积分入账或套餐变更），全部在同一事务内完成。
// used_count 的递增带 used_count < usage_limit 条件，两个并发兑换
// 最后一次名额只会有一个成功。
func (r *GormRepository) RedeemCode(ctx context.Context, code string, userID uint, now time.Time) (*entity.RedeemOutcome, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return nil, entity.ErrCodeNotFound
	}
	if userID == 0 {
		return nil, fmt.Errorf("invalid user id")
	}

	var outcome *entity.RedeemOutcome
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record entity.DbRedeemCode
		if err := tx.Where("code = ?", trimmed).First(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return entity.ErrCodeNotFound
			}
			return err
		}

		if record.Expired(now) {
			return entity.ErrCodeExpired
		}
		if record.Exhausted() {
			return entity.ErrUsageLimitExceeded
		}

		result := tx.Model(&entity.DbRedeemCode{}).
			Where("id = ? AND used_count < usage_limit", record.ID).
			Update("used_count", gorm.Expr("used_count + 1"))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return entity.ErrUsageLimitExceeded
		}
		record.UsedCount++

		meta := entity.JSONMap{"code": record.Code, "batch_id": record.BatchID}
		out := &entity.RedeemOutcome{Code: record}

		switch record.Type {
		case entity.RedeemCodeTypePoints:
			txn, err := applyPointsTx(tx, userID, record.Points, entity.TransactionTypeRedeem, nil, meta)
			if err != nil {
				return err
			}
			out.PointsAdded = record.Points
			out.Balance = txn.BalanceAfter

		case entity.RedeemCodeTypePlanPro, entity.RedeemCodeTypePlanEnterprise:
			plan := entity.PlanPro
			if record.Type == entity.RedeemCodeTypePlanEnterprise {
				plan = entity.PlanEnterprise
			}
			days := record.PlanDays
			if days <= 0 {
				days = 30
			}
			expireAt := now.AddDate(0, 0, days)

			result := tx.Model(&entity.DbUser{}).Where("id = ?", userID).
				Updates(map[string]interface{}{"plan": plan, "plan_expire_at": expireAt})
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
			meta["plan"] = plan
			meta["plan_days"] = days
			txn := &entity.DbTransaction{
				UserID:        userID,
				Amount:        0,
				Type:          entity.TransactionTypeRedeem,
				Status:        entity.TransactionStatusCompleted,
				BalanceBefore: user.Points,
				BalanceAfter:  user.Points,
				Metadata:      meta,
			}
			if err := tx.Create(txn).Error; err != nil {
				return err
			}
			out.Plan = plan
			out.PlanExpireAt = &expireAt
			out.Balance = user.Points

		default:
			return fmt.Errorf("unsupported redeem code type: %s", record.Type)
		}

		outcome = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}
