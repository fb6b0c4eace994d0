package sql

import (
	"context"
	"fmt"
	"strings"

	"pixelforge/internal/entity"

	"gorm.io/gorm"
)

// nonTerminalStatuses 是允许发生终态转换的起始状态集合。
var nonTerminalStatuses = []string{
	entity.PredictionStatusStarting,
	entity.PredictionStatusProcessing,
}

// SubmitPrediction 落库一次任务提交：扣减积分、写入预测记录、写入流水，
// 三个写操作在同一个事务内，要么全部提交要么全部回滚。
func (r *GormRepository) SubmitPrediction(ctx context.Context, prediction *entity.DbPrediction) (*entity.DbTransaction, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if prediction == nil || strings.TrimSpace(prediction.ID) == "" {
		return nil, fmt.Errorf("prediction id is empty")
	}
	if prediction.UserID == 0 {
		return nil, fmt.Errorf("invalid user id")
	}
	if prediction.PointsCost <= 0 {
		return nil, fmt.Errorf("points cost must be positive")
	}

	if prediction.Status == "" {
		prediction.Status = entity.PredictionStatusStarting
	}

	var txn *entity.DbTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(prediction).Error; err != nil {
			return err
		}

		predictionID := prediction.ID
		created, err := applyPointsTx(tx, prediction.UserID, -prediction.PointsCost,
			entity.TransactionTypePayment, &predictionID,
			entity.JSONMap{"kind": prediction.Kind, "model": prediction.Model})
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

// GetPrediction retrieves a prediction by its provider-assigned ID.
func (r *GormRepository) GetPrediction(ctx context.Context, id string) (*entity.DbPrediction, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, fmt.Errorf("prediction id is empty")
	}

	var prediction entity.DbPrediction
	if err := r.db.WithContext(ctx).Where("id = ?", trimmed).First(&prediction).Error; err != nil {
		return nil, err
	}
	return &prediction, nil
}

// UpdatePrediction applies non-terminal updates (e.g. starting → processing).
// 终态转换必须走 FinalizePredictionFailure / FinalizePredictionSuccess。
func (r *GormRepository) UpdatePrediction(ctx context.Context, id string, updates entity.PredictionUpdates) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("prediction id is empty")
	}
	values := updates.ToMap()
	if len(values) == 0 {
		return nil
	}
	if status, ok := values["status"].(string); ok && entity.PredictionStatusTerminal(status) {
		return fmt.Errorf("terminal transition must go through finalize")
	}
	return r.db.WithContext(ctx).Model(&entity.DbPrediction{}).
		Where("id = ? AND status IN ?", trimmed, nonTerminalStatuses).
		Updates(values).Error
}

// ListPredictions retrieves paginated predictions.
func (r *GormRepository) ListPredictions(ctx context.Context, params *entity.PredictionQuery) ([]entity.DbPrediction, *entity.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbPrediction{})
	if params != nil {
		if params.UserID > 0 {
			query = query.Where("user_id = ?", params.UserID)
		}
		if trimmed := strings.TrimSpace(params.Status); trimmed != "" {
			query = query.Where("status = ?", trimmed)
		}
		if trimmed := strings.TrimSpace(params.Kind); trimmed != "" {
			query = query.Where("kind = ?", trimmed)
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

	var predictions []entity.DbPrediction
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&predictions).Error; err != nil {
		return nil, nil, err
	}

	meta := r.calculatePagination(total, page, pageSize)
	return predictions, meta, nil
}

// finalizeTx 执行条件状态转换。只有仍处于非终态的行会被命中，
// RowsAffected 为 0 表示已经被并发的另一次终态投递处理过。
func finalizeTx(tx *gorm.DB, id string, updates entity.PredictionUpdates) (bool, error) {
	values := updates.ToMap()
	if _, ok := values["status"]; !ok {
		return false, fmt.Errorf("finalize requires a status")
	}
	result := tx.Model(&entity.DbPrediction{}).
		Where("id = ? AND status IN ?", id, nonTerminalStatuses).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// FinalizePredictionFailure 将预测标记为 failed/canceled 并全额退还扣减的积分。
// 状态转换与退款在同一事务内；重复投递时条件更新不命中，直接返回 false，
// 保证每个预测至多退款一次。
func (r *GormRepository) FinalizePredictionFailure(ctx context.Context, id string, updates entity.PredictionUpdates) (bool, error) {
	if r == nil || r.db == nil {
		return false, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return false, fmt.Errorf("prediction id is empty")
	}
	if updates.Status == nil ||
		(*updates.Status != entity.PredictionStatusFailed && *updates.Status != entity.PredictionStatusCanceled) {
		return false, fmt.Errorf("failure finalize requires failed or canceled status")
	}

	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := finalizeTx(tx, trimmed, updates)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		var prediction entity.DbPrediction
		if err := tx.Where("id = ?", trimmed).First(&prediction).Error; err != nil {
			return err
		}

		if prediction.PointsCost > 0 {
			predictionID := prediction.ID
			if _, err := applyPointsTx(tx, prediction.UserID, prediction.PointsCost,
				entity.TransactionTypeRefund, &predictionID,
				entity.JSONMap{"reason": *updates.Status}); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// FinalizePredictionSuccess 将预测标记为 succeeded 并创建对应的作品。
// 同样依赖条件更新保证作品只创建一次；works.prediction_id 上的唯一索引
// 是并发场景下的最后一道防线。成功不退款，扣减即消费。
func (r *GormRepository) FinalizePredictionSuccess(ctx context.Context, id string, updates entity.PredictionUpdates, work *entity.DbWork) (bool, error) {
	if r == nil || r.db == nil {
		return false, fmt.Errorf("repository not initialised")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return false, fmt.Errorf("prediction id is empty")
	}
	if updates.Status == nil || *updates.Status != entity.PredictionStatusSucceeded {
		return false, fmt.Errorf("success finalize requires succeeded status")
	}
	if work == nil {
		return false, fmt.Errorf("work is nil")
	}

	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := finalizeTx(tx, trimmed, updates)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		work.PredictionID = trimmed
		if err := tx.Create(work).Error; err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
