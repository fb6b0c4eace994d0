package sql

import (
	"context"
	"fmt"
	"strings"

	"pixelforge/internal/entity"

	"gorm.io/gorm"
)

// GetWork retrieves a single work by ID.
func (r *GormRepository) GetWork(ctx context.Context, id uint) (*entity.DbWork, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return nil, fmt.Errorf("invalid work id")
	}

	var work entity.DbWork
	if err := r.db.WithContext(ctx).First(&work, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load work: %w", err)
	}
	return &work, nil
}

// ListWorks retrieves paginated works.
func (r *GormRepository) ListWorks(ctx context.Context, params *entity.WorkQuery) ([]entity.DbWork, *entity.Meta, error) {
	if r == nil || r.db == nil {
		return nil, nil, fmt.Errorf("repository not initialised")
	}

	query := r.db.WithContext(ctx).Model(&entity.DbWork{})
	if params != nil {
		if !params.IncludeAll && params.UserID > 0 {
			query = query.Where("user_id = ?", params.UserID)
		}
		if trimmed := strings.TrimSpace(params.Kind); trimmed != "" {
			query = query.Where("kind = ?", trimmed)
		}
		if trimmed := strings.TrimSpace(params.Style); trimmed != "" {
			query = query.Where("style = ?", trimmed)
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

	var works []entity.DbWork
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&works).Error; err != nil {
		return nil, nil, err
	}

	meta := r.calculatePagination(total, page, pageSize)
	return works, meta, nil
}

// UpdateWork updates a work with the provided fields.
func (r *GormRepository) UpdateWork(ctx context.Context, id uint, updates entity.WorkUpdates) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid work id")
	}
	values := updates.ToMap()
	if len(values) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&entity.DbWork{}).Where("id = ?", id).Updates(values).Error
}

// DeleteWork removes a work by ID.
func (r *GormRepository) DeleteWork(ctx context.Context, id uint) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repository not initialised")
	}
	if id == 0 {
		return fmt.Errorf("invalid work id")
	}

	result := r.db.WithContext(ctx).Delete(&entity.DbWork{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
