package entity

import "time"

// UserUpdates 用户更新字段
type UserUpdates struct {
	DisplayName  *string
	Role         *string
	PasswordHash *string
	IsActive     *bool
	Plan         *string
	PlanExpireAt *time.Time
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u UserUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.DisplayName != nil {
		updates["display_name"] = *u.DisplayName
	}
	if u.Role != nil {
		updates["role"] = *u.Role
	}
	if u.PasswordHash != nil {
		updates["password_hash"] = *u.PasswordHash
	}
	if u.IsActive != nil {
		updates["is_active"] = *u.IsActive
	}
	if u.Plan != nil {
		updates["plan"] = *u.Plan
	}
	if u.PlanExpireAt != nil {
		updates["plan_expire_at"] = *u.PlanExpireAt
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u UserUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}

// PredictionUpdates 预测记录更新字段
type PredictionUpdates struct {
	Status       *string
	Output       *StringArray
	ErrorMessage *string
	Metrics      *JSONMap
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u PredictionUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.Status != nil {
		updates["status"] = *u.Status
	}
	if u.Output != nil {
		updates["output"] = *u.Output
	}
	if u.ErrorMessage != nil {
		updates["error_message"] = *u.ErrorMessage
	}
	if u.Metrics != nil {
		updates["metrics"] = *u.Metrics
	}
	if u.StartedAt != nil {
		updates["started_at"] = *u.StartedAt
	}
	if u.CompletedAt != nil {
		updates["completed_at"] = *u.CompletedAt
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u PredictionUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}

// WorkUpdates 作品更新字段
type WorkUpdates struct {
	Title  *string
	Style  *string
	Status *string
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u WorkUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.Title != nil {
		updates["title"] = *u.Title
	}
	if u.Style != nil {
		updates["style"] = *u.Style
	}
	if u.Status != nil {
		updates["status"] = *u.Status
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u WorkUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}
