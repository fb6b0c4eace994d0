package db

import (
	"pixelforge/internal/entity/common"
	"time"
)

const (
	PredictionStatusStarting   = "starting"
	PredictionStatusProcessing = "processing"
	PredictionStatusSucceeded  = "succeeded"
	PredictionStatusFailed     = "failed"
	PredictionStatusCanceled   = "canceled"
)

// PredictionStatusTerminal 判断状态是否为终态。
// 状态机：starting → processing → succeeded|failed|canceled，不允许回退。
func PredictionStatusTerminal(status string) bool {
	switch status {
	case PredictionStatusSucceeded, PredictionStatusFailed, PredictionStatusCanceled:
		return true
	default:
		return false
	}
}

// Prediction 表示提交给外部服务商的一次异步图像生成任务，
// 主键直接使用服务商返回的任务 ID。
type Prediction struct {
	ID        string    `gorm:"column:id;type:varchar(255);primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint  `gorm:"column:user_id;index;not null" json:"user_id"`
	User   *User `gorm:"foreignKey:UserID" json:"-"`

	Kind    string `gorm:"column:kind;type:varchar(50);index" json:"kind"`
	Model   string `gorm:"column:model;type:varchar(255)" json:"model"`
	Version string `gorm:"column:version;type:varchar(255)" json:"version"`

	Input  common.JSONMap     `gorm:"column:input;type:json" json:"input"`
	Output common.StringArray `gorm:"column:output;type:json" json:"output"`

	ErrorMessage string         `gorm:"column:error_message;type:text" json:"error_message"`
	Metrics      common.JSONMap `gorm:"column:metrics;type:json" json:"metrics"`

	PointsCost int64  `gorm:"column:points_cost;not null" json:"points_cost"`
	ClientID   string `gorm:"column:client_id;type:varchar(255)" json:"client_id"` // SSE 推送目标

	Status string `gorm:"column:status;type:varchar(50);index;not null" json:"status"`

	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at"`
}

// TableName 指定表名。
func (Prediction) TableName() string {
	return "predictions"
}
