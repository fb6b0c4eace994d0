package db

import (
	"pixelforge/internal/entity/common"
	"time"
)

const (
	WorkKindTextToImage   = "text-to-image"
	WorkKindStyleTransfer = "style-transfer"
	WorkKindAvatar        = "avatar"
	WorkKindPhotoRestore  = "photo-restore"
	WorkKindRemoveBg      = "remove-bg"
	WorkKindEdit          = "edit"
	WorkKindOther         = "other"
)

const (
	WorkStatusVisible = "visible"
	WorkStatusHidden  = "hidden"
)

// Work 是预测成功后落库的成品（作品集页面的数据来源）。
// 只会由成功终态的预测创建，PredictionID 上的唯一索引保证每个预测至多一个作品。
type Work struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID uint  `gorm:"column:user_id;index;not null" json:"user_id"`
	User   *User `gorm:"foreignKey:UserID" json:"-"`

	Title string `gorm:"column:title;type:varchar(255)" json:"title"`
	Kind  string `gorm:"column:kind;type:varchar(50);index" json:"kind"`
	Style string `gorm:"column:style;type:varchar(255)" json:"style"`

	OriginalImage  string `gorm:"column:original_image;type:text" json:"original_image"`
	ProcessedImage string `gorm:"column:processed_image;type:text" json:"processed_image"`

	Status   string         `gorm:"column:status;type:varchar(50);not null;default:visible" json:"status"`
	Metadata common.JSONMap `gorm:"column:metadata;type:json" json:"metadata"`

	PointsCost   int64  `gorm:"column:points_cost;not null" json:"points_cost"`
	PredictionID string `gorm:"column:prediction_id;type:varchar(255);uniqueIndex" json:"prediction_id"`

	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at"`
}

// TableName 指定表名。
func (Work) TableName() string {
	return "works"
}
