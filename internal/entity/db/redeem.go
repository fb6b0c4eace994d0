package db

import "time"

const (
	RedeemCodeTypePoints         = "points"
	RedeemCodeTypePlanPro        = "plan_pro"
	RedeemCodeTypePlanEnterprise = "plan_enterprise"
)

// RedeemCode 是可兑换的码，按 UsageLimit 控制可兑换次数，
// UsedCount 超过上限或过期后不可再兑换。
type RedeemCode struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Code string `gorm:"column:code;type:varchar(255);uniqueIndex;not null" json:"code"`
	Type string `gorm:"column:type;type:varchar(50);index;not null" json:"type"`

	Points   int64 `gorm:"column:points;not null;default:0" json:"points"`
	PlanDays int   `gorm:"column:plan_days;not null;default:0" json:"plan_days"`

	UsageLimit int `gorm:"column:usage_limit;not null;default:1" json:"usage_limit"`
	UsedCount  int `gorm:"column:used_count;not null;default:0" json:"used_count"`

	ExpireAt *time.Time `gorm:"column:expire_at" json:"expire_at"`

	BatchID   string `gorm:"column:batch_id;type:varchar(64);index" json:"batch_id"`
	CreatedBy uint   `gorm:"column:created_by" json:"created_by"`
}

// TableName 指定表名。
func (RedeemCode) TableName() string {
	return "redeem_codes"
}

// Expired 判断码在给定时间点是否已过期。
func (c *RedeemCode) Expired(now time.Time) bool {
	if c == nil || c.ExpireAt == nil {
		return false
	}
	return now.After(*c.ExpireAt)
}

// Exhausted 判断码的使用次数是否已达上限。
func (c *RedeemCode) Exhausted() bool {
	if c == nil {
		return true
	}
	return c.UsedCount >= c.UsageLimit
}

// RedeemBatch 记录一次批量生成兑换码的动作。
type RedeemBatch struct {
	ID        string    `gorm:"column:id;type:varchar(64);primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Prefix     string `gorm:"column:prefix;type:varchar(64)" json:"prefix"`
	Count      int    `gorm:"column:count;not null" json:"count"`
	CodeLength int    `gorm:"column:code_length;not null" json:"code_length"`

	CreatedBy uint   `gorm:"column:created_by" json:"created_by"`
	Note      string `gorm:"column:note;type:varchar(255)" json:"note"`
}

// TableName 指定表名。
func (RedeemBatch) TableName() string {
	return "redeem_batches"
}
