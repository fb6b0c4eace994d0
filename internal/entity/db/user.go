package db

import "time"

const (
	UserRoleSuperAdmin = "super_admin"
	UserRoleAdmin      = "admin"
	UserRoleUser       = "user"
)

const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// User 表示持久化的用户账户，Points 是唯一权威的积分余额字段，
// 所有变更都必须经过账本的 Debit/Credit 操作。
type User struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Email        string    `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`
	DisplayName  string    `gorm:"column:display_name;type:varchar(255)" json:"display_name"`
	Role         string    `gorm:"column:role;type:varchar(50);index;not null" json:"role"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`

	Points       int64      `gorm:"column:points;not null;default:0" json:"points"`
	Plan         string     `gorm:"column:plan;type:varchar(50);not null;default:free" json:"plan"`
	PlanExpireAt *time.Time `gorm:"column:plan_expire_at" json:"plan_expire_at"`
}

// TableName 指定表名。
func (User) TableName() string {
	return "users"
}

// PlanActive 判断付费套餐当前是否生效。
func (u *User) PlanActive(now time.Time) bool {
	if u == nil || u.Plan == "" || u.Plan == PlanFree {
		return false
	}
	if u.PlanExpireAt == nil {
		return true
	}
	return now.Before(*u.PlanExpireAt)
}
