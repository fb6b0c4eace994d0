package db

import (
	"pixelforge/internal/entity/common"
	"time"
)

const (
	TransactionTypePayment = "payment"
	TransactionTypeRefund  = "refund"
	TransactionTypeRedeem  = "redeem"
	TransactionTypeGrant   = "grant"
	TransactionTypeUpgrade = "upgrade"
)

const (
	TransactionStatusCompleted = "completed"
	TransactionStatusPending   = "pending"
)

// Transaction 是积分账本的只追加流水，每次余额变更恰好写入一行，
// 入库后不再修改。Amount 为负表示扣减，为正表示充值或退款。
type Transaction struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	UserID uint  `gorm:"column:user_id;index;not null" json:"user_id"`
	User   *User `gorm:"foreignKey:UserID" json:"-"`

	Amount        int64  `gorm:"column:amount;not null" json:"amount"`
	Type          string `gorm:"column:type;type:varchar(50);index;not null" json:"type"`
	Status        string `gorm:"column:status;type:varchar(50);not null;default:completed" json:"status"`
	BalanceBefore int64  `gorm:"column:balance_before;not null" json:"balance_before"`
	BalanceAfter  int64  `gorm:"column:balance_after;not null" json:"balance_after"`

	PredictionID *string `gorm:"column:prediction_id;type:varchar(255);index" json:"prediction_id"`

	Metadata common.JSONMap `gorm:"column:metadata;type:json" json:"metadata"`
}

// TableName 指定表名。
func (Transaction) TableName() string {
	return "transactions"
}
