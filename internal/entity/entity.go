package entity

// Re-export database and common types so callers can depend on a single package.

import (
	"pixelforge/internal/entity/common"
	"pixelforge/internal/entity/db"
)

// 通用类型别名
type StringArray = common.StringArray
type JSONMap = common.JSONMap
type Response = common.Response
type ResponseItems = common.ResponseItems
type Meta = common.Meta
type BaseParams = common.BaseParams

// 数据库实体别名
type DbUser = db.User
type DbTransaction = db.Transaction
type DbPrediction = db.Prediction
type DbWork = db.Work
type DbRedeemCode = db.RedeemCode
type DbRedeemBatch = db.RedeemBatch

// 角色与套餐
const (
	UserRoleSuperAdmin = db.UserRoleSuperAdmin
	UserRoleAdmin      = db.UserRoleAdmin
	UserRoleUser       = db.UserRoleUser

	PlanFree       = db.PlanFree
	PlanPro        = db.PlanPro
	PlanEnterprise = db.PlanEnterprise
)

// 流水类型与状态
const (
	TransactionTypePayment = db.TransactionTypePayment
	TransactionTypeRefund  = db.TransactionTypeRefund
	TransactionTypeRedeem  = db.TransactionTypeRedeem
	TransactionTypeGrant   = db.TransactionTypeGrant
	TransactionTypeUpgrade = db.TransactionTypeUpgrade

	TransactionStatusCompleted = db.TransactionStatusCompleted
	TransactionStatusPending   = db.TransactionStatusPending
)

// 预测状态机
const (
	PredictionStatusStarting   = db.PredictionStatusStarting
	PredictionStatusProcessing = db.PredictionStatusProcessing
	PredictionStatusSucceeded  = db.PredictionStatusSucceeded
	PredictionStatusFailed     = db.PredictionStatusFailed
	PredictionStatusCanceled   = db.PredictionStatusCanceled
)

// PredictionStatusTerminal 判断预测状态是否为终态。
func PredictionStatusTerminal(status string) bool {
	return db.PredictionStatusTerminal(status)
}

// 作品
const (
	WorkKindTextToImage   = db.WorkKindTextToImage
	WorkKindStyleTransfer = db.WorkKindStyleTransfer
	WorkKindAvatar        = db.WorkKindAvatar
	WorkKindPhotoRestore  = db.WorkKindPhotoRestore
	WorkKindRemoveBg      = db.WorkKindRemoveBg
	WorkKindEdit          = db.WorkKindEdit
	WorkKindOther         = db.WorkKindOther

	WorkStatusVisible = db.WorkStatusVisible
	WorkStatusHidden  = db.WorkStatusHidden
)

// 兑换码类型
const (
	RedeemCodeTypePoints         = db.RedeemCodeTypePoints
	RedeemCodeTypePlanPro        = db.RedeemCodeTypePlanPro
	RedeemCodeTypePlanEnterprise = db.RedeemCodeTypePlanEnterprise
)
