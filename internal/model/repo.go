package model

import (
	"context"
	"time"

	"pixelforge/internal/entity"
)

// Repository 定义数据库操作接口
type Repository interface {
	// 用户管理
	CreateUser(ctx context.Context, user *entity.DbUser) error
	UpdateUser(ctx context.Context, id uint, updates entity.UserUpdates) error
	GetUserByEmail(ctx context.Context, email string) (*entity.DbUser, error)
	GetUserByID(ctx context.Context, id uint) (*entity.DbUser, error)
	ListUsers(ctx context.Context, params *entity.UserQuery) ([]entity.DbUser, *entity.Meta, error)
	DeleteUser(ctx context.Context, id uint) error
	CountUsers(ctx context.Context) (int64, error)

	// 积分账本：所有余额变更都带审计流水，在单个数据库事务内完成
	GetBalance(ctx context.Context, userID uint) (int64, error)
	AdjustPoints(ctx context.Context, userID uint, amount int64, txType string, predictionID *string, meta entity.JSONMap) (*entity.DbTransaction, error)
	ListTransactions(ctx context.Context, params *entity.TransactionQuery) ([]entity.DbTransaction, *entity.Meta, error)
	ApplyUpgrade(ctx context.Context, userID uint, plan string, expireAt *time.Time) error

	// 预测生命周期
	SubmitPrediction(ctx context.Context, prediction *entity.DbPrediction) (*entity.DbTransaction, error)
	GetPrediction(ctx context.Context, id string) (*entity.DbPrediction, error)
	UpdatePrediction(ctx context.Context, id string, updates entity.PredictionUpdates) error
	ListPredictions(ctx context.Context, params *entity.PredictionQuery) ([]entity.DbPrediction, *entity.Meta, error)
	FinalizePredictionFailure(ctx context.Context, id string, updates entity.PredictionUpdates) (bool, error)
	FinalizePredictionSuccess(ctx context.Context, id string, updates entity.PredictionUpdates, work *entity.DbWork) (bool, error)

	// 作品
	GetWork(ctx context.Context, id uint) (*entity.DbWork, error)
	ListWorks(ctx context.Context, params *entity.WorkQuery) ([]entity.DbWork, *entity.Meta, error)
	UpdateWork(ctx context.Context, id uint, updates entity.WorkUpdates) error
	DeleteWork(ctx context.Context, id uint) error

	// 兑换码
	CreateRedeemCode(ctx context.Context, code *entity.DbRedeemCode) error
	CreateRedeemBatch(ctx context.Context, batch *entity.DbRedeemBatch, codes []entity.DbRedeemCode) error
	GetRedeemCodeByCode(ctx context.Context, code string) (*entity.DbRedeemCode, error)
	ListRedeemCodes(ctx context.Context, params *entity.RedeemCodeQuery) ([]entity.DbRedeemCode, *entity.Meta, error)
	RedeemCode(ctx context.Context, code string, userID uint, now time.Time) (*entity.RedeemOutcome, error)
}
