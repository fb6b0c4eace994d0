package sql

import (
	"context"
	"fmt"
	"testing"

	"pixelforge/internal/entity"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// newTestRepository 打开一个内存 SQLite 并迁移全部表结构。
func newTestRepository(t *testing.T) *GormRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}

	if err := db.AutoMigrate(
		&entity.DbUser{},
		&entity.DbTransaction{},
		&entity.DbPrediction{},
		&entity.DbWork{},
		&entity.DbRedeemCode{},
		&entity.DbRedeemBatch{},
	); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	return NewGormRepository(db)
}

var testUserSeq int

// createTestUser 创建一个带初始积分的测试用户。
func createTestUser(t *testing.T, repo *GormRepository, points int64) *entity.DbUser {
	t.Helper()

	testUserSeq++
	user := &entity.DbUser{
		Email:        fmt.Sprintf("user%d@example.com", testUserSeq),
		PasswordHash: "hash",
		DisplayName:  fmt.Sprintf("User %d", testUserSeq),
		Role:         entity.UserRoleUser,
		IsActive:     true,
		Points:       points,
		Plan:         entity.PlanFree,
	}
	if err := repo.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// countTransactions 统计某个用户指定类型的流水条数。
func countTransactions(t *testing.T, repo *GormRepository, userID uint, txType string) int64 {
	t.Helper()

	var count int64
	err := repo.db.Model(&entity.DbTransaction{}).
		Where("user_id = ? AND type = ?", userID, txType).
		Count(&count).Error
	if err != nil {
		t.Fatalf("failed to count transactions: %v", err)
	}
	return count
}

func mustBalance(t *testing.T, repo *GormRepository, userID uint) int64 {
	t.Helper()

	balance, err := repo.GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to load balance: %v", err)
	}
	return balance
}
