package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"pixelforge/internal/entity"
	"pixelforge/internal/metrics"
	"pixelforge/internal/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultCodeLength = 16
	maxCodeLength     = 32
	// 去掉易混淆字符 0/O/1/I/L
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
)

// RedeemService 封装兑换码的生成与核销。
type RedeemService struct {
	repo model.Repository
}

// NewRedeemService 创建兑换服务实例
func NewRedeemService(repo model.Repository) *RedeemService {
	return &RedeemService{repo: repo}
}

// Redeem 核销一个兑换码。业务性失败（码不存在、过期、次数用尽）返回
// 结构化结果而不是错误，方便前端直接渲染。
func (s *RedeemService) Redeem(ctx context.Context, userID uint, code string) (*entity.RedeemResult, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("redeem service not initialised")
	}

	outcome, err := s.repo.RedeemCode(ctx, code, userID, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrCodeNotFound):
			metrics.RedeemAttemptsTotal.WithLabelValues("not_found").Inc()
			return &entity.RedeemResult{Success: false, Message: "redeem code not found"}, nil
		case errors.Is(err, entity.ErrCodeExpired):
			metrics.RedeemAttemptsTotal.WithLabelValues("expired").Inc()
			return &entity.RedeemResult{Success: false, Message: "redeem code expired"}, nil
		case errors.Is(err, entity.ErrUsageLimitExceeded):
			metrics.RedeemAttemptsTotal.WithLabelValues("exhausted").Inc()
			return &entity.RedeemResult{Success: false, Message: "redeem code usage limit exceeded"}, nil
		default:
			metrics.RedeemAttemptsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	metrics.RedeemAttemptsTotal.WithLabelValues("success").Inc()
	result := &entity.RedeemResult{
		Success: true,
		Message: "redeemed",
		Type:    outcome.Code.Type,
		Balance: outcome.Balance,
	}
	if outcome.PointsAdded > 0 {
		result.Points = outcome.PointsAdded
		metrics.PointsCreditedTotal.WithLabelValues(entity.TransactionTypeRedeem).Add(float64(outcome.PointsAdded))
	}
	if outcome.Plan != "" {
		result.Plan = outcome.Plan
		result.PlanDays = outcome.Code.PlanDays
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"code":    outcome.Code.Code,
		"type":    outcome.Code.Type,
	}).Info("redeem code applied")
	return result, nil
}

// Create 创建单个兑换码。
func (s *RedeemService) Create(ctx context.Context, req entity.RedeemCodeCreateRequest, createdBy uint) (*entity.DbRedeemCode, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("redeem service not initialised")
	}

	code, err := buildRedeemCode(req.Code, req.Type, req.Points, req.PlanDays, req.UsageLimit, req.ExpireAt)
	if err != nil {
		return nil, err
	}
	code.CreatedBy = createdBy
	if err := s.repo.CreateRedeemCode(ctx, code); err != nil {
		return nil, err
	}
	return code, nil
}

// GenerateBatch 批量生成兑换码，所有码共享同一个批次 ID。
func (s *RedeemService) GenerateBatch(ctx context.Context, req entity.RedeemCodeGenerateRequest, createdBy uint) (*entity.RedeemCodeGenerateResponse, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("redeem service not initialised")
	}
	if req.Count < 1 || req.Count > 1000 {
		return nil, fmt.Errorf("count must be between 1 and 1000")
	}

	length := req.Length
	if length <= 0 {
		length = defaultCodeLength
	}
	if length > maxCodeLength {
		length = maxCodeLength
	}
	prefix := strings.ToUpper(strings.TrimSpace(req.Prefix))

	batch := &entity.DbRedeemBatch{
		ID:         uuid.NewString(),
		Prefix:     prefix,
		Count:      req.Count,
		CodeLength: length,
		CreatedBy:  createdBy,
		Note:       strings.TrimSpace(req.Note),
	}

	seen := make(map[string]struct{}, req.Count)
	codes := make([]entity.DbRedeemCode, 0, req.Count)
	values := make([]string, 0, req.Count)
	attempts := 0
	for len(codes) < req.Count {
		attempts++
		if attempts > req.Count*20 {
			return nil, fmt.Errorf("could not generate %d unique codes", req.Count)
		}

		suffix, err := randomCodeFn(length)
		if err != nil {
			return nil, err
		}
		value := suffix
		if prefix != "" {
			value = prefix + "-" + suffix
		}
		if _, dup := seen[value]; dup {
			continue
		}
		// 与历史批次撞码时换一个后缀重试
		if _, err := s.repo.GetRedeemCodeByCode(ctx, value); err == nil {
			continue
		} else if !errors.Is(err, entity.ErrCodeNotFound) {
			return nil, err
		}
		seen[value] = struct{}{}

		code, err := buildRedeemCode(value, req.Type, req.Points, req.PlanDays, req.UsageLimit, req.ExpireAt)
		if err != nil {
			return nil, err
		}
		code.CreatedBy = createdBy
		codes = append(codes, *code)
		values = append(values, value)
	}

	if err := s.repo.CreateRedeemBatch(ctx, batch, codes); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"batch_id": batch.ID,
		"count":    len(codes),
		"type":     req.Type,
	}).Info("redeem code batch generated")

	return &entity.RedeemCodeGenerateResponse{BatchID: batch.ID, Codes: values}, nil
}

func buildRedeemCode(value, codeType string, points int64, planDays, usageLimit int, expireAt *time.Time) (*entity.DbRedeemCode, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("code is empty")
	}

	switch codeType {
	case entity.RedeemCodeTypePoints:
		if points <= 0 {
			return nil, fmt.Errorf("points must be positive for a points code")
		}
	case entity.RedeemCodeTypePlanPro, entity.RedeemCodeTypePlanEnterprise:
		if planDays < 0 {
			return nil, fmt.Errorf("plan days must not be negative")
		}
	default:
		return nil, fmt.Errorf("unsupported redeem code type: %s", codeType)
	}

	if usageLimit <= 0 {
		usageLimit = 1
	}

	return &entity.DbRedeemCode{
		Code:       trimmed,
		Type:       codeType,
		Points:     points,
		PlanDays:   planDays,
		UsageLimit: usageLimit,
		ExpireAt:   expireAt,
	}, nil
}

var randomCodeFn = randomCode

func randomCode(length int) (string, error) {
	builder := strings.Builder{}
	builder.Grow(length)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate random code: %w", err)
		}
		builder.WriteByte(codeAlphabet[n.Int64()])
	}
	return builder.String(), nil
}
