package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"pixelforge/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Redeem 兑换一个码。业务性失败（不存在、过期、次数用尽）返回 200 加
// success=false 的结构化结果，前端直接渲染 message。
func (h *HTTPHandler) Redeem(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var req entity.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	result, err := h.redeemService.Redeem(ctx, requestUser.ID, req.Code)
	if err != nil {
		logrus.WithError(err).WithField("user_id", requestUser.ID).Error("failed to redeem code")
		InternalError(c, "failed to redeem code")
		return
	}
	c.JSON(http.StatusOK, result)
}

// CreateRedeemCode 管理员创建单个兑换码。
func (h *HTTPHandler) CreateRedeemCode(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var req entity.RedeemCodeCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	code, err := h.redeemService.Create(ctx, req, requestUser.ID)
	if err != nil {
		if errors.Is(err, entity.ErrDuplicateCode) {
			BadRequest(c, ErrCodeDuplicateCode, "redeem code already exists")
			return
		}
		logrus.WithError(err).Error("failed to create redeem code")
		BadRequest(c, ErrCodeInvalidRequest, err.Error())
		return
	}
	c.JSON(http.StatusCreated, code)
}

// GenerateRedeemCodes 管理员批量生成兑换码。
func (h *HTTPHandler) GenerateRedeemCodes(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var req entity.RedeemCodeGenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	resp, err := h.redeemService.GenerateBatch(ctx, req, requestUser.ID)
	if err != nil {
		logrus.WithError(err).Error("failed to generate redeem codes")
		BadRequest(c, ErrCodeInvalidRequest, err.Error())
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListRedeemCodes 管理员分页查询兑换码。
func (h *HTTPHandler) ListRedeemCodes(c *gin.Context) {
	var params entity.RedeemCodeQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	codes, meta, err := h.repo.ListRedeemCodes(ctx, &params)
	if err != nil {
		logrus.WithError(err).Error("failed to list redeem codes")
		InternalError(c, "failed to load redeem codes")
		return
	}
	c.JSON(http.StatusOK, entity.RedeemCodeListResponse{Codes: codes, Meta: meta})
}
