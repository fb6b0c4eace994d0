package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pixelforge/internal/auth"
	"pixelforge/internal/entity"
	"pixelforge/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ListUsers 管理员分页查询用户。
func (h *HTTPHandler) ListUsers(c *gin.Context) {
	var params entity.UserQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		InvalidPayload(c)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	users, meta, err := h.repo.ListUsers(ctx, &params)
	if err != nil {
		logrus.WithError(err).Error("failed to list users")
		InternalError(c, "failed to load users")
		return
	}

	items := make([]entity.UserSummary, 0, len(users))
	for i := range users {
		items = append(items, entity.NewUserSummary(&users[i]))
	}
	c.JSON(http.StatusOK, entity.UserListResponse{Users: items, Meta: meta})
}

// CreateUser 管理员创建用户。
func (h *HTTPHandler) CreateUser(c *gin.Context) {
	var req entity.UserCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	role := strings.TrimSpace(req.Role)
	switch role {
	case entity.UserRoleUser, entity.UserRoleAdmin, entity.UserRoleSuperAdmin:
	default:
		BadRequest(c, ErrCodeInvalidRequest, "invalid role")
		return
	}

	hash, err := auth.HashPassword(strings.TrimSpace(req.Password))
	if err != nil {
		logrus.WithError(err).Error("failed to hash password")
		InternalError(c, "failed to create user")
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	user := &entity.DbUser{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Role:         role,
		IsActive:     isActive,
		Plan:         entity.PlanFree,
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			BadRequest(c, ErrCodeEmailExists, "email already registered")
			return
		}
		logrus.WithError(err).Error("failed to create user")
		InternalError(c, "failed to create user")
		return
	}

	if req.Points > 0 {
		meta := entity.JSONMap{"reason": "initial grant"}
		if txn, err := h.repo.AdjustPoints(ctx, user.ID, req.Points, entity.TransactionTypeGrant, nil, meta); err != nil {
			logrus.WithError(err).WithField("user_id", user.ID).Error("failed to grant initial points")
		} else {
			user.Points = txn.BalanceAfter
			metrics.PointsCreditedTotal.WithLabelValues(entity.TransactionTypeGrant).Add(float64(req.Points))
		}
	}

	c.JSON(http.StatusCreated, entity.NewUserSummary(user))
}

// UpdateUser 管理员更新用户。
func (h *HTTPHandler) UpdateUser(c *gin.Context) {
	id, ok := parseUserID(c)
	if !ok {
		return
	}

	var req entity.UserUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	updates := entity.UserUpdates{
		DisplayName: req.DisplayName,
		IsActive:    req.IsActive,
	}
	if req.Role != nil {
		role := strings.TrimSpace(*req.Role)
		switch role {
		case entity.UserRoleUser, entity.UserRoleAdmin, entity.UserRoleSuperAdmin:
			updates.Role = &role
		default:
			BadRequest(c, ErrCodeInvalidRequest, "invalid role")
			return
		}
	}
	if req.Password != nil && strings.TrimSpace(*req.Password) != "" {
		hash, err := auth.HashPassword(strings.TrimSpace(*req.Password))
		if err != nil {
			logrus.WithError(err).Error("failed to hash password")
			InternalError(c, "failed to update user")
			return
		}
		updates.PasswordHash = &hash
	}
	if updates.IsEmpty() {
		BadRequest(c, ErrCodeInvalidRequest, "no fields to update")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.repo.UpdateUser(ctx, id, updates); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeUserNotFound, "user not found")
			return
		}
		logrus.WithError(err).WithField("user_id", id).Error("failed to update user")
		InternalError(c, "failed to update user")
		return
	}

	user, err := h.repo.GetUserByID(ctx, id)
	if err != nil {
		InternalError(c, "failed to load user")
		return
	}
	c.JSON(http.StatusOK, entity.NewUserSummary(user))
}

// DeleteUser 管理员删除用户，不允许删除自己。
func (h *HTTPHandler) DeleteUser(c *gin.Context) {
	requestUser := CurrentUser(c)

	id, ok := parseUserID(c)
	if !ok {
		return
	}
	if requestUser != nil && requestUser.ID == id {
		BadRequest(c, ErrCodeCannotDeleteSelf, "cannot delete your own account")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.repo.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeUserNotFound, "user not found")
			return
		}
		logrus.WithError(err).WithField("user_id", id).Error("failed to delete user")
		InternalError(c, "failed to delete user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GrantPoints 管理员给用户充值（或扣减）积分，入账为 grant 流水。
func (h *HTTPHandler) GrantPoints(c *gin.Context) {
	requestUser := CurrentUser(c)

	id, ok := parseUserID(c)
	if !ok {
		return
	}

	var req entity.GrantPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}
	if req.Points == 0 {
		BadRequest(c, ErrCodeInvalidRequest, "points must not be zero")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	meta := entity.JSONMap{"reason": strings.TrimSpace(req.Reason)}
	if requestUser != nil {
		meta["granted_by"] = requestUser.ID
	}

	txn, err := h.repo.AdjustPoints(ctx, id, req.Points, entity.TransactionTypeGrant, nil, meta)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeUserNotFound, "user not found")
			return
		}
		if errors.Is(err, entity.ErrInsufficientBalance) {
			InsufficientBalance(c)
			return
		}
		logrus.WithError(err).WithField("user_id", id).Error("failed to grant points")
		InternalError(c, "failed to grant points")
		return
	}

	if req.Points > 0 {
		metrics.PointsCreditedTotal.WithLabelValues(entity.TransactionTypeGrant).Add(float64(req.Points))
	}

	c.JSON(http.StatusOK, gin.H{"balance": txn.BalanceAfter, "transaction_id": txn.ID})
}

// Upgrade 套餐升级，支付环节由外部系统完成，这里只记套餐变更与审计流水。
func (h *HTTPHandler) Upgrade(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var req entity.UpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	plan := strings.TrimSpace(req.Plan)
	switch plan {
	case entity.PlanPro, entity.PlanEnterprise:
	default:
		BadRequest(c, ErrCodeInvalidRequest, "invalid plan")
		return
	}

	days := req.Days
	if days <= 0 {
		days = 30
	}
	expireAt := time.Now().UTC().AddDate(0, 0, days)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.repo.ApplyUpgrade(ctx, requestUser.ID, plan, &expireAt); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeUserNotFound, "user not found")
			return
		}
		logrus.WithError(err).WithField("user_id", requestUser.ID).Error("failed to upgrade plan")
		InternalError(c, "failed to upgrade plan")
		return
	}

	logrus.WithFields(logrus.Fields{
		"user_id": requestUser.ID,
		"plan":    plan,
		"days":    days,
	}).Info("plan upgraded")

	c.JSON(http.StatusOK, entity.UpgradeResponse{Plan: plan, PlanExpireAt: &expireAt})
}

// ListTransactions 查询积分流水，普通用户只能看到自己的。
func (h *HTTPHandler) ListTransactions(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var params entity.TransactionQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		InvalidPayload(c)
		return
	}

	if requestUser.IsAdmin() {
		if userFilter := strings.TrimSpace(c.Query("user_id")); userFilter != "" {
			if parsed, err := strconv.ParseUint(userFilter, 10, 64); err == nil && parsed > 0 {
				params.UserID = uint(parsed)
			}
		}
	} else {
		params.UserID = requestUser.ID
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	transactions, meta, err := h.repo.ListTransactions(ctx, &params)
	if err != nil {
		logrus.WithError(err).Error("failed to list transactions")
		InternalError(c, "failed to load transactions")
		return
	}
	c.JSON(http.StatusOK, entity.TransactionListResponse{Transactions: transactions, Meta: meta})
}

func parseUserID(c *gin.Context) (uint, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		BadRequest(c, ErrCodeInvalidRequest, "invalid user id")
		return 0, false
	}
	return uint(parsed), true
}
