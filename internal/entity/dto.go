package entity

import "time"

// UserSummary is a lightweight user description returned to clients.
type UserSummary struct {
	ID           uint       `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"is_active"`
	Points       int64      `json:"points"`
	Plan         string     `json:"plan"`
	PlanExpireAt *time.Time `json:"plan_expire_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewUserSummary 从数据库实体构建用户摘要。
func NewUserSummary(user *DbUser) UserSummary {
	if user == nil {
		return UserSummary{}
	}
	return UserSummary{
		ID:           user.ID,
		Email:        user.Email,
		DisplayName:  user.DisplayName,
		Role:         user.Role,
		IsActive:     user.IsActive,
		Points:       user.Points,
		Plan:         user.Plan,
		PlanExpireAt: user.PlanExpireAt,
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}

// UserQuery supports listing users with pagination.
type UserQuery struct {
	BaseParams
	Role    string `json:"role" form:"role" query:"role"`
	Keyword string `json:"keyword" form:"keyword" query:"keyword"`
}

// AuthStatusResponse indicates whether the system already has users.
type AuthStatusResponse struct {
	HasUser bool `json:"has_user"`
}

type AuthLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type AuthRegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name"`
}

type AuthResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      UserSummary `json:"user"`
}

type UserCreateRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role" binding:"required"`
	Points      int64  `json:"points"`
	IsActive    *bool  `json:"is_active"`
}

type UserUpdateRequest struct {
	DisplayName *string `json:"display_name,omitempty"`
	Role        *string `json:"role,omitempty"`
	Password    *string `json:"password,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

type UserListResponse struct {
	Users []UserSummary `json:"users"`
	Meta  *Meta         `json:"meta"`
}

// GrantPointsRequest 管理员给用户充值积分。
type GrantPointsRequest struct {
	Points int64  `json:"points" binding:"required"`
	Reason string `json:"reason"`
}

// GenerateRequest 是所有图像生成入口共用的请求体。
// Image 可以是 URL 或 base64，具体字段是否必填取决于任务类型。
type GenerateRequest struct {
	Prompt   string `json:"prompt" form:"prompt"`
	Image    string `json:"image" form:"image"`
	Style    string `json:"style" form:"style"`
	Size     string `json:"size" form:"size"`
	Model    string `json:"model" form:"model"`
	ClientID string `json:"client_id" form:"client_id"` // SSE 推送目标
}

// GenerateResponse 返回已受理的预测任务。
type GenerateResponse struct {
	PredictionID string `json:"prediction_id"`
	Status       string `json:"status"`
	PointsCost   int64  `json:"points_cost"`
	Balance      int64  `json:"balance"`
}

// PredictionQuery 预测记录查询参数。
type PredictionQuery struct {
	BaseParams
	Status string `json:"status" form:"status" query:"status"`
	Kind   string `json:"kind" form:"kind" query:"kind"`
	UserID uint   `json:"-" form:"-" query:"-"`
}

// TransactionQuery 积分流水查询参数。
type TransactionQuery struct {
	BaseParams
	Type   string `json:"type" form:"type" query:"type"`
	UserID uint   `json:"-" form:"-" query:"-"`
}

type TransactionListResponse struct {
	Transactions []DbTransaction `json:"transactions"`
	Meta         *Meta           `json:"meta"`
}

// WorkQuery 作品查询参数。
type WorkQuery struct {
	BaseParams
	Kind       string `json:"kind" form:"kind" query:"kind"`
	Style      string `json:"style" form:"style" query:"style"`
	UserID     uint   `json:"-" form:"-" query:"-"`
	IncludeAll bool   `json:"-" form:"-" query:"-"`
}

// WorkItem 是返回给前端的作品视图，图片字段已转换为可访问的 URL。
type WorkItem struct {
	ID             uint       `json:"id"`
	Title          string     `json:"title"`
	Kind           string     `json:"kind"`
	Style          string     `json:"style"`
	OriginalImage  string     `json:"original_image"`
	ProcessedImage string     `json:"processed_image"`
	Status         string     `json:"status"`
	PointsCost     int64      `json:"points_cost"`
	PredictionID   string     `json:"prediction_id"`
	CompletedAt    *time.Time `json:"completed_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

type WorkListResponse struct {
	Works []WorkItem `json:"works"`
	Meta  *Meta      `json:"meta"`
}

type WorkUpdateRequest struct {
	Title  *string `json:"title,omitempty"`
	Style  *string `json:"style,omitempty"`
	Status *string `json:"status,omitempty"`
}

// RedeemRequest 兑换一个码。
type RedeemRequest struct {
	Code string `json:"code" binding:"required"`
}

// RedeemResult 描述一次兑换的结果，兑换失败用结构化结果而不是错误返回，
// 前端可以直接渲染 message。
type RedeemResult struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Type     string `json:"type,omitempty"`
	Points   int64  `json:"points,omitempty"`
	Plan     string `json:"plan,omitempty"`
	PlanDays int    `json:"plan_days,omitempty"`
	Balance  int64  `json:"balance,omitempty"`
}

// RedeemOutcome 描述一次成功兑换在数据库中落地的结果。
type RedeemOutcome struct {
	Code         DbRedeemCode
	PointsAdded  int64
	Plan         string
	PlanExpireAt *time.Time
	Balance      int64
}

// RedeemCodeCreateRequest 创建单个兑换码。
type RedeemCodeCreateRequest struct {
	Code       string     `json:"code" binding:"required"`
	Type       string     `json:"type" binding:"required"`
	Points     int64      `json:"points"`
	PlanDays   int        `json:"plan_days"`
	UsageLimit int        `json:"usage_limit"`
	ExpireAt   *time.Time `json:"expire_at"`
}

// RedeemCodeGenerateRequest 批量生成兑换码。
type RedeemCodeGenerateRequest struct {
	Prefix     string     `json:"prefix"`
	Count      int        `json:"count" binding:"required,min=1,max=1000"`
	Length     int        `json:"length"`
	Type       string     `json:"type" binding:"required"`
	Points     int64      `json:"points"`
	PlanDays   int        `json:"plan_days"`
	UsageLimit int        `json:"usage_limit"`
	ExpireAt   *time.Time `json:"expire_at"`
	Note       string     `json:"note"`
}

type RedeemCodeGenerateResponse struct {
	BatchID string   `json:"batch_id"`
	Codes   []string `json:"codes"`
}

// RedeemCodeQuery 兑换码查询参数。
type RedeemCodeQuery struct {
	BaseParams
	BatchID string `json:"batch_id" form:"batch_id" query:"batch_id"`
	Type    string `json:"type" form:"type" query:"type"`
}

type RedeemCodeListResponse struct {
	Codes []DbRedeemCode `json:"codes"`
	Meta  *Meta          `json:"meta"`
}

// UpgradeRequest 套餐升级（支付环节由外部系统完成）。
type UpgradeRequest struct {
	Plan string `json:"plan" binding:"required"`
	Days int    `json:"days"`
}

type UpgradeResponse struct {
	Plan         string     `json:"plan"`
	PlanExpireAt *time.Time `json:"plan_expire_at"`
}
