package entity

import "errors"

// 业务级哨兵错误，由仓库层返回、HTTP 层翻译为对应的错误码。
var (
	// ErrInsufficientBalance 余额不足，不可重试。
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrDuplicateCode 兑换码已存在。
	ErrDuplicateCode = errors.New("redeem code already exists")
	// ErrCodeNotFound 兑换码不存在。
	ErrCodeNotFound = errors.New("redeem code not found")
	// ErrCodeExpired 兑换码已过期。
	ErrCodeExpired = errors.New("redeem code expired")
	// ErrUsageLimitExceeded 兑换码使用次数已达上限。
	ErrUsageLimitExceeded = errors.New("redeem code usage limit exceeded")
)
