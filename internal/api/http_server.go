package api

import (
	"strings"
	"sync"
	"time"

	"pixelforge/internal/auth"
	"pixelforge/internal/config"
	"pixelforge/internal/model"
	"pixelforge/internal/provider"
	"pixelforge/internal/service"
	"pixelforge/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HTTPHandler HTTP 请求处理器
type HTTPHandler struct {
	cfg               config.Config
	repo              model.Repository
	storage           storage.Storage
	storagePublicBase string
	authManager       *auth.Manager

	// 服务层
	predictionService *service.PredictionService
	redeemService     *service.RedeemService

	// SSE 客户端管理
	sseClients map[string][]chan sseMessage
	sseMu      sync.Mutex
}

// NewHTTPHandler 创建 HTTP 处理器实例
func NewHTTPHandler(cfg config.Config, repo model.Repository, store storage.Storage, client provider.Client) (*HTTPHandler, error) {
	expiry := time.Duration(cfg.JWTExpirationMinutes) * time.Minute
	authManager, err := auth.NewManager(cfg.JWTSecret, cfg.JWTIssuer, expiry)
	if err != nil {
		return nil, err
	}

	predictionSvc := service.NewPredictionService(repo, client, store, provider.NewTitler(cfg))
	redeemSvc := service.NewRedeemService(repo)

	handler := &HTTPHandler{
		cfg:               cfg,
		repo:              repo,
		storage:           store,
		storagePublicBase: normalisePublicBase(cfg.StoragePublicBaseURL),
		authManager:       authManager,
		predictionService: predictionSvc,
		redeemService:     redeemSvc,
		sseClients:        make(map[string][]chan sseMessage),
	}

	// 设置 SSE 通知回调
	predictionSvc.SetNotifyFunc(handler.notifyPredictionComplete)

	return handler, nil
}

// normalisePublicBase 规范化公共 URL 基础路径
func normalisePublicBase(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		trimmed = "/files"
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/")
	}
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	return strings.TrimRight(trimmed, "/")
}

// notifyPredictionComplete 通知预测终态（用于 SSE 推送）
func (h *HTTPHandler) notifyPredictionComplete(clientID string, predictionID string, status string, errMsg string) {
	if strings.TrimSpace(clientID) == "" {
		return
	}
	payload := gin.H{
		"prediction_id": predictionID,
		"status":        status,
	}
	if trimmed := strings.TrimSpace(errMsg); trimmed != "" {
		payload["error"] = trimmed
	}
	delivered := h.publishSSEMessage(clientID, sseMessage{
		event: "prediction_completed",
		data:  payload,
	})
	if !delivered {
		logrus.WithFields(logrus.Fields{
			"client_id":     clientID,
			"prediction_id": predictionID,
		}).Debug("no sse client registered, event dropped")
	}
}
