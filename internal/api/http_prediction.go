package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"pixelforge/internal/entity"
	"pixelforge/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GetPrediction 查询单个预测任务，非终态时顺带向服务商刷新一次，
// 拿到终态会就地落账（退款或建档）。
func (h *HTTPHandler) GetPrediction(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		MissingField(c, "id")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	record, err := h.predictionService.Refresh(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodePredictionNotFound, "prediction not found")
			return
		}
		logrus.WithError(err).WithField("prediction_id", id).Error("failed to load prediction")
		InternalError(c, "failed to load prediction")
		return
	}

	if record.UserID != requestUser.ID && !requestUser.IsAdmin() {
		NotFound(c, ErrCodePredictionNotFound, "prediction not found")
		return
	}

	c.JSON(http.StatusOK, h.makePredictionView(record))
}

// ListPredictions 分页查询当前用户的预测记录，管理员可查全量。
func (h *HTTPHandler) ListPredictions(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var params entity.PredictionQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		InvalidPayload(c)
		return
	}
	if !requestUser.IsAdmin() {
		params.UserID = requestUser.ID
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	records, meta, err := h.repo.ListPredictions(ctx, &params)
	if err != nil {
		logrus.WithError(err).Error("failed to list predictions")
		InternalError(c, "failed to load predictions")
		return
	}

	items := make([]gin.H, 0, len(records))
	for i := range records {
		items = append(items, h.makePredictionView(&records[i]))
	}
	c.JSON(http.StatusOK, gin.H{"predictions": items, "meta": meta})
}

// PredictionWebhook 接收服务商回调。终态事件触发落账，
// 重复投递由条件更新保证只生效一次。
func (h *HTTPHandler) PredictionWebhook(c *gin.Context) {
	var remote provider.Prediction
	if err := c.ShouldBindJSON(&remote); err != nil {
		InvalidPayload(c)
		return
	}
	if strings.TrimSpace(remote.ID) == "" {
		MissingField(c, "id")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
	defer cancel()

	if err := h.predictionService.HandleRemoteUpdate(ctx, &remote); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodePredictionNotFound, "prediction not found")
			return
		}
		logrus.WithError(err).WithField("prediction_id", remote.ID).Error("failed to process webhook")
		InternalError(c, "failed to process webhook")
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// makePredictionView 将预测记录转换为对外视图，输出路径转成公开 URL。
func (h *HTTPHandler) makePredictionView(record *entity.DbPrediction) gin.H {
	if record == nil {
		return gin.H{}
	}
	outputs := make([]string, 0, len(record.Output))
	for _, p := range record.Output {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		outputs = append(outputs, h.publicURL(trimmed))
	}
	view := gin.H{
		"id":           record.ID,
		"kind":         record.Kind,
		"model":        record.Model,
		"status":       record.Status,
		"output":       outputs,
		"points_cost":  record.PointsCost,
		"created_at":   record.CreatedAt,
		"started_at":   record.StartedAt,
		"completed_at": record.CompletedAt,
	}
	if record.ErrorMessage != "" {
		view["error"] = record.ErrorMessage
	}
	if record.Metrics != nil {
		view["metrics"] = record.Metrics
	}
	return view
}
