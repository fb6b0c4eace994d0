package api

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"pixelforge/internal/entity"
	"pixelforge/internal/service"
	"pixelforge/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// kindSpec 描述一种生成任务的默认模型与积分价格。
type kindSpec struct {
	Kind          string
	DefaultModel  string
	PointsCost    int64
	RequirePrompt bool
	RequireImage  bool
}

var kindSpecs = map[string]kindSpec{
	entity.WorkKindTextToImage: {
		Kind:          entity.WorkKindTextToImage,
		DefaultModel:  "black-forest-labs/flux-schnell",
		PointsCost:    10,
		RequirePrompt: true,
	},
	entity.WorkKindStyleTransfer: {
		Kind:         entity.WorkKindStyleTransfer,
		DefaultModel: "philz1337x/style-transfer",
		PointsCost:   15,
		RequireImage: true,
	},
	entity.WorkKindAvatar: {
		Kind:         entity.WorkKindAvatar,
		DefaultModel: "tencentarc/photomaker",
		PointsCost:   20,
		RequireImage: true,
	},
	entity.WorkKindPhotoRestore: {
		Kind:         entity.WorkKindPhotoRestore,
		DefaultModel: "tencentarc/gfpgan",
		PointsCost:   15,
		RequireImage: true,
	},
	entity.WorkKindRemoveBg: {
		Kind:         entity.WorkKindRemoveBg,
		DefaultModel: "cjwbw/rembg",
		PointsCost:   5,
		RequireImage: true,
	},
	entity.WorkKindEdit: {
		Kind:          entity.WorkKindEdit,
		DefaultModel:  "black-forest-labs/flux-kontext-pro",
		PointsCost:    20,
		RequirePrompt: true,
		RequireImage:  true,
	},
	entity.WorkKindOther: {
		Kind:          entity.WorkKindOther,
		DefaultModel:  "black-forest-labs/flux-schnell",
		PointsCost:    10,
		RequirePrompt: true,
	},
}

// 生成入口，路由按任务类型各挂一个

func (h *HTTPHandler) TextToImage(c *gin.Context)   { h.handleGenerate(c, entity.WorkKindTextToImage) }
func (h *HTTPHandler) StyleTransfer(c *gin.Context) { h.handleGenerate(c, entity.WorkKindStyleTransfer) }
func (h *HTTPHandler) CreateAvatar(c *gin.Context)  { h.handleGenerate(c, entity.WorkKindAvatar) }
func (h *HTTPHandler) PhotoRestore(c *gin.Context)  { h.handleGenerate(c, entity.WorkKindPhotoRestore) }
func (h *HTTPHandler) RemoveBackground(c *gin.Context) {
	h.handleGenerate(c, entity.WorkKindRemoveBg)
}
func (h *HTTPHandler) ImageEdit(c *gin.Context)     { h.handleGenerate(c, entity.WorkKindEdit) }
func (h *HTTPHandler) GenerateImage(c *gin.Context) { h.handleGenerate(c, entity.WorkKindOther) }

// handleGenerate 是所有生成入口的公共实现：解析 JSON 或 multipart 请求，
// 校验参数，扣费并提交预测任务，返回 202。
func (h *HTTPHandler) handleGenerate(c *gin.Context, kind string) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	spec, ok := kindSpecs[kind]
	if !ok {
		BadRequest(c, ErrCodeInvalidRequest, "unsupported generation kind")
		return
	}

	req, err := bindGenerateRequest(c)
	if err != nil {
		InvalidPayload(c)
		return
	}

	req.Prompt = strings.TrimSpace(req.Prompt)
	req.Image = strings.TrimSpace(req.Image)
	if spec.RequirePrompt && req.Prompt == "" {
		MissingField(c, "prompt")
		return
	}
	if spec.RequireImage && req.Image == "" {
		MissingField(c, "image")
		return
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = spec.DefaultModel
	}

	input := entity.JSONMap{}
	if req.Prompt != "" {
		input["prompt"] = req.Prompt
	}
	if req.Image != "" {
		input["image"] = req.Image
	}
	if style := strings.TrimSpace(req.Style); style != "" {
		input["style"] = style
	}
	if size := strings.TrimSpace(req.Size); size != "" {
		input["size"] = size
	}

	record, txn, err := h.predictionService.Submit(c.Request.Context(), service.SubmitParams{
		UserID:     requestUser.ID,
		Kind:       kind,
		Model:      model,
		Input:      input,
		PointsCost: spec.PointsCost,
		ClientID:   strings.TrimSpace(req.ClientID),
	})
	if err != nil {
		if errors.Is(err, entity.ErrInsufficientBalance) {
			InsufficientBalance(c)
			return
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": requestUser.ID,
			"kind":    kind,
		}).Error("failed to submit prediction")
		InternalError(c, "failed to submit generation job")
		return
	}

	c.JSON(http.StatusAccepted, entity.GenerateResponse{
		PredictionID: record.ID,
		Status:       record.Status,
		PointsCost:   record.PointsCost,
		Balance:      txn.BalanceAfter,
	})
}

// bindGenerateRequest 同时支持 JSON 与 multipart 请求体，
// multipart 里的 image 文件会转成 data URL 传给服务商。
func bindGenerateRequest(c *gin.Context) (*entity.GenerateRequest, error) {
	var req entity.GenerateRequest

	contentType := c.ContentType()
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := c.ShouldBind(&req); err != nil {
			return nil, err
		}
		file, err := c.FormFile("image")
		if err == nil && file != nil {
			opened, err := file.Open()
			if err != nil {
				return nil, err
			}
			defer opened.Close()
			data, err := io.ReadAll(opened)
			if err != nil {
				return nil, err
			}
			mimeType := file.Header.Get("Content-Type")
			if mimeType == "" {
				mimeType = http.DetectContentType(data)
			}
			req.Image = "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
		}
		return &req, nil
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	if req.Image != "" && !strings.HasPrefix(req.Image, "http") && !strings.HasPrefix(req.Image, "data:") {
		req.Image = utils.EnsureDataURL(req.Image)
	}
	return &req, nil
}

// StreamGenerationEvents 建立 SSE 长连接，推送预测终态事件。
func (h *HTTPHandler) StreamGenerationEvents(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	clientID := strings.TrimSpace(c.Query("client_id"))
	if clientID == "" {
		MissingField(c, "client_id")
		return
	}

	ctx := c.Request.Context()
	events := make(chan sseMessage, 8)
	h.registerSSEClient(clientID, events)
	defer h.unregisterSSEClient(clientID, events)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	// 开流注释行保活 + connected 事件
	c.Writer.WriteString(": \n\n")
	c.SSEvent("connected", gin.H{"client_id": clientID})
	if flusher, ok := c.Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	heartbeatTicker := time.NewTicker(10 * time.Second)
	defer heartbeatTicker.Stop()

	logrus.WithFields(logrus.Fields{
		"user_id":   requestUser.ID,
		"client_id": clientID,
	}).Info("generation sse connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			logrus.WithFields(logrus.Fields{
				"user_id":   requestUser.ID,
				"client_id": clientID,
			}).Info("generation sse disconnected")
			return false
		case <-heartbeatTicker.C:
			c.SSEvent("ping", gin.H{"ts": time.Now().UnixMilli()})
			return true
		case msg, ok := <-events:
			if !ok {
				c.SSEvent("end", gin.H{"client_id": clientID})
				return false
			}
			c.SSEvent(msg.event, msg.data)
			return true
		}
	})
}
