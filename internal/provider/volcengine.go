package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"pixelforge/internal/config"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	volcModel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
	"github.com/volcengine/volcengine-go-sdk/volcengine"
)

//文档:https://www.volcengine.com/docs/82379/1824121

// Volcengine 是同步型驱动：CreatePrediction 内部阻塞到生成结束，
// 直接返回终态结果，调用方无需轮询。
type Volcengine struct {
	apiKey string
}

// NewVolcengine creates a client for the Volcengine Ark image API.
func NewVolcengine(cfg config.Config) (*Volcengine, error) {
	apiKey := strings.TrimSpace(cfg.VolcengineAPIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(cfg.PredictionAPIToken)
	}
	if apiKey == "" {
		return nil, errors.New("volcengine api key is not configured")
	}
	return &Volcengine{apiKey: apiKey}, nil
}

// CreatePrediction 同步生成图片并返回终态任务。
func (v *Volcengine) CreatePrediction(ctx context.Context, req CreateRequest) (*Prediction, error) {
	if v == nil {
		return nil, errors.New("volcengine client not initialised")
	}

	prompt, _ := req.Input["prompt"].(string)
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("prompt is required")
	}
	size, _ := req.Input["size"].(string)
	if strings.TrimSpace(size) == "" {
		size = "2K"
	}

	var images []string
	switch raw := req.Input["image"].(type) {
	case string:
		if strings.TrimSpace(raw) != "" {
			images = []string{raw}
		}
	case []string:
		images = raw
	case []interface{}:
		for _, item := range raw {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				images = append(images, s)
			}
		}
	}

	now := time.Now().UTC()
	prediction := &Prediction{
		ID:        "volc-" + uuid.NewString(),
		Status:    StatusProcessing,
		Model:     req.Model,
		Input:     req.Input,
		CreatedAt: &now,
		StartedAt: &now,
	}

	client := arkruntime.NewClientWithApiKey(v.apiKey)

	var sequentialImageGeneration volcModel.SequentialImageGeneration = "disabled"
	generateReq := volcModel.GenerateImagesRequest{
		Model:                     req.Model,
		Prompt:                    prompt,
		Image:                     images,
		Size:                      volcengine.String(size),
		ResponseFormat:            volcengine.String(volcModel.GenerateImagesResponseFormatURL),
		Watermark:                 volcengine.Bool(false),
		SequentialImageGeneration: &sequentialImageGeneration,
	}

	stream, err := client.GenerateImagesStreaming(ctx, generateReq)
	if err != nil {
		return nil, fmt.Errorf("volcengine generate images: %w", err)
	}
	defer stream.Close()

	var output []string
	var failureMessage string
	for {
		recv, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			failureMessage = err.Error()
			logrus.WithError(err).Error("volcengine stream recv failed")
			break
		}
		switch recv.Type {
		case "image_generation.partial_failed":
			if recv.Error != nil {
				failureMessage = recv.Error.Message
				logrus.WithFields(logrus.Fields{
					"code":    recv.Error.Code,
					"message": recv.Error.Message,
				}).Error("volcengine partial generation failed")
				if strings.EqualFold(recv.Error.Code, "InternalServiceError") {
					break
				}
			}
		case "image_generation.partial_succeeded":
			if recv.Error == nil && recv.Url != nil && strings.TrimSpace(*recv.Url) != "" {
				output = append(output, *recv.Url)
			}
		case "image_generation.completed":
			if recv.Error == nil && recv.Usage != nil {
				prediction.Metrics = map[string]interface{}{
					"generated_images": recv.Usage.GeneratedImages,
					"total_tokens":     recv.Usage.TotalTokens,
				}
			}
		}
	}

	completed := time.Now().UTC()
	prediction.CompletedAt = &completed
	prediction.Output = output

	if len(output) > 0 {
		prediction.Status = StatusSucceeded
	} else {
		prediction.Status = StatusFailed
		if failureMessage == "" {
			failureMessage = "no image generated"
		}
		prediction.Error = failureMessage
	}

	return prediction, nil
}

// GetPrediction 同步驱动不保存历史任务，查询一律视为不存在。
func (v *Volcengine) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	return nil, ErrPredictionNotFound
}

// CancelPrediction 同步驱动的任务在 CreatePrediction 返回时已结束。
func (v *Volcengine) CancelPrediction(ctx context.Context, id string) error {
	return nil
}

var _ Client = (*Volcengine)(nil)
