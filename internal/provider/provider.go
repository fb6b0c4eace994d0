package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pixelforge/internal/config"
)

// 预测状态常量，与服务商侧的取值保持一致。
const (
	StatusStarting   = "starting"
	StatusProcessing = "processing"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
	StatusCanceled   = "canceled"
)

// ErrPredictionNotFound 服务商侧查询不到对应任务。
var ErrPredictionNotFound = errors.New("prediction not found")

// Prediction 是服务商侧任务的统一视图。
type Prediction struct {
	ID          string                 `json:"id"`
	Status      string                 `json:"status"`
	Model       string                 `json:"model"`
	Version     string                 `json:"version"`
	Input       map[string]interface{} `json:"input"`
	Output      []string               `json:"output"`
	Error       string                 `json:"error"`
	Metrics     map[string]interface{} `json:"metrics"`
	CreatedAt   *time.Time             `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at"`
}

// Terminal 判断服务商状态是否为终态。
func (p *Prediction) Terminal() bool {
	if p == nil {
		return false
	}
	switch p.Status {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// FirstOutput 返回首个输出资源，没有输出时返回空字符串。
func (p *Prediction) FirstOutput() string {
	if p == nil {
		return ""
	}
	for _, out := range p.Output {
		if strings.TrimSpace(out) != "" {
			return out
		}
	}
	return ""
}

// CreateRequest describes a job submission to the provider.
type CreateRequest struct {
	Model   string
	Version string
	Input   map[string]interface{}
	Webhook string
}

// Client 是异步图像生成服务商的抽象。同步型驱动可以在 CreatePrediction
// 中直接返回终态结果，调用方据此跳过轮询。
type Client interface {
	CreatePrediction(ctx context.Context, req CreateRequest) (*Prediction, error)
	GetPrediction(ctx context.Context, id string) (*Prediction, error)
	CancelPrediction(ctx context.Context, id string) error
}

// NewClient 根据配置实例化预测服务商客户端。
func NewClient(cfg config.Config) (Client, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.PredictionDriver))
	switch driver {
	case "", "replicate":
		return NewReplicate(cfg)
	case "volcengine":
		return NewVolcengine(cfg)
	default:
		return nil, fmt.Errorf("unsupported prediction driver: %s", cfg.PredictionDriver)
	}
}
