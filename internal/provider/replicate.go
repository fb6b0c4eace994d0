package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pixelforge/internal/config"

	"github.com/sirupsen/logrus"
)

const replicateRequestTimeout = 60 * time.Second

// Replicate 通过 Replicate 风格的 HTTP API 提交异步预测任务。
type Replicate struct {
	token      string
	baseURL    string
	webhook    string
	httpClient *http.Client
}

// NewReplicate creates a client for a Replicate-compatible prediction API.
func NewReplicate(cfg config.Config) (*Replicate, error) {
	token := strings.TrimSpace(cfg.PredictionAPIToken)
	if token == "" {
		return nil, errors.New("prediction api token is not configured")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.PredictionBaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	return &Replicate{
		token:      token,
		baseURL:    baseURL,
		webhook:    strings.TrimSpace(cfg.PredictionWebhook),
		httpClient: &http.Client{Timeout: replicateRequestTimeout},
	}, nil
}

// replicatePrediction 是服务商返回的原始任务对象。
// output 字段可能是单个 URL、URL 数组或缺失，统一成数组处理。
type replicatePrediction struct {
	ID          string                 `json:"id"`
	Status      string                 `json:"status"`
	Model       string                 `json:"model"`
	Version     string                 `json:"version"`
	Input       map[string]interface{} `json:"input"`
	Output      json.RawMessage        `json:"output"`
	Error       interface{}            `json:"error"`
	Metrics     map[string]interface{} `json:"metrics"`
	CreatedAt   *time.Time             `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at"`
}

func (rp *replicatePrediction) toPrediction() *Prediction {
	if rp == nil {
		return nil
	}
	return &Prediction{
		ID:          rp.ID,
		Status:      rp.Status,
		Model:       rp.Model,
		Version:     rp.Version,
		Input:       rp.Input,
		Output:      normalizeOutput(rp.Output),
		Error:       normalizeError(rp.Error),
		Metrics:     rp.Metrics,
		CreatedAt:   rp.CreatedAt,
		StartedAt:   rp.StartedAt,
		CompletedAt: rp.CompletedAt,
	}
}

// normalizeOutput 将 string 或 []string 形式的 output 统一为切片。
func normalizeOutput(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			return nil
		}
		return []string{single}
	}

	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		out := make([]string, 0, len(many))
		for _, v := range many {
			if strings.TrimSpace(v) != "" {
				out = append(out, v)
			}
		}
		return out
	}

	return nil
}

func normalizeError(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

// CreatePrediction submits a new prediction job.
func (r *Replicate) CreatePrediction(ctx context.Context, req CreateRequest) (*Prediction, error) {
	if r == nil {
		return nil, errors.New("replicate client not initialised")
	}

	payload := map[string]interface{}{
		"input": req.Input,
	}
	if strings.TrimSpace(req.Version) != "" {
		payload["version"] = req.Version
	}
	if r.webhook != "" {
		payload["webhook"] = r.webhook
		payload["webhook_events_filter"] = []string{"completed"}
	}

	endpoint := r.baseURL + "/predictions"
	if strings.TrimSpace(req.Version) == "" && strings.TrimSpace(req.Model) != "" {
		endpoint = fmt.Sprintf("%s/models/%s/predictions", r.baseURL, strings.Trim(req.Model, "/"))
	}

	rp, err := r.doRequest(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"prediction_id": rp.ID,
		"model":         req.Model,
		"status":        rp.Status,
	}).Info("created provider prediction")

	prediction := rp.toPrediction()
	if prediction.Model == "" {
		prediction.Model = req.Model
	}
	return prediction, nil
}

// GetPrediction fetches the current state of a prediction.
func (r *Replicate) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	if r == nil {
		return nil, errors.New("replicate client not initialised")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return nil, errors.New("prediction id is empty")
	}

	rp, err := r.doRequest(ctx, http.MethodGet, r.baseURL+"/predictions/"+trimmed, nil)
	if err != nil {
		return nil, err
	}
	return rp.toPrediction(), nil
}

// CancelPrediction requests cancellation of a running prediction.
func (r *Replicate) CancelPrediction(ctx context.Context, id string) error {
	if r == nil {
		return errors.New("replicate client not initialised")
	}
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return errors.New("prediction id is empty")
	}

	_, err := r.doRequest(ctx, http.MethodPost, r.baseURL+"/predictions/"+trimmed+"/cancel", nil)
	return err
}

func (r *Replicate) doRequest(ctx context.Context, method, endpoint string, payload interface{}) (*replicatePrediction, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrPredictionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logrus.WithFields(logrus.Fields{
			"status":   resp.StatusCode,
			"endpoint": endpoint,
			"body":     string(raw),
		}).Error("provider request failed")
		return nil, fmt.Errorf("provider http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var rp replicatePrediction
	if err := json.Unmarshal(raw, &rp); err != nil {
		return nil, fmt.Errorf("decode provider response: %w", err)
	}
	return &rp, nil
}

var _ Client = (*Replicate)(nil)
