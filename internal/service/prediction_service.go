package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pixelforge/internal/entity"
	"pixelforge/internal/metrics"
	"pixelforge/internal/model"
	"pixelforge/internal/provider"
	"pixelforge/internal/storage"
	"pixelforge/internal/utils"

	"github.com/sirupsen/logrus"
)

const (
	pollInterval   = 3 * time.Second
	pollTimeout    = 10 * time.Minute
	finalizeWindow = 5 * time.Minute
)

// PredictionService 封装预测任务的完整生命周期：提交扣费、轮询服务商、
// 终态落账（退款或建档）、SSE 通知。
type PredictionService struct {
	repo     model.Repository
	provider provider.Client
	storage  storage.Storage
	titler   *provider.Titler

	// notifyFunc 用于通知任务终态事件（由调用方设置）
	notifyFunc func(clientID string, predictionID string, status string, errMsg string)
}

// NewPredictionService 创建预测服务实例
func NewPredictionService(repo model.Repository, client provider.Client, store storage.Storage, titler *provider.Titler) *PredictionService {
	return &PredictionService{
		repo:     repo,
		provider: client,
		storage:  store,
		titler:   titler,
	}
}

// SetNotifyFunc 设置通知函数（用于 SSE 推送）
func (s *PredictionService) SetNotifyFunc(fn func(clientID string, predictionID string, status string, errMsg string)) {
	s.notifyFunc = fn
}

// SubmitParams 提交一次预测任务所需的参数。
type SubmitParams struct {
	UserID     uint
	Kind       string
	Model      string
	Version    string
	Input      entity.JSONMap
	PointsCost int64
	ClientID   string
}

// Submit 提交任务：先在服务商侧创建预测，再在同一个数据库事务里插入
// 预测记录并扣减积分。扣费失败时尽力取消服务商侧任务。
func (s *PredictionService) Submit(ctx context.Context, params SubmitParams) (*entity.DbPrediction, *entity.DbTransaction, error) {
	if s == nil || s.repo == nil || s.provider == nil {
		return nil, nil, errors.New("prediction service not initialised")
	}
	if params.UserID == 0 {
		return nil, nil, errors.New("invalid user id")
	}
	if params.PointsCost <= 0 {
		return nil, nil, errors.New("invalid points cost")
	}

	// 预检余额，尽早拒绝；真正的余额保证在提交事务的条件扣减里
	balance, err := s.repo.GetBalance(ctx, params.UserID)
	if err != nil {
		return nil, nil, err
	}
	if balance < params.PointsCost {
		return nil, nil, entity.ErrInsufficientBalance
	}

	input := map[string]interface{}(params.Input)
	remote, err := s.provider.CreatePrediction(ctx, provider.CreateRequest{
		Model:   params.Model,
		Version: params.Version,
		Input:   input,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create provider prediction: %w", err)
	}

	status := remote.Status
	if status == "" {
		status = entity.PredictionStatusStarting
	}

	record := &entity.DbPrediction{
		ID:         remote.ID,
		UserID:     params.UserID,
		Kind:       params.Kind,
		Model:      params.Model,
		Version:    params.Version,
		Input:      params.Input,
		PointsCost: params.PointsCost,
		ClientID:   strings.TrimSpace(params.ClientID),
		Status:     status,
		StartedAt:  remote.StartedAt,
	}
	if remote.Terminal() {
		// 同步驱动已经拿到结果，先按 processing 入库，随后立即终态化
		record.Status = entity.PredictionStatusProcessing
	}

	txn, err := s.repo.SubmitPrediction(ctx, record)
	if err != nil {
		if cancelErr := s.provider.CancelPrediction(ctx, remote.ID); cancelErr != nil {
			logrus.WithError(cancelErr).WithField("prediction_id", remote.ID).Warn("cancel orphan prediction failed")
		}
		return nil, nil, err
	}

	metrics.PointsDebitedTotal.Add(float64(params.PointsCost))
	logrus.WithFields(logrus.Fields{
		"prediction_id": record.ID,
		"user_id":       params.UserID,
		"kind":          params.Kind,
		"points_cost":   params.PointsCost,
	}).Info("prediction submitted")

	if remote.Terminal() {
		go s.finalizeFromRemote(record.ID, remote)
	} else {
		go s.watchPrediction(record.ID)
	}

	return record, txn, nil
}

// Refresh 返回任务的最新状态：数据库里已是终态则直接返回，否则向服务商
// 查询一次，拿到终态就地落账后再返回。
func (s *PredictionService) Refresh(ctx context.Context, id string) (*entity.DbPrediction, error) {
	if s == nil || s.repo == nil {
		return nil, errors.New("prediction service not initialised")
	}

	record, err := s.repo.GetPrediction(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity.PredictionStatusTerminal(record.Status) {
		return record, nil
	}

	remote, err := s.provider.GetPrediction(ctx, id)
	if err != nil {
		if errors.Is(err, provider.ErrPredictionNotFound) {
			// 同步驱动或服务商侧已过期，保留本地状态
			return record, nil
		}
		logrus.WithError(err).WithField("prediction_id", id).Warn("refresh prediction failed")
		return record, nil
	}

	if remote.Terminal() {
		if err := s.finalize(ctx, record, remote); err != nil {
			logrus.WithError(err).WithField("prediction_id", id).Error("finalize prediction failed")
			return record, nil
		}
		return s.repo.GetPrediction(ctx, id)
	}

	if remote.Status != record.Status {
		status := remote.Status
		if err := s.repo.UpdatePrediction(ctx, id, entity.PredictionUpdates{Status: &status, StartedAt: remote.StartedAt}); err != nil {
			logrus.WithError(err).WithField("prediction_id", id).Warn("update prediction status failed")
		} else {
			record.Status = status
		}
	}
	return record, nil
}

// HandleRemoteUpdate 处理服务商回调推送的终态任务。
func (s *PredictionService) HandleRemoteUpdate(ctx context.Context, remote *provider.Prediction) error {
	if s == nil || s.repo == nil {
		return errors.New("prediction service not initialised")
	}
	if remote == nil || strings.TrimSpace(remote.ID) == "" {
		return errors.New("empty remote prediction")
	}
	if !remote.Terminal() {
		return nil
	}

	record, err := s.repo.GetPrediction(ctx, remote.ID)
	if err != nil {
		return err
	}
	if entity.PredictionStatusTerminal(record.Status) {
		return nil
	}
	return s.finalize(ctx, record, remote)
}

// watchPrediction 后台轮询服务商直到任务终态或超时。
func (s *PredictionService) watchPrediction(id string) {
	deadline := time.Now().Add(pollTimeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), finalizeWindow)
		record, err := s.repo.GetPrediction(ctx, id)
		if err != nil {
			cancel()
			logrus.WithError(err).WithField("prediction_id", id).Error("load prediction failed, stop polling")
			return
		}
		if entity.PredictionStatusTerminal(record.Status) {
			cancel()
			return
		}

		remote, err := s.provider.GetPrediction(ctx, id)
		if err != nil {
			logrus.WithError(err).WithField("prediction_id", id).Warn("poll prediction failed")
		} else if remote.Terminal() {
			if err := s.finalize(ctx, record, remote); err != nil {
				logrus.WithError(err).WithField("prediction_id", id).Error("finalize prediction failed, will retry")
			} else {
				cancel()
				return
			}
		} else if remote.Status != record.Status {
			status := remote.Status
			if err := s.repo.UpdatePrediction(ctx, id, entity.PredictionUpdates{Status: &status, StartedAt: remote.StartedAt}); err != nil {
				logrus.WithError(err).WithField("prediction_id", id).Warn("update prediction status failed")
			}
		}
		cancel()

		if time.Now().After(deadline) {
			s.failOnTimeout(id)
			return
		}
	}
}

func (s *PredictionService) failOnTimeout(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeWindow)
	defer cancel()

	record, err := s.repo.GetPrediction(ctx, id)
	if err != nil || entity.PredictionStatusTerminal(record.Status) {
		return
	}

	now := time.Now().UTC()
	remote := &provider.Prediction{
		ID:          id,
		Status:      provider.StatusFailed,
		Error:       "prediction timed out",
		CompletedAt: &now,
	}
	if err := s.finalize(ctx, record, remote); err != nil {
		logrus.WithError(err).WithField("prediction_id", id).Error("finalize timed-out prediction failed")
	}
}

func (s *PredictionService) finalizeFromRemote(id string, remote *provider.Prediction) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeWindow)
	defer cancel()

	record, err := s.repo.GetPrediction(ctx, id)
	if err != nil {
		logrus.WithError(err).WithField("prediction_id", id).Error("load prediction failed")
		return
	}
	if entity.PredictionStatusTerminal(record.Status) {
		return
	}
	if err := s.finalize(ctx, record, remote); err != nil {
		logrus.WithError(err).WithField("prediction_id", id).Error("finalize prediction failed")
	}
}

// finalize 将终态写入数据库。成功路径先持久化产物再提交终态事务，
// 持久化失败时记录保持非终态，下一次轮询或查询会重试。
func (s *PredictionService) finalize(ctx context.Context, record *entity.DbPrediction, remote *provider.Prediction) error {
	switch remote.Status {
	case provider.StatusSucceeded:
		return s.finalizeSuccess(ctx, record, remote)
	case provider.StatusFailed, provider.StatusCanceled:
		return s.finalizeFailure(ctx, record, remote)
	default:
		return fmt.Errorf("not a terminal status: %s", remote.Status)
	}
}

func (s *PredictionService) finalizeFailure(ctx context.Context, record *entity.DbPrediction, remote *provider.Prediction) error {
	status := remote.Status
	errMsg := remote.Error
	if errMsg == "" && status == provider.StatusFailed {
		errMsg = "prediction failed"
	}
	completedAt := remote.CompletedAt
	if completedAt == nil {
		now := time.Now().UTC()
		completedAt = &now
	}

	updates := entity.PredictionUpdates{
		Status:       &status,
		ErrorMessage: &errMsg,
		CompletedAt:  completedAt,
	}
	if remote.Metrics != nil {
		m := entity.JSONMap(remote.Metrics)
		updates.Metrics = &m
	}

	applied, err := s.repo.FinalizePredictionFailure(ctx, record.ID, updates)
	if err != nil {
		return err
	}
	if !applied {
		// 已被并发路径终态化，退款由先到者完成
		return nil
	}

	metrics.PredictionsTotal.WithLabelValues(record.Kind, status).Inc()
	metrics.PointsCreditedTotal.WithLabelValues(entity.TransactionTypeRefund).Add(float64(record.PointsCost))
	logrus.WithFields(logrus.Fields{
		"prediction_id": record.ID,
		"status":        status,
		"refund":        record.PointsCost,
	}).Info("prediction finalized with refund")

	s.notifyComplete(record.ClientID, record.ID, status, errMsg)
	return nil
}

func (s *PredictionService) finalizeSuccess(ctx context.Context, record *entity.DbPrediction, remote *provider.Prediction) error {
	source := remote.FirstOutput()
	if source == "" {
		// 成功却没有任何输出，按失败处理并退款
		failed := &provider.Prediction{
			ID:          remote.ID,
			Status:      provider.StatusFailed,
			Error:       "provider returned no output",
			CompletedAt: remote.CompletedAt,
		}
		return s.finalizeFailure(ctx, record, failed)
	}

	// 先持久化产物，失败则整体失败、保持非终态等待重试
	storedPaths, err := s.persistOutputs(ctx, record, remote.Output)
	if err != nil {
		return fmt.Errorf("persist outputs: %w", err)
	}

	prompt, _ := record.Input["prompt"].(string)
	title := s.titler.GenerateTitle(ctx, prompt)

	status := provider.StatusSucceeded
	completedAt := remote.CompletedAt
	if completedAt == nil {
		now := time.Now().UTC()
		completedAt = &now
	}

	output := entity.StringArray(storedPaths)
	updates := entity.PredictionUpdates{
		Status:      &status,
		Output:      &output,
		CompletedAt: completedAt,
	}
	if remote.Metrics != nil {
		m := entity.JSONMap(remote.Metrics)
		updates.Metrics = &m
	}

	originalImage, _ := record.Input["image"].(string)
	style, _ := record.Input["style"].(string)
	work := &entity.DbWork{
		UserID:         record.UserID,
		Title:          title,
		Kind:           record.Kind,
		Style:          style,
		OriginalImage:  originalImage,
		ProcessedImage: output.First(),
		Status:         entity.WorkStatusVisible,
		PointsCost:     record.PointsCost,
		PredictionID:   record.ID,
		CompletedAt:    completedAt,
	}

	applied, err := s.repo.FinalizePredictionSuccess(ctx, record.ID, updates, work)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	metrics.PredictionsTotal.WithLabelValues(record.Kind, status).Inc()
	logrus.WithFields(logrus.Fields{
		"prediction_id": record.ID,
		"work_title":    title,
		"outputs":       len(storedPaths),
	}).Info("prediction finalized with work")

	s.notifyComplete(record.ClientID, record.ID, status, "")
	return nil
}

// persistOutputs 下载或解码服务商输出并写入存储，返回存储侧键。
// 任何一个输出失败都返回错误，终态事务不会提交。
func (s *PredictionService) persistOutputs(ctx context.Context, record *entity.DbPrediction, outputs []string) ([]string, error) {
	if s.storage == nil {
		// 未配置存储时保留服务商原始 URL
		return outputs, nil
	}

	var paths []string
	for idx, source := range outputs {
		trimmed := strings.TrimSpace(source)
		if trimmed == "" {
			continue
		}
		data, ext, err := utils.FetchMedia(ctx, trimmed)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", idx, err)
		}
		relPath, err := s.storage.Save(ctx, data, storage.SaveOptions{
			Category:  record.Kind,
			Extension: ext,
			BaseName:  buildOutputBaseName(record.ID, idx),
		})
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", idx, err)
		}
		paths = append(paths, relPath)
	}
	if len(paths) == 0 {
		return nil, errors.New("no outputs persisted")
	}
	return paths, nil
}

// notifyComplete 通知任务终态
func (s *PredictionService) notifyComplete(clientID string, predictionID string, status string, errMsg string) {
	if s.notifyFunc != nil && strings.TrimSpace(clientID) != "" {
		s.notifyFunc(clientID, predictionID, status, errMsg)
	}
}

// buildOutputBaseName 构建输出文件的基础名称
func buildOutputBaseName(predictionID string, idx int) string {
	token := storage.SanitizeToken(predictionID)
	if token == "" {
		token = "prediction"
	}
	if len(token) > 32 {
		token = token[:32]
	}
	return fmt.Sprintf("%s_%d", token, idx)
}
