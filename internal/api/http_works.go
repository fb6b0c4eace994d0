package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pixelforge/internal/entity"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ListWorks 分页查询作品，普通用户只能看到自己的。
func (h *HTTPHandler) ListWorks(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	var params entity.WorkQuery
	if err := c.ShouldBindQuery(&params); err != nil {
		InvalidPayload(c)
		return
	}

	if requestUser.IsAdmin() {
		params.IncludeAll = true
		if userFilter := strings.TrimSpace(c.Query("user_id")); userFilter != "" {
			if parsed, err := strconv.ParseUint(userFilter, 10, 64); err == nil && parsed > 0 {
				params.UserID = uint(parsed)
				params.IncludeAll = false
			}
		}
	} else {
		params.UserID = requestUser.ID
		params.IncludeAll = false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	works, meta, err := h.repo.ListWorks(ctx, &params)
	if err != nil {
		logrus.WithError(err).Error("failed to list works")
		InternalError(c, "failed to load works")
		return
	}

	items := make([]entity.WorkItem, 0, len(works))
	for i := range works {
		items = append(items, h.makeWorkItem(&works[i]))
	}
	c.JSON(http.StatusOK, entity.WorkListResponse{Works: items, Meta: meta})
}

// GetWork 查询单个作品。
func (h *HTTPHandler) GetWork(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	id, ok := parseWorkID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	work, err := h.loadOwnedWork(ctx, c, requestUser, id)
	if err != nil {
		return
	}
	c.JSON(http.StatusOK, h.makeWorkItem(work))
}

// UpdateWork 更新作品标题、风格或可见性。
func (h *HTTPHandler) UpdateWork(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	id, ok := parseWorkID(c)
	if !ok {
		return
	}

	var req entity.WorkUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		InvalidPayload(c)
		return
	}

	updates := entity.WorkUpdates{
		Title: req.Title,
		Style: req.Style,
	}
	if req.Status != nil {
		status := strings.TrimSpace(*req.Status)
		if status != entity.WorkStatusVisible && status != entity.WorkStatusHidden {
			BadRequest(c, ErrCodeInvalidRequest, "invalid work status")
			return
		}
		updates.Status = &status
	}
	if updates.IsEmpty() {
		BadRequest(c, ErrCodeInvalidRequest, "no fields to update")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.loadOwnedWork(ctx, c, requestUser, id); err != nil {
		return
	}

	if err := h.repo.UpdateWork(ctx, id, updates); err != nil {
		logrus.WithError(err).WithField("work_id", id).Error("failed to update work")
		InternalError(c, "failed to update work")
		return
	}

	work, err := h.repo.GetWork(ctx, id)
	if err != nil {
		InternalError(c, "failed to load work")
		return
	}
	c.JSON(http.StatusOK, h.makeWorkItem(work))
}

// DeleteWork 删除作品。
func (h *HTTPHandler) DeleteWork(c *gin.Context) {
	requestUser := CurrentUser(c)
	if requestUser == nil {
		Unauthorized(c, "authentication required")
		return
	}

	id, ok := parseWorkID(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.loadOwnedWork(ctx, c, requestUser, id); err != nil {
		return
	}

	if err := h.repo.DeleteWork(ctx, id); err != nil {
		logrus.WithError(err).WithField("work_id", id).Error("failed to delete work")
		InternalError(c, "failed to delete work")
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// loadOwnedWork 加载作品并做归属校验，越权一律按 404 返回。
func (h *HTTPHandler) loadOwnedWork(ctx context.Context, c *gin.Context, requestUser *RequestUser, id uint) (*entity.DbWork, error) {
	work, err := h.repo.GetWork(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, ErrCodeWorkNotFound, "work not found")
			return nil, err
		}
		logrus.WithError(err).WithField("work_id", id).Error("failed to load work")
		InternalError(c, "failed to load work")
		return nil, err
	}
	if work.UserID != requestUser.ID && !requestUser.IsAdmin() {
		NotFound(c, ErrCodeWorkNotFound, "work not found")
		return nil, gorm.ErrRecordNotFound
	}
	return work, nil
}

func parseWorkID(c *gin.Context) (uint, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		BadRequest(c, ErrCodeInvalidRequest, "invalid work id")
		return 0, false
	}
	return uint(parsed), true
}

func (h *HTTPHandler) makeWorkItem(work *entity.DbWork) entity.WorkItem {
	if work == nil {
		return entity.WorkItem{}
	}
	return entity.WorkItem{
		ID:             work.ID,
		Title:          work.Title,
		Kind:           work.Kind,
		Style:          work.Style,
		OriginalImage:  h.publicURL(work.OriginalImage),
		ProcessedImage: h.publicURL(work.ProcessedImage),
		Status:         work.Status,
		PointsCost:     work.PointsCost,
		PredictionID:   work.PredictionID,
		CompletedAt:    work.CompletedAt,
		CreatedAt:      work.CreatedAt,
	}
}
