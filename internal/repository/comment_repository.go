package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"larder/internal/apperr"
	"larder/internal/models"
	"larder/internal/services"
)

const defaultListLimit = 200

// CommentRepository is the gorm-backed services.CommentStore.
type CommentRepository struct {
	db *gorm.DB
}

var _ services.CommentStore = (*CommentRepository)(nil)

func NewCommentRepository(db *gorm.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

func (r *CommentRepository) ListApproved(ctx context.Context, pageSlug string) ([]models.Comment, error) {
	comments := make([]models.Comment, 0)
	err := r.db.WithContext(ctx).
		Where("page_slug = ? AND status = ?", pageSlug, models.CommentStatusApproved).
		Order("created_at ASC").
		Order("id ASC").
		Find(&comments).Error
	if err != nil {
		return nil, apperr.Storage("list approved comments", err)
	}
	return comments, nil
}

func (r *CommentRepository) Insert(ctx context.Context, c *models.Comment) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return apperr.Storage("insert comment", err)
	}
	return nil
}

func (r *CommentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.CommentStatus, isAdmin *bool) (*models.Comment, error) {
	updates := map[string]interface{}{
		"status": status,
	}
	if isAdmin != nil {
		updates["is_admin"] = *isAdmin
	}

	var updated models.Comment
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Comment{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.First(&updated, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("comment", id.String())
	}
	if err != nil {
		return nil, apperr.Storage("update comment status", err)
	}
	return &updated, nil
}

func (r *CommentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Comment{})
	if res.Error != nil {
		return apperr.Storage("delete comment", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.StorageNotFound("delete comment", "comment", id.String())
	}
	return nil
}

func (r *CommentRepository) List(ctx context.Context, filter services.CommentFilter) ([]models.Comment, error) {
	limit := filter.Limit
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}

	q := r.db.WithContext(ctx).Model(&models.Comment{})
	if filter.PageSlug != "" {
		q = q.Where("page_slug = ?", filter.PageSlug)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	comments := make([]models.Comment, 0)
	if err := q.Order("created_at DESC").Limit(limit).Find(&comments).Error; err != nil {
		return nil, apperr.Storage("list comments", err)
	}
	return comments, nil
}

func (r *CommentRepository) Counts(ctx context.Context, pageSlug string) (models.CommentCounts, error) {
	type CountResult struct {
		Status models.CommentStatus
		Count  int
	}
	var results []CountResult

	q := r.db.WithContext(ctx).Model(&models.Comment{}).Select("status, COUNT(*) as count")
	if pageSlug != "" {
		q = q.Where("page_slug = ?", pageSlug)
	}
	if err := q.Group("status").Scan(&results).Error; err != nil {
		return models.CommentCounts{}, apperr.Storage("count comments", err)
	}

	var counts models.CommentCounts
	for _, r := range results {
		counts.Add(r.Status, r.Count)
	}
	return counts, nil
}
