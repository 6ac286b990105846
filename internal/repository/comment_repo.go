package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storyloom/internal/model"
	"storyloom/internal/util"

	"gorm.io/gorm"
)

// CommentRepository is the comment store. It satisfies the engine's
// CommentStore seam.
type CommentRepository interface {
	Insert(ctx context.Context, c *model.Comment) error
	Get(ctx context.Context, id string) (*model.Comment, error)
	Update(ctx context.Context, c *model.Comment) error
	Delete(ctx context.Context, id string) error
	ListPage(ctx context.Context, threadID string, ascending bool, limit, offset int) ([]*model.Comment, error)
	SetPinned(ctx context.Context, threadID, id string, pinned bool) error
	CountByThread(ctx context.Context, threadID string) (int64, error)
}

type commentRepository struct {
	db    *gorm.DB
	redis *util.RedisClient
}

const (
	commentCachePrefix      = "comment:"
	commentByThreadPrefix   = "comment:thread:"
	commentCountCachePrefix = "comment:count:"
	commentCacheExpiration  = time.Minute
)

func NewCommentRepository(db *gorm.DB, redis *util.RedisClient) CommentRepository {
	return &commentRepository{
		db:    db,
		redis: redis,
	}
}

// Insert creates a comment row and invalidates the thread's caches
func (r *commentRepository) Insert(ctx context.Context, c *model.Comment) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return err
	}
	r.invalidateThread(c.ChapterID)
	return nil
}

// Get finds a comment by ID
func (r *commentRepository) Get(ctx context.Context, id string) (*model.Comment, error) {
	if r.redis != nil {
		if cached, err := r.redis.Get(commentCachePrefix + id); err == nil {
			var c model.Comment
			if json.Unmarshal([]byte(cached), &c) == nil {
				return &c, nil
			}
		}
	}

	var c model.Comment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if r.redis != nil {
		if data, err := json.Marshal(&c); err == nil {
			r.redis.Set(commentCachePrefix+c.ID, string(data), commentCacheExpiration)
		}
	}
	return &c, nil
}

// Update saves a comment and invalidates caches
func (r *commentRepository) Update(ctx context.Context, c *model.Comment) error {
	if err := r.db.WithContext(ctx).Save(c).Error; err != nil {
		return err
	}
	r.invalidateComment(c.ID)
	r.invalidateThread(c.ChapterID)
	return nil
}

// Delete hard-deletes a comment row. Replies keep their parent_id and are
// not touched.
func (r *commentRepository) Delete(ctx context.Context, id string) error {
	var c model.Comment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Delete(&c).Error; err != nil {
		return err
	}
	r.invalidateComment(id)
	r.invalidateThread(c.ChapterID)
	return nil
}

// ListPage returns one page of a thread's comments ordered by created_at
func (r *commentRepository) ListPage(ctx context.Context, threadID string, ascending bool, limit, offset int) ([]*model.Comment, error) {
	order := "created_at DESC"
	if ascending {
		order = "created_at ASC"
	}

	cacheKey := fmt.Sprintf("%s%s:%s:%d:%d", commentByThreadPrefix, threadID, order, limit, offset)
	if r.redis != nil {
		if cached, err := r.redis.Get(cacheKey); err == nil {
			var comments []*model.Comment
			if json.Unmarshal([]byte(cached), &comments) == nil {
				return comments, nil
			}
		}
	}

	var comments []*model.Comment
	err := r.db.WithContext(ctx).
		Where("chapter_id = ?", threadID).
		Order(order).
		Limit(limit).Offset(offset).
		Find(&comments).Error
	if err != nil {
		return nil, err
	}

	if r.redis != nil {
		if data, err := json.Marshal(comments); err == nil {
			r.redis.Set(cacheKey, string(data), commentCacheExpiration)
		}
	}
	return comments, nil
}

// SetPinned toggles the pin slot inside one transaction. Pinning clears the
// flag on every other root of the thread first, so at most one root is
// pinned threadwide no matter which page a client has loaded.
func (r *commentRepository) SetPinned(ctx context.Context, threadID, id string, pinned bool) error {
	var cleared []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if pinned {
			if err := tx.Model(&model.Comment{}).
				Where("chapter_id = ? AND pinned = ? AND id <> ?", threadID, true, id).
				Pluck("id", &cleared).Error; err != nil {
				return err
			}
			if len(cleared) > 0 {
				if err := tx.Model(&model.Comment{}).
					Where("id IN ?", cleared).
					Update("pinned", false).Error; err != nil {
					return err
				}
			}
		}
		return tx.Model(&model.Comment{}).
			Where("id = ?", id).
			Update("pinned", pinned).Error
	})
	if err != nil {
		return err
	}
	// Every row the transaction touched must drop out of the cache, the
	// just-unpinned roots included, or a later read resurrects their pin.
	r.invalidateComment(id)
	for _, clearedID := range cleared {
		r.invalidateComment(clearedID)
	}
	r.invalidateThread(threadID)
	return nil
}

// CountByThread counts a thread's comments, replies included
func (r *commentRepository) CountByThread(ctx context.Context, threadID string) (int64, error) {
	cacheKey := commentCountCachePrefix + threadID
	if r.redis != nil {
		if cached, err := r.redis.Get(cacheKey); err == nil {
			var count int64
			if _, err := fmt.Sscanf(cached, "%d", &count); err == nil {
				return count, nil
			}
		}
	}

	var count int64
	err := r.db.WithContext(ctx).Model(&model.Comment{}).
		Where("chapter_id = ?", threadID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}

	if r.redis != nil {
		r.redis.Set(cacheKey, fmt.Sprintf("%d", count), commentCacheExpiration)
	}
	return count, nil
}

func (r *commentRepository) invalidateComment(id string) {
	if r.redis == nil {
		return
	}
	r.redis.Delete(commentCachePrefix + id)
}

func (r *commentRepository) invalidateThread(threadID string) {
	if r.redis == nil {
		return
	}
	r.redis.DeletePattern(commentByThreadPrefix + threadID + ":*")
	r.redis.Delete(commentCountCachePrefix + threadID)
}
