package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"storyloom/internal/model"
	"storyloom/internal/util"

	"gorm.io/gorm"
)

// ReactionRepository is the reaction store. It satisfies the engine's
// ReactionStore seam. Uniqueness per (chapter, user, kind) is enforced by
// the table's composite index, not here.
type ReactionRepository interface {
	ListByThread(ctx context.Context, threadID string) ([]*model.Reaction, error)
	Find(ctx context.Context, threadID, userID, kind string) (*model.Reaction, error)
	Insert(ctx context.Context, reaction *model.Reaction) error
	DeleteByKey(ctx context.Context, threadID, userID, kind string) error
}

type reactionRepository struct {
	db    *gorm.DB
	redis *util.RedisClient
}

const (
	reactionByThreadPrefix  = "reaction:thread:"
	reactionCacheExpiration = time.Minute
)

func NewReactionRepository(db *gorm.DB, redis *util.RedisClient) ReactionRepository {
	return &reactionRepository{
		db:    db,
		redis: redis,
	}
}

// ListByThread returns all reaction rows of a thread
func (r *reactionRepository) ListByThread(ctx context.Context, threadID string) ([]*model.Reaction, error) {
	cacheKey := reactionByThreadPrefix + threadID
	if r.redis != nil {
		if cached, err := r.redis.Get(cacheKey); err == nil {
			var reactions []*model.Reaction
			if json.Unmarshal([]byte(cached), &reactions) == nil {
				return reactions, nil
			}
		}
	}

	var reactions []*model.Reaction
	err := r.db.WithContext(ctx).
		Where("chapter_id = ?", threadID).
		Order("created_at ASC").
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}

	if r.redis != nil {
		if data, err := json.Marshal(reactions); err == nil {
			r.redis.Set(cacheKey, string(data), reactionCacheExpiration)
		}
	}
	return reactions, nil
}

// Find returns the viewer's row for one kind, or (nil, nil) when absent
func (r *reactionRepository) Find(ctx context.Context, threadID, userID, kind string) (*model.Reaction, error) {
	var reaction model.Reaction
	err := r.db.WithContext(ctx).
		Where("chapter_id = ? AND user_id = ? AND kind = ?", threadID, userID, kind).
		First(&reaction).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reaction, nil
}

// Insert creates a reaction row and invalidates the thread cache
func (r *reactionRepository) Insert(ctx context.Context, reaction *model.Reaction) error {
	if err := r.db.WithContext(ctx).Create(reaction).Error; err != nil {
		return err
	}
	r.invalidateThread(reaction.ChapterID)
	return nil
}

// DeleteByKey removes the viewer's row for one kind
func (r *reactionRepository) DeleteByKey(ctx context.Context, threadID, userID, kind string) error {
	err := r.db.WithContext(ctx).
		Where("chapter_id = ? AND user_id = ? AND kind = ?", threadID, userID, kind).
		Delete(&model.Reaction{}).Error
	if err != nil {
		return err
	}
	r.invalidateThread(threadID)
	return nil
}

func (r *reactionRepository) invalidateThread(threadID string) {
	if r.redis == nil {
		return
	}
	r.redis.Delete(reactionByThreadPrefix + threadID)
}
