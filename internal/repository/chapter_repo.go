package repository

import (
	"context"
	"encoding/json"
	"time"

	"storyloom/internal/model"
	"storyloom/internal/util"

	"gorm.io/gorm"
)

type ChapterRepository interface {
	Create(chapter *model.Chapter) error
	FindByID(id string) (*model.Chapter, error)
	FindByWorkID(workID string) ([]*model.Chapter, error)
	Update(chapter *model.Chapter) error
	Delete(id string) error
	NextNumber(workID string) (int, error)
	Renumber(workID string) error
	// ThreadOwner resolves a chapter (thread) to its work's author. Satisfies
	// the engine's OwnerResolver seam.
	ThreadOwner(ctx context.Context, threadID string) (string, error)
}

type chapterRepository struct {
	db    *gorm.DB
	redis *util.RedisClient
}

const (
	chapterCachePrefix      = "chapter:"
	chapterOwnerCachePrefix = "chapter:owner:"
	chapterCacheExpiration  = 15 * time.Minute
)

func NewChapterRepository(db *gorm.DB, redis *util.RedisClient) ChapterRepository {
	return &chapterRepository{db: db, redis: redis}
}

func (r *chapterRepository) Create(chapter *model.Chapter) error {
	return r.db.Create(chapter).Error
}

func (r *chapterRepository) FindByID(id string) (*model.Chapter, error) {
	if r.redis != nil {
		if cached, err := r.redis.Get(chapterCachePrefix + id); err == nil {
			var chapter model.Chapter
			if json.Unmarshal([]byte(cached), &chapter) == nil {
				return &chapter, nil
			}
		}
	}

	var chapter model.Chapter
	err := r.db.Where("id = ?", id).First(&chapter).Error
	if err != nil {
		return nil, err
	}

	if r.redis != nil {
		if data, err := json.Marshal(&chapter); err == nil {
			r.redis.Set(chapterCachePrefix+chapter.ID, string(data), chapterCacheExpiration)
		}
	}
	return &chapter, nil
}

func (r *chapterRepository) FindByWorkID(workID string) ([]*model.Chapter, error) {
	var chapters []*model.Chapter
	err := r.db.Where("work_id = ?", workID).
		Order("number ASC").
		Find(&chapters).Error
	return chapters, err
}

func (r *chapterRepository) Update(chapter *model.Chapter) error {
	if err := r.db.Save(chapter).Error; err != nil {
		return err
	}
	r.invalidate(chapter.ID)
	return nil
}

func (r *chapterRepository) Delete(id string) error {
	if err := r.db.Where("id = ?", id).Delete(&model.Chapter{}).Error; err != nil {
		return err
	}
	r.invalidate(id)
	return nil
}

// NextNumber returns the next free chapter number within a work
func (r *chapterRepository) NextNumber(workID string) (int, error) {
	var max int
	err := r.db.Model(&model.Chapter{}).
		Where("work_id = ?", workID).
		Select("COALESCE(MAX(number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// Renumber rewrites chapter numbers into a dense 1..n sequence ordered by
// the current numbering. One UPDATE per row, sequentially; moderation-time
// traffic is low enough that this stays simple on purpose.
func (r *chapterRepository) Renumber(workID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var chapters []*model.Chapter
		if err := tx.Where("work_id = ?", workID).
			Order("number ASC").
			Find(&chapters).Error; err != nil {
			return err
		}
		for i, chapter := range chapters {
			if chapter.Number == i+1 {
				continue
			}
			if err := tx.Model(&model.Chapter{}).
				Where("id = ?", chapter.ID).
				Update("number", i+1).Error; err != nil {
				return err
			}
			r.invalidate(chapter.ID)
		}
		return nil
	})
}

// ThreadOwner resolves the chapter's work author id, cached aggressively
// since ownership never changes.
func (r *chapterRepository) ThreadOwner(ctx context.Context, threadID string) (string, error) {
	if r.redis != nil {
		if cached, err := r.redis.Get(chapterOwnerCachePrefix + threadID); err == nil && cached != "" {
			return cached, nil
		}
	}

	var ownerID string
	err := r.db.WithContext(ctx).Model(&model.Chapter{}).
		Select("works.author_id").
		Joins("JOIN works ON works.id = chapters.work_id").
		Where("chapters.id = ?", threadID).
		Scan(&ownerID).Error
	if err != nil {
		return "", err
	}
	if ownerID == "" {
		return "", gorm.ErrRecordNotFound
	}

	if r.redis != nil {
		r.redis.Set(chapterOwnerCachePrefix+threadID, ownerID, time.Hour)
	}
	return ownerID, nil
}

func (r *chapterRepository) invalidate(id string) {
	if r.redis == nil {
		return
	}
	r.redis.Delete(chapterCachePrefix + id)
}
