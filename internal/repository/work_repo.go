package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"storyloom/internal/model"
	"storyloom/internal/util"

	"gorm.io/gorm"
)

type WorkRepository interface {
	Create(work *model.Work) error
	FindByID(id string) (*model.Work, error)
	FindByAuthorID(authorID string, limit, offset int) ([]*model.Work, error)
	List(limit, offset int) ([]*model.Work, error)
	Update(work *model.Work) error
	Delete(id string) error
}

type workRepository struct {
	db    *gorm.DB
	redis *util.RedisClient
}

const (
	workCachePrefix     = "work:"
	workListCachePrefix = "work:list:"
	workCacheExpiration = 15 * time.Minute
)

func NewWorkRepository(db *gorm.DB, redis *util.RedisClient) WorkRepository {
	return &workRepository{db: db, redis: redis}
}

func (r *workRepository) Create(work *model.Work) error {
	if err := r.db.Create(work).Error; err != nil {
		return err
	}
	r.invalidateLists()
	return nil
}

func (r *workRepository) FindByID(id string) (*model.Work, error) {
	if r.redis != nil {
		if cached, err := r.redis.Get(workCachePrefix + id); err == nil {
			var work model.Work
			if json.Unmarshal([]byte(cached), &work) == nil {
				return &work, nil
			}
		}
	}

	var work model.Work
	err := r.db.Preload("Author").Where("id = ?", id).First(&work).Error
	if err != nil {
		return nil, err
	}

	if r.redis != nil {
		if data, err := json.Marshal(&work); err == nil {
			r.redis.Set(workCachePrefix+work.ID, string(data), workCacheExpiration)
		}
	}
	return &work, nil
}

func (r *workRepository) FindByAuthorID(authorID string, limit, offset int) ([]*model.Work, error) {
	var works []*model.Work
	err := r.db.Where("author_id = ?", authorID).
		Order("updated_at DESC").
		Limit(limit).Offset(offset).
		Find(&works).Error
	return works, err
}

func (r *workRepository) List(limit, offset int) ([]*model.Work, error) {
	cacheKey := fmt.Sprintf("%s%d:%d", workListCachePrefix, limit, offset)
	if r.redis != nil {
		if cached, err := r.redis.Get(cacheKey); err == nil {
			var works []*model.Work
			if json.Unmarshal([]byte(cached), &works) == nil {
				return works, nil
			}
		}
	}

	var works []*model.Work
	err := r.db.Preload("Author").
		Order("updated_at DESC").
		Limit(limit).Offset(offset).
		Find(&works).Error
	if err != nil {
		return nil, err
	}

	if r.redis != nil {
		if data, err := json.Marshal(works); err == nil {
			r.redis.Set(cacheKey, string(data), workCacheExpiration)
		}
	}
	return works, nil
}

func (r *workRepository) Update(work *model.Work) error {
	if err := r.db.Save(work).Error; err != nil {
		return err
	}
	r.invalidate(work.ID)
	return nil
}

func (r *workRepository) Delete(id string) error {
	if err := r.db.Where("id = ?", id).Delete(&model.Work{}).Error; err != nil {
		return err
	}
	r.invalidate(id)
	return nil
}

func (r *workRepository) invalidate(id string) {
	if r.redis == nil {
		return
	}
	r.redis.Delete(workCachePrefix + id)
	r.invalidateLists()
}

func (r *workRepository) invalidateLists() {
	if r.redis == nil {
		return
	}
	r.redis.DeletePattern(workListCachePrefix + "*")
}
