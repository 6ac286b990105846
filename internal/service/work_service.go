package service

import (
	"errors"

	"storyloom/internal/model"
	"storyloom/internal/repository"
)

type WorkService interface {
	CreateWork(authorID string, req CreateWorkRequest) (*model.Work, error)
	GetWork(id string) (*model.Work, error)
	ListWorks(limit, offset int) ([]*model.Work, error)
	ListByAuthor(authorID string, limit, offset int) ([]*model.Work, error)
	UpdateWork(userID, id string, req UpdateWorkRequest) (*model.Work, error)
	SetCover(userID, id, coverURL string) (*model.Work, error)
	DeleteWork(userID, id string) error
}

type CreateWorkRequest struct {
	Title    string `json:"title" binding:"required,max=255"`
	Synopsis string `json:"synopsis"`
	Format   string `json:"format" binding:"required,oneof=novel comic"`
}

type UpdateWorkRequest struct {
	Title    string `json:"title" binding:"required,max=255"`
	Synopsis string `json:"synopsis"`
}

type workService struct {
	workRepo repository.WorkRepository
	userRepo repository.UserRepository
}

func NewWorkService(workRepo repository.WorkRepository, userRepo repository.UserRepository) WorkService {
	return &workService{
		workRepo: workRepo,
		userRepo: userRepo,
	}
}

// CreateWork creates a new work owned by the author
func (s *workService) CreateWork(authorID string, req CreateWorkRequest) (*model.Work, error) {
	if _, err := s.userRepo.FindByID(authorID); err != nil {
		return nil, errors.New("user not found")
	}

	work := &model.Work{
		AuthorID: authorID,
		Title:    req.Title,
		Synopsis: req.Synopsis,
		Format:   req.Format,
	}
	if err := s.workRepo.Create(work); err != nil {
		return nil, errors.New("failed to create work")
	}
	return s.workRepo.FindByID(work.ID)
}

// GetWork returns a work by id
func (s *workService) GetWork(id string) (*model.Work, error) {
	work, err := s.workRepo.FindByID(id)
	if err != nil {
		return nil, errors.New("work not found")
	}
	return work, nil
}

// ListWorks returns the newest works
func (s *workService) ListWorks(limit, offset int) ([]*model.Work, error) {
	return s.workRepo.List(limit, offset)
}

// ListByAuthor returns an author's works
func (s *workService) ListByAuthor(authorID string, limit, offset int) ([]*model.Work, error) {
	return s.workRepo.FindByAuthorID(authorID, limit, offset)
}

// UpdateWork updates title/synopsis; author only
func (s *workService) UpdateWork(userID, id string, req UpdateWorkRequest) (*model.Work, error) {
	work, err := s.workRepo.FindByID(id)
	if err != nil {
		return nil, errors.New("work not found")
	}
	if work.AuthorID != userID {
		return nil, errors.New("unauthorized: you can only update your own works")
	}

	work.Title = req.Title
	work.Synopsis = req.Synopsis
	if err := s.workRepo.Update(work); err != nil {
		return nil, errors.New("failed to update work")
	}
	return s.workRepo.FindByID(id)
}

// SetCover stores the uploaded cover URL; author only
func (s *workService) SetCover(userID, id, coverURL string) (*model.Work, error) {
	work, err := s.workRepo.FindByID(id)
	if err != nil {
		return nil, errors.New("work not found")
	}
	if work.AuthorID != userID {
		return nil, errors.New("unauthorized: you can only update your own works")
	}

	work.CoverURL = &coverURL
	if err := s.workRepo.Update(work); err != nil {
		return nil, errors.New("failed to update work")
	}
	return work, nil
}

// DeleteWork removes a work; author only
func (s *workService) DeleteWork(userID, id string) error {
	work, err := s.workRepo.FindByID(id)
	if err != nil {
		return errors.New("work not found")
	}
	if work.AuthorID != userID {
		return errors.New("unauthorized: you can only delete your own works")
	}
	if err := s.workRepo.Delete(id); err != nil {
		return errors.New("failed to delete work")
	}
	return nil
}
