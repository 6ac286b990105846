package service

import (
	"errors"

	"storyloom/internal/model"
	"storyloom/internal/repository"
)

type ChapterService interface {
	CreateChapter(userID, workID string, req CreateChapterRequest) (*model.Chapter, error)
	GetChapter(userID *string, id string) (*model.Chapter, error)
	ListChapters(userID *string, workID string) ([]*model.Chapter, error)
	UpdateChapter(userID, id string, req UpdateChapterRequest) (*model.Chapter, error)
	DeleteChapter(userID, id string) error
	Submit(userID, id string) (*model.Chapter, error)
	Approve(moderator *model.User, id string) (*model.Chapter, error)
	Reject(moderator *model.User, id string, note string) (*model.Chapter, error)
	Renumber(userID, workID string) error
}

type CreateChapterRequest struct {
	Title string `json:"title" binding:"required,max=255"`
	Body  string `json:"body" binding:"required"`
}

type UpdateChapterRequest struct {
	Title string `json:"title" binding:"required,max=255"`
	Body  string `json:"body" binding:"required"`
}

type chapterService struct {
	chapterRepo  repository.ChapterRepository
	workRepo     repository.WorkRepository
	notification NotificationService
}

func NewChapterService(
	chapterRepo repository.ChapterRepository,
	workRepo repository.WorkRepository,
	notification NotificationService,
) ChapterService {
	return &chapterService{
		chapterRepo:  chapterRepo,
		workRepo:     workRepo,
		notification: notification,
	}
}

// CreateChapter adds a draft chapter at the end of the work
func (s *chapterService) CreateChapter(userID, workID string, req CreateChapterRequest) (*model.Chapter, error) {
	work, err := s.workRepo.FindByID(workID)
	if err != nil {
		return nil, errors.New("work not found")
	}
	if work.AuthorID != userID {
		return nil, errors.New("unauthorized: you can only add chapters to your own works")
	}

	number, err := s.chapterRepo.NextNumber(workID)
	if err != nil {
		return nil, errors.New("failed to number chapter")
	}

	chapter := &model.Chapter{
		WorkID: workID,
		Number: number,
		Title:  req.Title,
		Body:   req.Body,
		Status: model.ChapterDraft,
	}
	if err := s.chapterRepo.Create(chapter); err != nil {
		return nil, errors.New("failed to create chapter")
	}
	return chapter, nil
}

// GetChapter returns a chapter. Unpublished chapters are visible only to the
// work's author.
func (s *chapterService) GetChapter(userID *string, id string) (*model.Chapter, error) {
	chapter, err := s.chapterRepo.FindByID(id)
	if err != nil {
		return nil, errors.New("chapter not found")
	}
	if chapter.Status != model.ChapterPublished {
		work, err := s.workRepo.FindByID(chapter.WorkID)
		if err != nil || userID == nil || work.AuthorID != *userID {
			return nil, errors.New("chapter not found")
		}
	}
	return chapter, nil
}

// ListChapters lists a work's chapters; drafts and pending ones only for the
// author.
func (s *chapterService) ListChapters(userID *string, workID string) ([]*model.Chapter, error) {
	work, err := s.workRepo.FindByID(workID)
	if err != nil {
		return nil, errors.New("work not found")
	}

	chapters, err := s.chapterRepo.FindByWorkID(workID)
	if err != nil {
		return nil, errors.New("failed to list chapters")
	}
	if userID != nil && work.AuthorID == *userID {
		return chapters, nil
	}

	published := make([]*model.Chapter, 0, len(chapters))
	for _, chapter := range chapters {
		if chapter.Status == model.ChapterPublished {
			published = append(published, chapter)
		}
	}
	return published, nil
}

// UpdateChapter edits a draft or rejected chapter; author only
func (s *chapterService) UpdateChapter(userID, id string, req UpdateChapterRequest) (*model.Chapter, error) {
	chapter, _, err := s.ownedChapter(userID, id)
	if err != nil {
		return nil, err
	}
	if chapter.Status == model.ChapterPending {
		return nil, errors.New("chapter is awaiting review")
	}

	chapter.Title = req.Title
	chapter.Body = req.Body
	if chapter.Status == model.ChapterRejected {
		chapter.Status = model.ChapterDraft
		chapter.Note = nil
	}
	if err := s.chapterRepo.Update(chapter); err != nil {
		return nil, errors.New("failed to update chapter")
	}
	return chapter, nil
}

// DeleteChapter removes a chapter; author only
func (s *chapterService) DeleteChapter(userID, id string) error {
	chapter, _, err := s.ownedChapter(userID, id)
	if err != nil {
		return err
	}
	if err := s.chapterRepo.Delete(chapter.ID); err != nil {
		return errors.New("failed to delete chapter")
	}
	return nil
}

// Submit moves a draft into the moderation queue
func (s *chapterService) Submit(userID, id string) (*model.Chapter, error) {
	chapter, _, err := s.ownedChapter(userID, id)
	if err != nil {
		return nil, err
	}
	if chapter.Status != model.ChapterDraft && chapter.Status != model.ChapterRejected {
		return nil, errors.New("only draft chapters can be submitted")
	}

	chapter.Status = model.ChapterPending
	chapter.Note = nil
	if err := s.chapterRepo.Update(chapter); err != nil {
		return nil, errors.New("failed to submit chapter")
	}
	return chapter, nil
}

// Approve publishes a pending chapter; moderators only
func (s *chapterService) Approve(moderator *model.User, id string) (*model.Chapter, error) {
	return s.decide(moderator, id, model.ChapterPublished, "")
}

// Reject returns a pending chapter to its author with a note; moderators only
func (s *chapterService) Reject(moderator *model.User, id string, note string) (*model.Chapter, error) {
	return s.decide(moderator, id, model.ChapterRejected, note)
}

func (s *chapterService) decide(moderator *model.User, id, status, note string) (*model.Chapter, error) {
	if moderator == nil || !moderator.IsModerator() {
		return nil, errors.New("unauthorized: moderator role required")
	}

	chapter, err := s.chapterRepo.FindByID(id)
	if err != nil {
		return nil, errors.New("chapter not found")
	}
	if chapter.Status != model.ChapterPending {
		return nil, errors.New("chapter is not awaiting review")
	}

	chapter.Status = status
	if note != "" {
		chapter.Note = &note
	}
	if err := s.chapterRepo.Update(chapter); err != nil {
		return nil, errors.New("failed to update chapter")
	}

	if s.notification != nil {
		if work, err := s.workRepo.FindByID(chapter.WorkID); err == nil {
			go s.notification.SendChapterDecisionNotification(work.AuthorID, chapter, status)
		}
	}
	return chapter, nil
}

// Renumber compacts a work's chapter numbers; author only
func (s *chapterService) Renumber(userID, workID string) error {
	work, err := s.workRepo.FindByID(workID)
	if err != nil {
		return errors.New("work not found")
	}
	if work.AuthorID != userID {
		return errors.New("unauthorized: you can only renumber your own works")
	}
	if err := s.chapterRepo.Renumber(workID); err != nil {
		return errors.New("failed to renumber chapters")
	}
	return nil
}

func (s *chapterService) ownedChapter(userID, id string) (*model.Chapter, *model.Work, error) {
	chapter, err := s.chapterRepo.FindByID(id)
	if err != nil {
		return nil, nil, errors.New("chapter not found")
	}
	work, err := s.workRepo.FindByID(chapter.WorkID)
	if err != nil {
		return nil, nil, errors.New("work not found")
	}
	if work.AuthorID != userID {
		return nil, nil, errors.New("unauthorized: you can only manage your own chapters")
	}
	return chapter, work, nil
}
