package app

import (
	"net/http"

	"storyloom/internal/service"
	"storyloom/internal/util"

	"github.com/gin-gonic/gin"
)

type ChapterHandler struct {
	chapterService service.ChapterService
	authService    service.AuthService
}

func NewChapterHandler(chapterService service.ChapterService, authService service.AuthService) *ChapterHandler {
	return &ChapterHandler{
		chapterService: chapterService,
		authService:    authService,
	}
}

// CreateChapter appends a draft chapter to a work
// POST /api/v1/works/:id/chapters
func (h *ChapterHandler) CreateChapter(c *gin.Context) {
	var req service.CreateChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	chapter, err := h.chapterService.CreateChapter(c.GetString("userID"), c.Param("id"), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusCreated, "Chapter created successfully", chapter)
}

// GetChapter returns a chapter. Unpublished chapters are visible to the
// work's author only.
// GET /api/v1/chapters/:id
func (h *ChapterHandler) GetChapter(c *gin.Context) {
	chapter, err := h.chapterService.GetChapter(viewerID(c), c.Param("id"))
	if err != nil {
		util.NotFound(c, err.Error())
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Chapter retrieved successfully", chapter)
}

// ListChapters returns a work's chapters in number order
// GET /api/v1/works/:id/chapters
func (h *ChapterHandler) ListChapters(c *gin.Context) {
	chapters, err := h.chapterService.ListChapters(viewerID(c), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Chapters retrieved successfully", chapters)
}

// UpdateChapter edits a chapter's title and body; the author only
// PUT /api/v1/chapters/:id
func (h *ChapterHandler) UpdateChapter(c *gin.Context) {
	var req service.UpdateChapterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	chapter, err := h.chapterService.UpdateChapter(c.GetString("userID"), c.Param("id"), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Chapter updated successfully", chapter)
}

// DeleteChapter removes a chapter; the author only
// DELETE /api/v1/chapters/:id
func (h *ChapterHandler) DeleteChapter(c *gin.Context) {
	if err := h.chapterService.DeleteChapter(c.GetString("userID"), c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Chapter deleted successfully", nil)
}

// Submit sends a draft chapter into the moderation queue
// POST /api/v1/chapters/:id/submit
func (h *ChapterHandler) Submit(c *gin.Context) {
	chapter, err := h.chapterService.Submit(c.GetString("userID"), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Chapter submitted for review", chapter)
}

// Approve publishes a pending chapter; moderators only
// POST /api/v1/chapters/:id/approve
func (h *ChapterHandler) Approve(c *gin.Context) {
	moderator, err := h.authService.GetUser(c.GetString("userID"))
	if err != nil {
		util.Unauthorized(c, "User not found")
		return
	}

	chapter, err := h.chapterService.Approve(moderator, c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Chapter approved", chapter)
}

// Reject returns a pending chapter to its author; moderators only
// POST /api/v1/chapters/:id/reject
func (h *ChapterHandler) Reject(c *gin.Context) {
	var req struct {
		Note string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	moderator, err := h.authService.GetUser(c.GetString("userID"))
	if err != nil {
		util.Unauthorized(c, "User not found")
		return
	}

	chapter, err := h.chapterService.Reject(moderator, c.Param("id"), req.Note)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Chapter rejected", chapter)
}

// Renumber compacts a work's chapter numbers back to a dense sequence
// POST /api/v1/works/:id/chapters/renumber
func (h *ChapterHandler) Renumber(c *gin.Context) {
	if err := h.chapterService.Renumber(c.GetString("userID"), c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Chapters renumbered successfully", nil)
}

// viewerID returns the authenticated user's ID or nil for guests
func viewerID(c *gin.Context) *string {
	if userID, exists := c.Get("userID"); exists {
		id := userID.(string)
		return &id
	}
	return nil
}
