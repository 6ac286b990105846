package app

import (
	"errors"
	"net/http"
	"strconv"

	"storyloom/internal/engine"
	"storyloom/internal/model"
	"storyloom/internal/thread"
	"storyloom/internal/util"

	"github.com/gin-gonic/gin"
)

// ThreadHandler is the REST surface over the comment engine. Every chapter
// has one thread keyed by the chapter ID.
type ThreadHandler struct {
	engine     *engine.Engine
	cloudinary *util.CloudinaryClient
}

func NewThreadHandler(eng *engine.Engine, cloudinary *util.CloudinaryClient) *ThreadHandler {
	return &ThreadHandler{engine: eng, cloudinary: cloudinary}
}

type postCommentRequest struct {
	Body     string  `json:"body"`
	ParentID *string `json:"parent_id,omitempty"`
	Sticker  string  `json:"sticker,omitempty"`
}

type editCommentRequest struct {
	Body string `json:"body" binding:"required"`
}

type reactRequest struct {
	Kind string `json:"kind" binding:"required,reactionkind"`
}

// GetPage returns one page of a chapter's thread, assembled into roots and
// reply lists, together with the reaction tally.
// GET /api/v1/threads/:id?sort=new&page=0
func (h *ThreadHandler) GetPage(c *gin.Context) {
	threadID := c.Param("id")

	mode := thread.SortMode(c.DefaultQuery("sort", string(thread.SortNew)))
	if !thread.IsValidSortMode(mode) {
		util.BadRequest(c, engine.ErrUnknownSort.Error())
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	if page < 0 {
		page = 0
	}

	rows, hasMore, err := h.engine.FetchPage(c.Request.Context(), threadID, mode, page)
	if err != nil {
		util.ErrorResponse(c, http.StatusInternalServerError, "Failed to load comments", nil)
		return
	}

	sess := sessionFromContext(c)
	tally, err := h.engine.Reactions(c.Request.Context(), threadID, sess.UserID)
	if err != nil {
		util.ErrorResponse(c, http.StatusInternalServerError, "Failed to load reactions", nil)
		return
	}

	asm := thread.Assemble(rows, mode)
	roots := make([]engine.CommentView, 0, len(asm.Roots))
	for _, cm := range asm.Roots {
		roots = append(roots, engine.NewCommentView(cm))
	}
	replies := make(map[string][]engine.CommentView, len(asm.RepliesByParent))
	for parentID, list := range asm.RepliesByParent {
		views := make([]engine.CommentView, 0, len(list))
		for _, cm := range list {
			views = append(views, engine.NewCommentView(cm))
		}
		replies[parentID] = views
	}

	util.SuccessResponse(c, http.StatusOK, "Thread retrieved successfully", gin.H{
		"thread_id":         threadID,
		"root_comments":     roots,
		"replies_by_parent": replies,
		"reaction_counts":   tally.Counts,
		"my_reactions":      tally.Mine,
		"sort":              mode,
		"page":              page,
		"has_more":          hasMore,
	})
}

// PostComment posts a root comment, a reply, or a sticker into a thread.
// Guests may post with an optional guest_name query parameter.
// POST /api/v1/threads/:id/comments
func (h *ThreadHandler) PostComment(c *gin.Context) {
	var req postCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	sess := sessionFromContext(c)
	threadID := c.Param("id")

	var (
		comment *model.Comment
		err     error
	)
	switch {
	case req.Sticker != "":
		comment, err = h.engine.PostSticker(c.Request.Context(), sess, threadID, req.Sticker, req.ParentID)
	case req.ParentID != nil:
		comment, err = h.engine.PostReply(c.Request.Context(), sess, threadID, *req.ParentID, req.Body)
	default:
		comment, err = h.engine.PostRoot(c.Request.Context(), sess, threadID, req.Body)
	}
	if err != nil {
		respondEngineError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusCreated, "Comment posted successfully", engine.NewCommentView(comment))
}

// EditComment rewrites a comment's body; the comment author or thread owner
// PUT /api/v1/comments/:id
func (h *ThreadHandler) EditComment(c *gin.Context) {
	var req editCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	comment, err := h.engine.Edit(c.Request.Context(), sessionFromContext(c), c.Param("id"), req.Body)
	if err != nil {
		respondEngineError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Comment updated successfully", engine.NewCommentView(comment))
}

// DeleteComment removes a comment; the comment author or thread owner
// DELETE /api/v1/comments/:id
func (h *ThreadHandler) DeleteComment(c *gin.Context) {
	if err := h.engine.Delete(c.Request.Context(), sessionFromContext(c), c.Param("id")); err != nil {
		respondEngineError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Comment deleted successfully", nil)
}

// TogglePin flips the pin on a root comment; the thread owner only
// POST /api/v1/comments/:id/pin
func (h *ThreadHandler) TogglePin(c *gin.Context) {
	comment, err := h.engine.TogglePin(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		respondEngineError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Pin toggled successfully", engine.NewCommentView(comment))
}

// React toggles the caller's reaction on the thread
// POST /api/v1/threads/:id/reactions
func (h *ThreadHandler) React(c *gin.Context) {
	var req reactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	sess := sessionFromContext(c)
	if err := h.engine.ToggleReaction(c.Request.Context(), sess, c.Param("id"), req.Kind); err != nil {
		respondEngineError(c, err)
		return
	}

	tally, err := h.engine.Reactions(c.Request.Context(), c.Param("id"), sess.UserID)
	if err != nil {
		util.ErrorResponse(c, http.StatusInternalServerError, "Failed to load reactions", nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Reaction toggled successfully", gin.H{
		"reaction_counts": tally.Counts,
		"my_reactions":    tally.Mine,
	})
}

// UploadSticker uploads a sticker asset and returns its locator, which can
// then be posted as a sticker comment
// POST /api/v1/stickers
func (h *ThreadHandler) UploadSticker(c *gin.Context) {
	if h.cloudinary == nil {
		util.ErrorResponse(c, http.StatusServiceUnavailable, "Image uploads are disabled", nil)
		return
	}

	fileHeader, err := c.FormFile("sticker")
	if err != nil {
		util.BadRequest(c, "sticker file is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		util.ErrorResponse(c, http.StatusInternalServerError, "Failed to read uploaded file", nil)
		return
	}
	defer file.Close()

	locator, err := h.cloudinary.UploadFromReader(file, fileHeader.Filename, "stickers")
	if err != nil {
		util.ErrorResponse(c, http.StatusInternalServerError, "Failed to upload sticker", nil)
		return
	}

	util.SuccessResponse(c, http.StatusCreated, "Sticker uploaded successfully", gin.H{"locator": locator})
}

// respondEngineError maps engine sentinels onto HTTP statuses
func respondEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrEmptyBody),
		errors.Is(err, engine.ErrParentMismatch),
		errors.Is(err, engine.ErrReplyDepth),
		errors.Is(err, engine.ErrPinTarget),
		errors.Is(err, engine.ErrUnknownReaction),
		errors.Is(err, engine.ErrUnknownSort):
		util.BadRequest(c, err.Error())
	case errors.Is(err, engine.ErrSignInRequired):
		util.Unauthorized(c, err.Error())
	case errors.Is(err, engine.ErrForbidden):
		util.Forbidden(c, err.Error())
	case errors.Is(err, engine.ErrNotFound), errors.Is(err, engine.ErrParentNotFound):
		util.NotFound(c, err.Error())
	default:
		util.ErrorResponse(c, http.StatusInternalServerError, err.Error(), nil)
	}
}
