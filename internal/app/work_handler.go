package app

import (
	"net/http"
	"strconv"
	"strings"

	"storyloom/internal/service"
	"storyloom/internal/util"

	"github.com/gin-gonic/gin"
)

type WorkHandler struct {
	workService service.WorkService
	cloudinary  *util.CloudinaryClient
}

func NewWorkHandler(workService service.WorkService, cloudinary *util.CloudinaryClient) *WorkHandler {
	return &WorkHandler{
		workService: workService,
		cloudinary:  cloudinary,
	}
}

// CreateWork creates a new work owned by the authenticated user
// POST /api/v1/works
func (h *WorkHandler) CreateWork(c *gin.Context) {
	var req service.CreateWorkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	work, err := h.workService.CreateWork(c.GetString("userID"), req)
	if err != nil {
		util.ErrorResponse(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	util.SuccessResponse(c, http.StatusCreated, "Work created successfully", work)
}

// GetWork returns a single work
// GET /api/v1/works/:id
func (h *WorkHandler) GetWork(c *gin.Context) {
	work, err := h.workService.GetWork(c.Param("id"))
	if err != nil {
		util.NotFound(c, err.Error())
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Work retrieved successfully", work)
}

// ListWorks returns works ordered by recency
// GET /api/v1/works?limit=20&offset=0
func (h *WorkHandler) ListWorks(c *gin.Context) {
	limit, offset := paginationParams(c)

	works, err := h.workService.ListWorks(limit, offset)
	if err != nil {
		util.ErrorResponse(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Works retrieved successfully", works)
}

// ListByAuthor returns works by one author
// GET /api/v1/works/author/:userID
func (h *WorkHandler) ListByAuthor(c *gin.Context) {
	limit, offset := paginationParams(c)

	works, err := h.workService.ListByAuthor(c.Param("userID"), limit, offset)
	if err != nil {
		util.ErrorResponse(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Works retrieved successfully", works)
}

// UpdateWork updates a work's metadata; the author only
// PUT /api/v1/works/:id
func (h *WorkHandler) UpdateWork(c *gin.Context) {
	var req service.UpdateWorkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	work, err := h.workService.UpdateWork(c.GetString("userID"), c.Param("id"), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Work updated successfully", work)
}

// UploadCover uploads a cover image to Cloudinary and sets it on the work
// POST /api/v1/works/:id/cover
func (h *WorkHandler) UploadCover(c *gin.Context) {
	if h.cloudinary == nil {
		util.ErrorResponse(c, http.StatusServiceUnavailable, "Image uploads are disabled", nil)
		return
	}

	fileHeader, err := c.FormFile("cover")
	if err != nil {
		util.BadRequest(c, "cover file is required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		util.ErrorResponse(c, http.StatusInternalServerError, "Failed to read uploaded file", nil)
		return
	}
	defer file.Close()

	coverURL, err := h.cloudinary.UploadFromReader(file, fileHeader.Filename, "covers")
	if err != nil {
		util.ErrorResponse(c, http.StatusInternalServerError, "Failed to upload cover image", nil)
		return
	}

	work, err := h.workService.SetCover(c.GetString("userID"), c.Param("id"), coverURL)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Cover uploaded successfully", work)
}

// DeleteWork removes a work; the author only
// DELETE /api/v1/works/:id
func (h *WorkHandler) DeleteWork(c *gin.Context) {
	if err := h.workService.DeleteWork(c.GetString("userID"), c.Param("id")); err != nil {
		respondServiceError(c, err)
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Work deleted successfully", nil)
}

func paginationParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// respondServiceError maps service error messages onto HTTP statuses
func respondServiceError(c *gin.Context, err error) {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "not found"):
		util.NotFound(c, msg)
	case strings.Contains(msg, "unauthorized"):
		util.Forbidden(c, msg)
	default:
		util.ErrorResponse(c, http.StatusBadRequest, msg, nil)
	}
}
