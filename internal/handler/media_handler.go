package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liftlabs/liftapp-backend/internal/response"
	"github.com/liftlabs/liftapp-backend/internal/service"
)

// MediaHandler handles document image uploads.
type MediaHandler struct {
	mediaService *service.MediaService
	examService  *service.ExamService
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(mediaService *service.MediaService, examService *service.ExamService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService, examService: examService}
}

// UploadImage godoc
// POST /api/v1/admin/media/upload
// Stores an uploaded document image under the exam's directory and returns
// its storage path and public URL. The path is then referenced by an
// answer-key save.
func (h *MediaHandler) UploadImage(c *gin.Context) {
	examCode := c.PostForm("exam_code")
	if _, err := h.examService.ByCode(examCode); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrUnknownExam)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}

	storagePath, err := h.mediaService.SaveUpload(header, examCode)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUploadType):
			response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
		case errors.Is(err, service.ErrUploadTooLarge):
			response.Fail(c, http.StatusBadRequest, response.ErrFileTooLarge)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"storage_path":      storagePath,
		"original_filename": header.Filename,
		"url":               h.mediaService.PublicURL(storagePath),
	})
}
