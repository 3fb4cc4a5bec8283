package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/liftlabs/liftapp-backend/internal/model"
	"github.com/liftlabs/liftapp-backend/internal/response"
	"github.com/liftlabs/liftapp-backend/internal/service"
	"github.com/liftlabs/liftapp-backend/internal/validator"
)

// AnswerKeyHandler handles the admin answer-key CRUD.
type AnswerKeyHandler struct {
	answerKeys *service.AnswerKeyService
	media      *service.MediaService
}

// NewAnswerKeyHandler creates a new AnswerKeyHandler.
func NewAnswerKeyHandler(answerKeys *service.AnswerKeyService, media *service.MediaService) *AnswerKeyHandler {
	return &AnswerKeyHandler{answerKeys: answerKeys, media: media}
}

// ListAnswerKeys godoc
// GET /api/v1/admin/answer-keys
// Lists every image carrying an answer key, with row counts.
func (h *AnswerKeyHandler) ListAnswerKeys(c *gin.Context) {
	summaries, err := h.answerKeys.Summaries(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	type summaryPayload struct {
		model.AnswerKeySummary
		URL string `json:"url"`
	}
	out := make([]summaryPayload, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, summaryPayload{AnswerKeySummary: s, URL: h.media.PublicURL(s.StoragePath)})
	}

	response.Success(c, http.StatusOK, gin.H{"answer_keys": out})
}

// GetAnswerKey godoc
// GET /api/v1/admin/answer-keys/:image_id
// Returns the image record and its answer rows.
func (h *AnswerKeyHandler) GetAnswerKey(c *gin.Context) {
	imageID, err := strconv.Atoi(c.Param("image_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	img, rows, err := h.answerKeys.Get(c.Request.Context(), imageID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"image": gin.H{
			"id":                img.ID,
			"exam_id":           img.ExamID,
			"storage_path":      img.StoragePath,
			"original_filename": img.OriginalFilename,
			"url":               h.media.PublicURL(img.StoragePath),
		},
		"rows": rows,
	})
}

// SaveAnswerKey godoc
// PUT /api/v1/admin/answer-keys
// Full replace: optional new image reference, then delete all prior answer
// rows for the image and insert the submitted set.
func (h *AnswerKeyHandler) SaveAnswerKey(c *gin.Context) {
	var req model.SaveAnswerKeyRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	imageID, err := h.answerKeys.Save(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownExam):
			response.Fail(c, http.StatusNotFound, response.ErrUnknownExam)
		case errors.Is(err, service.ErrUnknownColumn), errors.Is(err, service.ErrAnswerKeyImage):
			response.FailWithDetail(c, http.StatusBadRequest, response.ErrInvalidPayload, err.Error())
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"image_id": imageID})
}

// DeleteAnswerKey godoc
// DELETE /api/v1/admin/answer-keys/:image_id
// Removes every answer row for the image. Idempotent.
func (h *AnswerKeyHandler) DeleteAnswerKey(c *gin.Context) {
	imageID, err := strconv.Atoi(c.Param("image_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.answerKeys.Delete(c.Request.Context(), imageID); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
