package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/liftlabs/liftapp-backend/internal/middleware"
	"github.com/liftlabs/liftapp-backend/internal/model"
	"github.com/liftlabs/liftapp-backend/internal/repository"
	"github.com/liftlabs/liftapp-backend/internal/response"
	"github.com/liftlabs/liftapp-backend/internal/service"
	"github.com/liftlabs/liftapp-backend/internal/validator"
)

// PortalHandler serves the annotator-facing session endpoints: shell
// resolution, the exam dashboard and the full session lifecycle.
type PortalHandler struct {
	sessions *service.SessionService
	exams    *service.ExamService
	media    *service.MediaService
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(sessions *service.SessionService, exams *service.ExamService, media *service.MediaService) *PortalHandler {
	return &PortalHandler{sessions: sessions, exams: exams, media: media}
}

// GetShell godoc
// GET /api/v1/annotator/shell
// Tells the client which screen to render: the dashboard, or the exam
// screen with the resumable session. Expired sessions are closed out here.
func (h *PortalHandler) GetShell(c *gin.Context) {
	claims := middleware.GetClaims(c)

	shell, err := h.sessions.ResolveShell(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	payload := gin.H{"screen": shell.Screen}
	if shell.Session != nil {
		payload["session"] = h.sessionPayload(shell.Session)
		payload["remaining_seconds"] = shell.RemainingSeconds
	}
	response.Success(c, http.StatusOK, payload)
}

// GetDashboard godoc
// GET /api/v1/annotator/dashboard
// Lists every catalog exam with the annotator's completion overlay.
func (h *PortalHandler) GetDashboard(c *gin.Context) {
	claims := middleware.GetClaims(c)

	response.Success(c, http.StatusOK, gin.H{
		"exams": h.sessions.DashboardStatus(c.Request.Context(), claims.UserID),
	})
}

// GetCatalog godoc
// GET /api/v1/annotator/exams
// Returns the exam catalog with column schemas, for rendering the editor.
func (h *PortalHandler) GetCatalog(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"exams": h.exams.Catalog()})
}

// StartExam godoc
// POST /api/v1/annotator/exams/:code/start
// Opens (or resumes) the session: assigns an image, fixes the deadline,
// and returns the initial row set.
func (h *PortalHandler) StartExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	ctx := c.Request.Context()

	snap, err := h.sessions.Start(ctx, claims.UserID, claims.ExternalID, c.Param("code"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownExam):
			response.Fail(c, http.StatusNotFound, response.ErrUnknownExam)
		case errors.Is(err, service.ErrExamCompleted):
			response.Fail(c, http.StatusConflict, response.ErrExamCompleted)
		case errors.Is(err, service.ErrSessionActive):
			response.Fail(c, http.StatusConflict, response.ErrSessionActive)
		case errors.Is(err, repository.ErrNoImageAvailable):
			response.Fail(c, http.StatusConflict, response.ErrNoImageAvailable)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	rows, source := h.sessions.LoadRows(ctx, snap)
	response.Success(c, http.StatusCreated, gin.H{
		"session": h.sessionPayload(snap),
		"rows":    rows,
		"source":  source,
	})
}

// GetExamState godoc
// GET /api/v1/annotator/session
// Returns the active session with its rows and remaining time, for page
// reloads.
func (h *PortalHandler) GetExamState(c *gin.Context) {
	claims := middleware.GetClaims(c)

	state, err := h.sessions.State(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"session":           h.sessionPayload(state.Session),
		"rows":              state.Rows,
		"source":            state.Source,
		"remaining_seconds": state.RemainingSeconds,
	})
}

// SaveDraft godoc
// PUT /api/v1/annotator/session/draft
// Overwrites the draft for the active session. Idempotent; a storage
// failure is not an error for the caller.
func (h *PortalHandler) SaveDraft(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.SaveDraftRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessions.PersistDraft(c.Request.Context(), claims.UserID, req.Rows); err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// EditCell godoc
// PATCH /api/v1/annotator/session/rows/:index
// Applies one cell edit to the working rows and saves the draft.
func (h *PortalHandler) EditCell(c *gin.Context) {
	claims := middleware.GetClaims(c)

	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.CellEditRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rows, err := h.sessions.EditCell(c.Request.Context(), claims.UserID, idx, req.ColumnID, req.Value)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoActiveSession):
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
		case errors.Is(err, service.ErrImageRefImmutable):
			response.Fail(c, http.StatusBadRequest, response.ErrImageRefImmutable)
		case errors.Is(err, service.ErrRowIndex), errors.Is(err, service.ErrUnknownColumn):
			response.FailWithDetail(c, http.StatusBadRequest, response.ErrInvalidPayload, err.Error())
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"rows": rows})
}

// AddRow godoc
// POST /api/v1/annotator/session/rows
// Appends one empty row and saves the draft.
func (h *PortalHandler) AddRow(c *gin.Context) {
	claims := middleware.GetClaims(c)

	rows, err := h.sessions.AppendRow(c.Request.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"rows": rows})
}

// DeleteRow godoc
// DELETE /api/v1/annotator/session/rows/:index
// Removes one row and saves the draft. The last row cannot be deleted.
func (h *PortalHandler) DeleteRow(c *gin.Context) {
	claims := middleware.GetClaims(c)

	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	rows, err := h.sessions.RemoveRow(c.Request.Context(), claims.UserID, idx)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoActiveSession):
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
		case errors.Is(err, service.ErrLastRow):
			response.Fail(c, http.StatusConflict, response.ErrLastRow)
		case errors.Is(err, service.ErrRowIndex):
			response.FailWithDetail(c, http.StatusBadRequest, response.ErrInvalidPayload, err.Error())
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"rows": rows})
}

// Submit godoc
// POST /api/v1/annotator/session/submit
// Upserts every row with content. Retries overwrite rather than duplicate;
// on failure the rows stay with the client for another attempt.
func (h *PortalHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.SubmitRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	n, err := h.sessions.Submit(c.Request.Context(), claims.UserID, req.Rows)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSession) {
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
			return
		}
		response.FailWithDetail(c, http.StatusBadGateway, response.ErrSubmissionFailed, err.Error())
		return
	}

	response.Success(c, http.StatusOK, gin.H{"rows_submitted": n})
}

// CloseSession godoc
// POST /api/v1/annotator/session/close
// Ends the session. reason=submitted requires a prior successful submit;
// reason=timed_out force-submits the latest rows first.
func (h *PortalHandler) CloseSession(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CloseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rec, err := h.sessions.Close(c.Request.Context(), claims.UserID, req.Reason, req.Rows, req.Keystrokes)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCompletionWrite):
			// Rows are durable; only the completion bookkeeping failed.
			response.SuccessWithWarning(c, http.StatusOK, gin.H{"completion": rec},
				response.GetMessage(response.ErrCompletionWrite))
		case errors.Is(err, service.ErrNoActiveSession):
			response.Fail(c, http.StatusNotFound, response.ErrNoActiveSession)
		case errors.Is(err, service.ErrSessionClosing):
			response.Fail(c, http.StatusConflict, response.ErrSessionClosing)
		case errors.Is(err, service.ErrSubmitRequired):
			response.Fail(c, http.StatusConflict, response.ErrSubmitRequired)
		default:
			response.FailWithDetail(c, http.StatusBadGateway, response.ErrSubmissionFailed, err.Error())
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"completion": rec})
}

// sessionPayload shapes a snapshot for the client, resolving the assigned
// image to its public URL.
func (h *PortalHandler) sessionPayload(snap *model.SessionSnapshot) gin.H {
	return gin.H{
		"exam_code":  snap.ExamCode,
		"image_id":   snap.Task.ImageID,
		"image_url":  h.media.PublicURL(snap.Task.StoragePath),
		"image_ref":  service.TaskRef(snap.Task),
		"started_at": snap.StartedAt,
		"ends_at":    snap.EndsAt,
	}
}
