package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liftlabs/liftapp-backend/internal/middleware"
	"github.com/liftlabs/liftapp-backend/internal/model"
	"github.com/liftlabs/liftapp-backend/internal/response"
	"github.com/liftlabs/liftapp-backend/internal/service"
	"github.com/liftlabs/liftapp-backend/internal/validator"
)

// AnnotatorProfiles loads annotator records for the /me endpoint.
type AnnotatorProfiles interface {
	GetByID(ctx context.Context, id int) (*model.Annotator, error)
}

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	annotators  AnnotatorProfiles
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, annotators AnnotatorProfiles) *AuthHandler {
	return &AuthHandler{authService: authService, annotators: annotators}
}

// AnnotatorLogin godoc
// POST /api/v1/auth/annotator/login
// Resolves (or creates on first login) the annotator for the given
// external identifier and returns a JWT. No password: the identifier is
// the credential.
func (h *AuthHandler) AnnotatorLogin(c *gin.Context) {
	var req model.AnnotatorLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	annotator, token, err := h.authService.LoginAnnotator(c.Request.Context(), req.ExternalID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"annotator": gin.H{
			"id":          annotator.ID,
			"external_id": annotator.ExternalID,
		},
	})
}

// AdminLogin godoc
// POST /api/v1/auth/admin/login
// Validates email + password, returns JWT.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	admin, token, err := h.authService.LoginAdmin(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": token,
		"admin": gin.H{
			"id":    admin.ID,
			"email": admin.Email,
			"name":  admin.Name,
		},
	})
}

// GetAnnotatorProfile godoc
// GET /api/v1/auth/annotator/me
// Returns the profile of the currently authenticated annotator.
func (h *AuthHandler) GetAnnotatorProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	annotator, err := h.annotators.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"annotator": gin.H{
			"id":                   annotator.ID,
			"external_id":          annotator.ExternalID,
			"created_at":           annotator.CreatedAt,
			"overall_completed_at": annotator.OverallCompletedAt,
		},
	})
}
