package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liftlabs/liftapp-backend/internal/response"
	"github.com/liftlabs/liftapp-backend/internal/service"
)

// AnalyticsHandler serves the admin dashboard aggregates.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// GetDashboard godoc
// GET /api/v1/admin/dashboard
// Headline counts, per-exam stats and completions-over-time data.
func (h *AnalyticsHandler) GetDashboard(c *gin.Context) {
	dashboard, err := h.analytics.Dashboard(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, dashboard)
}
