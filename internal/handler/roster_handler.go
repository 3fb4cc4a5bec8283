package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/liftlabs/liftapp-backend/internal/response"
	"github.com/liftlabs/liftapp-backend/internal/service"
)

// RosterHandler serves the admin annotator roster and its CSV export.
type RosterHandler struct {
	roster *service.RosterService
}

// NewRosterHandler creates a new RosterHandler.
func NewRosterHandler(roster *service.RosterService) *RosterHandler {
	return &RosterHandler{roster: roster}
}

// ListAnnotators godoc
// GET /api/v1/admin/annotators
// Filtered, sorted, paginated roster with per-exam metrics.
func (h *RosterHandler) ListAnnotators(c *gin.Context) {
	filter, sortBy, ok := parseRosterQuery(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "25"))

	result, err := h.roster.List(c.Request.Context(), filter, sortBy, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK,
		gin.H{"annotators": result.Entries},
		&response.Pagination{
			Page:       result.Page,
			PerPage:    result.PerPage,
			TotalItems: result.Total,
			TotalPages: result.TotalPages,
		})
}

// ExportAnnotatorsCSV godoc
// GET /api/v1/admin/annotators/export
// Streams the whole filtered, sorted roster as a CSV attachment.
func (h *RosterHandler) ExportAnnotatorsCSV(c *gin.Context) {
	filter, sortBy, ok := parseRosterQuery(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="annotators.csv"`)

	if err := h.roster.ExportCSV(c.Request.Context(), filter, sortBy, c.Writer); err != nil {
		// Headers may already be out; the truncated body is the signal.
		_ = c.Error(err)
	}
}

// parseRosterQuery reads the shared filter/sort query params. On a bad
// value it writes the error response and returns ok=false.
func parseRosterQuery(c *gin.Context) (service.RosterFilter, service.RosterSort, bool) {
	filter := service.RosterFilter{
		Search:   c.Query("search"),
		IDPrefix: c.Query("id_prefix"),
	}

	fields := map[string]string{}
	parseDate := func(param string) *time.Time {
		raw := c.Query(param)
		if raw == "" {
			return nil
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			fields[param] = "must be a YYYY-MM-DD date"
			return nil
		}
		return &t
	}

	filter.RegisteredFrom = parseDate("registered_from")
	filter.RegisteredTo = parseDate("registered_to")
	filter.CompletedFrom = parseDate("completed_from")
	filter.CompletedTo = parseDate("completed_to")

	if raw := c.Query("completed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			fields["completed"] = "must be true or false"
		} else {
			filter.Completed = &v
		}
	}
	if raw := c.Query("min_score"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fields["min_score"] = "must be a number"
		} else {
			filter.MinScore = &v
		}
	}
	if raw := c.Query("min_exams"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			fields["min_exams"] = "must be an integer"
		} else {
			filter.MinExams = v
		}
	}

	sortBy := service.RosterSort{
		Column: c.DefaultQuery("sort", "registered_at"),
		Desc:   c.Query("order") == "desc",
	}
	if !rosterSortColumns[sortBy.Column] {
		fields["sort"] = "unknown sort column"
	}

	if len(fields) > 0 {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return filter, service.RosterSort{}, false
	}
	return filter, sortBy, true
}

var rosterSortColumns = map[string]bool{
	"external_id":            true,
	"registered_at":          true,
	"exams_completed":        true,
	"avg_score":              true,
	"total_keystrokes":       true,
	"total_duration_seconds": true,
	"last_completed_at":      true,
}
