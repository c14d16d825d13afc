package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dbtc-online/enrollment-api/internal/models"
	"github.com/dbtc-online/enrollment-api/internal/service"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
	"github.com/dbtc-online/enrollment-api/pkg/response"
)

// AdminHandler exposes admin-only endpoints: admission decisions, account
// management, dashboard, audit trail and the academic calendar.
type AdminHandler struct {
	admissions *service.AdmissionService
	apps       *service.ApplicationService
	users      *service.UserService
	dashboard  *service.DashboardService
	audits     *service.AuditService
	calendar   *service.CalendarService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(admissions *service.AdmissionService, apps *service.ApplicationService, users *service.UserService, dashboard *service.DashboardService, audits *service.AuditService, calendar *service.CalendarService) *AdminHandler {
	return &AdminHandler{admissions: admissions, apps: apps, users: users, dashboard: dashboard, audits: audits, calendar: calendar}
}

// Approve godoc
// @Summary Approve a pending application
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body service.ApproveRequest false "Enrollment fields"
// @Success 200 {object} response.Envelope
// @Router /admin/students/{id}/approve [put]
func (h *AdminHandler) Approve(c *gin.Context) {
	var req service.ApproveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	app, err := h.admissions.Approve(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.dashboard.Invalidate(c.Request.Context())
	response.JSON(c, http.StatusOK, app, nil)
}

// Deny godoc
// @Summary Deny a pending application
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body service.DenyRequest false "Denial reason"
// @Success 200 {object} response.Envelope
// @Router /admin/students/{id}/deny [put]
func (h *AdminHandler) Deny(c *gin.Context) {
	var req service.DenyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	app, err := h.admissions.Deny(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.dashboard.Invalidate(c.Request.Context())
	response.JSON(c, http.StatusOK, app, nil)
}

// DeleteStudent godoc
// @Summary Delete a student and its application
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 204
// @Router /admin/students/{id} [delete]
func (h *AdminHandler) DeleteStudent(c *gin.Context) {
	if err := h.apps.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	h.dashboard.Invalidate(c.Request.Context())
	response.NoContent(c)
}

// Dashboard godoc
// @Summary Enrollment dashboard aggregates
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/dashboard [get]
func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, cached, err := h.dashboard.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil, map[string]interface{}{"cached": cached})
}

// ListAccounts godoc
// @Summary List accounts
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param role query string false "Filter by role"
// @Param search query string false "Search by email or name"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/accounts [get]
func (h *AdminHandler) ListAccounts(c *gin.Context) {
	var filter models.UserFilter
	if role := c.Query("role"); role != "" {
		r := models.UserRole(role)
		filter.Role = &r
	}
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	accounts, pagination, err := h.users.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, accounts, pagination)
}

// CreateAccount godoc
// @Summary Create a staff account
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateAccountRequest true "Account payload"
// @Success 201 {object} response.Envelope
// @Router /admin/accounts [post]
func (h *AdminHandler) CreateAccount(c *gin.Context) {
	var req service.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	user, err := h.users.CreateStaff(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, user)
}

// ResetPassword godoc
// @Summary Reset an account password
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Param payload body service.ResetPasswordRequest true "Password payload"
// @Success 204
// @Router /admin/accounts/{id}/reset-password [put]
func (h *AdminHandler) ResetPassword(c *gin.Context) {
	var req service.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.users.ResetPassword(c.Request.Context(), actorFromContext(c), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteAccount godoc
// @Summary Delete an account
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 204
// @Router /admin/accounts/{id} [delete]
func (h *AdminHandler) DeleteAccount(c *gin.Context) {
	if err := h.users.Delete(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AuditLogs godoc
// @Summary List audit entries
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param action query string false "Filter by action"
// @Param role query string false "Filter by actor role"
// @Param search query string false "Search email or target"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admin/audit-logs [get]
func (h *AdminHandler) AuditLogs(c *gin.Context) {
	var filter models.AuditFilter
	filter.Action = c.Query("action")
	filter.Role = c.Query("role")
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}
	entries, pagination, err := h.audits.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination)
}

// GetCalendar godoc
// @Summary Academic calendar
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/calendar [get]
func (h *AdminHandler) GetCalendar(c *gin.Context) {
	calendar, err := h.calendar.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, calendar, nil)
}

// UpdateCalendar godoc
// @Summary Update the academic calendar
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.UpdateCalendarRequest true "Calendar payload"
// @Success 200 {object} response.Envelope
// @Router /admin/calendar [put]
func (h *AdminHandler) UpdateCalendar(c *gin.Context) {
	var req service.UpdateCalendarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	calendar, err := h.calendar.Update(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, calendar, nil)
}
