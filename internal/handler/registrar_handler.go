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

// RegistrarHandler exposes the registrar workflow: application review,
// payment verification, subject assignment, archiving and exports.
type RegistrarHandler struct {
	apps        *service.ApplicationService
	payments    *service.PaymentService
	assignments *service.AssignmentService
	archives    *service.ArchiveService
	subjects    *service.SubjectService
	exports     *service.ExportService
	dashboard   *service.DashboardService
}

// NewRegistrarHandler constructs RegistrarHandler.
func NewRegistrarHandler(apps *service.ApplicationService, payments *service.PaymentService, assignments *service.AssignmentService, archives *service.ArchiveService, subjects *service.SubjectService, exports *service.ExportService, dashboard *service.DashboardService) *RegistrarHandler {
	return &RegistrarHandler{apps: apps, payments: payments, assignments: assignments, archives: archives, subjects: subjects, exports: exports, dashboard: dashboard}
}

// ListStudents godoc
// @Summary List applications
// @Tags Registrar
// @Produce json
// @Security BearerAuth
// @Param status query string false "Filter by status"
// @Param payment_status query string false "Filter by payment status"
// @Param enrollment_type query string false "Filter by enrollment type"
// @Param grade_level query string false "Filter by grade level"
// @Param strand query string false "Filter by strand"
// @Param semester query string false "Filter by semester"
// @Param search query string false "Search name, number or email"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /registrar/students [get]
func (h *RegistrarHandler) ListStudents(c *gin.Context) {
	filter := applicationFilterFromQuery(c)
	applications, pagination, err := h.apps.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, applications, pagination)
}

// GetStudent godoc
// @Summary Application detail
// @Tags Registrar
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /registrar/students/{id} [get]
func (h *RegistrarHandler) GetStudent(c *gin.Context) {
	detail, err := h.apps.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// VerifyPayment godoc
// @Summary Verify a submitted payment
// @Tags Registrar
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /registrar/students/{id}/verify-payment [put]
func (h *RegistrarHandler) VerifyPayment(c *gin.Context) {
	app, err := h.payments.Verify(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.dashboard.Invalidate(c.Request.Context())
	response.JSON(c, http.StatusOK, app, nil)
}

// RejectPayment godoc
// @Summary Reject a submitted payment
// @Tags Registrar
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body service.RejectPaymentRequest false "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /registrar/students/{id}/reject-payment [put]
func (h *RegistrarHandler) RejectPayment(c *gin.Context) {
	var req service.RejectPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	app, err := h.payments.Reject(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// AssignSubject godoc
// @Summary Assign one subject to a student
// @Tags Registrar
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param subjectId path string true "Subject ID"
// @Success 201 {object} response.Envelope
// @Router /registrar/students/{id}/subjects/{subjectId} [post]
func (h *RegistrarHandler) AssignSubject(c *gin.Context) {
	link, err := h.assignments.Assign(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("subjectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

type bulkAssignRequest struct {
	SubjectIDs []string `json:"subject_ids" binding:"required"`
}

// BulkAssignSubjects godoc
// @Summary Assign multiple subjects, skipping ineligible ones
// @Tags Registrar
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body bulkAssignRequest true "Subject IDs"
// @Success 200 {object} response.Envelope
// @Router /registrar/students/{id}/subjects/bulk [post]
func (h *RegistrarHandler) BulkAssignSubjects(c *gin.Context) {
	var req bulkAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.assignments.BulkAssign(c.Request.Context(), actorFromContext(c), c.Param("id"), req.SubjectIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// UnassignSubject godoc
// @Summary Release a student's seat in a subject
// @Tags Registrar
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param subjectId path string true "Subject ID"
// @Success 204
// @Router /registrar/students/{id}/subjects/{subjectId} [delete]
func (h *RegistrarHandler) UnassignSubject(c *gin.Context) {
	if err := h.assignments.Unassign(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("subjectId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpdateTransfereeCredits godoc
// @Summary Evaluate a transferee's prior subjects
// @Tags Registrar
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body service.UpdateTransfereeCreditsRequest true "Credit evaluation"
// @Success 204
// @Router /registrar/students/{id}/transferee-credits [put]
func (h *RegistrarHandler) UpdateTransfereeCredits(c *gin.Context) {
	var req service.UpdateTransfereeCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.assignments.UpdateTransfereeCredits(c.Request.Context(), actorFromContext(c), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ArchiveCycle godoc
// @Summary Archive a student's completed enrollment cycle
// @Tags Registrar
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /registrar/students/{id}/archive [post]
func (h *RegistrarHandler) ArchiveCycle(c *gin.Context) {
	snapshot, err := h.archives.ArchiveCycle(c.Request.Context(), actorFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.dashboard.Invalidate(c.Request.Context())
	response.JSON(c, http.StatusOK, snapshot, nil)
}

// EnrollmentHistory godoc
// @Summary A student's cycle snapshots
// @Tags Registrar
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /registrar/students/{id}/history [get]
func (h *RegistrarHandler) EnrollmentHistory(c *gin.Context) {
	snapshots, err := h.archives.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshots, nil)
}

// ListSubjects godoc
// @Summary List subjects with enrolled counts
// @Tags Registrar
// @Produce json
// @Security BearerAuth
// @Param strand query string false "Filter by strand"
// @Param grade_level query string false "Filter by grade level"
// @Param semester query string false "Filter by semester"
// @Success 200 {object} response.Envelope
// @Router /registrar/subjects [get]
func (h *RegistrarHandler) ListSubjects(c *gin.Context) {
	filter := models.SubjectFilter{
		Strand:     c.Query("strand"),
		GradeLevel: c.Query("grade_level"),
		Semester:   c.Query("semester"),
	}
	subjects, err := h.subjects.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

// CreateSubject godoc
// @Summary Create a subject
// @Tags Registrar
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.SubjectRequest true "Subject payload"
// @Success 201 {object} response.Envelope
// @Router /registrar/subjects [post]
func (h *RegistrarHandler) CreateSubject(c *gin.Context) {
	var req service.SubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	subject, err := h.subjects.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, subject)
}

// UpdateSubject godoc
// @Summary Update a subject
// @Tags Registrar
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Param payload body service.SubjectRequest true "Subject payload"
// @Success 200 {object} response.Envelope
// @Router /registrar/subjects/{id} [put]
func (h *RegistrarHandler) UpdateSubject(c *gin.Context) {
	var req service.SubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	subject, err := h.subjects.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subject, nil)
}

// DeleteSubject godoc
// @Summary Delete a subject
// @Tags Registrar
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Success 204
// @Router /registrar/subjects/{id} [delete]
func (h *RegistrarHandler) DeleteSubject(c *gin.Context) {
	if err := h.subjects.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SubjectRoster godoc
// @Summary Students seated in a subject
// @Tags Registrar
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /registrar/subjects/{id}/students [get]
func (h *RegistrarHandler) SubjectRoster(c *gin.Context) {
	students, err := h.subjects.Roster(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, nil)
}

// ExportStudents godoc
// @Summary Export the filtered student list
// @Tags Registrar
// @Produce octet-stream
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /registrar/students/export [get]
func (h *RegistrarHandler) ExportStudents(c *gin.Context) {
	filter := applicationFilterFromQuery(c)
	file, err := h.exports.Students(c.Request.Context(), filter, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+file.Filename)
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// ExportSubjectRoster godoc
// @Summary Export a subject roster
// @Tags Registrar
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "Subject ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} binary
// @Router /registrar/subjects/{id}/export [get]
func (h *RegistrarHandler) ExportSubjectRoster(c *gin.Context) {
	file, err := h.exports.SubjectRoster(c.Request.Context(), c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+file.Filename)
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

func applicationFilterFromQuery(c *gin.Context) models.ApplicationFilter {
	var filter models.ApplicationFilter
	filter.Status = models.ApplicationStatus(c.Query("status"))
	filter.PaymentStatus = models.PaymentStatus(c.Query("payment_status"))
	filter.EnrollmentType = models.EnrollmentType(c.Query("enrollment_type"))
	filter.GradeLevel = c.Query("grade_level")
	filter.Strand = c.Query("strand")
	filter.Semester = c.Query("semester")
	filter.Search = c.Query("search")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	return filter
}
