package handler

import (
	"encoding/json"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dbtc-online/enrollment-api/internal/service"
	appErrors "github.com/dbtc-online/enrollment-api/pkg/errors"
	"github.com/dbtc-online/enrollment-api/pkg/response"
	"github.com/dbtc-online/enrollment-api/pkg/storage"
)

// StudentHandler exposes the student self-service endpoints.
type StudentHandler struct {
	students *service.StudentService
	uploads  *storage.LocalStorage
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students *service.StudentService, uploads *storage.LocalStorage) *StudentHandler {
	return &StudentHandler{students: students, uploads: uploads}
}

// Profile godoc
// @Summary Own application
// @Tags Student
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /student/profile [get]
func (h *StudentHandler) Profile(c *gin.Context) {
	app, err := h.students.Profile(c.Request.Context(), actorFromContext(c).UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// UpdateProfile godoc
// @Summary Submit or update the enrollment form
// @Tags Student
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.UpdateProfileRequest true "Enrollment form"
// @Success 200 {object} response.Envelope
// @Router /student/profile [put]
func (h *StudentHandler) UpdateProfile(c *gin.Context) {
	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	app, err := h.students.UpdateProfile(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Status godoc
// @Summary Lightweight application status
// @Tags Student
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /student/status [get]
func (h *StudentHandler) Status(c *gin.Context) {
	summary, err := h.students.Status(c.Request.Context(), actorFromContext(c).UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// EnrolledSubjects godoc
// @Summary Own enrolled subjects
// @Tags Student
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /student/subjects [get]
func (h *StudentHandler) EnrolledSubjects(c *gin.Context) {
	subjects, err := h.students.EnrolledSubjects(c.Request.Context(), actorFromContext(c).UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

// History godoc
// @Summary Own enrollment history
// @Tags Student
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /student/history [get]
func (h *StudentHandler) History(c *gin.Context) {
	snapshots, err := h.students.History(c.Request.Context(), actorFromContext(c).UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshots, nil)
}

// UploadReceipt godoc
// @Summary Upload a payment receipt
// @Tags Student
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Receipt image or PDF"
// @Success 200 {object} response.Envelope
// @Router /student/receipt [post]
func (h *StudentHandler) UploadReceipt(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "receipt file is required"))
		return
	}
	path, err := h.saveUpload("receipts", header)
	if err != nil {
		response.Error(c, err)
		return
	}
	app, err := h.students.SubmitReceipt(c.Request.Context(), actorFromContext(c), path)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// UploadDocuments godoc
// @Summary Upload the application photo and supporting documents
// @Tags Student
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param photo formData file false "ID photo"
// @Param documents formData file false "Supporting documents"
// @Success 200 {object} response.Envelope
// @Router /student/documents [post]
func (h *StudentHandler) UploadDocuments(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart form is required"))
		return
	}

	var req service.UpdateProfileRequest
	if photos := form.File["photo"]; len(photos) > 0 {
		path, err := h.saveUpload("photos", photos[0])
		if err != nil {
			response.Error(c, err)
			return
		}
		req.PhotoPath = &path
	}
	if documents := form.File["documents"]; len(documents) > 0 {
		paths := make([]string, 0, len(documents))
		for _, document := range documents {
			path, err := h.saveUpload("documents", document)
			if err != nil {
				response.Error(c, err)
				return
			}
			paths = append(paths, path)
		}
		encoded, err := json.Marshal(paths)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode document paths"))
			return
		}
		req.DocumentPaths = encoded
	}
	if req.PhotoPath == nil && req.DocumentPaths == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "no files provided"))
		return
	}

	app, err := h.students.UpdateProfile(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

func (h *StudentHandler) saveUpload(subdir string, header *multipart.FileHeader) (string, error) {
	file, err := header.Open()
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read upload")
	}
	defer file.Close() //nolint:errcheck
	path, err := h.uploads.SaveUpload(subdir, header.Filename, file)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to store upload")
	}
	return path, nil
}
