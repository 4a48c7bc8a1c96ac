package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/student-management-api/internal/dto"
	"github.com/noah-isme/student-management-api/internal/models"
	appErrors "github.com/noah-isme/student-management-api/pkg/errors"
	"github.com/noah-isme/student-management-api/pkg/response"
)

type studentService interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error)
	ListCourses(ctx context.Context) ([]models.StudentCourse, error)
	GetDetail(ctx context.Context, id int64) (*models.StudentDetail, error)
	GetForm(ctx context.Context, id int64) (*dto.StudentForm, error)
	Register(ctx context.Context, form *dto.StudentForm) (*models.StudentDetail, error)
	Update(ctx context.Context, form *dto.StudentForm) (*dto.StudentUpdateResult, error)
	Delete(ctx context.Context, id int64) error
}

type rosterExporter interface {
	ExportRoster(ctx context.Context, filter models.StudentFilter, format dto.ExportFormat) (*dto.RosterFile, error)
}

// StudentHandler exposes student and course endpoints.
type StudentHandler struct {
	students studentService
	exporter rosterExporter
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentService, exporter rosterExporter) *StudentHandler {
	return &StudentHandler{students: students, exporter: exporter}
}

// List godoc
// @Summary List active students with their courses
// @Tags Students
// @Produce json
// @Param search query string false "Name, kana or nickname substring"
// @Param area query string false "Area"
// @Param ageBand query int false "Age decade, e.g. 30 for 30-39"
// @Param courseName query string false "Course name"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter, err := parseStudentFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	students, pagination, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Export godoc
// @Summary Download the student roster
// @Tags Students
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /students/export [get]
func (h *StudentHandler) Export(c *gin.Context) {
	filter, err := parseStudentFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := dto.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(dto.ExportFormatCSV))))
	file, err := h.exporter.ExportRoster(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Content)
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	id, err := parseStudentID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	detail, err := h.students.GetDetail(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// GetForm godoc
// @Summary Get the edit form of an active student
// @Tags Students
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/form [get]
func (h *StudentHandler) GetForm(c *gin.Context) {
	id, err := parseStudentID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	form, err := h.students.GetForm(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, form, nil)
}

// Create godoc
// @Summary Register a student with a first course
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body dto.StudentForm true "Student form"
// @Success 201 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var form dto.StudentForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	detail, err := h.students.Register(c.Request.Context(), &form)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// Update godoc
// @Summary Update a student and optionally one of its courses
// @Tags Students
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body dto.StudentForm true "Student form"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	id, err := parseStudentID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var form dto.StudentForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if form.ID != nil && *form.ID != id {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidInput, "payload id does not match path id"))
		return
	}
	form.ID = &id

	result, err := h.students.Update(c.Request.Context(), &form)
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if len(result.Warnings) > 0 {
		meta = map[string]interface{}{"warnings": result.Warnings}
	}
	response.JSON(c, http.StatusOK, result, nil, meta)
}

// Delete godoc
// @Summary Soft delete a student
// @Tags Students
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	id, err := parseStudentID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.students.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.StudentAck{
		Status:  "deleted",
		Message: fmt.Sprintf("student %d deleted", id),
		ID:      id,
	}, nil)
}

// ListCourses godoc
// @Summary List all course enrollments
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /courses [get]
func (h *StudentHandler) ListCourses(c *gin.Context) {
	courses, err := h.students.ListCourses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

func parseStudentID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appErrors.Clone(appErrors.ErrInvalidInput, "student id must be a positive integer")
	}
	return id, nil
}

func parseStudentFilter(c *gin.Context) (models.StudentFilter, error) {
	filter := models.StudentFilter{
		Search:     strings.TrimSpace(c.Query("search")),
		Area:       strings.TrimSpace(c.Query("area")),
		CourseName: strings.TrimSpace(c.Query("courseName")),
	}
	if raw := c.Query("ageBand"); raw != "" {
		band, err := strconv.Atoi(raw)
		if err != nil || band < 0 {
			return filter, appErrors.Clone(appErrors.ErrInvalidInput, "ageBand must be a non-negative integer")
		}
		filter.AgeBand = &band
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	size := c.Query("pageSize")
	if size == "" {
		size = c.Query("limit")
	}
	if n, err := strconv.Atoi(size); err == nil {
		filter.PageSize = n
	}
	return filter, nil
}
