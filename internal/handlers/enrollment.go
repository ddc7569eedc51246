package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/nkurbanov/campus_registry/internal/logging"
	"github.com/nkurbanov/campus_registry/internal/models"
	"github.com/nkurbanov/campus_registry/internal/mykafka"
	"github.com/nkurbanov/campus_registry/internal/util"
)

type EnrollmentHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
}

func (h *EnrollmentHandler) publish(c echo.Context, key string, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "enrollment_events", key, event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}

// Enroll links a student to a course. Both must exist and the pair must be
// new; a second enrollment of the same pair is a conflict, not a second row.
func (h *EnrollmentHandler) Enroll(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "enroll")

	var req struct {
		StudentID uint `json:"student_id"`
		CourseID  uint `json:"course_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.StudentID == 0 || req.CourseID == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "student_id and course_id are required")
	}

	var student models.Student
	if err := h.DB.First(&student, req.StudentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "student not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	var course models.Course
	if err := h.DB.First(&course, req.CourseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "course not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	enrollment := models.Enrollment{
		StudentID: req.StudentID,
		CourseID:  req.CourseID,
	}
	// the unique pair index is the duplicate check, so a concurrent enroll
	// of the same pair surfaces as a conflict rather than a second row
	if err := h.DB.Create(&enrollment).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			l.Warn("enroll_failed", "status", 409, "reason", "duplicate enrollment")
			return echo.NewHTTPError(http.StatusConflict, "student already enrolled in course")
		}
		l.Error("enroll_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, fmt.Sprint(enrollment.ID), map[string]any{
		"type":       "student_enrolled",
		"student_id": enrollment.StudentID,
		"course_id":  enrollment.CourseID,
	})

	return c.JSON(http.StatusCreated, enrollment)
}

func (h *EnrollmentHandler) GetEnrollments(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.Enrollment{}).Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var enrollments []models.Enrollment
	if err := h.DB.Order("id ASC").Offset(offset).Limit(limit).Find(&enrollments).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, echo.Map{"data": enrollments, "total": total})
}
