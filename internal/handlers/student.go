package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/nkurbanov/campus_registry/internal/logging"
	"github.com/nkurbanov/campus_registry/internal/models"
	"github.com/nkurbanov/campus_registry/internal/mykafka"
	"github.com/nkurbanov/campus_registry/internal/util"
)

type StudentHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
}

type studentRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
}

func emptyFields(fields map[string]*string) []string {
	var empty []string
	for name, v := range fields {
		if v == nil || strings.TrimSpace(*v) == "" {
			empty = append(empty, name)
		}
	}
	return empty
}

func (h *StudentHandler) publish(c echo.Context, key string, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "student_events", key, event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}

func (h *StudentHandler) CreateStudent(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "student_create")

	var req studentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if empty := emptyFields(map[string]*string{
		"first_name": req.FirstName,
		"last_name":  req.LastName,
		"email":      req.Email,
	}); len(empty) > 0 {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("these fields cannot be empty: %s", strings.Join(empty, ", ")))
	}

	student := models.Student{
		FirstName: *req.FirstName,
		LastName:  *req.LastName,
		Email:     *req.Email,
	}
	if err := h.DB.Create(&student).Error; err != nil {
		l.Error("student_create_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, fmt.Sprint(student.ID), map[string]any{
		"type":       "student_created",
		"student_id": student.ID,
	})

	return c.JSON(http.StatusCreated, student)
}

func (h *StudentHandler) GetStudents(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.Student{}).Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var students []models.Student
	if err := h.DB.Order("id ASC").Offset(offset).Limit(limit).Find(&students).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, echo.Map{"data": students, "total": total})
}

func (h *StudentHandler) GetStudent(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid student id")
	}

	var student models.Student
	if err := h.DB.First(&student, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "student not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, student)
}

// UpdateStudent applies a partial update; absent fields keep their value.
func (h *StudentHandler) UpdateStudent(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid student id")
	}

	var student models.Student
	if err := h.DB.First(&student, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "student not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var req studentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if req.FirstName != nil {
		student.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		student.LastName = *req.LastName
	}
	if req.Email != nil {
		student.Email = *req.Email
	}

	if err := h.DB.Save(&student).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, fmt.Sprint(student.ID), map[string]any{
		"type":       "student_updated",
		"student_id": student.ID,
	})

	return c.JSON(http.StatusOK, student)
}

func (h *StudentHandler) DeleteStudent(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "student_delete")

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid student id")
	}

	result := h.DB.Delete(&models.Student{}, id)
	if result.Error != nil {
		l.Error("student_delete_failed", "status", 500, "error", result.Error)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if result.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "student not found")
	}

	h.publish(c, fmt.Sprint(id), map[string]any{
		"type":       "student_deleted",
		"student_id": id,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"message": fmt.Sprintf("student %d deleted successfully", id),
	})
}
