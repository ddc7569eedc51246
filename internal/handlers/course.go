package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/nkurbanov/campus_registry/internal/logging"
	"github.com/nkurbanov/campus_registry/internal/models"
	"github.com/nkurbanov/campus_registry/internal/util"
)

type CourseHandler struct {
	DB *gorm.DB
}

type courseRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *CourseHandler) CreateCourse(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "course_create")

	var req courseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if empty := emptyFields(map[string]*string{
		"name":        req.Name,
		"description": req.Description,
	}); len(empty) > 0 {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("these fields cannot be empty: %s", strings.Join(empty, ", ")))
	}

	course := models.Course{
		Name:        *req.Name,
		Description: *req.Description,
	}
	if err := h.DB.Create(&course).Error; err != nil {
		l.Error("course_create_failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusCreated, course)
}

func (h *CourseHandler) GetCourses(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	offset, limit := util.Calculate(page, size)

	var total int64
	if err := h.DB.Model(&models.Course{}).Count(&total).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var courses []models.Course
	if err := h.DB.Order("id ASC").Offset(offset).Limit(limit).Find(&courses).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, echo.Map{"data": courses, "total": total})
}

func (h *CourseHandler) GetCourse(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid course id")
	}

	var course models.Course
	if err := h.DB.First(&course, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "course not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, course)
}

func (h *CourseHandler) UpdateCourse(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid course id")
	}

	var course models.Course
	if err := h.DB.First(&course, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "course not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	var req courseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if req.Name != nil {
		course.Name = *req.Name
	}
	if req.Description != nil {
		course.Description = *req.Description
	}

	if err := h.DB.Save(&course).Error; err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, course)
}

func (h *CourseHandler) DeleteCourse(c echo.Context) error {
	l := logging.FromContext(c.Request().Context()).With("handler", "course_delete")

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid course id")
	}

	result := h.DB.Delete(&models.Course{}, id)
	if result.Error != nil {
		l.Error("course_delete_failed", "status", 500, "error", result.Error)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if result.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "course not found")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": fmt.Sprintf("course %d deleted successfully", id),
	})
}
