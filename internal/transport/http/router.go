package httpserver

import (
	"github.com/labstack/echo/v4"

	"github.com/nkurbanov/campus_registry/internal/handlers"
	mwauth "github.com/nkurbanov/campus_registry/internal/middleware/auth"
	"github.com/nkurbanov/campus_registry/internal/models"
)

type Deps struct {
	Auth        *mwauth.Middleware
	AuthHandler *handlers.AuthHandler
	Students    *handlers.StudentHandler
	Courses     *handlers.CourseHandler
	Enrollments *handlers.EnrollmentHandler
	Search      *handlers.SearchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	auth := e.Group("/auth")

	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/logout", d.AuthHandler.LogOut, d.Auth.RequireAuth)
	auth.GET("/protected", d.AuthHandler.Protected, d.Auth.RequireAuth)

	auth.GET("/admin-only", d.AuthHandler.AdminOnly,
		d.Auth.RequireAuth, d.Auth.RequireRoles(models.RoleAdmin))
	auth.GET("/staff-only", d.AuthHandler.StaffOnly,
		d.Auth.RequireAuth, d.Auth.RequireRoles(models.RoleStaff))
	auth.GET("/student-only", d.AuthHandler.StudentOnly,
		d.Auth.RequireAuth, d.Auth.RequireRoles(models.RoleStudent))

	auth.DELETE("/delete-user/:id", d.AuthHandler.DeleteUser,
		d.Auth.RequireAuth, d.Auth.RequireRoles(models.RoleAdmin, models.RoleStaff))

	students := e.Group("/students", d.Auth.RequireAuth)

	students.POST("", d.Students.CreateStudent, d.Auth.RequireRoles(models.RoleAdmin))
	students.GET("", d.Students.GetStudents)
	if d.Search != nil {
		students.GET("/search", d.Search.SearchStudents)
	}
	students.GET("/:id", d.Students.GetStudent)
	students.PUT("/:id", d.Students.UpdateStudent, d.Auth.RequireRoles(models.RoleStaff))
	students.DELETE("/:id", d.Students.DeleteStudent, d.Auth.RequireRoles(models.RoleAdmin))

	courses := e.Group("/courses", d.Auth.RequireAuth)

	courses.POST("", d.Courses.CreateCourse)
	courses.GET("", d.Courses.GetCourses)
	courses.GET("/:id", d.Courses.GetCourse)
	courses.PUT("/:id", d.Courses.UpdateCourse)
	courses.DELETE("/:id", d.Courses.DeleteCourse, d.Auth.RequireRoles(models.RoleAdmin))

	e.POST("/enroll", d.Enrollments.Enroll, d.Auth.RequireAuth)
	e.GET("/enrollments", d.Enrollments.GetEnrollments, d.Auth.RequireAuth)
}
