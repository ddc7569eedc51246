package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/nkurbanov/campus_registry/internal/config"
	"github.com/nkurbanov/campus_registry/internal/es"
	"github.com/nkurbanov/campus_registry/internal/handlers"
	"github.com/nkurbanov/campus_registry/internal/logging"
	mwauth "github.com/nkurbanov/campus_registry/internal/middleware/auth"
	"github.com/nkurbanov/campus_registry/internal/middleware/csrf"
	loggingmw "github.com/nkurbanov/campus_registry/internal/middleware/logging"
	"github.com/nkurbanov/campus_registry/internal/mykafka"
	"github.com/nkurbanov/campus_registry/internal/repo"
	"github.com/nkurbanov/campus_registry/internal/revocation"
	"github.com/nkurbanov/campus_registry/internal/token"
	httpserver "github.com/nkurbanov/campus_registry/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := config.InitDB(configuration)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}

	var prod *mykafka.Producer
	if configuration.KAFKA_ADDRESS != "" {
		prod = mykafka.NewProducer([]string{configuration.KAFKA_ADDRESS})
	}

	userRepo := &repo.UserRepo{DB: db}
	registry := &revocation.Registry{DB: db}
	tokens := &token.Service{
		Secret:  []byte(configuration.JWT_SECRET),
		TTL:     configuration.TOKEN_TTL,
		Revoked: registry,
	}
	cookies := token.CookieWriter{
		Secure:   configuration.COOKIE_SECURE,
		HTTPOnly: configuration.COOKIE_HTTPONLY,
	}

	e := echo.New()
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID())
	e.Use(loggingmw.RequestLogger(logger))
	if configuration.CSRF_PROTECT {
		e.Use(csrf.Middleware(csrf.Config{
			Secure:    configuration.COOKIE_SECURE,
			SkipPaths: []string{"/auth/register", "/auth/login"},
		}))
	}

	deps := httpserver.Deps{
		Auth:        &mwauth.Middleware{Tokens: tokens},
		AuthHandler: &handlers.AuthHandler{Repo: userRepo, Tokens: tokens, Revoked: registry, Cookies: cookies, Producer: prod},
		Students:    &handlers.StudentHandler{DB: db, Producer: prod},
		Courses:     &handlers.CourseHandler{DB: db},
		Enrollments: &handlers.EnrollmentHandler{DB: db, Producer: prod},
	}

	if configuration.ES_URL != "" {
		esClient, err := es.NewClient(configuration)
		if err != nil {
			log.Fatal(err)
		}
		deps.Search = &handlers.SearchHandler{ES: esClient, Index: "students"}
	}

	httpserver.Register(e, &deps)

	purgeCtx, stopPurge := context.WithCancel(logging.IntoContext(context.Background(), logger))
	registry.StartPurgeLoop(purgeCtx, 15*time.Minute)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", configuration.SERVER_PORT),
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	stopPurge()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("db close error: %v", err)
		}
	} else {
		log.Printf("db() error: %v", err)
	}

	if err := prod.Close(); err != nil {
		log.Printf("kafka close error: %v", err)
	}

	log.Println("shutdown complete")
}
