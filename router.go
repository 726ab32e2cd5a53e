package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/crewroom/crewroom/pkg/config"
	"github.com/crewroom/crewroom/pkg/event"
	"github.com/crewroom/crewroom/pkg/handler"
	"github.com/crewroom/crewroom/pkg/models"
	"github.com/crewroom/crewroom/pkg/service"
	"github.com/crewroom/crewroom/pkg/utils"
)

type Server struct {
	ginEngine *gin.Engine
	logger    *slog.Logger
	cfg       *config.AppConfig
	db        *gorm.DB
	port      int
}

func NewServer(cfg *config.AppConfig, database *gorm.DB) (*Server, error) {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	// CORS middleware: allow common localhost dev origins.
	ginEngine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// If there's no Origin header, it's not a browser CORS request.
		if origin != "" {
			allowed := strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1")

			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			} else {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	server := &Server{
		ginEngine: ginEngine,
		logger:    utils.GetLogger(),
		cfg:       cfg,
		db:        database,
		port:      0,
	}

	if err := server.SetupRoutes(); err != nil {
		return nil, err
	}

	return server, nil
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host(), s.cfg.Port())
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Attempt to listen on port first; if occupied return error immediately
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}

	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	} else {
		s.port = s.cfg.Port()
	}
	s.logger.Info("HTTP server listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	// Listen for context cancellation for graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	default:
	}
	return nil
}

func (s *Server) SetupRoutes() error {
	// Create service instances
	userService := service.NewUserService(s.db)
	roomService := service.NewRoomService(s.db)
	taskService := service.NewTaskService(s.db)
	notificationService := service.NewNotificationService(s.db)
	modelService := service.NewModelService()
	aiService := service.NewAIService(modelService, s.cfg.DefaultModel(), s.cfg.ReasoningModel())
	breakdownService := service.NewBreakdownService(s.db, roomService, userService, notificationService, aiService, aiService)

	for _, migrate := range []func() error{
		userService.AutoMigrate,
		roomService.AutoMigrate,
		taskService.AutoMigrate,
		notificationService.AutoMigrate,
		breakdownService.AutoMigrate,
	} {
		if err := migrate(); err != nil {
			return fmt.Errorf("database migration failed: %w", err)
		}
	}

	issuer := handler.NewTokenIssuer(s.cfg.JWTSecret(), time.Duration(s.cfg.TokenTTLHours())*time.Hour)

	authHandler := handler.NewAuthHandler(userService, issuer, s.logger)
	roomHandler := handler.NewRoomHandler(roomService, s.logger)
	taskHandler := handler.NewTaskHandler(taskService, roomService, s.logger)
	aiHandler := handler.NewAIHandler(breakdownService, aiService, s.logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, s.logger)
	wsHandler := event.NewWSHandler()

	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.Response{Code: 200, Message: "ok"})
	})

	// API group
	// /api
	apiGroup := s.ginEngine.Group("/api")

	// Authentication routes
	// /api/auth
	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", handler.AuthMiddleware(issuer), authHandler.Me)

	// Everything below requires a bearer token
	authed := apiGroup.Group("")
	authed.Use(handler.AuthMiddleware(issuer))

	// Room management API routes
	// /api/rooms
	roomsGroup := authed.Group("/rooms")
	roomsGroup.POST("", roomHandler.Create)
	roomsGroup.GET("", roomHandler.List)
	roomsGroup.GET(":id", roomHandler.Get)
	roomsGroup.GET(":id/members", roomHandler.Members)
	roomsGroup.POST(":id/members", roomHandler.AddMember)

	// Task management API routes
	// /api/tasks
	tasksGroup := authed.Group("/tasks")
	tasksGroup.POST("", taskHandler.Create)
	tasksGroup.GET("", taskHandler.List)
	tasksGroup.GET(":id", taskHandler.Get)
	tasksGroup.PUT(":id", taskHandler.Update)
	tasksGroup.DELETE(":id", taskHandler.Delete)
	tasksGroup.POST(":id/assign", taskHandler.Assign)
	tasksGroup.DELETE(":id/assign/:userId", taskHandler.Unassign)

	// AI breakdown workflow API routes
	// /api/ai
	aiGroup := authed.Group("/ai")
	aiGroup.POST("/analyze-problem", aiHandler.AnalyzeProblem)
	aiGroup.POST("/breakdown-task", aiHandler.BreakdownTask)
	aiGroup.POST("/apply-breakdown", aiHandler.ApplyBreakdown)
	aiGroup.GET("/history/:roomId", aiHandler.History)
	aiGroup.GET("/analysis/:analysisId", aiHandler.GetAnalysis)
	aiGroup.DELETE("/history/:analysisId", aiHandler.DeleteAnalysis)

	// Notification API routes
	// /api/notifications
	notificationsGroup := authed.Group("/notifications")
	notificationsGroup.GET("", notificationHandler.List)
	notificationsGroup.PUT(":id/read", notificationHandler.MarkRead)
	notificationsGroup.PUT("read-all", notificationHandler.MarkAllRead)

	// Model management API routes
	// /api/models
	authed.GET("/models", modelService.GetModelList)
	authed.POST("/models", modelService.AddModel)
	authed.PUT("/models/:id", modelService.EditModel)
	authed.DELETE("/models/:id", modelService.DeleteModel)
	authed.POST("/models/test", modelService.TestModelConnection)

	// Live event stream
	// /api/events/ws
	authed.GET("/events/ws", func(c *gin.Context) {
		wsHandler.Handle(c, handler.CurrentUserID(c))
	})

	return nil
}
