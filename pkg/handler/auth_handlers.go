package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crewroom/crewroom/pkg/models"
	"github.com/crewroom/crewroom/pkg/service"
)

// AuthHandler provides HTTP handlers for registration and login
type AuthHandler struct {
	Users  *service.UserService
	Issuer *TokenIssuer
	Logger *slog.Logger
}

func NewAuthHandler(users *service.UserService, issuer *TokenIssuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{Users: users, Issuer: issuer, Logger: logger}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expires_at"`
	User      models.UserBrief `json:"user"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Logger.Warn("Invalid register request", "error", err, "clientIP", c.ClientIP())
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid request parameters: " + err.Error()})
		return
	}
	user, err := h.Users.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrUsernameTaken) || errors.Is(err, service.ErrEmailTaken) {
			c.JSON(http.StatusConflict, models.Response{Code: 409, Message: err.Error()})
			return
		}
		h.Logger.Error("Failed to register user", "username", req.Username, "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	token, expiresAt, err := h.Issuer.Issue(user)
	if err != nil {
		h.Logger.Error("Failed to issue token", "userID", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: "Failed to issue token"})
		return
	}
	h.Logger.Info("User registered via API", "userID", user.ID, "username", user.Username, "clientIP", c.ClientIP())
	c.JSON(http.StatusCreated, models.Response{Code: 200, Message: "Registered successfully", Data: tokenResponse{Token: token, ExpiresAt: expiresAt, User: user.Brief()}})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid request parameters: " + err.Error()})
		return
	}
	user, err := h.Users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, models.Response{Code: 401, Message: err.Error()})
			return
		}
		h.Logger.Error("Failed to authenticate user", "username", req.Username, "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	token, expiresAt, err := h.Issuer.Issue(user)
	if err != nil {
		h.Logger.Error("Failed to issue token", "userID", user.ID, "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: "Failed to issue token"})
		return
	}
	h.Logger.Info("User logged in via API", "userID", user.ID, "clientIP", c.ClientIP())
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Login successful", Data: tokenResponse{Token: token, ExpiresAt: expiresAt, User: user.Brief()}})
}

func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.Users.Get(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusNotFound, models.Response{Code: 404, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Retrieved successfully", Data: user.Brief()})
}
