package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/inventory-ledger/internal/middleware"
	"github.com/inventory-ledger/internal/service"
	"github.com/inventory-ledger/pkg/response"
)

// AuthHandler handles authentication API requests
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// Register handles user registration
// POST /api/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid JSON body")
		return
	}

	user, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, gin.H{
		"id":       user.ID,
		"username": user.Username,
	})
}

// Login handles user login
// POST /api/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid JSON body")
		return
	}

	session, user, err := h.authService.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"token":      session.Token,
		"token_type": session.TokenType,
		"expires_at": session.ExpiresAt,
		"username":   user.Username,
	})
}

// Logout revokes the token used for the request
// POST /api/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), middleware.GetToken(c)); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

// UsernameAvailable reports whether a username is free
// GET /api/username-available?username=
func (h *AuthHandler) UsernameAvailable(c *gin.Context) {
	available, err := h.authService.UsernameAvailable(c.Request.Context(), c.Query("username"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"available": available})
}

// ResetPassword replaces a user's password
// POST /api/reset-password
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req service.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid JSON body")
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), &req); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, nil)
}

// Me returns the authenticated user
// GET /api/me
func (h *AuthHandler) Me(c *gin.Context) {
	response.Success(c, middleware.GetUser(c))
}

// RegisterRoutes registers auth routes
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	rg.POST("/register", h.Register)
	rg.POST("/login", h.Login)
	rg.GET("/username-available", h.UsernameAvailable)
	rg.POST("/reset-password", h.ResetPassword)

	protected := rg.Group("")
	protected.Use(authMiddleware)
	{
		protected.POST("/logout", h.Logout)
		protected.GET("/me", h.Me)
	}
}
