package app

import (
	"net/http"
	"strings"

	"storyloom/internal/engine"
	"storyloom/internal/service"
	"storyloom/internal/util"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService service.AuthService
	jwtSecret   string
}

func NewAuthHandler(authService service.AuthService, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		jwtSecret:   jwtSecret,
	}
}

// Register handles user registration
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	user, token, err := h.authService.Register(req)
	if err != nil {
		util.ErrorResponse(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	util.SuccessResponse(c, http.StatusCreated, "Registration successful", gin.H{
		"user":  user,
		"token": token,
	})
}

// Login handles user login
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.BadRequest(c, err.Error())
		return
	}

	user, token, err := h.authService.Login(req)
	if err != nil {
		util.Unauthorized(c, err.Error())
		return
	}

	util.SuccessResponse(c, http.StatusOK, "Login successful", gin.H{
		"user":  user,
		"token": token,
	})
}

// GetMe returns the authenticated user
// GET /api/v1/auth/me
func (h *AuthHandler) GetMe(c *gin.Context) {
	userID := c.GetString("userID")

	user, err := h.authService.GetUser(userID)
	if err != nil {
		util.NotFound(c, "User not found")
		return
	}

	util.SuccessResponse(c, http.StatusOK, "User retrieved successfully", user)
}

// AuthMiddleware validates JWT token
func (h *AuthHandler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			util.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			util.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := util.ValidateToken(parts[1], h.jwtSecret)
		if err != nil {
			util.Unauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("displayName", claims.DisplayName)
		c.Set("role", claims.Role)
		c.Next()
	}
}

// OptionalAuthMiddleware resolves the token when present but lets guests
// through. Handlers read the session via sessionFromContext.
func (h *AuthHandler) OptionalAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				if claims, err := util.ValidateToken(parts[1], h.jwtSecret); err == nil {
					c.Set("userID", claims.UserID)
					c.Set("displayName", claims.DisplayName)
					c.Set("role", claims.Role)
				}
			}
		}
		c.Next()
	}
}

// sessionFromContext builds the engine session for the current request.
// Unauthenticated requests become guest sessions, optionally named via the
// guest_name query parameter.
func sessionFromContext(c *gin.Context) engine.Session {
	if userID, exists := c.Get("userID"); exists {
		return engine.NewSession(userID.(string), c.GetString("displayName"))
	}
	sess := engine.GuestSession()
	sess.DisplayName = c.Query("guest_name")
	return sess
}
