package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers exposes the auth HTTP endpoints.
type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Register handles POST /api/auth/register
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	resp, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		if authErr, ok := err.(AuthError); ok {
			status := http.StatusBadRequest
			if authErr.Code == ErrEmailExists.Code {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": authErr.Code, "message": authErr.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "registration_failed",
			"message": "failed to create account",
		})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Login handles POST /api/auth/login
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	resp, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		if authErr, ok := err.(AuthError); ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": authErr.Code, "message": authErr.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "login_failed",
			"message": "failed to log in",
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}
