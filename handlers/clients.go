package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yourusername/billdesk/middleware"
	"github.com/yourusername/billdesk/storage"
	"gorm.io/gorm"
)

type ClientHandler struct {
	directory *storage.ClientDirectory
}

func NewClientHandler(directory *storage.ClientDirectory) *ClientHandler {
	return &ClientHandler{directory: directory}
}

type CreateClientRequest struct {
	AccountID *uuid.UUID `json:"account_id"`
	Name      string     `json:"name" binding:"required"`
	Email     string     `json:"email" binding:"omitempty,email"`
}

func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	subject, role, _ := middleware.Principal(c)
	account := subject
	if role == middleware.RoleAdmin {
		if req.AccountID == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "account_id is required for admins"})
			return
		}
		account = *req.AccountID
	}

	client, err := h.directory.CreateClient(c.Request.Context(), account, req.Name, req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidClient) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create client"})
		return
	}
	c.JSON(http.StatusCreated, client)
}

func (h *ClientHandler) GetClient(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client id"})
		return
	}
	client, err := h.directory.GetClient(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch client"})
		return
	}

	subject, role, _ := middleware.Principal(c)
	if role != middleware.RoleAdmin && client.AccountID != subject {
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
		return
	}
	c.JSON(http.StatusOK, client)
}
