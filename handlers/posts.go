package handlers

import (
	"errors"
	"net/http"

	"matatu-commuter-api/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type PostsHandler struct {
	db *gorm.DB
}

func NewPostsHandler(db *gorm.DB) *PostsHandler {
	return &PostsHandler{db: db}
}

func (h *PostsHandler) RegisterRoutes(api *gin.RouterGroup, auth gin.HandlerFunc) {
	api.GET("/posts", h.List)
	api.GET("/posts/:id", h.Get)
	api.POST("/posts", auth, h.Create)
	api.PUT("/posts/:id", auth, h.Update)
	api.DELETE("/posts/:id", auth, h.Delete)
}

func (h *PostsHandler) List(c *gin.Context) {
	query := h.db.Order("created_at DESC")
	if t := c.Query("type"); t != "" {
		query = query.Where("type = ?", t)
	}

	posts := []models.Post{}
	if err := query.Find(&posts).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (h *PostsHandler) Get(c *gin.Context) {
	var post models.Post
	if err := h.db.First(&post, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, post)
}

type PostRequest struct {
	ImageURL    *string `json:"image_url"`
	Description string  `json:"description" binding:"required"`
	Type        string  `json:"type" binding:"required"`
}

func (h *PostsHandler) Create(c *gin.Context) {
	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post := models.Post{
		ImageURL:    req.ImageURL,
		Description: req.Description,
		Type:        req.Type,
	}
	if err := h.db.Create(&post).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (h *PostsHandler) Update(c *gin.Context) {
	var post models.Post
	if err := h.db.First(&post, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	var req PostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post.ImageURL = req.ImageURL
	post.Description = req.Description
	post.Type = req.Type
	if err := h.db.Save(&post).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *PostsHandler) Delete(c *gin.Context) {
	result := h.db.Delete(&models.Post{}, "id = ?", c.Param("id"))
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "post not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "post deleted successfully"})
}
