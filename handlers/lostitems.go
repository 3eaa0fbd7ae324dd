package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"matatu-commuter-api/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type LostItemsHandler struct {
	db        *gorm.DB
	uploadDir string
	maxUpload int64
}

func NewLostItemsHandler(db *gorm.DB, uploadDir string, maxUpload int64) *LostItemsHandler {
	return &LostItemsHandler{db: db, uploadDir: uploadDir, maxUpload: maxUpload}
}

func (h *LostItemsHandler) RegisterRoutes(api *gin.RouterGroup, auth gin.HandlerFunc) {
	api.GET("/lost-items", h.List)
	api.GET("/lost-items/:id", h.Get)
	api.POST("/lost-item", auth, h.Create)
	api.POST("/found-item/:id", auth, h.MarkFound)
	api.DELETE("/lost-items/:id", auth, h.Delete)
}

func (h *LostItemsHandler) List(c *gin.Context) {
	items := []models.LostItem{}
	if err := h.db.Order("created_at DESC").Find(&items).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *LostItemsHandler) Get(c *gin.Context) {
	var item models.LostItem
	if err := h.db.First(&item, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "lost item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *LostItemsHandler) Create(c *gin.Context) {
	imagePath, imageURL, err := h.saveImage(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fail := func(status int, msg string) {
		h.removeFile(imagePath)
		c.JSON(status, gin.H{"error": msg})
	}

	item := models.LostItem{
		LostItem: strings.TrimSpace(c.PostForm("lostitem")),
		Route:    strings.TrimSpace(c.PostForm("route")),
		Date:     strings.TrimSpace(c.PostForm("date")),
		Sacco:    strings.TrimSpace(c.PostForm("sacco")),
		ImageURL: imageURL,
	}
	if desc := strings.TrimSpace(c.PostForm("description")); desc != "" {
		item.Description = &desc
	}

	if item.LostItem == "" || item.Route == "" || item.Date == "" || item.Sacco == "" {
		fail(http.StatusBadRequest, "lostitem, route, date and sacco are required")
		return
	}
	if _, err := time.Parse("2006-01-02", item.Date); err != nil {
		fail(http.StatusBadRequest, "date must be in YYYY-MM-DD format")
		return
	}

	if err := h.db.Create(&item).Error; err != nil {
		h.removeFile(imagePath)
		slog.Error("failed to create lost item", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "lost item reported successfully",
		"item":    item,
	})
}

func (h *LostItemsHandler) MarkFound(c *gin.Context) {
	var item models.LostItem
	if err := h.db.First(&item, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "lost item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	if err := h.db.Model(&item).Update("found", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	item.Found = true
	c.JSON(http.StatusOK, gin.H{
		"message": "item marked as found",
		"item":    item,
	})
}

func (h *LostItemsHandler) Delete(c *gin.Context) {
	var item models.LostItem
	if err := h.db.First(&item, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "lost item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	if err := h.db.Delete(&item).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	if item.ImageURL != nil {
		h.removeFile(filepath.Join(h.uploadDir, filepath.Base(*item.ImageURL)))
	}
	c.JSON(http.StatusOK, gin.H{"message": "lost item deleted successfully"})
}

// saveImage writes an optional "image" upload to the uploads directory and
// returns the on-disk path plus the public URL stored with the item.
func (h *LostItemsHandler) saveImage(c *gin.Context) (string, *string, error) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		return "", nil, nil // no file attached
	}
	if fileHeader.Size > h.maxUpload {
		return "", nil, fmt.Errorf("file too large, maximum size is %dMB", h.maxUpload/(1024*1024))
	}
	if !strings.HasPrefix(fileHeader.Header.Get("Content-Type"), "image/") {
		return "", nil, errors.New("only image files are allowed")
	}

	ext := filepath.Ext(fileHeader.Filename)
	name := fmt.Sprintf("lost-item-%d-%09d%s", time.Now().UnixMilli(), rand.Intn(1e9), ext)
	path := filepath.Join(h.uploadDir, name)
	if err := c.SaveUploadedFile(fileHeader, path); err != nil {
		return "", nil, errors.New("failed to store uploaded image")
	}

	url := "/uploads/" + name
	return path, &url, nil
}

func (h *LostItemsHandler) removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove upload", "path", path, "error", err)
	}
}
