package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"matatu-commuter-api/middleware"
	"matatu-commuter-api/models"
	"matatu-commuter-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type RatingsHandler struct {
	db *gorm.DB
}

func NewRatingsHandler(db *gorm.DB) *RatingsHandler {
	return &RatingsHandler{db: db}
}

func (h *RatingsHandler) RegisterRoutes(api *gin.RouterGroup, auth gin.HandlerFunc) {
	api.GET("/ratings", h.List)
	api.GET("/ratings/average/:sacco_id", h.Average)
	api.POST("/ratings", auth, h.Create)
	api.PUT("/ratings/:id", auth, h.Update)
	api.DELETE("/ratings/:id", auth, h.Delete)
}

func (h *RatingsHandler) List(c *gin.Context) {
	p := ParsePage(c)

	query := h.db.Model(&models.Rating{})
	if s := c.Query("sacco_id"); s != "" {
		query = query.Where("sacco_id = ?", s)
	}
	if cm := c.Query("commuter_id"); cm != "" {
		query = query.Where("commuter_id = ?", cm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	switch c.DefaultQuery("sort", "newest") {
	case "highest":
		query = query.Order("average_rating DESC")
	case "lowest":
		query = query.Order("average_rating ASC")
	default:
		query = query.Order("created_at DESC")
	}

	ratings := []models.Rating{}
	err := query.Preload("Commuter").Preload("Sacco").
		Limit(p.Limit).Offset((p.Number - 1) * p.Limit).
		Find(&ratings).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ratings":    ratings,
		"pagination": services.NewPagination(p.Number, p.Limit, total),
	})
}

type saccoAverages struct {
	AvgCleanliness float64 `json:"avg_cleanliness"`
	AvgSafety      float64 `json:"avg_safety"`
	AvgService     float64 `json:"avg_service"`
	OverallAvg     float64 `json:"overall_avg"`
	TotalRatings   int64   `json:"total_ratings"`
}

func (h *RatingsHandler) Average(c *gin.Context) {
	saccoID := c.Param("sacco_id")

	var avg saccoAverages
	err := h.db.Model(&models.Rating{}).
		Select(`AVG(cleanliness_rating) AS avg_cleanliness,
			AVG(safety_rating) AS avg_safety,
			AVG(service_rating) AS avg_service,
			AVG(average_rating) AS overall_avg,
			COUNT(*) AS total_ratings`).
		Where("sacco_id = ?", saccoID).
		Scan(&avg).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if avg.TotalRatings == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no ratings found for this sacco"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sacco_id":        saccoID,
		"avg_cleanliness": avg.AvgCleanliness,
		"avg_safety":      avg.AvgSafety,
		"avg_service":     avg.AvgService,
		"overall_avg":     avg.OverallAvg,
		"total_ratings":   avg.TotalRatings,
	})
}

type CreateRatingRequest struct {
	SaccoID           uint    `json:"sacco_id" binding:"required"`
	CleanlinessRating int     `json:"cleanliness_rating" binding:"required,min=1,max=5"`
	SafetyRating      int     `json:"safety_rating" binding:"required,min=1,max=5"`
	ServiceRating     int     `json:"service_rating" binding:"required,min=1,max=5"`
	ReviewText        *string `json:"review_text"`
}

func (h *RatingsHandler) Create(c *gin.Context) {
	callerID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req CreateRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var saccoCount int64
	if err := h.db.Model(&models.Sacco{}).Where("sacco_id = ?", req.SaccoID).Count(&saccoCount).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if saccoCount == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "sacco not found"})
		return
	}

	var existing int64
	h.db.Model(&models.Rating{}).
		Where("commuter_id = ? AND sacco_id = ?", callerID, req.SaccoID).
		Count(&existing)
	if existing > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "you have already rated this sacco"})
		return
	}

	rating := models.Rating{
		CommuterID:        callerID,
		SaccoID:           req.SaccoID,
		CleanlinessRating: req.CleanlinessRating,
		SafetyRating:      req.SafetyRating,
		ServiceRating:     req.ServiceRating,
		ReviewText:        req.ReviewText,
	}
	if err := h.db.Create(&rating).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusCreated, rating)
}

type UpdateRatingRequest struct {
	CleanlinessRating *int    `json:"cleanliness_rating" binding:"omitempty,min=1,max=5"`
	SafetyRating      *int    `json:"safety_rating" binding:"omitempty,min=1,max=5"`
	ServiceRating     *int    `json:"service_rating" binding:"omitempty,min=1,max=5"`
	ReviewText        *string `json:"review_text"`
}

func (h *RatingsHandler) Update(c *gin.Context) {
	callerID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	id, valid := ratingID(c)
	if !valid {
		return
	}

	var req UpdateRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var rating models.Rating
	if err := h.db.First(&rating, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rating not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if rating.CommuterID != callerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "you can only update your own ratings"})
		return
	}

	updated := false
	if req.CleanlinessRating != nil {
		rating.CleanlinessRating = *req.CleanlinessRating
		updated = true
	}
	if req.SafetyRating != nil {
		rating.SafetyRating = *req.SafetyRating
		updated = true
	}
	if req.ServiceRating != nil {
		rating.ServiceRating = *req.ServiceRating
		updated = true
	}
	if req.ReviewText != nil {
		rating.ReviewText = req.ReviewText
		updated = true
	}
	if !updated {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	if err := h.db.Save(&rating).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, rating)
}

func (h *RatingsHandler) Delete(c *gin.Context) {
	callerID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	id, valid := ratingID(c)
	if !valid {
		return
	}

	var rating models.Rating
	if err := h.db.First(&rating, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "rating not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	if rating.CommuterID != callerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "you can only delete your own ratings"})
		return
	}

	if err := h.db.Delete(&rating).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rating deleted successfully"})
}

func ratingID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rating id"})
		return 0, false
	}
	return uint(id), true
}
