package handlers

import (
	"context"
	"net/http"
	"time"

	"matatu-commuter-api/models"
	"matatu-commuter-api/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const transitCacheTTL = 60 * time.Second

// TransitHandler serves the read-only stage/sacco/route reference data the
// commuter map and forms are built on.
type TransitHandler struct {
	db    *gorm.DB
	cache *services.CacheService
}

func NewTransitHandler(db *gorm.DB, cache *services.CacheService) *TransitHandler {
	return &TransitHandler{db: db, cache: cache}
}

func (h *TransitHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/stages", h.GetStages)
	api.GET("/saccos", h.GetSaccos)
	api.GET("/saccos/details", h.GetSaccoDetails)
	api.GET("/routes", h.GetRoutes)
	api.GET("/operations", h.GetOperations)
}

func (h *TransitHandler) GetStages(c *gin.Context) {
	const cacheKey = "transit:stages"

	var cached []models.Stage
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	var stages []models.Stage
	if err := h.db.Order("stage_id").Find(&stages).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	go h.cache.Set(context.Background(), cacheKey, stages, transitCacheTTL)
	c.JSON(http.StatusOK, stages)
}

func (h *TransitHandler) GetSaccos(c *gin.Context) {
	const cacheKey = "transit:saccos"

	var cached []models.Sacco
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	var saccos []models.Sacco
	if err := h.db.Order("sacco_id").Find(&saccos).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	go h.cache.Set(context.Background(), cacheKey, saccos, transitCacheTTL)
	c.JSON(http.StatusOK, saccos)
}

func (h *TransitHandler) GetRoutes(c *gin.Context) {
	const cacheKey = "transit:routes"

	var cached []models.Route
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	var routes []models.Route
	if err := h.db.Order("route_id").Find(&routes).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	go h.cache.Set(context.Background(), cacheKey, routes, transitCacheTTL)
	c.JSON(http.StatusOK, routes)
}

// SaccoDetail is a sacco with its route and home-stage names joined in.
type SaccoDetail struct {
	SaccoID       uint    `json:"sacco_id"`
	Name          string  `json:"name"`
	BaseFareRange string  `json:"base_fare_range"`
	RouteID       *uint   `json:"route_id"`
	RouteName     *string `json:"route_name"`
	StageID       *uint   `json:"stage_id"`
	StageName     *string `json:"stage_name"`
}

func (h *TransitHandler) GetSaccoDetails(c *gin.Context) {
	const cacheKey = "transit:sacco-details"

	var cached []SaccoDetail
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	details := []SaccoDetail{}
	err := h.db.Table("saccos AS s").
		Select(`s.sacco_id, s.name, s.base_fare_range,
			r.route_id, r.display_name AS route_name,
			st.stage_id, st.name AS stage_name`).
		Joins("LEFT JOIN routes r ON s.route_id = r.route_id").
		Joins("LEFT JOIN stages st ON s.sacco_stage_id = st.stage_id").
		Scan(&details).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	go h.cache.Set(context.Background(), cacheKey, details, transitCacheTTL)
	c.JSON(http.StatusOK, details)
}

// Operation is the flattened sacco/route/stage view the home map plots.
type Operation struct {
	SaccoID        uint    `json:"sacco_id"`
	SaccoName      string  `json:"sacco_name"`
	BaseFareRange  string  `json:"base_fare_range"`
	RouteName      string  `json:"route_name"`
	FromStage      string  `json:"from_stage"`
	StageLatitude  float64 `json:"stage_latitude"`
	StageLongitude float64 `json:"stage_longitude"`
}

func (h *TransitHandler) GetOperations(c *gin.Context) {
	const cacheKey = "transit:operations"

	var cached []Operation
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	ops := []Operation{}
	err := h.db.Table("saccos AS sc").
		Select(`sc.sacco_id, sc.name AS sacco_name, sc.base_fare_range,
			r.display_name AS route_name,
			s1.name AS from_stage, s1.latitude AS stage_latitude, s1.longitude AS stage_longitude`).
		Joins("JOIN routes r ON sc.route_id = r.route_id").
		Joins("JOIN stages s1 ON sc.sacco_stage_id = s1.stage_id").
		Scan(&ops).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	go h.cache.Set(context.Background(), cacheKey, ops, transitCacheTTL)
	c.JSON(http.StatusOK, ops)
}
