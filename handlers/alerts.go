package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"matatu-commuter-api/middleware"
	"matatu-commuter-api/services"

	"github.com/gin-gonic/gin"
)

// AlertChannel is the pub/sub channel new alerts are announced on.
const AlertChannel = "matatu:alerts"

type AlertsHandler struct {
	svc       *services.AlertService
	cache     *services.CacheService
	maxUpload int64
}

func NewAlertsHandler(svc *services.AlertService, cache *services.CacheService, maxUpload int64) *AlertsHandler {
	return &AlertsHandler{svc: svc, cache: cache, maxUpload: maxUpload}
}

func (h *AlertsHandler) RegisterRoutes(api *gin.RouterGroup, auth gin.HandlerFunc) {
	api.GET("/driver-alerts", h.List)
	api.GET("/driver-alerts/stats", h.Stats)
	api.GET("/driver-alerts/location/:location", h.ByLocation)
	api.GET("/driver-alerts/:id", h.Get)
	api.GET("/driver-alerts/:id/image", h.GetImage)
	api.POST("/driver-alerts", auth, h.Create)
	api.PUT("/driver-alerts/:id", auth, h.Update)
	api.DELETE("/driver-alerts/:id", auth, h.Delete)
	api.POST("/driver-alerts/cleanup", h.Cleanup)
}

func (h *AlertsHandler) List(c *gin.Context) {
	filter := services.AlertFilter{
		AlertType:     c.Query("alert_type"),
		SeverityLevel: c.Query("severity_level"),
		Location:      c.Query("location"),
		ActiveOnly:    c.DefaultQuery("active_only", "true") == "true",
	}
	if d := c.Query("driver_id"); d != "" {
		if id, err := strconv.ParseUint(d, 10, 32); err == nil {
			filter.DriverID = uint(id)
		}
	}

	alerts, pagination, err := h.svc.List(c.Request.Context(), filter, ParsePage(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts":     alerts,
		"pagination": pagination,
	})
}

func (h *AlertsHandler) Get(c *gin.Context) {
	id, ok := alertID(c)
	if !ok {
		return
	}

	alert, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

func (h *AlertsHandler) GetImage(c *gin.Context) {
	id, ok := alertID(c)
	if !ok {
		return
	}

	data, mimetype, filename, err := h.svc.GetImage(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, mimetype, data)
}

func (h *AlertsHandler) Create(c *gin.Context) {
	callerID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	// Any client-supplied driver_id is ignored: the poster is the caller.
	input := services.AlertInput{
		AlertType:     c.PostForm("alert_type"),
		Title:         c.PostForm("title"),
		Description:   c.PostForm("description"),
		LocationName:  c.PostForm("location_name"),
		SeverityLevel: c.PostForm("severity_level"),
		ExpiryTime:    c.PostForm("expiry_time"),
	}

	img, err := h.formImage(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	alert, err := h.svc.Create(c.Request.Context(), callerID, input, img)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.invalidateStats(c.Request.Context())
	if err := h.cache.Publish(c.Request.Context(), AlertChannel, alert); err != nil {
		slog.Warn("failed to publish alert", "alert_id", alert.ID, "error", err)
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "driver alert created successfully",
		"alert":   alert,
	})
}

func (h *AlertsHandler) Update(c *gin.Context) {
	callerID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	id, ok := alertID(c)
	if !ok {
		return
	}

	var update services.AlertUpdate
	if v, ok := c.GetPostForm("alert_type"); ok {
		update.AlertType = &v
	}
	if v, ok := c.GetPostForm("title"); ok {
		update.Title = &v
	}
	if v, ok := c.GetPostForm("description"); ok {
		update.Description = &v
	}
	if v, ok := c.GetPostForm("location_name"); ok {
		update.LocationName = &v
	}
	if v, ok := c.GetPostForm("severity_level"); ok {
		update.SeverityLevel = &v
	}
	if v, ok := c.GetPostForm("expiry_time"); ok {
		update.ExpiryTime = &v
	}

	img, err := h.formImage(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	alert, err := h.svc.Update(c.Request.Context(), callerID, id, update, img)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.invalidateStats(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"message": "driver alert updated successfully",
		"alert":   alert,
	})
}

func (h *AlertsHandler) Delete(c *gin.Context) {
	callerID, ok := middleware.CallerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	id, ok := alertID(c)
	if !ok {
		return
	}

	alert, err := h.svc.Delete(c.Request.Context(), callerID, id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.invalidateStats(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"message": "driver alert deleted successfully",
		"alert": gin.H{
			"id":         alert.ID,
			"title":      alert.Title,
			"alert_type": alert.AlertType,
			"created_at": alert.CreatedAt,
		},
	})
}

func (h *AlertsHandler) Cleanup(c *gin.Context) {
	deleted, err := h.svc.Cleanup(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.invalidateStats(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"message":      "expired alerts cleaned up successfully",
		"deletedCount": len(deleted),
		"deleted":      deleted,
	})
}

func (h *AlertsHandler) ByLocation(c *gin.Context) {
	location := c.Param("location")
	activeOnly := c.DefaultQuery("active_only", "true") == "true"

	alerts, err := h.svc.ListByLocation(c.Request.Context(), location, activeOnly)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"location": location,
		"alerts":   alerts,
		"count":    len(alerts),
	})
}

func (h *AlertsHandler) Stats(c *gin.Context) {
	period := c.DefaultQuery("period", "7d")
	cacheKey := "alerts:stats:" + period

	var cached services.AlertStats
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached.Period != "" {
		c.JSON(http.StatusOK, cached)
		return
	}

	stats, err := h.svc.Stats(c.Request.Context(), period)
	if err != nil {
		h.respondError(c, err)
		return
	}

	go h.cache.Set(context.Background(), cacheKey, stats, 30*time.Second)
	c.JSON(http.StatusOK, stats)
}

// formImage pulls an optional "image" upload out of the multipart form,
// enforcing the size cap and image-only rule before any write happens.
func (h *AlertsHandler) formImage(c *gin.Context) (*services.AlertImage, error) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		return nil, nil // no file attached
	}
	if fileHeader.Size > h.maxUpload {
		return nil, &services.ValidationError{Msg: fmt.Sprintf("file too large, maximum size is %dMB", h.maxUpload/(1024*1024))}
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, &services.ValidationError{Msg: "only image files are allowed"}
	}

	f, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &services.AlertImage{
		Data:     data,
		Filename: fileHeader.Filename,
		Mimetype: contentType,
	}, nil
}

func (h *AlertsHandler) invalidateStats(ctx context.Context) {
	if err := h.cache.Delete(ctx, "alerts:stats:1d", "alerts:stats:7d", "alerts:stats:30d", "alerts:stats:90d"); err != nil {
		slog.Warn("failed to invalidate stats cache", "error", err)
	}
}

func (h *AlertsHandler) respondError(c *gin.Context, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Msg})
	case errors.Is(err, services.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "alert not found"})
	case errors.Is(err, services.ErrImageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
	case errors.Is(err, services.ErrNotAlertOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "you can only modify your own alerts"})
	default:
		slog.Error("alert request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func alertID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return 0, false
	}
	return uint(id), true
}
