package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"matatu-commuter-api/models"

	"gorm.io/gorm"
)

const DefaultPageSize = 50

var (
	ErrAlertNotFound = errors.New("alert not found")
	ErrImageNotFound = errors.New("image not found")
	ErrNotAlertOwner = errors.New("alert belongs to another driver")
)

// ValidationError rejects a write before anything is persisted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// AlertFilter is the set of optional predicates for listing alerts. Zero
// values mean "no constraint"; every supplied predicate is ANDed. Unknown
// type/severity values are legal here and simply match nothing — the write
// path is where enums are enforced.
type AlertFilter struct {
	AlertType     string
	SeverityLevel string
	Location      string
	DriverID      uint
	ActiveOnly    bool
}

func (f AlertFilter) scope(now time.Time) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if f.AlertType != "" {
			db = db.Where("alert_type = ?", f.AlertType)
		}
		if f.SeverityLevel != "" {
			db = db.Where("severity_level = ?", f.SeverityLevel)
		}
		if f.Location != "" {
			db = db.Where("LOWER(location_name) LIKE ?", "%"+strings.ToLower(f.Location)+"%")
		}
		if f.DriverID != 0 {
			db = db.Where("driver_id = ?", f.DriverID)
		}
		if f.ActiveOnly {
			db = db.Where("(expiry_time IS NULL OR expiry_time > ?)", now)
		}
		return db
	}
}

type Page struct {
	Number int
	Limit  int
}

type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalCount  int64 `json:"totalCount"`
	HasNext     bool  `json:"hasNext"`
	HasPrev     bool  `json:"hasPrev"`
}

func NewPagination(page, limit int, total int64) Pagination {
	return Pagination{
		CurrentPage: page,
		TotalPages:  int(math.Ceil(float64(total) / float64(limit))),
		TotalCount:  total,
		HasNext:     int64(page)*int64(limit) < total,
		HasPrev:     page > 1,
	}
}

// alertColumns lists every Alert column except the image payload, which list
// and detail reads never load.
var alertColumns = []string{
	"id", "driver_id", "alert_type", "title", "description", "location_name",
	"severity_level", "image_filename", "image_mimetype", "expiry_time", "created_at",
}

type AlertService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewAlertService(db *gorm.DB) *AlertService {
	return &AlertService{db: db, now: time.Now}
}

// List returns one page of alerts matching the filter, newest first, plus
// pagination metadata. A page past the end yields an empty slice, not an error.
func (s *AlertService) List(ctx context.Context, f AlertFilter, p Page) ([]models.Alert, Pagination, error) {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	now := s.now()

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Alert{}).Scopes(f.scope(now)).Count(&total).Error; err != nil {
		return nil, Pagination{}, err
	}

	alerts := []models.Alert{}
	err := s.db.WithContext(ctx).Model(&models.Alert{}).Scopes(f.scope(now)).
		Select(alertColumns).
		Preload("Driver").
		Order("created_at DESC").Order("id DESC").
		Limit(p.Limit).Offset((p.Number - 1) * p.Limit).
		Find(&alerts).Error
	if err != nil {
		return nil, Pagination{}, err
	}

	return alerts, NewPagination(p.Number, p.Limit, total), nil
}

// ListByLocation returns up to 100 newest alerts whose location contains the
// given string, case-insensitively.
func (s *AlertService) ListByLocation(ctx context.Context, location string, activeOnly bool) ([]models.Alert, error) {
	f := AlertFilter{Location: location, ActiveOnly: activeOnly}
	alerts := []models.Alert{}
	err := s.db.WithContext(ctx).Model(&models.Alert{}).Scopes(f.scope(s.now())).
		Select(alertColumns).
		Preload("Driver").
		Order("created_at DESC").Order("id DESC").
		Limit(100).
		Find(&alerts).Error
	return alerts, err
}

func (s *AlertService) Get(ctx context.Context, id uint) (*models.Alert, error) {
	var alert models.Alert
	err := s.db.WithContext(ctx).
		Select(alertColumns).
		Preload("Driver").
		First(&alert, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// GetImage is a pure single-record lookup of the stored binary.
func (s *AlertService) GetImage(ctx context.Context, id uint) (data []byte, mimetype, filename string, err error) {
	var alert models.Alert
	e := s.db.WithContext(ctx).
		Select("id", "image_data", "image_mimetype", "image_filename").
		First(&alert, id).Error
	if errors.Is(e, gorm.ErrRecordNotFound) {
		return nil, "", "", ErrImageNotFound
	}
	if e != nil {
		return nil, "", "", e
	}
	if len(alert.ImageData) == 0 || alert.ImageMimetype == nil || alert.ImageFilename == nil {
		return nil, "", "", ErrImageNotFound
	}
	return alert.ImageData, *alert.ImageMimetype, *alert.ImageFilename, nil
}

type AlertInput struct {
	AlertType     string
	Title         string
	Description   string
	LocationName  string
	SeverityLevel string
	ExpiryTime    string
}

type AlertImage struct {
	Data     []byte
	Filename string
	Mimetype string
}

// Create validates and inserts a new alert. The poster is always the
// authenticated driver; client-supplied identities are ignored upstream.
func (s *AlertService) Create(ctx context.Context, driverID uint, in AlertInput, img *AlertImage) (*models.Alert, error) {
	if strings.TrimSpace(in.AlertType) == "" || strings.TrimSpace(in.Title) == "" ||
		strings.TrimSpace(in.Description) == "" || strings.TrimSpace(in.LocationName) == "" {
		return nil, validationf("missing required fields: alert_type, title, description and location_name are required")
	}

	alertType := models.AlertType(in.AlertType)
	if !alertType.Valid() {
		return nil, validationf("invalid alert_type %q, must be one of: %s", in.AlertType, models.AlertTypeNames())
	}

	severity := models.SeverityMedium
	if in.SeverityLevel != "" {
		severity = models.SeverityLevel(in.SeverityLevel)
		if !severity.Valid() {
			return nil, validationf("invalid severity_level %q, must be one of: %s", in.SeverityLevel, models.SeverityLevelNames())
		}
	}

	expiry, err := s.parseExpiry(in.ExpiryTime)
	if err != nil {
		return nil, err
	}

	var driver models.User
	if err := s.db.WithContext(ctx).First(&driver, driverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, validationf("driver not found")
		}
		return nil, err
	}

	alert := models.Alert{
		DriverID:      driverID,
		AlertType:     alertType,
		Title:         in.Title,
		Description:   in.Description,
		LocationName:  in.LocationName,
		SeverityLevel: severity,
		ExpiryTime:    expiry,
	}
	if img != nil {
		alert.ImageData = img.Data
		alert.ImageFilename = &img.Filename
		alert.ImageMimetype = &img.Mimetype
	}

	if err := s.db.WithContext(ctx).Create(&alert).Error; err != nil {
		return nil, err
	}

	alert.Driver = driver
	alert.ImageData = nil
	alert.HasImage = alert.ImageFilename != nil
	return &alert, nil
}

// AlertUpdate carries partial edits; nil fields are left unchanged. A non-nil
// empty ExpiryTime clears the expiry.
type AlertUpdate struct {
	AlertType     *string
	Title         *string
	Description   *string
	LocationName  *string
	SeverityLevel *string
	ExpiryTime    *string
}

func (s *AlertService) Update(ctx context.Context, callerID, id uint, up AlertUpdate, img *AlertImage) (*models.Alert, error) {
	var existing models.Alert
	err := s.db.WithContext(ctx).Select("id", "driver_id").First(&existing, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	if existing.DriverID != callerID {
		return nil, ErrNotAlertOwner
	}

	updates := map[string]interface{}{}

	if up.AlertType != nil {
		t := models.AlertType(*up.AlertType)
		if !t.Valid() {
			return nil, validationf("invalid alert_type %q, must be one of: %s", *up.AlertType, models.AlertTypeNames())
		}
		updates["alert_type"] = t
	}
	if up.Title != nil {
		if strings.TrimSpace(*up.Title) == "" {
			return nil, validationf("title must not be empty")
		}
		updates["title"] = *up.Title
	}
	if up.Description != nil {
		if strings.TrimSpace(*up.Description) == "" {
			return nil, validationf("description must not be empty")
		}
		updates["description"] = *up.Description
	}
	if up.LocationName != nil {
		if strings.TrimSpace(*up.LocationName) == "" {
			return nil, validationf("location_name must not be empty")
		}
		updates["location_name"] = *up.LocationName
	}
	if up.SeverityLevel != nil {
		sev := models.SeverityLevel(*up.SeverityLevel)
		if !sev.Valid() {
			return nil, validationf("invalid severity_level %q, must be one of: %s", *up.SeverityLevel, models.SeverityLevelNames())
		}
		updates["severity_level"] = sev
	}
	if up.ExpiryTime != nil {
		expiry, err := s.parseExpiry(*up.ExpiryTime)
		if err != nil {
			return nil, err
		}
		updates["expiry_time"] = expiry
	}
	if img != nil {
		updates["image_data"] = img.Data
		updates["image_filename"] = img.Filename
		updates["image_mimetype"] = img.Mimetype
	}

	if len(updates) == 0 {
		return nil, validationf("no fields to update")
	}

	if err := s.db.WithContext(ctx).Model(&models.Alert{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

func (s *AlertService) Delete(ctx context.Context, callerID, id uint) (*models.Alert, error) {
	var existing models.Alert
	err := s.db.WithContext(ctx).Select("id", "driver_id", "title", "alert_type", "created_at").First(&existing, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, err
	}
	if existing.DriverID != callerID {
		return nil, ErrNotAlertOwner
	}

	if err := s.db.WithContext(ctx).Delete(&models.Alert{}, id).Error; err != nil {
		return nil, err
	}
	return &existing, nil
}

type DeletedAlert struct {
	ID         uint       `json:"id"`
	Title      string     `json:"title"`
	ExpiryTime *time.Time `json:"expiry_time"`
}

// Cleanup deletes every alert whose expiry has passed and reports what was
// removed. Running it with nothing expired deletes nothing and succeeds.
func (s *AlertService) Cleanup(ctx context.Context) ([]DeletedAlert, error) {
	now := s.now()

	expired := []DeletedAlert{}
	err := s.db.WithContext(ctx).Model(&models.Alert{}).
		Select("id", "title", "expiry_time").
		Where("expiry_time IS NOT NULL AND expiry_time <= ?", now).
		Order("id").
		Scan(&expired).Error
	if err != nil {
		return nil, err
	}
	if len(expired) == 0 {
		return expired, nil
	}

	ids := make([]uint, len(expired))
	for i, a := range expired {
		ids[i] = a.ID
	}
	if err := s.db.WithContext(ctx).Delete(&models.Alert{}, "id IN ?", ids).Error; err != nil {
		return nil, err
	}
	return expired, nil
}

type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

type AlertStats struct {
	Period       string          `json:"period"`
	TotalAlerts  int64           `json:"total_alerts"`
	ActiveAlerts int64           `json:"active_alerts"`
	ByType       []CategoryCount `json:"by_type"`
	BySeverity   []CategoryCount `json:"by_severity"`
}

var statsPeriods = map[string]time.Duration{
	"1d":  24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

// Stats summarizes alert volume over a trailing window (1d, 7d, 30d or 90d;
// anything else falls back to 7d, as the dashboard expects).
func (s *AlertService) Stats(ctx context.Context, period string) (*AlertStats, error) {
	window, ok := statsPeriods[period]
	if !ok {
		period = "7d"
		window = statsPeriods[period]
	}
	now := s.now()
	since := now.Add(-window)

	stats := &AlertStats{Period: period}

	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Alert{}).Where("created_at >= ?", since)
	}

	if err := base().Count(&stats.TotalAlerts).Error; err != nil {
		return nil, err
	}
	if err := base().Where("(expiry_time IS NULL OR expiry_time > ?)", now).Count(&stats.ActiveAlerts).Error; err != nil {
		return nil, err
	}
	if err := base().Select("alert_type AS category, COUNT(*) AS count").
		Group("alert_type").Order("count DESC").Scan(&stats.ByType).Error; err != nil {
		return nil, err
	}
	if err := base().Select("severity_level AS category, COUNT(*) AS count").
		Group("severity_level").Order("count DESC").Scan(&stats.BySeverity).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// parseExpiry accepts RFC3339 or a bare local timestamp; empty clears the
// expiry. A parsed expiry must be in the future.
func (s *AlertService) parseExpiry(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05", raw)
	}
	if err != nil {
		return nil, validationf("invalid expiry_time format, use ISO 8601 (YYYY-MM-DDTHH:mm:ssZ)")
	}
	if !t.After(s.now()) {
		return nil, validationf("expiry_time must be in the future")
	}
	return &t, nil
}
