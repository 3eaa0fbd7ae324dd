package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type AlertType string

const (
	AlertTypeTrafficJam       AlertType = "traffic_jam"
	AlertTypeAccident         AlertType = "accident"
	AlertTypeRoadClosure      AlertType = "road_closure"
	AlertTypeWeatherWarning   AlertType = "weather_warning"
	AlertTypePoliceCheckpoint AlertType = "police_checkpoint"
	AlertTypeRouteDiversion   AlertType = "route_diversion"
	AlertTypeOther            AlertType = "other"
)

var alertTypes = []AlertType{
	AlertTypeTrafficJam,
	AlertTypeAccident,
	AlertTypeRoadClosure,
	AlertTypeWeatherWarning,
	AlertTypePoliceCheckpoint,
	AlertTypeRouteDiversion,
	AlertTypeOther,
}

func (t AlertType) Valid() bool {
	for _, v := range alertTypes {
		if t == v {
			return true
		}
	}
	return false
}

// AlertTypeNames lists the accepted values, for validation messages.
func AlertTypeNames() string {
	names := make([]string, len(alertTypes))
	for i, v := range alertTypes {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}

type SeverityLevel string

const (
	SeverityLow      SeverityLevel = "low"
	SeverityMedium   SeverityLevel = "medium"
	SeverityHigh     SeverityLevel = "high"
	SeverityCritical SeverityLevel = "critical"
)

var severityLevels = []SeverityLevel{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s SeverityLevel) Valid() bool {
	for _, v := range severityLevels {
		if s == v {
			return true
		}
	}
	return false
}

func SeverityLevelNames() string {
	names := make([]string, len(severityLevels))
	for i, v := range severityLevels {
		names[i] = string(v)
	}
	return strings.Join(names, ", ")
}

// Alert is a driver-submitted road condition report. An alert with a past
// expiry_time is expired: hidden from active-only reads but kept until the
// cleanup sweep deletes it.
type Alert struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	DriverID      uint          `gorm:"index;not null" json:"driver_id"`
	Driver        User          `gorm:"foreignKey:DriverID;constraint:OnDelete:CASCADE" json:"driver"`
	AlertType     AlertType     `gorm:"size:50;not null;index" json:"alert_type"`
	Title         string        `gorm:"size:255;not null" json:"title"`
	Description   string        `gorm:"not null" json:"description"`
	LocationName  string        `gorm:"size:255;not null;index" json:"location_name"`
	SeverityLevel SeverityLevel `gorm:"size:20;not null;default:medium" json:"severity_level"`
	ImageData     []byte        `json:"-"`
	ImageFilename *string       `gorm:"size:255" json:"image_filename,omitempty"`
	ImageMimetype *string       `gorm:"size:100" json:"-"`
	ExpiryTime    *time.Time    `gorm:"index" json:"expiry_time,omitempty"`
	CreatedAt     time.Time     `gorm:"index" json:"created_at"`

	HasImage bool `gorm:"-" json:"has_image"`
}

func (Alert) TableName() string { return "driver_alerts" }

func (a *Alert) AfterFind(*gorm.DB) error {
	a.HasImage = a.ImageFilename != nil
	return nil
}

// Active reports whether the alert is visible at the given instant.
func (a *Alert) Active(now time.Time) bool {
	return a.ExpiryTime == nil || a.ExpiryTime.After(now)
}
