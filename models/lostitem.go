package models

import "time"

// LostItem is a rider's lost-property report. Images live on disk under the
// uploads directory; image_url is the public path.
type LostItem struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	LostItem    string    `gorm:"column:lostitem;size:255;not null" json:"lostitem"`
	Route       string    `gorm:"size:255;not null" json:"route"`
	Date        string    `gorm:"size:10;not null" json:"date"`
	Sacco       string    `gorm:"size:255;not null" json:"sacco"`
	Description *string   `json:"description,omitempty"`
	ImageURL    *string   `gorm:"size:500" json:"image_url,omitempty"`
	Found       bool      `gorm:"default:false" json:"found"`
	CreatedAt   time.Time `json:"created_at"`
}

func (LostItem) TableName() string { return "lost_items" }
