package models

import "time"

type Post struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ImageURL    *string   `gorm:"size:500" json:"image_url,omitempty"`
	Description string    `json:"description"`
	Type        string    `gorm:"size:50" json:"type"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Post) TableName() string { return "posts" }
