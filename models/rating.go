package models

import (
	"time"

	"gorm.io/gorm"
)

// Rating is one commuter's review of a sacco. A commuter may rate a given
// sacco at most once.
type Rating struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	CommuterID        uint      `gorm:"index:idx_ratings_commuter_sacco,unique;not null" json:"commuter_id"`
	Commuter          User      `gorm:"foreignKey:CommuterID;constraint:OnDelete:CASCADE" json:"commuter"`
	SaccoID           uint      `gorm:"index:idx_ratings_commuter_sacco,unique;not null" json:"sacco_id"`
	Sacco             Sacco     `gorm:"foreignKey:SaccoID;constraint:OnDelete:CASCADE" json:"sacco"`
	CleanlinessRating int       `gorm:"not null" json:"cleanliness_rating"`
	SafetyRating      int       `gorm:"not null" json:"safety_rating"`
	ServiceRating     int       `gorm:"not null" json:"service_rating"`
	AverageRating     float64   `json:"average_rating"`
	ReviewText        *string   `json:"review_text,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Rating) TableName() string { return "ratings" }

// BeforeSave keeps average_rating derived from the three component scores.
func (r *Rating) BeforeSave(*gorm.DB) error {
	r.AverageRating = float64(r.CleanlinessRating+r.SafetyRating+r.ServiceRating) / 3
	return nil
}
