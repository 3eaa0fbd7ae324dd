package models

// Stage is a named matatu boarding point.
type Stage struct {
	StageID   uint    `gorm:"primaryKey;column:stage_id" json:"stage_id"`
	Name      string  `gorm:"size:255;not null" json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (Stage) TableName() string { return "stages" }

type Route struct {
	RouteID     uint   `gorm:"primaryKey;column:route_id" json:"route_id"`
	DisplayName string `gorm:"size:255;not null" json:"display_name"`
}

func (Route) TableName() string { return "routes" }

// Sacco is an operator cooperative running matatus on a route from a home stage.
type Sacco struct {
	SaccoID       uint   `gorm:"primaryKey;column:sacco_id" json:"sacco_id"`
	Name          string `gorm:"size:255;not null" json:"name"`
	BaseFareRange string `gorm:"size:100" json:"base_fare_range"`
	RouteID       uint   `gorm:"index" json:"route_id"`
	SaccoStageID  uint   `gorm:"index" json:"sacco_stage_id"`
}

func (Sacco) TableName() string { return "saccos" }
