package models

import "time"

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Firstname string    `gorm:"size:100;not null" json:"firstname"`
	Lastname  string    `gorm:"size:100;not null" json:"lastname"`
	Username  string    `gorm:"size:100;uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Specify   string    `gorm:"size:50" json:"specify"`
	CreatedAt time.Time `json:"created_at"`
}

func (User) TableName() string { return "users" }
