package domain

import "time"

// Instrument is the static description of a tradable token.
type Instrument struct {
	Token     int64     `gorm:"primaryKey;autoIncrement:false" json:"token"`
	Exchange  string    `gorm:"primaryKey" json:"exchange"`
	Symbol    string    `gorm:"index" json:"symbol"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
