package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SensorType categorizes sensors ("DHT22", "Generic"). Created lazily on
// first ingest referencing a new name; never deleted while sensors point at it.
type SensorType struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:100;uniqueIndex" json:"name"`
	Description string `gorm:"type:text" json:"description"`
}

// Sensor is addressed externally only by its slug. Display name, type and
// location are metadata the device may update on later ingests.
type Sensor struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Name         string     `gorm:"size:100" json:"name"`
	Slug         string     `gorm:"size:120;uniqueIndex" json:"slug"`
	SensorTypeID uint       `json:"sensor_type_id"`
	SensorType   SensorType `gorm:"constraint:OnDelete:RESTRICT" json:"sensor_type"`
	Location     string     `gorm:"size:200" json:"location"`
}

// Reading is one timestamped measurement payload. Immutable once written.
type Reading struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	SensorID  uint           `gorm:"index" json:"sensor_id"`
	Sensor    Sensor         `gorm:"constraint:OnDelete:CASCADE" json:"sensor"`
	Timestamp time.Time      `gorm:"index" json:"timestamp"`
	Data      datatypes.JSON `json:"data"`
}

type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserName     string    `gorm:"size:150;uniqueIndex" json:"user_name"`
	Email        string    `gorm:"size:254;index" json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session backs the database session store. The token is the opaque value
// handed to the browser in a cookie.
type Session struct {
	Token     string    `gorm:"size:64;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;index"`
	ExpiresAt time.Time
	CreatedAt time.Time
}
