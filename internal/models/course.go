package models

import (
	"fmt"
	"time"
)

// Radius policy values for Course.RadiusMeters. Any positive value is a
// GPS geofence in meters.
const (
	RadiusUnrestricted = 0
	RadiusVenueOnly    = -1
)

// GeofencePolicy is the admission rule derived from a course's radius and
// classroom coordinates.
type GeofencePolicy string

const (
	PolicyUnrestricted GeofencePolicy = "unrestricted"
	PolicyGeofenced    GeofencePolicy = "geofenced"
	PolicyVenueOnly    GeofencePolicy = "venue_only"
)

// Course is a recurring weekly class meeting. StartTime and EndTime are
// civil "HH:MM" times in the configured timezone.
type Course struct {
	ID                   string `gorm:"primaryKey;size:32"`
	Subject              string `gorm:"size:128;not null"`
	Weekday              int    `gorm:"not null;index"` // time.Weekday
	StartTime            string `gorm:"size:5;not null"`
	EndTime              string `gorm:"size:5;not null"`
	Latitude             *float64
	Longitude            *float64
	RadiusMeters         int  `gorm:"not null;default:0"`
	LateThresholdMinutes int  `gorm:"not null"`
	RemindMinutes        int  `gorm:"not null;default:0"`
	Active               bool `gorm:"not null;index"`
	CreatedAt            time.Time
	UpdatedAt            time.Time

	Classes []Class `gorm:"many2many:course_classes"`
}

// Policy classifies the course's geofence rule. A venue-only radius wins
// over coordinates; a positive radius without coordinates is unrestricted.
func (c *Course) Policy() GeofencePolicy {
	switch {
	case c.RadiusMeters == RadiusVenueOnly:
		return PolicyVenueOnly
	case c.RadiusMeters > 0 && c.Latitude != nil && c.Longitude != nil:
		return PolicyGeofenced
	default:
		return PolicyUnrestricted
	}
}

// ClockTime parses an "HH:MM" civil time into hours and minutes.
func ClockTime(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	return t.Hour(), t.Minute(), nil
}
