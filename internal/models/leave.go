package models

import "time"

// LeaveRequest is an excused absence for one person on one date. Leave
// requests are managed outside the bot; the absence sweep only reads them.
type LeaveRequest struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	PersonID  string `gorm:"size:10;not null;index:idx_leave_person_date"`
	Date      string `gorm:"size:10;not null;index:idx_leave_person_date"`
	Reason    string `gorm:"size:255"`
	Approved  bool   `gorm:"not null"`
	CreatedAt time.Time
}
