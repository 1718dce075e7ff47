package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/rollcall/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormLedger struct {
	db *gorm.DB
}

func (s *gormLedger) Has(ctx context.Context, courseID, date string, action models.LedgerAction) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("course_id = ? AND date = ? AND action = ?", courseID, date, action).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("store: ledger lookup: %w", err)
	}
	return count > 0, nil
}

func (s *gormLedger) Append(ctx context.Context, courseID, date string, action models.LedgerAction) error {
	entry := models.LedgerEntry{CourseID: courseID, Date: date, Action: action}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "course_id"}, {Name: "date"}, {Name: "action"}},
		DoNothing: true,
	}).Create(&entry).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("store: ledger append: %w", err)
	}
	return nil
}

type gormLeaves struct {
	db *gorm.DB
}

// Approved returns the approved leave for person on date, or nil.
func (s *gormLeaves) Approved(ctx context.Context, personID, date string) (*models.LeaveRequest, error) {
	var lr models.LeaveRequest
	err := s.db.WithContext(ctx).
		Where("person_id = ? AND date = ? AND approved = ?", personID, date, true).
		Order("id").First(&lr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: leave lookup: %w", err)
	}
	return &lr, nil
}
