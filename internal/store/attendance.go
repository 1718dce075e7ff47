package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/rollcall/internal/apperr"
	"github.com/zulandar/rollcall/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormAttendance struct {
	db *gorm.DB
}

func (s *gormAttendance) Get(ctx context.Context, sessionID, personID string) (*models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND person_id = ?", sessionID, personID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &apperr.NotFoundError{Entity: "attendance", ID: sessionID + "/" + personID}
	}
	if err != nil {
		return nil, fmt.Errorf("store: get attendance: %w", err)
	}
	return &rec, nil
}

func (s *gormAttendance) InsertIfAbsent(ctx context.Context, rec *models.AttendanceRecord) (bool, error) {
	rec.RecordedAt = rec.RecordedAt.UTC()
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "person_id"}},
		DoNothing: true,
	}).Create(rec)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("store: insert attendance: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *gormAttendance) RecentByPerson(ctx context.Context, personID string, limit int) ([]models.AttendanceRecord, error) {
	var recs []models.AttendanceRecord
	err := s.db.WithContext(ctx).Where("person_id = ?", personID).
		Order("recorded_at DESC, id DESC").Limit(limit).Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("store: recent attendance for %s: %w", personID, err)
	}
	return recs, nil
}

func (s *gormAttendance) BySession(ctx context.Context, sessionID string) ([]models.AttendanceRecord, error) {
	var recs []models.AttendanceRecord
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("person_id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("store: attendance for session %s: %w", sessionID, err)
	}
	return recs, nil
}
